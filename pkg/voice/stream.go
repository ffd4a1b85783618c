package voice

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/tarumae-dj/pkg/logging"
	"github.com/latoulicious/tarumae-dj/pkg/playback"
	"layeh.com/gopus"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz
	maxBytes   = frameSize * channels * 2

	sendTimeout = 5 * time.Second
)

var errSendStalled = errors.New("voice connection stopped accepting audio")

// frameSink receives encoded opus frames
type frameSink interface {
	Speaking(speaking bool) error
	Frames() chan<- []byte
}

// voiceSink sends frames into a Discord voice connection
type voiceSink struct {
	vc *discordgo.VoiceConnection
}

func (s voiceSink) Speaking(speaking bool) error {
	return s.vc.Speaking(speaking)
}

func (s voiceSink) Frames() chan<- []byte {
	return s.vc.OpusSend
}

// Play starts ffmpeg on the locator and streams the decoded audio into the voice connection
func (c *Connection) Play(locator string) (playback.Dispatcher, error) {
	ctx, cancel := context.WithCancel(context.Background())

	cmd := exec.CommandContext(ctx, c.cfg.FFmpegPath,
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", locator,
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-loglevel", "warning",
		"pipe:1")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	encoder.SetBitrate(c.cfg.Bitrate)

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	d := &Dispatcher{
		ctx:    ctx,
		cancel: cancel,
		gain:   newGainControl(newPCMStreamer(stdout)),
		done:   make(chan error, 1),
		log:    c.log,
	}
	go d.run(cmd, encoder, c.sink)

	return d, nil
}

// Dispatcher controls one running ffmpeg stream
type Dispatcher struct {
	ctx     context.Context
	cancel  context.CancelFunc
	gain    *gainControl
	done    chan error
	stopped atomic.Bool
	once    sync.Once
	log     logging.Logger
}

// SetVolume sets the linear gain, applied logarithmically
func (d *Dispatcher) SetVolume(gain float64) {
	d.gain.Set(gain)
}

// Stop forces the stream to end
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		d.stopped.Store(true)
		d.cancel()
	})
}

// Done delivers the outcome of the stream exactly once
func (d *Dispatcher) Done() <-chan error {
	return d.done
}

func (d *Dispatcher) run(cmd *exec.Cmd, encoder *gopus.Encoder, sink frameSink) {
	start := time.Now()
	err := d.pump(encoder, sink)
	if err != nil {
		d.cancel()
	}
	waitErr := cmd.Wait()
	d.cancel()

	if d.stopped.Load() {
		d.log.Info("Stream stopped", logging.Duration("elapsed", time.Since(start)))
		d.done <- nil
		return
	}
	if err == nil && waitErr != nil {
		err = fmt.Errorf("ffmpeg exited: %w", waitErr)
	}
	if err != nil {
		d.done <- fmt.Errorf("%w: %w", playback.ErrStream, err)
		return
	}

	d.log.Info("Stream completed normally", logging.Duration("elapsed", time.Since(start)))
	d.done <- nil
}

func (d *Dispatcher) pump(encoder *gopus.Encoder, sink frameSink) error {
	_ = sink.Speaking(true)
	defer func() { _ = sink.Speaking(false) }()
	framesOut := sink.Frames()

	frames := make([][2]float64, frameSize)
	pcm := make([]int16, frameSize*channels)

	for {
		select {
		case <-d.ctx.Done():
			return nil
		default:
		}

		n, ok := d.gain.Stream(frames)
		if !ok {
			return d.gain.Err()
		}
		toPCM(frames[:n], pcm)

		packet, err := encoder.Encode(pcm, frameSize, maxBytes)
		if err != nil {
			return fmt.Errorf("encode error: %w", err)
		}

		select {
		case framesOut <- packet:
		case <-d.ctx.Done():
			return nil
		case <-time.After(sendTimeout):
			return errSendStalled
		}
	}
}
