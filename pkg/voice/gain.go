package voice

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
)

// logExponent maps a linear 0-1 gain onto perceived loudness
const logExponent = 1.660964

// pcmStreamer exposes interleaved s16le stereo PCM as a beep.Streamer
type pcmStreamer struct {
	r       io.Reader
	buf     []byte
	err     error
	drained bool
}

func newPCMStreamer(r io.Reader) *pcmStreamer {
	return &pcmStreamer{r: r}
}

func (s *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.drained {
		return 0, false
	}

	need := len(samples) * channels * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	read, err := io.ReadFull(s.r, buf)
	frames := read / (channels * 2)
	for i := 0; i < frames; i++ {
		left := int16(binary.LittleEndian.Uint16(buf[i*4:]))
		right := int16(binary.LittleEndian.Uint16(buf[i*4+2:]))
		samples[i][0] = float64(left) / 32768
		samples[i][1] = float64(right) / 32768
	}

	if err != nil {
		s.drained = true
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			s.err = err
		}
		return frames, frames > 0
	}
	return frames, true
}

func (s *pcmStreamer) Err() error {
	return s.err
}

// gainControl applies a runtime adjustable logarithmic gain
type gainControl struct {
	mu  sync.Mutex
	vol *effects.Volume
}

func newGainControl(src beep.Streamer) *gainControl {
	return &gainControl{vol: &effects.Volume{Streamer: src, Base: 1, Volume: 1}}
}

// Set changes the gain; 1 is unity, 0 is silence
func (g *gainControl) Set(gain float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if gain <= 0 {
		g.vol.Silent = true
		return
	}
	g.vol.Silent = false
	g.vol.Base = gain
	g.vol.Volume = logExponent
}

func (g *gainControl) Stream(samples [][2]float64) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.vol.Stream(samples)
}

func (g *gainControl) Err() error {
	return g.vol.Err()
}

// toPCM converts float frames back to interleaved int16 samples, clipping out of range values
func toPCM(frames [][2]float64, out []int16) {
	for i := range out {
		out[i] = 0
	}
	for i, f := range frames {
		out[i*2] = clip(f[0])
		out[i*2+1] = clip(f[1])
	}
}

func clip(v float64) int16 {
	switch {
	case v >= 1:
		return 32767
	case v <= -1:
		return -32768
	default:
		return int16(v * 32768)
	}
}
