package voice

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/tarumae-dj/pkg/logging"
	"github.com/latoulicious/tarumae-dj/pkg/playback"
	"golang.org/x/time/rate"
)

// Config controls voice joins and the ffmpeg/opus pipeline
type Config struct {
	JoinAttempts int
	RetryDelay   time.Duration
	FFmpegPath   string
	Bitrate      int
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		JoinAttempts: 3,
		RetryDelay:   time.Second,
		FFmpegPath:   "ffmpeg",
		Bitrate:      128000,
	}
}

// Output joins Discord voice channels and streams audio into them
type Output struct {
	session *discordgo.Session
	cfg     Config
	log     logging.Logger
}

// NewOutput creates a Discord backed audio output
func NewOutput(session *discordgo.Session, cfg Config, logger logging.Logger) *Output {
	def := DefaultConfig()
	if cfg.JoinAttempts <= 0 {
		cfg.JoinAttempts = def.JoinAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = def.FFmpegPath
	}
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = def.Bitrate
	}
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Output{session: session, cfg: cfg, log: logger}
}

// Join connects to the voice channel with paced retries and waits for the connection to be ready
func (o *Output) Join(ctx context.Context, guildID, channelID string) (playback.Connection, error) {
	channelName := "Unknown"
	if channel, err := o.session.State.Channel(channelID); err == nil {
		channelName = channel.Name
	}
	o.log.Info("Joining voice channel",
		logging.String("guild_id", guildID),
		logging.String("channel_id", channelID),
		logging.String("channel", channelName))

	limiter := rate.NewLimiter(rate.Every(o.cfg.RetryDelay), 1)

	var vc *discordgo.VoiceConnection
	var err error
	for i := 0; i < o.cfg.JoinAttempts; i++ {
		if waitErr := limiter.Wait(ctx); waitErr != nil {
			return nil, waitErr
		}

		vc, err = o.session.ChannelVoiceJoin(guildID, channelID, false, true)
		if err == nil {
			break
		}
		o.log.Warn("Voice join attempt failed",
			logging.String("guild_id", guildID),
			logging.Int("attempt", i+1),
			logging.Int("max_attempts", o.cfg.JoinAttempts),
			logging.Err(err))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel after %d attempts: %w", o.cfg.JoinAttempts, err)
	}

	if err := waitReady(ctx, vc); err != nil {
		_ = vc.Disconnect()
		return nil, err
	}

	o.log.Info("Voice connection ready", logging.String("guild_id", guildID))
	return &Connection{
		vc:   vc,
		sink: voiceSink{vc: vc},
		cfg:  o.cfg,
		log:  o.log.With(logging.String("guild_id", guildID)),
	}, nil
}

func waitReady(ctx context.Context, vc *discordgo.VoiceConnection) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		vc.RLock()
		ready := vc.Ready
		vc.RUnlock()
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("voice connection timed out: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Connection is a joined voice channel
type Connection struct {
	vc   *discordgo.VoiceConnection
	sink frameSink
	cfg  Config
	log  logging.Logger
}

// Leave disconnects from the voice channel
func (c *Connection) Leave() error {
	c.log.Info("Disconnecting from voice channel")
	return c.vc.Disconnect()
}
