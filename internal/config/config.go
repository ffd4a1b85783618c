package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required"`
	Prefix       string `env:"COMMAND_PREFIX" envDefault:"-"`

	DefaultVolume int           `env:"DEFAULT_VOLUME" envDefault:"4"`
	JoinAttempts  int           `env:"JOIN_ATTEMPTS" envDefault:"3"`
	JoinTimeout   time.Duration `env:"JOIN_TIMEOUT" envDefault:"10s"`
	FFmpegPath    string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	YtDlpPath     string        `env:"YTDLP_PATH" envDefault:"yt-dlp"`
	OpusBitrate   int           `env:"OPUS_BITRATE" envDefault:"128000"`

	HistoryDBPath        string        `env:"HISTORY_DB_PATH" envDefault:"history.db"`
	HistoryRetention     time.Duration `env:"HISTORY_RETENTION" envDefault:"720h"`
	HistoryPruneSchedule string        `env:"HISTORY_PRUNE_SCHEDULE" envDefault:"0 0 4 * * *"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

var (
	ErrDiscordTokenNotSet = errors.New("DISCORD_TOKEN is not set")
	ErrInvalidPrefix      = errors.New("command prefix must not be empty or contain spaces")
	ErrInvalidVolume      = errors.New("default volume must be between 0 and 5")
	ErrInvalidRetention   = errors.New("history retention must be positive")
)

// LoadConfig reads .env (if present) and the process environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}
	return Parse()
}

// Parse reads the configuration from the process environment
func Parse() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		var missing env.EnvVarIsNotSetError
		if errors.As(err, &missing) {
			return nil, ErrDiscordTokenNotSet
		}
		var aggregate env.AggregateError
		if errors.As(err, &aggregate) {
			for _, e := range aggregate.Errors {
				if errors.As(e, &missing) {
					return nil, ErrDiscordTokenNotSet
				}
			}
		}
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that the environment parser cannot
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return ErrDiscordTokenNotSet
	}
	if c.Prefix == "" || strings.ContainsAny(c.Prefix, " \t\n") {
		return ErrInvalidPrefix
	}
	if c.DefaultVolume < 0 || c.DefaultVolume > 5 {
		return ErrInvalidVolume
	}
	if c.HistoryRetention <= 0 {
		return ErrInvalidRetention
	}
	return nil
}
