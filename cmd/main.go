package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/tarumae-dj/internal/commands"
	"github.com/latoulicious/tarumae-dj/internal/config"
	"github.com/latoulicious/tarumae-dj/internal/handlers"
	"github.com/latoulicious/tarumae-dj/internal/presence"
	"github.com/latoulicious/tarumae-dj/pkg/cron"
	"github.com/latoulicious/tarumae-dj/pkg/database"
	"github.com/latoulicious/tarumae-dj/pkg/logging"
	"github.com/latoulicious/tarumae-dj/pkg/playback"
	"github.com/latoulicious/tarumae-dj/pkg/resolver"
	"github.com/latoulicious/tarumae-dj/pkg/voice"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logging.NewStdLogAdapter(logger.With(logging.String("component", "stdlog"))).SetAsStdLogger()

	// Create a new Discord session using the provided token
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Fatalf("Failed to create Discord session: %v", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	history, err := database.NewHistoryDB(cfg.HistoryDBPath)
	if err != nil {
		log.Fatalf("Failed to open history database: %v", err)
	}
	defer history.Close()

	retention := cron.NewRetentionManager(history.PruneBefore, cfg.HistoryRetention, cfg.HistoryPruneSchedule,
		logger.With(logging.String("component", "retention")))
	if err := retention.Start(); err != nil {
		log.Fatalf("Failed to schedule history pruning: %v", err)
	}
	defer retention.Stop()

	presenceManager := presence.NewManager(dg, presence.SessionGuildCount(dg), cfg.Prefix,
		logger.With(logging.String("component", "presence")))

	output := voice.NewOutput(dg, voice.Config{
		JoinAttempts: cfg.JoinAttempts,
		FFmpegPath:   cfg.FFmpegPath,
		Bitrate:      cfg.OpusBitrate,
	}, logger.With(logging.String("component", "voice")))

	replier := commands.NewDiscordReplier(dg)
	notifier := commands.NewNotifier(replier, presenceManager, logger.With(logging.String("component", "notifier")))

	controller := playback.NewController(playback.NewStore(), output, notifier, playback.Options{
		Volume:      cfg.DefaultVolume,
		JoinTimeout: cfg.JoinTimeout,
		Logger:      logger.With(logging.String("component", "playback")),
		Recorder:    history,
	})

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Playback controller stopped", logging.Err(err))
		}
	}()

	router := commands.NewRouter(controller,
		resolver.NewYouTubeResolver(cfg.YtDlpPath, logger.With(logging.String("component", "resolver"))),
		history, replier, cfg.Prefix, logger.With(logging.String("component", "commands")))

	// Register the message handler
	dg.AddHandler(handlers.NewMessageHandler(ctx, router, logger).Handle)

	// Open a websocket connection to Discord and begin listening.
	if err := dg.Open(); err != nil {
		log.Fatalf("Failed to open Discord session: %v", err)
	}

	// Set initial presence and keep the server count fresh
	presenceManager.UpdateDefaultPresence()
	stopPresence := make(chan struct{})
	presenceManager.StartPeriodicUpdates(5*time.Minute, stopPresence)

	logger.Info("Bot is running. Press CTRL-C to exit.", logging.String("prefix", cfg.Prefix))
	// Wait here until CTRL-C or other term signal is received.
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.Info("Shutting down")
	close(stopPresence)
	cancel()
	select {
	case <-loopDone:
	case <-time.After(10 * time.Second):
		logger.Warn("Playback controller did not stop in time")
	}

	// Cleanly close down the Discord session.
	dg.Close()
}
