package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"parlor/internal/api"
	"parlor/internal/auth"
	"parlor/internal/chat"
	"parlor/internal/config"
	"parlor/internal/llm"
	"parlor/internal/store"
)

func main() {
	configPath := "config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	level, _ := zerolog.ParseLevel(config.ParseLevel(cfg.Logging.Level))
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	logger := log.With().Str("service", "parlor").Logger()
	logger.Info().Msg("starting parlor")

	// Initialize store with migrations
	st, err := store.NewStore(cfg.Database.Path, cfg.UserMode)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer st.Close()
	logger.Info().Str("path", cfg.Database.Path).Msg("database initialized")

	// Initialize model gateway
	gateway, err := llm.NewGateway(cfg.Models, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize model gateway")
	}
	logger.Info().Strs("models", gateway.ModelIDs()).Msg("model gateway initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Websocket hub carries async updates (title changes) to clients
	hub := api.NewWebSocketHub()
	go hub.Run(ctx)

	// Initialize orchestrator with summarizer
	summarizer := chat.NewSummarizer(gateway, cfg.SummarizerModel(), logger)
	orchestrator := chat.NewOrchestrator(st, gateway, summarizer, hub, chat.Options{
		TurnTimeout:    time.Duration(cfg.Chat.TurnTimeoutSecs) * time.Second,
		RetryBaseDelay: time.Duration(cfg.Chat.RetryBaseDelayMS) * time.Millisecond,
	}, logger)

	authn := auth.NewProvider(st)
	apiServer := api.NewServer(st, orchestrator, authn, hub, &api.ServerConfig{
		CascadeFolderDelete: cfg.Folders.CascadeDelete(),
		DefaultModel:        cfg.Chat.DefaultModel,
		UserMode:            cfg.UserMode,
	}, logger)

	// Watch the config file so model changes apply without a restart
	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		if err := gateway.Reload(next.Models); err != nil {
			logger.Warn().Err(err).Msg("model registry reload failed, keeping previous set")
		}
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("config watcher unavailable, model changes need a restart")
	} else {
		defer watcher.Close()
		go watcher.Start(ctx)
	}

	// Register routes behind auth middleware
	mux := http.NewServeMux()
	apiServer.RegisterRoutes(mux)
	handler := auth.Middleware(st, authn, cfg.UserMode)(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute, // turns can legitimately take a while
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down gracefully")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
	// Let detached title jobs finish before the store closes
	orchestrator.Shutdown(shutdownCtx)
	logger.Info().Msg("parlor stopped")
}
