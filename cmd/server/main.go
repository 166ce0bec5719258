package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"RiskArena/internal/auth"
	"RiskArena/internal/catalog"
	"RiskArena/internal/config"
	"RiskArena/internal/engine"
	"RiskArena/internal/game"
	"RiskArena/internal/logging"
	"RiskArena/internal/notifier"
	"RiskArena/internal/recorder"
	"RiskArena/internal/scheduler"
	"RiskArena/internal/server"
	"RiskArena/internal/store"
)

func main() {
	// Until the configured logger exists.
	log := logging.New(logging.Config{Level: "info", Pretty: true})

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log = logging.New(cfg.Log)
	log.Info().Msg("Starting RiskArena")

	// Catalog
	var src catalog.Source = catalog.EmbeddedSource{}
	if cfg.Engine.CatalogPath != "" {
		src = &catalog.FileSource{Path: cfg.Engine.CatalogPath}
	}
	cat, err := catalog.Load(src)
	if err != nil {
		log.Fatal().Err(err).Str("source", src.Name()).Msg("Failed to load country catalog")
	}
	log.Info().Str("source", src.Name()).Int("countries", cat.Len()).Msg("Country catalog loaded")

	engCfg, err := cfg.Engine.Config()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid engine configuration")
	}
	eng := engine.New(engCfg)

	// Game store
	var st store.Store
	switch cfg.Database.Driver {
	case config.DriverMemory:
		st = store.NewMemoryStore()
	default:
		st, err = store.NewSQLiteStore(cfg.Database.StorePath, log)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Database.StorePath).Msg("Failed to open game store")
		}
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("Game store ready")

	// Outcome history
	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.HistoryPath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.HistoryPath, log)
		if err != nil {
			log.Warn().Err(err).Msg("Init sqlite recorder failed, using noop")
		} else {
			rec = sr
		}
	}

	issuer, err := auth.NewIssuer(cfg.Auth, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize token issuer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telegram is optional. A nil *TelegramNotifier must not reach the
	// service as a non-nil interface.
	var tn *notifier.TelegramNotifier
	deps := game.Deps{
		Store:    st,
		Catalog:  cat,
		Engine:   eng,
		Recorder: rec,
		Log:      log,
	}
	if cfg.Telegram.Enabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram, log)
		deps.Notifier = tn
	}
	games := game.NewService(cfg.Game.Service(), deps)

	sched := scheduler.NewScheduler(ctx, games, cfg.Scheduler, log)
	if err := sched.RegisterAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()

	if tn != nil {
		go tn.Run(ctx)
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("Telegram notifier started")
	}

	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		Log:            log,
		Games:          games,
		Auth:           issuer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		DevMode:        cfg.Server.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Settle rounds that expired while the process was down.
	sched.RunSweepNow()

	log.Info().Str("addr", cfg.Server.Addr).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	sched.Stop()
	cancel()

	if err := multierr.Combine(st.Close(), rec.Close()); err != nil {
		log.Error().Err(err).Msg("Failed to close storage")
	}
	log.Info().Msg("Server stopped")
}
