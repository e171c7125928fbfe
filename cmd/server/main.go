package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ashkicharm/backend/internal/config"
	"ashkicharm/backend/internal/httpapi"
	"ashkicharm/backend/internal/service"
	"ashkicharm/backend/internal/session"
	"ashkicharm/backend/internal/store"
	"ashkicharm/backend/internal/store/memory"
	pgstore "ashkicharm/backend/internal/store/postgres"
	"ashkicharm/backend/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	setupLogger(cfg.Env)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if err := pg.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info().Msg("repository: postgres")
	} else if cfg.SeedDemo {
		repo = memory.NewSeeded()
		log.Info().Msg("repository: in-memory (demo data)")
	} else {
		repo = memory.New()
		log.Info().Msg("repository: in-memory")
	}

	var sessions session.Store = session.NewMemoryStore(cfg.SessionTTL)
	if cfg.RedisAddr != "" {
		redisStore := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL)
		if err := redisStore.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, keeping conversations in memory")
		} else {
			sessions = redisStore
			closers = append(closers, redisStore.Close)
			log.Info().Msg("sessions: redis")
		}
	} else {
		log.Info().Msg("sessions: in-memory")
	}

	loc := cfg.Location()
	svc := service.New(repo, loc)
	manager := session.NewManager(svc, sessions)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.TokenTTL, cfg.Passphrase)
	httpapi.InitMetrics()
	api := httpapi.New(svc, manager, auth, cfg.AllowedOrigin)

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	scheduler := worker.New(loc, svc.RolloverWeek)
	if err := scheduler.Start(runCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule income rollover")
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Str("timezone", loc.String()).Msg("inventory backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	scheduler.Stop()
	stopRun()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

func setupLogger(env string) {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.DebugLevel
	if env == "production" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len([]rune(cfg.Passphrase)) < 8 {
		return fmt.Errorf("ACCESS_PASSPHRASE must be set and at least 8 characters")
	}
	return nil
}
