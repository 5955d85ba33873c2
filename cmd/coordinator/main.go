package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/quizgrid/coordinator/internal/buzzer"
	"github.com/quizgrid/coordinator/internal/catalog"
	"github.com/quizgrid/coordinator/internal/config"
	"github.com/quizgrid/coordinator/internal/db"
	"github.com/quizgrid/coordinator/internal/engine"
	"github.com/quizgrid/coordinator/internal/live"
	"github.com/quizgrid/coordinator/internal/rest"
	"github.com/quizgrid/coordinator/internal/scorekeeper"
	"github.com/quizgrid/coordinator/internal/session"
)

const ConfigPath = "config/coordinator.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("COORDINATOR_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadCoordinator(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	slog.Info("coordinator starting",
		"log_level", cfg.LogLevel,
		"bind", cfg.BindAddress,
		"port", cfg.Port)

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	rdb := live.NewClient(cfg.Redis)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	store := live.New(rdb)
	slog.Info("live state store connected", "addr", cfg.Redis.Addr())

	gameRepo := db.NewGameRepository(database.Pool())
	participantRepo := db.NewParticipantRepository(database.Pool())
	episodeRepo := db.NewEpisodeRepository(database.Pool())
	auditRepo := db.NewAuditRepository(database.Pool())

	clues := catalog.New(episodeRepo)
	arbitrator := buzzer.New(store)
	scores := scorekeeper.New(participantRepo, auditRepo, scorekeeper.Config{
		QueueSize:     cfg.AuditQueueSize,
		Workers:       cfg.AuditWorkers,
		RetryInterval: time.Duration(cfg.ScoreRetrySecs) * time.Second,
	})

	eng := engine.New(store, arbitrator, clues, gameRepo, participantRepo, scores)

	hub := session.NewHub(cfg.SendQueueSize, cfg.WriteTimeout)
	gateway := session.NewServer(hub, eng, gameRepo, cfg.AllowedOrigins)
	api := rest.NewAPI(gameRepo, participantRepo, episodeRepo, store, eng, hub)

	r := chi.NewRouter()
	api.Routes(r)
	gateway.Routes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting score writer", "workers", cfg.AuditWorkers, "queue", cfg.AuditQueueSize)
		if err := scores.Run(gctx); err != nil {
			return fmt.Errorf("score writer: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
