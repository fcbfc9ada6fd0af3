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

	"github.com/aimerfeng/ReviewLink/internal/cache"
	"github.com/aimerfeng/ReviewLink/internal/config"
	"github.com/aimerfeng/ReviewLink/internal/conversation"
	"github.com/aimerfeng/ReviewLink/internal/database"
	"github.com/aimerfeng/ReviewLink/internal/logging"
	"github.com/aimerfeng/ReviewLink/internal/monitoring"
	"github.com/aimerfeng/ReviewLink/internal/ratelimit"
	"github.com/aimerfeng/ReviewLink/internal/review"
	"github.com/aimerfeng/ReviewLink/internal/server"
	"github.com/aimerfeng/ReviewLink/internal/session"
	"github.com/aimerfeng/ReviewLink/migrations"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration first
	cfg, err := config.LoadAPI()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logging.Setup(&cfg.Logging, cfg.Server.Env)

	log.Info().
		Str("env", cfg.Server.Env).
		Str("name", cfg.Server.Name).
		Str("session_backend", cfg.Session.Backend).
		Msg("Starting ReviewLink API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Prometheus metrics before anything records to them
	monitoring.Init()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(cfg.Database.URL, migrations.FS, migrations.Path); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		log.Info().Msg("Database migrations applied")
	}

	db, err := database.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	checks := map[string]server.HealthChecker{"postgres": db}

	var rdb *cache.Redis
	if cfg.NeedsRedis() {
		rdb, err = cache.New(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer rdb.Close()
		checks["redis"] = rdb
	}

	var sessions session.Store
	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		sessions = session.NewRedisStore(rdb, cfg.Session.TTL)
	default:
		sessions = session.NewPostgresStore(db.Pool)
	}

	var opts []server.Option
	if cfg.RateLimit.Enabled {
		opts = append(opts, server.WithContactLimiter(ratelimit.New(rdb, &cfg.RateLimit)))
		log.Info().
			Int("messages", cfg.RateLimit.MessagesPerWindow).
			Dur("window", cfg.RateLimit.Window).
			Msg("Webhook rate limiting enabled")
	}

	reviews := review.NewService(db.Pool)

	// Sessions in postgres end in the same transaction that stores the review
	var convoOpts []conversation.Option
	if cfg.Session.Backend == config.SessionBackendPostgres {
		convoOpts = append(convoOpts, conversation.WithFinisher(reviews))
	}
	convo := conversation.NewService(sessions, reviews, convoOpts...)
	srv := server.NewAPIServer(cfg, reviews, convo, checks, opts...)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	servers := []*http.Server{httpServer}
	if cfg.Monitoring.PrometheusEnabled {
		servers = append(servers, newMetricsServer(cfg.Monitoring.PrometheusPort))
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, s := range servers {
		s := s
		g.Go(func() error {
			log.Info().Str("addr", s.Addr).Msg("HTTP server listening")
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen on %s: %w", s.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		db.ReportStats(gctx, 15*time.Second)
		return nil
	})

	// Graceful shutdown on signal or when any server fails
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Str("addr", s.Addr).Msg("Server forced to shutdown")
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		return
	}

	log.Info().Msg("Server exited gracefully")
}

func newMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
