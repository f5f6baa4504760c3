package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/config"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/database"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/handler"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/logger"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/logger/sl"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/metrics"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/middleware"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/queue"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/repository"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/router"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/schedule"
)

func main() {
	cfg, err := config.Load() // Load environment config
	log := logger.Setup(cfg.Env)
	if err != nil {
		log.Error("invalid configuration", sl.Err(err))
		os.Exit(1)
	}
	log.Info("starting server", slog.String("env", cfg.Env), slog.String("db_driver", cfg.DBDriver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", sl.Err(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	dialect, err := database.ParseDialect(cfg.DBDriver)
	if err != nil {
		return err
	}
	db, err := database.Open(database.Options{
		Driver:  dialect,
		User:    cfg.DBUser,
		Pass:    cfg.DBPass,
		Host:    cfg.DBHost,
		Port:    cfg.DBPort,
		Name:    cfg.DBName,
		SSLMode: cfg.DBSSLMode,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.DBMigrate {
		if err := database.MigrateUp(db, dialect, log); err != nil {
			return err
		}
	}

	// Redis is optional: without it the listing cache and the rate
	// limiter pass requests straight through.
	var rdb *redis.Client
	if rdb, err = config.NewRedisClient(ctx, config.LoadRedisConfig()); err != nil {
		log.Warn("redis unavailable, cache and rate limit disabled", sl.Err(err))
	} else {
		defer rdb.Close()
	}

	// Repositories
	users := repository.NewUserRepo(db, dialect)
	tokens := repository.NewTokenRepo(db, dialect)
	halls := repository.NewHallRepo(db, dialect)
	movies := repository.NewMovieRepo(db, dialect)
	showtimes := repository.NewShowtimeRepo(db, dialect)

	// Scheduling core
	sc := cfg.Schedule
	opts := []schedule.Option{}
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		opts = append(opts, schedule.WithRecorder(m))
	}
	if cfg.EventsEnabled {
		opts = append(opts, schedule.WithNotifier(queue.NewPublisher(cfg.RabbitURL, log)))
		go func() {
			if err := queue.NewConsumer(cfg.RabbitURL, log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("showtime consumer stopped", sl.Err(err))
			}
		}()
	}
	svc := schedule.New(log, repository.NewScheduleStore(showtimes, movies), schedule.Config{
		Rules:         schedule.Rules{BufferMinutes: sc.BufferMin, MaxDurationMinutes: sc.MaxDurationMin},
		MaxBatchSize:  sc.MaxBatch,
		WriteTimeout:  sc.WriteTimeout,
		RetryAttempts: sc.RetryAttempts,
		RetryBackoff:  sc.RetryBackoff,
	}, opts...)

	// Handlers
	authH := handler.NewAuthHandler(cfg, log, users, tokens)
	showH := handler.NewShowtimeHandler(log, svc, halls)
	hallH := handler.NewHallHandler(log, halls)
	movieH := handler.NewMovieHandler(log, movies, sc.MaxDurationMin-sc.BufferMin)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))

	var metricsHandler http.Handler
	if m != nil {
		e.Use(m.Middleware())
		metricsHandler = m.Handler()
	}

	router.RegisterRoutes(e, db, metricsHandler)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterPublic(e, showH, hallH, movieH, middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log))
	router.RegisterStaff(e, showH, cfg.JWTSecret)
	router.RegisterOwner(e, showH, hallH, movieH, cfg.JWTSecret, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))

	addr := ":" + cfg.Port // Address string with port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(sctx)
}
