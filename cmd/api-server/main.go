package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/api"
	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/availability"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/convlog"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/directory"
	"github.com/hackgods/clinic-appointment-booking/internal/metrics"
	"github.com/hackgods/clinic-appointment-booking/internal/patient"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
	"github.com/hackgods/clinic-appointment-booking/internal/symptom"
	"github.com/hackgods/clinic-appointment-booking/pkg/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat).With().Str("service", "api-server").Logger()
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("timezone", cfg.Timezone.String()).
		Dur("slot_duration", cfg.SlotDuration).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.PostgresDSN, db.Up); err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
		logger.Info().Msg("migrations applied")
	}

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns:         int32(cfg.PGMaxConns),
		ApplicationName:  "clinic-api-server",
		StatementTimeout: cfg.PGStmtTimeout,
	})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	// Redis only backs the cancel/reschedule lock. Without it the service still books.
	var locker *redisclient.RedisLocker
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.ClientOptions{
		URL:      cfg.RedisURL,
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Bool("tls", cfg.RedisTLS).Msg("redis unavailable, appointment locks disabled")
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		locker = redisclient.NewRedisLocker(rdb, redisclient.LockOptions{
			TTL:        cfg.LockTTL,
			Retries:    cfg.LockRetries,
			RetryDelay: cfg.LockRetryDelay,
		}, logging.Component(logger, "lock"))
		logger.Info().Msg("connected to Redis")
	}

	directorySvc := directory.NewService(directory.NewPgRepository(pgPool), logging.Component(logger, "directory"))
	patientSvc := patient.NewService(patient.NewPgRepository(pgPool), logging.Component(logger, "patient"))
	conversationSvc := convlog.NewService(convlog.NewPgStore(pgPool), logging.Component(logger, "convlog"))

	symptomSvc := symptom.NewService(symptom.NewPgRepository(pgPool), logging.Component(logger, "symptom"))
	if err := symptomSvc.Reload(rootCtx); err != nil {
		logger.Fatal().Err(err).Msg("load symptom mappings")
	}

	store := appointment.NewPgStore(pgPool, appointment.SerialFormat{Prefix: cfg.SerialPrefix, Width: cfg.SerialWidth})
	materializer := availability.NewMaterializer(directorySvc, store, availability.Options{
		Granularity:   cfg.SlotDuration,
		Location:      cfg.Timezone,
		MaxWindowDays: cfg.MaxWindowDays,
		Now:           time.Now,
	})

	bookingMetrics := metrics.NewBookingMetrics(nil)
	opts := appointment.Options{
		SlotDuration: cfg.SlotDuration,
		Metrics:      bookingMetrics,
		Logger:       logging.Component(logger, "booking"),
	}
	// A typed nil pointer inside the interface would defeat the service's nil check.
	var bookingSvc *appointment.Service
	var redisPinger api.Pinger
	if locker != nil {
		bookingSvc = appointment.NewService(store, materializer, directorySvc, patientSvc, locker, opts)
		redisPinger = locker
	} else {
		bookingSvc = appointment.NewService(store, materializer, directorySvc, patientSvc, nil, opts)
	}

	router := api.NewRouter(api.RouterConfig{
		Booking:           bookingSvc,
		Directory:         directorySvc,
		Availability:      materializer,
		Symptoms:          symptomSvc,
		Patients:          patientSvc,
		Conversations:     conversationSvc,
		Postgres:          pgPool,
		Redis:             redisPinger,
		Metrics:           bookingMetrics,
		MetricsHandler:    promhttp.Handler(),
		Logger:            logging.Component(logger, "http"),
		DefaultWindowDays: cfg.DefaultWindowDays,
		Env:               cfg.Env,
		Version:           version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	logger.Info().Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
