package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"citizen-reporting-system/pkg/config"
	"citizen-reporting-system/pkg/database"
	"citizen-reporting-system/pkg/leaderboard"
	"citizen-reporting-system/pkg/logger"
	"citizen-reporting-system/pkg/metrics"
	"citizen-reporting-system/pkg/middleware"
	"citizen-reporting-system/pkg/push"
	"citizen-reporting-system/pkg/queue"
	"citizen-reporting-system/pkg/reports"
	"citizen-reporting-system/pkg/reportview"
	"citizen-reporting-system/pkg/security"
	"citizen-reporting-system/pkg/shift"
	"citizen-reporting-system/pkg/staging"
)

func main() {
	cfg := config.Load()
	log := logger.New("view-service")
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	db, err := database.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}
	defer db.Client().Disconnect(context.Background())

	pg, err := database.ConnectPostgres(ctx, cfg.Postgres.DSN, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to PostgreSQL")
	}
	schedules := shift.NewRepository(pg)
	if err := schedules.Migrate(); err != nil {
		log.WithError(err).Fatal("failed to migrate duty schedules")
	}

	slots, closeSlots, err := connectStaging(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to set up staging")
	}
	defer closeSlots()

	secret, err := security.SecretFromEnv()
	if err != nil {
		log.WithError(err).Fatal("invalid staging seal key")
	}
	sealer, err := security.NewSealer(secret, "optimistic-report")
	if err != nil {
		log.WithError(err).Fatal("failed to create sealer")
	}

	conn, ch, err := queue.ConnectRabbitMQ(cfg.RabbitMQ.URL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to RabbitMQ")
	}
	defer conn.Close()
	defer ch.Close()

	queueName, err := queue.DeclareReportTopics(ch)
	if err != nil {
		log.WithError(err).Fatal("failed to declare report topics")
	}
	deliveries, err := queue.ConsumeMessages(ch, queueName)
	if err != nil {
		log.WithError(err).Fatal("failed to consume report events")
	}
	log.WithField("queue", queueName).Info("listening to report events")

	hub := push.NewHub(log.WithField("component", "push"))
	consumeDone := make(chan struct{})
	go func() {
		defer close(consumeDone)
		if err := hub.Consume(ctx, deliveries); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("report event consumer stopped")
			stop()
		}
	}()

	repo := reports.NewRepository(db, cfg.View.ListLimit)
	classifierOpts := []shift.Option{shift.WithLocation(cfg.Location())}
	if cfg.Shift.NightCarryOver {
		classifierOpts = append(classifierOpts, shift.WithNightCarryOver())
	}

	srv := &server{
		log:    log,
		auth:   middleware.NewAuthenticator(cfg.JWTSecret),
		hub:    hub,
		lister: repo,
		slots:  slots,
		sealer: sealer,
		viewCfg: reportview.Config{
			Debounce:         cfg.View.Debounce,
			FetchTimeout:     cfg.View.FetchTimeout,
			OptimisticMaxAge: cfg.View.OptimisticMaxAge,
		},
		leaderboard: leaderboard.NewCache(repo,
			leaderboard.WithTTL(cfg.Leaderboard.TTL),
			leaderboard.WithLogger(log.WithField("component", "leaderboard")),
		),
		shifts: shift.NewService(shift.NewClassifier(classifierOpts...), schedules, log.WithField("component", "shift")),
	}
	srv.sessions = newSessions(srv.openView)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("view service running")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down view service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.sessions.closeAll()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	<-consumeDone
}

// connectStaging builds the slot factory of the configured backend.
func connectStaging(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (staging.Factory, func(), error) {
	switch cfg.Staging.Backend {
	case "redis":
		client, err := database.ConnectRedis(ctx, cfg.Redis.URL, log)
		if err != nil {
			return nil, nil, err
		}
		return staging.NewRedisFactory(client, cfg.Staging.TTL), func() { _ = client.Close() }, nil
	case "minio":
		client, err := database.ConnectMinIO(ctx, cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey,
			cfg.MinIO.Bucket, cfg.MinIO.UseSSL, log)
		if err != nil {
			return nil, nil, err
		}
		return staging.NewObjectFactory(client, cfg.MinIO.Bucket), func() {}, nil
	default:
		log.Warn("staging in process memory; optimistic reports do not survive restarts")
		return staging.NewMemoryFactory(), func() {}, nil
	}
}
