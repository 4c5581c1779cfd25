package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/campaign-mailer/internal/config"
	"github.com/kursadbilgin/campaign-mailer/internal/handler"
	"github.com/kursadbilgin/campaign-mailer/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/campaign-mailer/internal/infra/redis"
	"github.com/kursadbilgin/campaign-mailer/internal/observability"
	"github.com/kursadbilgin/campaign-mailer/internal/provider"
	"github.com/kursadbilgin/campaign-mailer/internal/queue"
	"github.com/kursadbilgin/campaign-mailer/internal/repository"
	"github.com/kursadbilgin/campaign-mailer/internal/service"
	"github.com/kursadbilgin/campaign-mailer/internal/transport"
	goredis "github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func runServe(c *cli.Context) error {
	cfg, logger, err := bootstrap("api")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if err := cfg.RequireSending(); err != nil {
		return err
	}
	if err := cfg.RequireWebhook(); err != nil {
		// The receiver still starts and answers 401 until a secret is configured.
		logger.Warn("webhook signing secret missing", zap.Error(err))
	}

	ctx := c.Context

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer rabbit.Close()

	metrics := observability.NewMetrics()

	emailRepo := repository.NewGormSentEmailRepo(db)
	eventRepo := repository.NewGormDeliveryEventRepo(db)

	notifications, err := service.NewNotificationService(repository.NewGormNotificationRepo(db), logger)
	if err != nil {
		return err
	}

	dispatcher, err := newDispatcher(cfg, rdb, emailRepo, metrics, logger)
	if err != nil {
		return err
	}

	emails, err := service.NewEmailService(dispatcher, emailRepo, eventRepo, logger)
	if err != nil {
		return err
	}

	campaigns, err := service.NewCampaignService(
		repository.NewGormCampaignRepo(db),
		repository.NewGormContactRepo(db),
		emailRepo,
		dispatcher,
		notifications,
		queue.NewRabbitMQPublisher(rabbit),
		logger,
	)
	if err != nil {
		return err
	}
	campaigns.SetMetrics(metrics)

	reconciler, err := service.NewReconciler(emailRepo, eventRepo, notifications, logger)
	if err != nil {
		return err
	}
	reconciler.SetMetrics(metrics)

	var verifier *provider.SignatureVerifier
	if cfg.ResendWebhookSecret != "" {
		verifier, err = provider.NewSignatureVerifier(cfg.ResendWebhookSecret)
		if err != nil {
			return err
		}
	}

	deduper, err := infraredis.NewWebhookDeduper(rdb, cfg.WebhookDedupeTTL)
	if err != nil {
		return err
	}

	webhooks, err := handler.NewWebhookHandler(verifier, reconciler, deduper, logger)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:      "campaign-mailer",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(observability.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, sqlDB, rdb, rabbit)
	handler.RegisterWebhookRoutes(app, webhooks)
	if err := handler.RegisterEmailRoutes(app, emails); err != nil {
		return err
	}
	if err := handler.RegisterCampaignRoutes(app, campaigns); err != nil {
		return err
	}
	if err := handler.RegisterNotificationRoutes(app, notifications); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("campaign-mailer api started", zap.Int("port", cfg.APIPort))
		serveErr <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down api")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	return nil
}

// sendAccount names the provider account whose send slot API and worker share.
const sendAccount = "resend"

func newDispatcher(
	cfg *config.Config,
	rdb *goredis.Client,
	emails repository.SentEmailRepository,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*service.Dispatcher, error) {
	resend, err := provider.NewResendProvider(provider.ResendConfig{
		APIKey:  cfg.ResendAPIKey,
		BaseURL: cfg.ResendAPIURL,
		From:    cfg.ResendFromEmail,
		ReplyTo: cfg.ResendReplyTo,
	})
	if err != nil {
		return nil, err
	}

	governor, err := infraredis.NewSendGovernor(rdb, sendAccount, cfg.SendInterval, logger)
	if err != nil {
		return nil, err
	}

	dispatcher, err := service.NewDispatcher(emails, resend, governor, logger)
	if err != nil {
		return nil, err
	}
	dispatcher.SetMetrics(metrics)
	return dispatcher, nil
}
