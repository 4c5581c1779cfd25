package main

import (
	"fmt"

	infraredis "github.com/kursadbilgin/campaign-mailer/internal/infra/redis"
	"github.com/kursadbilgin/campaign-mailer/internal/observability"
	"github.com/kursadbilgin/campaign-mailer/internal/queue"
	"github.com/kursadbilgin/campaign-mailer/internal/repository"
	"github.com/kursadbilgin/campaign-mailer/internal/service"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const schedulerScanLimit = 100

func runWorker(c *cli.Context) error {
	cfg, logger, err := bootstrap("worker")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if err := cfg.RequireSending(); err != nil {
		return err
	}

	ctx := c.Context

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
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
	campaignRepo := repository.NewGormCampaignRepo(db)
	publisher := queue.NewRabbitMQPublisher(rabbit)

	notifications, err := service.NewNotificationService(repository.NewGormNotificationRepo(db), logger)
	if err != nil {
		return err
	}

	dispatcher, err := newDispatcher(cfg, rdb, emailRepo, metrics, logger)
	if err != nil {
		return err
	}

	campaigns, err := service.NewCampaignService(
		campaignRepo,
		repository.NewGormContactRepo(db),
		emailRepo,
		dispatcher,
		notifications,
		publisher,
		logger,
	)
	if err != nil {
		return err
	}
	campaigns.SetMetrics(metrics)

	worker, err := service.NewCampaignWorker(
		queue.NewRabbitMQConsumer(rabbit, queue.CampaignDispatchPrefetch, logger),
		campaigns,
		logger,
	)
	if err != nil {
		return err
	}

	scheduler, err := service.NewScheduler(campaignRepo, publisher, cfg.SchedulerInterval, schedulerScanLimit, logger)
	if err != nil {
		return err
	}

	logger.Info("campaign-mailer worker started",
		zap.Duration("sendInterval", cfg.SendInterval),
		zap.Duration("schedulerInterval", cfg.SchedulerInterval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Start(gctx) })
	g.Go(func() error { return scheduler.Start(gctx) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}
	logger.Info("campaign-mailer worker stopped")
	return nil
}
