package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/toolhub/digest-engine/internal/config"
	"github.com/toolhub/digest-engine/internal/domain"
	"github.com/toolhub/digest-engine/internal/handler"
	"github.com/toolhub/digest-engine/internal/infra/postgresql"
	"github.com/toolhub/digest-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/toolhub/digest-engine/internal/infra/redis"
	"github.com/toolhub/digest-engine/internal/mailer"
	"github.com/toolhub/digest-engine/internal/observability"
	"github.com/toolhub/digest-engine/internal/ratelimit"
	"github.com/toolhub/digest-engine/internal/repository"
	"github.com/toolhub/digest-engine/internal/service"
	"github.com/toolhub/digest-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("digest-engine exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	location, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("failed to resolve timezone: %w", err)
	}

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
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

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()

	windowRepo := repository.NewGormWindowRepo(db)
	itemRepo := repository.NewGormItemRepo(db)
	recipientRepo := repository.NewGormRecipientRepo(db)

	var limiter ratelimit.Limiter
	switch strings.ToLower(cfg.SendGate) {
	case config.SendGateRedis:
		limiter, err = infraredis.NewSendGate(rdb, cfg.SendRatePerSec)
		if err != nil {
			return fmt.Errorf("send gate initialization failed: %w", err)
		}
		logger.Info("using redis send gate", zap.Int("sendsPerSec", cfg.SendRatePerSec))
	default:
		limiter = ratelimit.NewFixedDelayLimiter(cfg.SendDelay())
		logger.Info("using fixed-delay send gate", zap.Duration("delay", cfg.SendDelay()))
	}

	var sender mailer.Mailer
	switch strings.ToLower(cfg.MailProvider) {
	case config.MailProviderWebhook:
		sender, err = mailer.NewWebhookMailer(cfg.MailWebhookURL)
		if err != nil {
			return fmt.Errorf("webhook mailer initialization failed: %w", err)
		}
		logger.Info("using webhook mailer", zap.String("endpoint", cfg.MailWebhookURL))
	default:
		sender, err = mailer.NewResendMailer(cfg.ResendAPIKey, cfg.FromEmail)
		if err != nil {
			return fmt.Errorf("resend mailer initialization failed: %w", err)
		}
		logger.Info("using resend mailer", zap.String("from", cfg.FromEmail))
	}

	resolver, err := service.NewResolver(recipientRepo, logger)
	if err != nil {
		return fmt.Errorf("resolver initialization failed: %w", err)
	}
	dispatcher, err := service.NewDispatcher(
		sender,
		mailer.NewHTMLRenderer(),
		limiter,
		resolver,
		metrics,
		cfg.BaseURL,
		cfg.FrontendURL,
		logger,
	)
	if err != nil {
		return fmt.Errorf("dispatcher initialization failed: %w", err)
	}
	digests, err := service.NewDigestService(windowRepo, itemRepo, resolver, dispatcher, metrics, service.DigestServiceConfig{
		Location:         location,
		DailyTriggerHour: cfg.DailyTriggerHour,
		DailyMinItems:    cfg.DailyMinItems,
		WeeklyMinItems:   cfg.WeeklyMinItems,
		StaleClaimGrace:  cfg.StaleClaimGrace(),
	}, logger)
	if err != nil {
		return fmt.Errorf("digest service initialization failed: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	var accumulator *service.Accumulator
	switch strings.ToLower(cfg.DigestPolicy) {
	case config.PolicyAccumulator:
		accumulator, err = service.NewAccumulator(
			batchFlush(resolver, dispatcher, logger),
			cfg.BatchInterval(),
			cfg.BatchMinItems,
			cfg.BatchMaxPending,
			logger,
		)
		if err != nil {
			return fmt.Errorf("accumulator initialization failed: %w", err)
		}

		group.Go(func() error {
			return accumulator.Start(groupCtx)
		})
		logger.Info("batch accumulator policy active",
			zap.Duration("interval", cfg.BatchInterval()),
			zap.Int("minItems", cfg.BatchMinItems),
			zap.Int("maxPending", cfg.BatchMaxPending),
		)
	default:
		scheduler, err := service.NewScheduler(digests, cfg.DailyCronSpec(), cfg.WeeklyCronSpec, location, logger)
		if err != nil {
			return fmt.Errorf("scheduler initialization failed: %w", err)
		}
		if err := scheduler.Start(groupCtx); err != nil {
			return fmt.Errorf("scheduler start failed: %w", err)
		}
		defer scheduler.Stop()

		// The process may have been down when today's trigger should have
		// fired; run the daily window once if it is still unclaimed.
		catchUpCtx := observability.WithRunID(groupCtx, uuid.NewString())
		if outcome, err := digests.RunCatchUp(catchUpCtx); err != nil && !errors.Is(err, domain.ErrConflict) {
			observability.WithContextLogger(logger, catchUpCtx).Error("startup catch-up failed", zap.Error(err))
		} else if outcome != nil {
			observability.WithContextLogger(logger, catchUpCtx).Info("startup catch-up finished",
				zap.String("result", outcome.Result),
			)
		}
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterOpsRoutes(app, sqlDB, rdb, metrics.Handler())
	if err := handler.RegisterDigestRoutes(app, digests, windowRepo, itemRepo, accumulator); err != nil {
		return fmt.Errorf("route registration failed: %w", err)
	}

	group.Go(func() error {
		logger.Info("digest-engine api listening", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		if accumulator != nil {
			accumulator.Stop()
		}
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return fmt.Errorf("http shutdown failed: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("digest-engine stopped")
	return nil
}

// batchFlush dispatches an in-memory batch as a daily-style digest. The
// accumulator policy keeps no ledger row; the flush is the whole run.
func batchFlush(resolver *service.Resolver, dispatcher *service.Dispatcher, logger *zap.Logger) service.FlushFunc {
	return func(ctx context.Context, items []domain.ItemSummary) error {
		ctx = observability.WithRunID(ctx, uuid.NewString())
		runLogger := observability.WithContextLogger(logger, ctx)

		recipients, err := resolver.Resolve(ctx)
		if err != nil {
			return err
		}

		result, err := dispatcher.Dispatch(ctx, domain.KindDaily, items, recipients)
		if err != nil {
			return err
		}

		runLogger.Info("batch digest dispatched",
			zap.Int("items", len(items)),
			zap.Int("attempted", result.Attempted),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
		)
		return nil
	}
}
