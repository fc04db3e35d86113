package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/MarkoPoloResearchLab/bankroll/internal/checkout"
	"github.com/MarkoPoloResearchLab/bankroll/internal/events"
	"github.com/MarkoPoloResearchLab/bankroll/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/bankroll/internal/httpapi"
	"github.com/MarkoPoloResearchLab/bankroll/internal/observability"
	"github.com/MarkoPoloResearchLab/bankroll/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/bankroll/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/access"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/bankroll"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/webhook"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	if err := cfg.validateServe(); err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	if err := prepareSchema(gormDB, driver, cfg.DatabaseURL, logger); err != nil {
		return err
	}
	store := gormstore.New(gormDB)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := observability.NewRecorder(logger, registry)
	if err != nil {
		return fmt.Errorf("metrics init: %w", err)
	}

	serviceOptions := []bankroll.ServiceOption{bankroll.WithOperationLogger(recorder)}
	publisher, err := events.New(events.Config{
		Backend:      cfg.EventsBackend,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaTopic:   cfg.KafkaTopic,
		RedisAddr:    cfg.RedisAddr,
		RedisChannel: cfg.RedisChannel,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("events init: %w", err)
	}
	if publisher != nil {
		defer func() {
			if closeErr := publisher.Close(); closeErr != nil {
				logger.Warn("event publisher close", zap.Error(closeErr))
			}
		}()
		serviceOptions = append(serviceOptions, bankroll.WithEventPublisher(publisher))
	}

	ledgerStore, closeLedgerStore, err := openLedgerStore(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer closeLedgerStore()

	clock := func() time.Time { return time.Now().UTC() }
	bankrollService, err := bankroll.NewService(ledgerStore, clock, serviceOptions...)
	if err != nil {
		return fmt.Errorf("bankroll service init: %w", err)
	}
	accessService, err := access.NewService(store.Access(), clock)
	if err != nil {
		return fmt.Errorf("access service init: %w", err)
	}
	processor, err := webhook.NewProcessor(store.Webhooks(), cfg.WebhookSecret, clock, webhook.WithOutcomeRecorder(recorder))
	if err != nil {
		return fmt.Errorf("webhook processor init: %w", err)
	}
	if cfg.WebhookSecret == "" {
		logger.Warn("webhook secret is empty; every payment delivery will be rejected")
	}
	checkoutClient := checkout.NewClient(checkout.Config{
		BaseURL:       cfg.CheckoutBaseURL,
		APIKey:        cfg.CheckoutAPIKey,
		ReturnURL:     cfg.CheckoutReturnURL,
		CompletionURL: cfg.CheckoutCompletionURL,
	})

	listener, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	grpcServer := grpc.NewServer()
	healthServer := grpcserver.NewHealthServer(store.Ping, cfg.HealthInterval, logger)
	healthServer.Register(grpcServer)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("gRPC server starting", zap.String("listen_addr", cfg.GRPCListenAddr))
		if serveErr := grpcServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown requested")
		grpcServer.GracefulStop()
		return nil
	})
	group.Go(func() error {
		healthServer.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		return httpapi.Run(groupCtx, cfg.httpConfig(), httpapi.Dependencies{
			Bankroll: bankrollService,
			Access:   accessService,
			Webhooks: processor,
			Checkout: checkoutClient,
			Logger:   logger,
			Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			Now:      clock,
		})
	})
	return group.Wait()
}

// openLedgerStore returns the store backing bet settlement: the shared gorm store,
// or a pgx pool when the pgx backend is selected.
func openLedgerStore(ctx context.Context, cfg *runtimeConfig, store *gormstore.Store) (bankroll.Store, func(), error) {
	if cfg.LedgerStore != ledgerStorePgx {
		return store.Bankroll(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("pgx pool: %w", err)
	}
	return pgstore.New(pool), pool.Close, nil
}

func newLogger(cfg *runtimeConfig) (*zap.Logger, error) {
	logger, err := observability.NewLogger(observability.LoggerConfig{
		Level:       cfg.LogLevel,
		Development: cfg.LogDevelopment,
		Service:     "bankrolld",
	})
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	return logger, nil
}
