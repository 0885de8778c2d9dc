// Command server runs the storefront order and payment API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storefront/backend/internal/application/notification"
	apporder "github.com/storefront/backend/internal/application/order"
	apppayment "github.com/storefront/backend/internal/application/payment"
	"github.com/storefront/backend/internal/application/query"
	"github.com/storefront/backend/internal/application/reconciliation"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/webhook"
	"github.com/storefront/backend/internal/infrastructure/cache"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/event"
	"github.com/storefront/backend/internal/infrastructure/gateway"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/messaging"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/storefront/backend/internal/infrastructure/webhooks"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"github.com/storefront/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()
	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = cfg.App.Name
	}

	// Logs go to the collector as well when the OTLP log bridge is enabled
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       serviceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	var extraCores []zapcore.Core
	if logProvider.IsEnabled() {
		extraCores = append(extraCores, logProvider.NewZapCore(serviceName, logger.ParseLevel(cfg.Log.Level)))
	}
	log, err := logger.New(logCfg, extraCores...)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting storefront",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       serviceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       serviceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
		if err := logProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down log provider", zap.Error(err))
		}
	}()
	meter := meterProvider.Meter(serviceName)

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.Open(ctx, &cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Database.Driver == "sqlite" {
		// Postgres schemas are owned by cmd/migrate
		if err := db.AutoMigrate(ctx); err != nil {
			log.Fatal("Failed to migrate sqlite database", zap.Error(err))
		}
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        cfg.Database.Driver,
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meter, telemetry.DBMetricsConfig{
		Enabled:            cfg.Telemetry.Enabled,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	defer func() { _ = dbMetrics.Stop() }()

	paymentMetrics, err := telemetry.NewPaymentMetrics(meter, log)
	if err != nil {
		log.Fatal("Failed to create payment metrics", zap.Error(err))
	}
	defer func() { _ = paymentMetrics.Stop() }()

	// Ledger store and outbox
	eventSerializer := event.NewEventSerializer()
	event.RegisterAllEvents(eventSerializer)
	ledgerStore := persistence.NewGormLedgerStore(db.DB, eventSerializer)
	outboxRepo := persistence.NewGormOutboxRepository(db.DB)
	if err := paymentMetrics.ObserveOutbox(meter, outboxRepo); err != nil {
		log.Fatal("Failed to observe outbox backlog", zap.Error(err))
	}

	// Payment gateway
	stripeAdapter, err := gateway.NewStripeAdapter(&gateway.StripeConfig{
		SecretKey:       cfg.Stripe.SecretKey,
		IsTestMode:      cfg.Stripe.IsTestMode,
		DefaultCurrency: cfg.Stripe.DefaultCurrency,
		Timeout:         cfg.Stripe.Timeout,
	}, log, gateway.WithMetrics(paymentMetrics))
	if err != nil {
		log.Fatal("Failed to initialize payment gateway", zap.Error(err))
	}

	// Idempotency claims, shared across replicas through Redis when enabled
	claims, err := cache.NewClaimStore(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		if err := claims.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()
	idempotency := shared.IdempotencyConfig{TTL: cfg.Webhooks.IdempotencyTTL, Lease: cfg.Webhooks.Lease}

	// Application services
	orderService := apporder.NewService(ledgerStore, stripeAdapter, log)
	paymentService := apppayment.NewService(ledgerStore, stripeAdapter, log)
	queryService := query.NewService(ledgerStore, persistence.NewGormOrderProjections(db.DB), log)

	sources := []webhook.Source{gateway.NewStripeWebhookSource(cfg.Stripe.WebhookSecret)}
	if cfg.Webhooks.CarrierSecret != "" {
		sources = append(sources, webhooks.NewCarrierSource("carrier", cfg.Webhooks.CarrierSecret))
	}
	if cfg.Webhooks.EmailSecret != "" {
		sources = append(sources, webhooks.NewEmailSource("email", cfg.Webhooks.EmailSecret))
	}
	if cfg.Webhooks.CustomName != "" {
		sources = append(sources, webhooks.NewCustomSource(cfg.Webhooks.CustomName, cfg.Webhooks.CustomHeader, cfg.Webhooks.CustomSecret))
	}
	sourceNames := make([]string, 0, len(sources))
	for _, src := range sources {
		sourceNames = append(sourceNames, src.Name())
	}
	reconciler := reconciliation.NewEngine(reconciliation.EngineConfig{
		Sources:     sources,
		Store:       ledgerStore,
		Gateway:     stripeAdapter,
		Orders:      orderService,
		Claims:      claims,
		Idempotency: idempotency,
		Metrics:     paymentMetrics,
		Logger:      log,
	})
	log.Info("Webhook sources registered", zap.Strings("sources", sourceNames))

	// Notifications are published from the outbox through the event bus
	var dispatcher notification.Dispatcher = messaging.NewLogDispatcher(log)
	if cfg.Kafka.Enabled {
		kafkaDispatcher, err := messaging.NewKafkaDispatcher(messaging.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, log)
		if err != nil {
			log.Fatal("Failed to create Kafka dispatcher", zap.Error(err))
		}
		defer func() {
			if err := kafkaDispatcher.Close(); err != nil {
				log.Error("Error closing Kafka dispatcher", zap.Error(err))
			}
		}()
		dispatcher = kafkaDispatcher
	}

	eventBus := event.NewInMemoryEventBus(log)
	notificationHandler := event.NewIdempotentHandler("notification",
		notification.NewHandler(dispatcher, log), claims, idempotency, log)
	eventBus.Subscribe(notificationHandler)
	log.Info("Event handlers registered",
		zap.Strings("notification_events", notificationHandler.EventTypes()),
		zap.Bool("kafka", cfg.Kafka.Enabled),
	)

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	if cfg.Event.ProcessorEnabled {
		processorConfig := event.OutboxProcessorConfig{
			BatchSize:        cfg.Event.BatchSize,
			PollInterval:     cfg.Event.PollInterval,
			CleanupEnabled:   cfg.Event.CleanupEnabled,
			CleanupRetention: cfg.Event.CleanupRetention,
		}
		outboxProcessor := event.NewOutboxProcessor(outboxRepo, eventBus, eventSerializer, processorConfig, log)
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
		log.Info("Outbox processor started",
			zap.Int("batch_size", processorConfig.BatchSize),
			zap.Duration("poll_interval", processorConfig.PollInterval),
		)
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version,
		handler.HealthCheck{
			Name: "database",
			Check: db.Ping,
		},
	)

	engine, err := router.NewEngine(router.Config{
		ServiceName:    serviceName,
		Logger:         log,
		Meter:          meter,
		TracingEnabled: cfg.Telemetry.Enabled,
		CORS:           corsConfig,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		WebhookLimiter: middleware.NewKeyedLimiter(cfg.HTTP.WebhookRateLimit, cfg.HTTP.WebhookRateBurst),
	}, router.Handlers{
		Orders:   handler.NewOrderHandler(orderService),
		Payments: handler.NewPaymentHandler(paymentService),
		Queries:  handler.NewQueryHandler(queryService),
		Webhooks: handler.NewWebhookHandler(reconciler),
		System:   systemHandler,
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
