package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/allendavis-developer/pricebook/config"
	"github.com/allendavis-developer/pricebook/internal/repositories/attribute"
	"github.com/allendavis-developer/pricebook/internal/repositories/category"
	"github.com/allendavis-developer/pricebook/internal/repositories/conditiongrade"
	"github.com/allendavis-developer/pricebook/internal/repositories/pricingrule"
	"github.com/allendavis-developer/pricebook/internal/repositories/product"
	"github.com/allendavis-developer/pricebook/internal/repositories/variant"
	"github.com/allendavis-developer/pricebook/pkg/database"
	"github.com/allendavis-developer/pricebook/pkg/ingest"
	"github.com/allendavis-developer/pricebook/pkg/kafka"
	"github.com/allendavis-developer/pricebook/pkg/middleware"
	"github.com/allendavis-developer/pricebook/pkg/pricing"
	"github.com/allendavis-developer/pricebook/pkg/routes/catalog"
	"github.com/allendavis-developer/pricebook/pkg/routes/health"
	pricingroutes "github.com/allendavis-developer/pricebook/pkg/routes/pricing"
	"github.com/allendavis-developer/pricebook/pkg/tracing"
	"github.com/allendavis-developer/pricebook/pkg/tracing/exporters"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	if cfg.Tracing.Endpoint != "" {
		shutdown, err := setupTracing(ctx, cfg)
		if err != nil {
			logger.WithContext(ctx).WithError(err).Error("Failed to set up tracing, continuing without it")
		} else {
			defer shutdown(ctx)
		}
	}

	db, err := database.Connect(ctx, database.ConnectConfig{
		Driver:          "postgres",
		Host:            cfg.Database.Host,
		Port:            strconv.Itoa(cfg.Database.Port),
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Name:            cfg.Database.Name,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := runMigrations(cfg, db, logger); err != nil {
			logger.WithContext(ctx).WithError(err).Error("Failed to run migrations")
			os.Exit(1)
		}
	}

	categories := category.NewRepository(db, logger)
	products := product.NewRepository(db, logger)
	attributes := attribute.NewRepository(db, logger)
	grades := conditiongrade.NewRepository(db, logger)
	variants := variant.NewRepository(db, logger)
	rules := pricingrule.NewRepository(db, logger)

	pipeline := ingest.NewPipeline(db, logger, categories, products, attributes, grades, variants)
	if err := pipeline.EnsureDefaults(ctx); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to seed catalog defaults")
		os.Exit(1)
	}

	resolver := pricing.NewResolver(rules, categories, logger)

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			ConsumerGroup: cfg.Kafka.GroupID,
			BatchSize:     cfg.Kafka.BatchSize,
		}, logger, pipeline)
		if err := consumer.Start(ctx); err != nil {
			logger.WithContext(ctx).WithError(err).Error("Failed to start Kafka consumer")
			os.Exit(1)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout

	e.Use(middleware.Context())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Logger(logger))
	e.HTTPErrorHandler = middleware.Error(logger)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	checker := health.NewChecker(db, consumerHealth(consumer), version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	catalog.NewHandler(categories, products, variants).Register(api.Group("/catalog"))
	pricingroutes.NewHandler(variants, products, rules, resolver, logger).Register(api.Group("/pricing"))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.WithContext(ctx).WithFields(map[string]any{"addr": addr}).Info("Starting HTTP server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithContext(ctx).WithError(err).Error("HTTP server stopped")
		}
	}()
	checker.SetReady(true)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	checker.SetReady(false)
	logger.WithContext(ctx).Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.WithContext(ctx).WithError(err).Error("Failed to stop Kafka consumer")
		}
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to shut down HTTP server")
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapCfg zap.Config
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	zapLogger, err := zapCfg.Build()
	if err != nil {
		zapLogger = zap.NewNop()
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func setupTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.Tracing.Endpoint,
		Protocol: cfg.Tracing.Protocol,
		Insecure: cfg.Tracing.Insecure,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	res, err := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.AppName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	tracing.SetTracer(tp.Tracer(cfg.AppName))

	return tp.Shutdown, nil
}

func runMigrations(cfg *config.Config, db database.DB, logger ectologger.Logger) error {
	instance, ok := db.(*database.DatabaseInstance)
	if !ok {
		return fmt.Errorf("database does not expose a raw connection for migrations")
	}

	driver, err := migratepg.WithInstance(instance.DB.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	svc := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.Database.MigrationFolderPath,
		AutoRollback:        true,
	})
	return svc.Migrate(cfg.Database.Name, driver)
}

// consumerHealth avoids handing the checker a typed nil when the feed
// consumer is disabled.
func consumerHealth(c *kafka.Consumer) interface{ Health() bool } {
	if c == nil {
		return nil
	}
	return c
}
