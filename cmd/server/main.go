package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/Ramsey-B/quay/config"
	"github.com/Ramsey-B/quay/internal/handlers"
	"github.com/Ramsey-B/quay/internal/repositories/booking"
	"github.com/Ramsey-B/quay/internal/repositories/container"
	"github.com/Ramsey-B/quay/internal/repositories/invoice"
	"github.com/Ramsey-B/quay/internal/repositories/link"
	"github.com/Ramsey-B/quay/internal/repositories/order"
	"github.com/Ramsey-B/quay/pkg/consumer"
	"github.com/Ramsey-B/quay/pkg/database"
	"github.com/Ramsey-B/quay/pkg/events"
	"github.com/Ramsey-B/quay/pkg/graph"
	"github.com/Ramsey-B/quay/pkg/kafka"
	"github.com/Ramsey-B/quay/pkg/linking"
	"github.com/Ramsey-B/quay/pkg/middleware"
	"github.com/Ramsey-B/quay/pkg/redis"
	"github.com/Ramsey-B/quay/pkg/startup"
	"github.com/Ramsey-B/quay/pkg/tracing"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(&cfg)
	ctx := context.Background()

	if cfg.TracingEnabled {
		shutdown, err := tracing.Setup(ctx, tracing.SetupConfig{
			ServiceName:  cfg.AppName,
			OTLPEndpoint: cfg.TracingOTLPEndpoint,
			OTLPProtocol: cfg.TracingOTLPProtocol,
			Insecure:     cfg.TracingInsecure,
		})
		if err != nil {
			fatal(logger, err, "Failed to set up tracing")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Failed to shut down tracer provider")
			}
		}()
	}

	sqlxDB, err := connectDatabase(&cfg)
	if err != nil {
		fatal(logger, err, "Failed to connect to database")
	}
	defer sqlxDB.Close()

	if err := migrateDatabase(&cfg, logger, sqlxDB); err != nil {
		fatal(logger, err, "Failed to run database migrations")
	}

	db := database.NewDatabaseInstance(sqlxDB, logger)

	redisClient, err := redis.NewClient(redis.Config{
		Host:         cfg.RedisHost,
		Port:         cfg.RedisPort,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     cfg.RedisPoolSize,
		MinIdleConns: cfg.RedisMinIdleConns,
		DialTimeout:  cfg.RedisDialTimeout,
		ReadTimeout:  cfg.RedisReadTimeout,
	}, logger)
	if err != nil {
		fatal(logger, err, "Failed to connect to Redis")
	}
	defer redisClient.Close()

	streams := redis.NewStreams(redisClient)
	dlq := redis.NewDeadLetterQueue(redisClient, cfg.QueueDLQStream, logger)

	var emitter *events.Emitter
	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
		emitter = events.NewEmitter(producer, logger)
	}

	var graphLinks *graph.LinkService
	if cfg.GraphEnabled {
		graphClient, err := graph.NewClient(graph.Config{
			Host:              cfg.GraphDBHost,
			Port:              cfg.GraphDBPort,
			Username:          cfg.GraphDBUser,
			Password:          cfg.GraphDBPassword,
			MaxPoolSize:       cfg.GraphDBMaxPoolSize,
			ConnectionTimeout: cfg.GraphDBConnectTimeout,
		}, logger)
		if err != nil {
			fatal(logger, err, "Failed to create graph client")
		}
		if err := graphClient.VerifyConnectivity(ctx); err != nil {
			fatal(logger, err, "Failed to reach graph database")
		}
		defer graphClient.Close(ctx)
		graphLinks = graph.NewLinkService(graphClient, logger)
	}

	bookings := booking.NewRepository(db, logger)
	orders := order.NewRepository(db, logger, cfg.BatchUpsertChunkSize)
	containers := container.NewRepository(db, logger, cfg.BatchUpsertChunkSize)
	invoices := invoice.NewRepository(db, logger, cfg.BatchUpsertChunkSize)
	links := link.NewRepository(db, logger)

	engine := linking.NewEngine(logger, bookings, orders, containers, invoices, links, emitter, graphLinks)

	e := newServer(&cfg, logger)

	healthChecker := handlers.NewHealthChecker(sqlxDB, redisClient, version)
	healthChecker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	handlers.NewNotificationHandler(streams, cfg.QueueStream, logger).RegisterRoutes(api)
	handlers.NewBookingHandler(bookings, orders, containers, logger).RegisterRoutes(api)
	handlers.NewOrderHandler(orders, invoices, links, logger).RegisterRoutes(api)
	handlers.NewContainerHandler(containers, links, graphLinks, logger).RegisterRoutes(api)
	handlers.NewLinkHandler(links, emitter, graphLinks, logger).RegisterRoutes(api)
	handlers.NewDLQHandler(dlq, streams, cfg.QueueStream, logger).RegisterRoutes(api)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&serverDependency{echo: e, port: cfg.Port, logger: logger})

	if cfg.ConsumerEnabled {
		consumerConfig := consumer.DefaultConfig()
		consumerConfig.Stream = cfg.QueueStream
		consumerConfig.ConsumerGroup = cfg.QueueConsumerGroup
		consumerConfig.BatchSize = cfg.ConsumerBatchSize
		consumerConfig.BlockTimeout = cfg.ConsumerBlockTimeout
		consumerConfig.MaxRetries = cfg.ConsumerMaxRetries
		consumerConfig.ClaimInterval = cfg.ConsumerClaimInterval
		consumerConfig.DedupEnabled = cfg.ConsumerDedupEnabled
		consumerConfig.DedupTTL = cfg.ConsumerDedupTTL

		ingest := consumer.NewConsumer(streams, dlq, redisClient, engine, consumerConfig, logger)
		boot.AddDependency(&consumerDependency{consumer: ingest})
	}

	if err := boot.Start(ctx); err != nil {
		fatal(logger, err, "Startup failed")
	}
	healthChecker.SetReady(true)
	logger.Infof("%s listening on port %d", cfg.AppName, cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	healthChecker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown failed")
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func connectDatabase(cfg *config.Config) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost,
		cfg.DatabasePort,
		cfg.DatabaseUserName,
		cfg.DatabasePassword,
		cfg.DatabaseName,
		cfg.DatabaseSSLMode,
	)

	db, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	return db, nil
}

func migrateDatabase(cfg *config.Config, logger ectologger.Logger, db *sqlx.DB) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})

	return migrations.Migrate(cfg.DatabaseName, driver)
}

func newServer(cfg *config.Config, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.HTTPErrorHandler = middleware.Error(logger)

	return e
}

// serverDependency runs the echo server as a managed startup dependency
type serverDependency struct {
	echo   *echo.Echo
	port   int
	logger ectologger.Logger
}

func (d *serverDependency) GetName() string {
	return "http-server"
}

func (d *serverDependency) DependsOn() []string {
	return nil
}

func (d *serverDependency) Start(ctx context.Context) error {
	go func() {
		if err := d.echo.Start(fmt.Sprintf(":%d", d.port)); err != nil && err != http.ErrServerClosed {
			fatal(d.logger, err, "HTTP server stopped unexpectedly")
		}
	}()
	return nil
}

func (d *serverDependency) Stop(ctx context.Context) error {
	return d.echo.Shutdown(ctx)
}

// consumerDependency runs the ingestion consumer as a managed startup dependency
type consumerDependency struct {
	consumer *consumer.Consumer
}

func (d *consumerDependency) GetName() string {
	return "ingestion-consumer"
}

func (d *consumerDependency) DependsOn() []string {
	return nil
}

func (d *consumerDependency) Start(ctx context.Context) error {
	return d.consumer.Start(ctx)
}

func (d *consumerDependency) Stop(ctx context.Context) error {
	return d.consumer.Stop(ctx)
}

func fatal(logger ectologger.Logger, err error, message string) {
	logger.WithError(err).Error(message)
	os.Exit(1)
}
