package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/utafrali/proflens/internal/auth"
	"github.com/utafrali/proflens/internal/cache"
	"github.com/utafrali/proflens/internal/config"
	"github.com/utafrali/proflens/internal/event"
	handler "github.com/utafrali/proflens/internal/handler/http"
	"github.com/utafrali/proflens/internal/rating"
	"github.com/utafrali/proflens/internal/repository"
	"github.com/utafrali/proflens/internal/repository/memory"
	mongostore "github.com/utafrali/proflens/internal/repository/mongo"
	"github.com/utafrali/proflens/internal/repository/postgres"
	"github.com/utafrali/proflens/internal/service"
	"github.com/utafrali/proflens/migrations"
	"github.com/utafrali/proflens/pkg/database"
	"github.com/utafrali/proflens/pkg/health"
	pkgkafka "github.com/utafrali/proflens/pkg/kafka"
	"github.com/utafrali/proflens/pkg/middleware"
	"github.com/utafrali/proflens/pkg/tracing"
)

// ServiceName labels logs, metrics and traces.
const ServiceName = "proflens"

// closer releases one dependency during shutdown.
type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// App wires together all dependencies and runs the ProfLens API.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	closers        []closer
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	store, err := a.openStore(ctx, healthHandler)
	if err != nil {
		_ = a.closeAll()
		_ = tracerShutdown(context.Background())
		return nil, err
	}

	entityCache := a.openCache(ctx, healthHandler)
	events := a.openEvents(healthHandler)

	// Build the dependency graph.
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessExpiry)
	aggregator := rating.NewAggregator(store, cfg.UnsetPolicy(), logger)
	reviewService := service.NewReviewService(store, aggregator, entityCache, events, logger)
	professorService := service.NewProfessorService(store, entityCache, events, logger)
	courseService := service.NewCourseService(store, entityCache, events, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		ServiceName:    ServiceName,
		Reviews:        reviewService,
		Professors:     professorService,
		Courses:        courseService,
		Health:         healthHandler,
		TokenValidator: jwtManager.Validator(),
		CORS:           corsCfg,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
		Logger:         logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStore connects the configured store and registers it as a critical
// health check.
func (a *App) openStore(ctx context.Context, h *health.Handler) (repository.Store, error) {
	cfg := a.cfg
	logger := a.logger

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pgCfg := database.PostgresConfig{
			Host:            cfg.PostgresHost,
			Port:            cfg.PostgresPort,
			User:            cfg.PostgresUser,
			Password:        cfg.PostgresPass,
			DBName:          cfg.PostgresDB,
			SSLMode:         cfg.PostgresSSL,
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
			MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
		}
		conn := database.NewConnection(
			func(ctx context.Context) (*pgxpool.Pool, error) {
				return database.NewPostgresPool(ctx, &pgCfg, logger)
			},
			func(_ context.Context, pool *pgxpool.Pool) error {
				pool.Close()
				return nil
			},
		)
		a.closers = append(a.closers, closer{name: "postgres", fn: conn.Close})

		pool, err := conn.Connect(ctx)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		database.RegisterPoolMetrics(pool, ServiceName)

		// Run database migrations.
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")

		// Configure slow query logging.
		if cfg.SlowQueryThresholdMs > 0 {
			database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
		}

		h.RegisterCritical("postgres", func(ctx context.Context) error {
			pool, err := conn.Connect(ctx)
			if err != nil {
				return err
			}
			return pool.Ping(ctx)
		})
		return postgres.New(pool), nil

	case config.DriverMongo:
		mongoCfg := database.DefaultMongoConfig()
		mongoCfg.URI = cfg.MongoURI
		mongoCfg.Database = cfg.MongoDatabase
		mongoCfg.MaxPoolSize = cfg.MongoMaxPoolSize

		conn := database.NewConnection(
			func(ctx context.Context) (*mongo.Client, error) {
				return database.NewMongoClient(ctx, mongoCfg, logger)
			},
			func(ctx context.Context, client *mongo.Client) error {
				return client.Disconnect(ctx)
			},
		)
		a.closers = append(a.closers, closer{name: "mongo", fn: conn.Close})

		client, err := conn.Connect(ctx)
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		db := client.Database(cfg.MongoDatabase)
		logger.Info("connected to MongoDB",
			slog.String("database", cfg.MongoDatabase),
			slog.Bool("transactions", cfg.MongoTransactions),
		)
		if !cfg.MongoTransactions {
			logger.Warn("mongo transactions disabled, a failed review mutation can leave partial writes")
		}

		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		if cfg.SlowQueryThresholdMs > 0 {
			database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
		}

		h.RegisterCritical("mongo", func(ctx context.Context) error {
			client, err := conn.Connect(ctx)
			if err != nil {
				return err
			}
			return client.Ping(ctx, nil)
		})
		return mongostore.New(db, cfg.MongoTransactions), nil

	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// openCache returns the Redis entity cache, or nil when it is disabled or
// unreachable at startup. The API works without it.
func (a *App) openCache(ctx context.Context, h *health.Handler) service.EntityCache {
	if !a.cfg.RedisEnabled {
		return nil
	}

	redisCfg := database.DefaultRedisConfig()
	redisCfg.Host = a.cfg.RedisHost
	redisCfg.Port = a.cfg.RedisPort
	redisCfg.Password = a.cfg.RedisPassword
	redisCfg.DB = a.cfg.RedisDB

	conn := database.NewConnection(
		func(ctx context.Context) (*redis.Client, error) {
			return database.NewRedisClient(ctx, redisCfg)
		},
		func(_ context.Context, client *redis.Client) error {
			return client.Close()
		},
	)
	a.closers = append(a.closers, closer{name: "redis", fn: conn.Close})

	client, err := conn.Connect(ctx)
	if err != nil {
		a.logger.Warn("redis unavailable, continuing without entity cache",
			slog.String("addr", redisCfg.Addr()),
			slog.String("error", err.Error()),
		)
		return nil
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.TTL = a.cfg.CacheTTL
	entityCache := cache.New(client, cacheCfg, a.logger)
	a.logger.Info("entity cache enabled",
		slog.String("addr", redisCfg.Addr()),
		slog.Duration("ttl", cacheCfg.TTL),
	)

	h.RegisterNonCritical("redis", entityCache.Ping)
	return entityCache
}

// openEvents returns the Kafka-backed event producer, or one that drops
// events when no brokers are configured.
func (a *App) openEvents(h *health.Handler) *event.Producer {
	if len(a.cfg.KafkaBrokers) == 0 {
		a.logger.Info("no kafka brokers configured, domain events are discarded")
		return event.NewProducer(event.Discard{}, a.logger)
	}

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(a.cfg.KafkaBrokers), a.logger)
	a.closers = append(a.closers, closer{name: "kafka", fn: func(context.Context) error {
		return producer.Close()
	}})
	a.logger.Info("kafka producer initialized", slog.Any("brokers", a.cfg.KafkaBrokers))

	h.RegisterNonCritical("kafka", producer.Ping)
	return event.NewProducer(producer, a.logger)
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Event producer, cache and store, last opened first
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Release backing services.
	errs = append(errs, a.closeAll())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Error("close error", slog.String("component", c.name), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
