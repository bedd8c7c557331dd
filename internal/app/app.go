package app

import (
	"context"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Niphilbert/e-Commerce-Backend/internal/api"
	"github.com/Niphilbert/e-Commerce-Backend/internal/cache"
	"github.com/Niphilbert/e-Commerce-Backend/internal/credential"
	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/order"
	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/product"
	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/user"
	"github.com/Niphilbert/e-Commerce-Backend/internal/messaging"
	"github.com/Niphilbert/e-Commerce-Backend/internal/storage/postgres"
	"github.com/Niphilbert/e-Commerce-Backend/pkg/health"
	"github.com/Niphilbert/e-Commerce-Backend/pkg/httpmiddleware"
)

// Run connects the storage and messaging backends, serves the API on
// cfg.Addr and drains it once ctx is cancelled.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	applied, err := postgres.RunMigrations(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "run migrations")
	}
	lg.Info("Migrations applied", zap.Int64s("versions", applied))

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Optional catalog cache.
	var catalogCache product.Cache
	if cfg.RedisURL != "" {
		rc, err := cache.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() {
			if err := rc.Close(); err != nil {
				lg.Warn("Close redis", zap.Error(err))
			}
		}()
		catalogCache = rc
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(rc))
		lg.Info("Catalog cache enabled")
	}

	orderOpts := []order.Option{
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := messaging.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic,
			messaging.WithTracerProvider(m.TracerProvider()),
		)
		defer func() {
			if err := producer.Close(); err != nil {
				lg.Warn("Close kafka producer", zap.Error(err))
			}
		}()
		orderOpts = append(orderOpts, order.WithPublisher(producer))
		lg.Info("Order events enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	handler := newRouter(ctx, cfg, m, infra{
		pool:      pool,
		cache:     catalogCache,
		health:    healthSvc,
		orderOpts: orderOpts,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return drain(lg, srv, healthSvc, cfg.Graceful)
	})
	return g.Wait()
}

// drain flips readiness off, gives load balancers ReadinessDelay to notice,
// then shuts the server down within ShutdownTimeout.
func drain(lg *zap.Logger, srv *http.Server, h *health.Health, cfg GracefulConfig) error {
	defer h.Stop()

	h.SetReady(false)
	lg.Info("Draining", zap.Duration("delay", cfg.ReadinessDelay))
	time.Sleep(cfg.ReadinessDelay)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	lg.Info("Shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// infra is the infrastructure newRouter builds the services on.
type infra struct {
	pool      *pgxpool.Pool
	cache     product.Cache
	health    *health.Health
	orderOpts []order.Option
}

// newRouter wires repositories, services and handlers on top of in and
// returns the complete middleware-wrapped HTTP handler.
func newRouter(ctx context.Context, cfg *Config, tel httpmiddleware.Telemetry, in infra) http.Handler {
	// Repositories.
	productRepo := postgres.NewProductRepository(in.pool)
	orderStore := postgres.NewOrderStore(in.pool)
	userRepo := postgres.NewUserRepository(in.pool)

	// Domain services.
	creds := credential.New([]byte(cfg.JWTSecret), cfg.JWTExpiresIn, credential.WithBcryptCost(cfg.BcryptCost))
	catalog := product.NewService(productRepo, in.cache)
	orders := order.NewService(orderStore,
		append(slices.Clip(in.orderOpts), order.WithListingInvalidator(catalog))...,
	)
	accounts := user.NewService(userRepo, creds, creds)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	in.health.Register(mux)
	api.NewHandler(catalog, orders, accounts, creds).Register(mux,
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.AuthLimit.Max,
			Window:  cfg.AuthLimit.Window,
			Message: "Too many authentication attempts, please try again later.",
		}),
	)

	return httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("shop-api", tel),
		httpmiddleware.LogRequests(),
	)
}
