package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/orderflow/internal/domain/promotion"
	"github.com/xenking/orderflow/internal/domain/tax"
	"github.com/xenking/orderflow/internal/ordering"
	"github.com/xenking/orderflow/internal/pricing"
	"github.com/xenking/orderflow/internal/process"
	"github.com/xenking/orderflow/internal/storage/postgres"
	"github.com/xenking/orderflow/pkg/health"
	"github.com/xenking/orderflow/pkg/httpmiddleware"
)

// Engine is the wired order engine.
type Engine struct {
	Orders     *ordering.Service
	Calculator *pricing.Calculator

	zones         tax.ZoneLister
	defaultZoneID string
}

// processPlugins returns the optional processes enabled by cfg.
func processPlugins(cfg *Config, m *app.Telemetry) (process.Plugins, error) {
	var plugins process.Plugins
	if m != nil {
		t, err := process.NewTelemetry(m.MeterProvider())
		if err != nil {
			return plugins, errors.Wrap(err, "process telemetry")
		}
		plugins = plugins.Merge(t.Plugins())
	}
	if !cfg.Order.AllowCancelAfterSettlement {
		plugins = plugins.Merge(process.Plugins{
			Order: []process.OrderProcess{process.NoCancelAfterSettlement()},
		})
	}
	return plugins, nil
}

// logGraphs reports unreachable states of the composed processes.
func logGraphs(lg *zap.Logger, defs *process.Definitions) {
	for _, g := range defs.Graphs() {
		lg.Debug("Process composed",
			zap.String("process", g.Name),
			zap.Strings("plugins", g.Processes),
		)
		if len(g.Unreachable) > 0 {
			lg.Warn("Process has unreachable states",
				zap.String("process", g.Name),
				zap.Strings("states", g.Unreachable),
			)
		}
	}
}

// NewEngine builds the calculator and the order service on top of the
// Postgres repositories.
func NewEngine(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config, pool *pgxpool.Pool) (*Engine, error) {
	variants := postgres.NewVariantRepository(pool)
	taxes := postgres.NewTaxRepository(pool)
	promotions := postgres.NewPromotionRepository(pool)
	coupons := postgres.NewCouponRepository(pool)
	orders := postgres.NewOrderRepository(pool)

	registry, err := postgres.NewShippingMethodRepository(pool).Registry(ctx, cfg.Channel.PricesIncludeTax)
	if err != nil {
		return nil, errors.Wrap(err, "load shipping methods")
	}
	lg.Info("Shipping methods loaded", zap.Int("count", len(registry.Methods())))

	calc := pricing.NewCalculator(pricing.Config{
		Channel: tax.Channel{
			ID:               cfg.Channel.ID,
			Code:             cfg.Channel.Code,
			DefaultTaxZoneID: cfg.Channel.DefaultTaxZoneID,
			PricesIncludeTax: cfg.Channel.PricesIncludeTax,
		},
		Zones:        taxes,
		ZoneResolver: tax.AddressZoneResolver{},
		Rates:        taxes,
		Shipping:     registry,
		Summary:      pricing.StrategyByName(cfg.Tax.Rounding),
	})

	plugins, err := processPlugins(cfg, m)
	if err != nil {
		return nil, err
	}
	svcCfg := ordering.Config{
		Orders:     orders,
		Products:   variants,
		Promotions: promotions,
		Coupons:    promotion.NewCouponValidator(coupons, promotions),
		Calculator: calc,
		Shipping:   registry,

		PricesIncludeTax: cfg.Channel.PricesIncludeTax,
		Options: process.Options{
			RequireShippingMethod: cfg.Order.RequireShippingMethod,
		},
		Plugins: plugins,
	}
	if m != nil {
		svcCfg.TracerProvider = m.TracerProvider()
	}
	svc, err := ordering.NewService(svcCfg)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}
	logGraphs(lg, svc.Definitions())

	return &Engine{
		Orders:        svc,
		Calculator:    calc,
		zones:         taxes,
		defaultZoneID: cfg.Channel.DefaultTaxZoneID,
	}, nil
}

// OpsHandler returns the ops endpoints: health checks, the composed process
// graphs and a read-only order view.
func OpsHandler(healthSvc *health.Health, e *Engine) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /livez", healthSvc.Handler(health.Liveness))
	mux.Handle("GET /readyz", healthSvc.Handler(health.Readiness))
	mux.Handle("GET /debug/processes", processGraphsHandler(e.Orders.Definitions()))
	mux.Handle("GET /debug/orders/{id}", orderHandler(e.Orders, e.Calculator))
	return mux
}

// Run creates all dependencies, starts the ops server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	engine, err := NewEngine(ctx, lg, m, cfg, pool)
	if err != nil {
		return err
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.Register(health.Check{
		Name:    "postgres",
		Kind:    health.Readiness,
		Timeout: 5 * time.Second,
		Func:    health.Ping(pool),
	})
	healthSvc.Register(health.Check{
		Name: "runtime",
		Kind: health.Liveness,
		Func: health.Runtime(health.RuntimeLimits{MaxGoroutines: 10000, MaxGCPause: time.Second}),
	})
	engine.RegisterChecks(healthSvc)
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(OpsHandler(healthSvc, engine),
			httpmiddleware.Instrument("orderflow-ops", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Exempt: []string{"/livez", "/readyz"},
			}),
			httpmiddleware.Labeler(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
