// Package app wires the scanpos service together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/floorkit/scanpos/internal/domain/audit"
	"github.com/floorkit/scanpos/internal/domain/cart"
	"github.com/floorkit/scanpos/internal/domain/coupon"
	"github.com/floorkit/scanpos/internal/domain/order"
	"github.com/floorkit/scanpos/internal/handler"
	"github.com/floorkit/scanpos/internal/lookup"
	"github.com/floorkit/scanpos/internal/repository"
	"github.com/floorkit/scanpos/pkg/health"
	"github.com/floorkit/scanpos/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the background workers and the HTTP
// server, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, _ *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis client for the lookup cache.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc-pause", time.Second, health.GCMaxPauseCheck(200*time.Millisecond))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	customerRepo := repository.NewCustomerRepository(pool)
	consignorRepo := repository.NewConsignorRepository(pool)
	auditRepo := repository.NewScanAuditRepository(pool)
	orderScanRepo := repository.NewOrderScanRepository(pool)
	jobRepo := repository.NewStatusJobRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Lookup cache fronting the catalog on the scan path.
	lookupCache := lookup.New(productRepo, rdb, cfg.Lookup.TTL, lg.Named("lookup"))
	if err := lookupCache.WarmFilter(ctx); err != nil {
		// A cold prefilter just means every scan reaches the cache.
		lg.Warn("lookup prefilter warmup failed", zap.Error(err))
	}

	// Domain services.
	couponValidator := coupon.NewRepoValidator(couponRepo)
	sessions := cart.NewSessionStore(cfg.Session.TTL)
	auditLog := audit.NewLogger(auditRepo, lg.Named("audit"), audit.LoggerConfig{})
	linker := audit.NewLinker(auditRepo, orderScanRepo, orderRepo, customerRepo, lg.Named("linker"))
	assembler := order.NewAssembler(productRepo, customerRepo, couponValidator, couponRepo, orderRepo, lg.Named("assembler"))
	finalizer := order.NewFinalizer(jobRepo, orderRepo, lg.Named("finalizer"), cfg.Finalizer.PollInterval)
	finalizer.RegisterHandler(order.StatusChangedFunc(func(_ context.Context, o *order.Order, previous order.Status) error {
		lg.Info("order status changed",
			zap.Int64("order_id", o.ID),
			zap.String("from", string(previous)),
			zap.String("to", string(o.Status)),
		)
		return nil
	}))

	// Background workers.
	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()
	go auditLog.Run(workerCtx)
	go finalizer.Run(workerCtx)
	go runMaintenance(workerCtx, lg, sessions, auditRepo, orderScanRepo)

	// HTTP server.
	h := handler.New(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL},
		lookupCache, productRepo, sessions, consignorRepo, customerRepo,
		couponValidator, assembler, orderRepo, finalizer,
		auditLog, auditRepo, linker,
		lg.Named("handler"),
	)
	authMW := handler.APIKeyAuth(apikeyRepo, []byte(cfg.APIKeyPepper))

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", http.StripPrefix("/api", h.Routes(authMW)))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-API-Key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: drain the server, then stop the workers so queued
	// audit events and finalize jobs are flushed.
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

		stopWorkers()
		auditLog.Wait()
		finalizer.Wait()
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

// runMaintenance owns the periodic housekeeping: idle POS session eviction
// every ten minutes and a daily purge of scan audits and order scan links
// past the retention horizon.
func runMaintenance(ctx context.Context, lg *zap.Logger, sessions *cart.SessionStore, audits audit.Store, links audit.LinkStore) {
	evictTicker := time.NewTicker(10 * time.Minute)
	defer evictTicker.Stop()
	purgeTicker := time.NewTicker(24 * time.Hour)
	defer purgeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-evictTicker.C:
			if n := sessions.Evict(); n > 0 {
				lg.Info("evicted idle pos sessions", zap.Int("count", n))
			}
		case <-purgeTicker.C:
			cutoff := time.Now().AddDate(0, 0, -audit.RetentionDays)
			// Links go first so no link outlives its scan record.
			if n, err := links.PurgeOlderThan(ctx, cutoff); err != nil {
				lg.Error("purge order scan links", zap.Error(err))
			} else if n > 0 {
				lg.Info("purged order scan links", zap.Int64("count", n))
			}
			if n, err := audits.PurgeOlderThan(ctx, cutoff); err != nil {
				lg.Error("purge scan audits", zap.Error(err))
			} else if n > 0 {
				lg.Info("purged scan audits", zap.Int64("count", n))
			}
		}
	}
}
