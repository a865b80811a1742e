package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gopay-be/internal/admin"
	"gopay-be/internal/cache"
	"gopay-be/internal/checkout"
	"gopay-be/internal/config"
	"gopay-be/internal/db"
	"gopay-be/internal/logger"
	"gopay-be/internal/metrics"
	"gopay-be/internal/middleware"
	"gopay-be/internal/order"
	"gopay-be/internal/payment"
	"gopay-be/internal/payment/webhook"
	"gopay-be/internal/utils"
)

const shutdownTimeout = 10 * time.Second

var (
	initDBFunc      = db.InitDB
	startServerFunc = startServer
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.LoadConfig()

	zlog, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync(zlog)

	var database *sql.DB
	if cfg.OrderStore == config.StorePostgres {
		database = initDBFunc(cfg)
		defer database.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router, err := newServer(ctx, cfg, database, zlog)
	if err != nil {
		return err
	}

	zlog.Info("server starting",
		zap.String("port", cfg.AppPort),
		zap.String("env", cfg.AppEnv),
		zap.String("order_store", cfg.OrderStore),
	)
	return startServerFunc(ctx, ":"+cfg.AppPort, router)
}

// newServer wires stores, gateways and handlers. database may be nil, in
// which case orders live in memory and nothing is audited.
func newServer(ctx context.Context, cfg *config.Config, database *sql.DB, zlog *zap.Logger) (http.Handler, error) {
	if zlog == nil {
		zlog = zap.NewNop()
	}

	var (
		orders order.Store
		repo   payment.Repository
	)
	if database != nil {
		orders = order.NewRepository(database)
		repo = payment.NewRepository(database)
	} else {
		zlog.Warn("using in-memory order store")
		orders = order.NewMemoryStore()
	}

	var receipts cache.ReceiptStore
	if cfg.RedisAddr != "" {
		rs := cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rs.Ping(ctx); err != nil {
			zlog.Warn("redis unavailable, receipt cache disabled", zap.Error(err))
			_ = rs.Close()
		} else {
			receipts = rs
		}
	}

	gopayCfg, err := loadGOPayConfig(ctx, cfg, repo)
	if err != nil {
		return nil, err
	}

	processor := payment.NewProcessorClient(&http.Client{}, zlog)
	registry := payment.NewRegistry()
	if err := registry.Register(payment.NewGOPay(gopayCfg, orders, processor, zlog)); err != nil {
		return nil, err
	}

	stats := metrics.NewPaymentStats()
	limiter := middleware.NewRateLimiter(cfg.InternalSecretKey, "/webhook/", "/checkout/", "/admin/")
	go limiter.Cleanup(ctx)

	webhookHandler := webhook.NewWebhookHandler(registry, repo, receipts, stats, zlog)
	checkoutHandler := checkout.NewHandler(registry, orders, stats, zlog)

	var adminHandler *admin.Handler
	if cfg.JWTSecret != "" {
		adminHandler = admin.NewHandler(registry, repo, admin.Credentials{
			Email:        cfg.AdminEmail,
			PasswordHash: cfg.AdminPasswordHash,
			Secret:       []byte(cfg.JWTSecret),
		}, zlog)
	} else {
		zlog.Warn("JWT_SECRET not set, admin routes disabled")
	}

	return setupRouter(routerDeps{
		log:      zlog,
		limiter:  limiter,
		stats:    stats,
		webhook:  webhookHandler.ConfirmationHandler,
		checkout: checkoutHandler,
		admin:    adminHandler,
	}), nil
}

// loadGOPayConfig builds the gateway config from the environment, with
// settings saved through the admin API taking precedence.
func loadGOPayConfig(ctx context.Context, cfg *config.Config, repo payment.Repository) (*payment.Config, error) {
	form := make(map[string]string, len(cfg.GOPay))
	for k, v := range cfg.GOPay {
		form[k] = v
	}

	if repo != nil {
		stored, err := repo.LoadGatewaySettings(ctx, payment.GOPayID)
		if err != nil {
			return nil, fmt.Errorf("load gopay settings: %w", err)
		}
		for k, v := range stored {
			form[k] = v
		}
	}

	opts, err := payment.OptionsFromForm(form)
	if err != nil {
		return nil, err
	}
	return payment.Load(opts)
}

type routerDeps struct {
	log      *zap.Logger
	limiter  *middleware.RateLimiter
	stats    *metrics.PaymentStats
	webhook  http.HandlerFunc
	checkout *checkout.Handler
	admin    *admin.Handler
}

func setupRouter(d routerDeps) chi.Router {
	r := chi.NewRouter()
	r.Use(logger.RequestIDMiddleware)
	r.Use(middleware.Recovery(d.log))
	r.Use(logger.LoggingMiddleware(d.log))
	if d.limiter != nil {
		r.Use(d.limiter.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]interface{}{"status": "OK"}
		if d.stats != nil {
			body["payments"] = d.stats.Snapshot()
		}
		utils.WriteJSON(w, http.StatusOK, body)
	})

	r.Get("/webhook/{gateway}", d.webhook)
	r.Post("/webhook/{gateway}", d.webhook)

	if d.checkout != nil {
		d.checkout.Routes(r)
	}
	if d.admin != nil {
		d.admin.Routes(r)
	}

	return r
}

func startServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
