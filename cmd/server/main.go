package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/Skotchmaster/storefront/internal/account"
	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/catalog"
	"github.com/Skotchmaster/storefront/internal/checkout"
	"github.com/Skotchmaster/storefront/internal/config"
	"github.com/Skotchmaster/storefront/internal/db"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/httpserver"
	"github.com/Skotchmaster/storefront/internal/identity"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/metrics"
	"github.com/Skotchmaster/storefront/internal/session"
	"github.com/Skotchmaster/storefront/internal/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := logging.IntoContext(context.Background(), logger)

	gdb, err := db.Open(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	defer func() {
		if err := db.Close(gdb); err != nil {
			logger.Error("db_close_error", "error", err)
		}
	}()

	sessions, closeSessions, err := openSessions(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollector(reg)

	gateway, err := catalog.NewGateway(catalog.Config{
		BaseURL:  cfg.CatalogURL,
		Timeout:  cfg.CatalogTimeout,
		PageSize: cfg.CatalogPageSize,
		Breaker:  catalog.DefaultBreakerConfig(),
	}, logger, m)
	if err != nil {
		return fmt.Errorf("init catalog: %w", err)
	}

	var pub events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.KafkaBrokers, events.DefaultTopic)
		logger.Info("events_enabled", "brokers", cfg.KafkaBrokers, "topic", events.DefaultTopic)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Error("kafka_close_error", "error", err)
		}
	}()

	policy, err := cart.ParseHandoffPolicy(cfg.HandoffPolicy)
	if err != nil {
		return err
	}
	engine := cart.NewEngine(gdb, sessions, policy)
	issuer := tokens.NewIssuer([]byte(cfg.JWTSecret), []byte(cfg.RefreshSecret))
	accounts := account.NewService(gdb, issuer)

	deps := &httpserver.Deps{
		DB:        gdb,
		Sessions:  sessions,
		Gatherer:  reg,
		Metrics:   m,
		Resolver:  identity.NewResolver(issuer, accounts, cfg.SecureCookies),
		Secure:    cfg.SecureCookies,
		AuthRate:  rate.Limit(cfg.AuthRateLimit),
		AuthBurst: cfg.AuthRateBurst,

		ProductHandler:  &httpserver.ProductHTTP{Catalog: gateway},
		CartHandler:     &httpserver.CartHTTP{Engine: engine, Catalog: gateway, Events: pub, Metrics: m},
		CheckoutHandler: &httpserver.CheckoutHTTP{Engine: engine, Flow: checkout.NewFlow(gateway), Events: pub, Metrics: m},
		AuthHandler:     &httpserver.AuthHTTP{Accounts: accounts, Engine: engine, Events: pub, Metrics: m, Secure: cfg.SecureCookies},
	}
	e := httpserver.New(logger, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_started", "addr", srv.Addr, "handoff_policy", string(policy))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
	}

	logger.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", "error", err)
	}
	logger.Info("shutdown_complete")
	return nil
}

// openSessions picks Redis when REDIS_ADDR is set and an in-process store otherwise.
func openSessions(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.Store, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Warn("guest_sessions_in_memory", "reason", "REDIS_ADDR not set")
		return session.NewMemoryStore(cfg.GuestSessionTTL), func() {}, nil
	}

	client, err := session.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, fmt.Errorf("init redis: %w", err)
	}
	closeFn := func() {
		if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			logger.Error("redis_close_error", "error", err)
		}
	}
	return session.NewRedisStore(client, cfg.GuestSessionTTL), closeFn, nil
}
