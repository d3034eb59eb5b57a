package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/studyhub/marketplace-api/internal/api/httpx"
	catalogpg "github.com/studyhub/marketplace-api/internal/catalog/infra/postgres"
	"github.com/studyhub/marketplace-api/internal/config"
	identityapp "github.com/studyhub/marketplace-api/internal/identity/app"
	identitypg "github.com/studyhub/marketplace-api/internal/identity/infra/postgres"
	"github.com/studyhub/marketplace-api/internal/notification"
	notifkafka "github.com/studyhub/marketplace-api/internal/notification/infra/kafka"
	notifpg "github.com/studyhub/marketplace-api/internal/notification/infra/postgres"
	orderapp "github.com/studyhub/marketplace-api/internal/order/app"
	orderpg "github.com/studyhub/marketplace-api/internal/order/infra/postgres"
	"github.com/studyhub/marketplace-api/internal/pkg/cache"
	"github.com/studyhub/marketplace-api/internal/pkg/metrics"
	"github.com/studyhub/marketplace-api/internal/pkg/postgres"
	"github.com/studyhub/marketplace-api/internal/pkg/telemetry"
	"github.com/studyhub/marketplace-api/migrations"
)

const serviceName = "marketplace-api"

func main() {
	telemetry.InitLogger()

	if err := run(); err != nil {
		slog.Error("service exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	shutdownTracer, err := telemetry.SetupTracer(ctx, serviceName)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if err := postgres.Migrate(cfg.DatabaseURL, migrations.FS); err != nil {
		return err
	}

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	orderRepo := orderpg.NewOrderRepo(pool)
	productRepo := catalogpg.NewProductRepo(pool)
	userRepo := identitypg.NewUserRepo(pool)
	directory := identityapp.NewDirectory(userRepo)

	publisher := notifkafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer func() {
		_ = publisher.Close()
	}()
	notifier := notification.NewService(notifpg.NewNotificationRepo(pool), publisher)

	counts := cache.NewCountsCache(cfg.RedisAddr, serviceName)
	orderMetrics := metrics.NewOrderMetrics()

	orderService := orderapp.NewService(
		orderRepo,
		productRepo,
		directory,
		notifier,
		postgres.NewTxManager(pool),
		counts,
		orderMetrics,
	)

	handler := httpx.NewHandler(orderService)
	router := httpx.NewRouter(handler, []byte(cfg.JWTSecret), userRepo)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("marketplace API listening", "addr", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
