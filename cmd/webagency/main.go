// Package main запускает HTTP-сервер витрины веб-агентства.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/webagency/internal/checkout"
	"github.com/mmeshcher/webagency/internal/config"
	"github.com/mmeshcher/webagency/internal/events"
	"github.com/mmeshcher/webagency/internal/gateway"
	"github.com/mmeshcher/webagency/internal/handler"
	"github.com/mmeshcher/webagency/internal/middleware"
	"github.com/mmeshcher/webagency/internal/repository"
	"github.com/mmeshcher/webagency/internal/service"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.NewPostgresRepository(ctx, cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	sessions, closeSessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		sugar.Fatalw("checkout session store initialization error", "error", err.Error(), "backend", cfg.SessionBackend)
	}
	defer closeSessions()

	payments, err := newPaymentBackend(cfg)
	if err != nil {
		sugar.Fatalw("payment gateway initialization error", "error", err.Error(), "provider", cfg.PaymentProvider)
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewSyncProducer(cfg.KafkaBrokers)
		if err != nil {
			sugar.Fatalw("kafka initialization error", "error", err.Error())
		}
		publisher = events.NewKafkaPublisher(producer, cfg.KafkaTopic, logger)
	}

	svc := service.NewService(repo, sessions, payments.gateway, publisher, logger, service.Options{
		PublicBaseURL: cfg.PublicBaseURL,
		CallbackPath:  payments.callbackPath,
		FrontendURL:   cfg.FrontendURL,
		AdminLogins:   cfg.AdminLogins,
		PaymentLookup: payments.lookup,
	})
	defer svc.Close()

	if err := svc.PromoteAdmins(ctx); err != nil {
		sugar.Warnw("promote admins error", "error", err.Error())
	}

	if cfg.JWTSecret == "" {
		sugar.Warn("JWT_SECRET is not set, sessions will not survive a restart")
	}
	if cfg.CallbackSecret == "" {
		sugar.Warn("CALLBACK_SECRET is not set, payment callbacks will be rejected")
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.CallbackSecret)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Сверка неоплаченных заказов со шлюзом на случай потерянного callback
	g.Go(func() error {
		svc.StartPaymentReconciliation(ctx, payments.checker, cfg.ReconcileInterval)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting webagency server", "addr", cfg.RunAddress, "sessions", cfg.SessionBackend, "payments", cfg.PaymentProvider)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newSessionStore(ctx context.Context, cfg *config.Config) (checkout.Store, func(), error) {
	switch cfg.SessionBackend {
	case config.SessionBackendDynamoDB:
		ddb, err := checkout.NewDynamoClient(ctx, checkout.DynamoOptions{
			Region:          cfg.AWSRegion,
			Endpoint:        cfg.DynamoEndpoint,
			AccessKeyID:     cfg.AWSAccessKey,
			SecretAccessKey: cfg.AWSSecretKey,
		})
		if err != nil {
			return nil, nil, err
		}
		return checkout.NewDynamoStore(ddb, cfg.DynamoTable, cfg.SessionTTL), func() {}, nil

	default:
		rdb, err := checkout.NewRedisClient(ctx, cfg.RedisAddress, cfg.RedisPassword)
		if err != nil {
			return nil, nil, err
		}
		return checkout.NewRedisStore(rdb, cfg.SessionTTL), func() { _ = rdb.Close() }, nil
	}
}

// paymentBackend: выбранный платёжный провайдер и способы узнать об оплате.
type paymentBackend struct {
	gateway      gateway.Gateway
	checker      service.TransactionChecker
	lookup       service.PaymentLookup
	callbackPath string
}

// newPaymentBackend выбирает платёжного провайдера. HTTP-шлюз шлёт подписанный callback,
// MercadoPago шлёт уведомление с id оплаты, которую сервис перечитывает через API.
func newPaymentBackend(cfg *config.Config) (*paymentBackend, error) {
	switch cfg.PaymentProvider {
	case config.PaymentProviderMercadoPago:
		mp, err := gateway.NewMercadoPago(cfg.MercadoPagoToken, cfg.Currency, cfg.MercadoPagoSandbox, cfg.PaymentTTL)
		if err != nil {
			return nil, err
		}
		return &paymentBackend{
			gateway:      mp,
			checker:      mp,
			lookup:       mp,
			callbackPath: "/api/payments/mercadopago",
		}, nil

	default:
		client := gateway.NewClient(gateway.Options{
			BaseURL:      cfg.GatewayAddress,
			APIKey:       cfg.GatewayAPIKey,
			PrivateKey:   cfg.GatewayPrivateKey,
			MerchantCode: cfg.GatewayMerchantCode,
			Method:       cfg.GatewayMethod,
			PaymentTTL:   cfg.PaymentTTL,
		})
		return &paymentBackend{
			gateway:      client,
			checker:      client,
			callbackPath: service.DefaultCallbackPath,
		}, nil
	}
}
