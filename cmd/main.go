package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/settlement-service/internal/api"
	"github.com/akylbek/payment-system/settlement-service/internal/cache"
	"github.com/akylbek/payment-system/settlement-service/internal/config"
	"github.com/akylbek/payment-system/settlement-service/internal/events"
	"github.com/akylbek/payment-system/settlement-service/internal/gateway"
	"github.com/akylbek/payment-system/settlement-service/internal/repository"
	"github.com/akylbek/payment-system/settlement-service/internal/service"
	"github.com/akylbek/payment-system/settlement-service/internal/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize telemetry
	if err := telemetry.InitTelemetry("settlement-service", cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Settlement Service")

	// Connect to PostgreSQL
	db, err := repository.NewDB(context.Background(), cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := repository.RunMigrations(cfg.DatabaseURL); err != nil {
		telemetry.Logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	defer redisClient.Close()

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Connect to Kafka
	kafkaWriter := events.NewKafkaWriter(cfg.KafkaBrokers, cfg.StateTopic)
	defer kafkaWriter.Close()

	kafkaReader := events.NewKafkaReader(cfg.KafkaBrokers, cfg.StateTopic, cfg.RelayGroupID)
	defer kafkaReader.Close()

	// Wire repositories and services
	eventRepo := cache.NewEventRepository(repository.NewEventRepository(db), redisClient, cfg.EventCacheTTL)
	registrationRepo := repository.NewRegistrationRepository(db)
	couponRepo := repository.NewCouponRepository(db)

	deps := service.Dependencies{
		Payments:      repository.NewPaymentRepository(db),
		Registrations: registrationRepo,
		Events:        eventRepo,
		Tx:            repository.NewTxRunner(db),
		Gateway: gateway.NewRazorpay(gateway.RazorpayConfig{
			KeyID:     cfg.RazorpayKeyID,
			KeySecret: cfg.RazorpayKeySecret,
			BaseURL:   cfg.RazorpayBaseURL,
			Timeout:   cfg.GatewayTimeout,
		}),
		Locker:    cache.NewLocker(redisClient),
		Publisher: events.NewKafkaPublisher(kafkaWriter),
	}

	evaluator := service.NewCouponEvaluator(couponRepo)
	pricing := service.NewPricingCalculator(cfg.TaxRateDecimal())

	orchestrator := service.NewOrchestrator(deps, evaluator, pricing, service.OrchestratorConfig{
		Currency: cfg.Currency,
		LockTTL:  cfg.SettlementLockTTL,
	})

	// Start the notification relay
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	relay := service.NewNotificationRelay(kafkaReader, events.NewNatsNotifier(nc))
	go func() {
		if err := relay.Run(relayCtx); err != nil {
			telemetry.Logger.Error("Notification relay stopped", zap.Error(err))
		}
	}()

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	r := api.NewRouter(api.Services{
		Payments:      orchestrator,
		Refunds:       service.NewRefundProcessor(deps, cfg.SettlementLockTTL),
		Registrations: service.NewRegistrationService(registrationRepo, eventRepo),
		Coupons:       service.NewCouponService(couponRepo, eventRepo, evaluator, pricing),
	})

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Settlement Service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	stopRelay()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
