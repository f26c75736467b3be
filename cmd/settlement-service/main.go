package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-booking/internal/checkout/db"
	rediswrap "ms-booking/internal/checkout/redis"
	"ms-booking/internal/config"
	"ms-booking/internal/customers"
	"ms-booking/internal/gateway"
	"ms-booking/internal/inventory"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/notification"
	"ms-booking/internal/settlement"
	"ms-booking/internal/settlement/handler"
	"ms-booking/internal/voucher"
)

// The settlement service only receives gateway webhooks. It shares the
// database and Redis with the booking service but runs as its own process so
// webhook delivery is isolated from checkout traffic.
func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Settlement Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	cfg := config.Load()
	ctx := context.Background()

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()
	log.Info("DATABASE", "✅ PostgreSQL connection successful")

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	defer redisClient.Close()

	stripeClient, err := gateway.NewClient(cfg.Stripe, log)
	if err != nil {
		log.Fatal("GATEWAY", fmt.Sprintf("Failed to initialize payment gateway: %v", err))
	}

	var producer *kafka.Producer
	var publisher settlement.Publisher
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		publisher = producer
	}

	finalizer := settlement.NewFinalizer(settlement.Deps{
		DB:           &db.DB{Bun: bunDB},
		Inventory:    inventory.NewStore(),
		Vouchers:     voucher.NewLedger(),
		Customers:    customers.NewStore(),
		Kafka:        publisher,
		Notifier:     notification.NewClient(cfg.Notification, log),
		Reservations: rediswrap.NewTracker(redisClient, log),
		Templates:    notification.DefaultTemplates(),
	}, cfg, log)

	webhookHandler := handler.NewWebhookHandler(finalizer, stripeClient, log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	webhookHandler.RegisterRoutes(r)

	port := os.Getenv("SETTLEMENT_PORT")
	if port == "" {
		port = ":8085"
	}

	server := &http.Server{
		Addr:    port,
		Handler: r,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Settlement Service running on %s", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Settlement Service shutdown complete")
	}
}
