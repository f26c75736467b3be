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

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-booking/internal/auth"
	"ms-booking/internal/checkout"
	"ms-booking/internal/checkout/checkout_api"
	"ms-booking/internal/checkout/db"
	rediswrap "ms-booking/internal/checkout/redis"
	"ms-booking/internal/config"
	"ms-booking/internal/customers"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/gateway"
	"ms-booking/internal/inventory"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/notification"
	"ms-booking/internal/settlement"
	"ms-booking/internal/voucher"
)

// subscribeReservationExpiry sweeps pending bookings whose Redis reservation
// marker expired without the gateway reporting an outcome. The expired webhook
// stays authoritative; this is the local fallback, and ExpireBooking is a
// no-op on anything already terminal.
func subscribeReservationExpiry(rdb *redis.Client, finalizer *settlement.Finalizer, log *logger.Logger) {
	ctx := context.Background()

	pubsub := rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	log.Info("REDIS", fmt.Sprintf("Subscribed to Redis keyevent expired notifications (DB %d)", rdb.Options().DB))

	go func() {
		for msg := range pubsub.Channel() {
			bookingID, ok := rediswrap.BookingIDFromExpiredKey(msg.Payload)
			if !ok {
				continue
			}
			log.Info("RESERVATION", fmt.Sprintf("Reservation marker expired for booking %s, sweeping", bookingID))
			if err := finalizer.ExpireBooking(ctx, bookingID); err != nil {
				log.Error("RESERVATION", fmt.Sprintf("Failed to expire booking %s: %v", bookingID, err))
			}
		}
	}()
}

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}

	_, err = redisClient.ConfigSet(ctx, "notify-keyspace-events", "Ex").Result()
	if err != nil {
		log.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
	} else {
		log.Info("REDIS", "Keyspace notifications enabled for expired events")
	}

	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return bunDB, redisClient
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	log.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	migrateOpts := migrations.DefaultOptions()
	if migrateOpts.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrateOpts)
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		if err := runner.Close(); err != nil {
			log.Warn("DATABASE", fmt.Sprintf("Failed to close migrator: %v", err))
		}
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		log.Info("KAFKA", fmt.Sprintf("Using Kafka brokers: %v", cfg.Kafka.Brokers))
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()

		requiredTopics := []string{
			cfg.Kafka.Topics.BookingSettled,
			cfg.Kafka.Topics.BookingFailed,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, settlement events will not be published")
	}

	stripeClient, err := gateway.NewClient(cfg.Stripe, log)
	if err != nil {
		log.Fatal("GATEWAY", fmt.Sprintf("Failed to initialize payment gateway: %v", err))
	}

	bookingDB := &db.DB{Bun: bunDB}
	tracker := rediswrap.NewTracker(redisClient, log)
	notifier := notification.NewClient(cfg.Notification, log)
	templates := notification.DefaultTemplates()

	var publisher checkout.Publisher
	var finalizerPublisher settlement.Publisher
	if producer != nil {
		publisher = producer
		finalizerPublisher = producer
	}

	checkoutService := checkout.NewService(checkout.Deps{
		DB:           bookingDB,
		Inventory:    inventory.NewStore(),
		Vouchers:     voucher.NewLedger(),
		Customers:    customers.NewStore(),
		Gateway:      stripeClient,
		Kafka:        publisher,
		Notifier:     notifier,
		Reservations: tracker,
		Templates:    templates,
	}, cfg, log)

	finalizer := settlement.NewFinalizer(settlement.Deps{
		DB:           bookingDB,
		Inventory:    inventory.NewStore(),
		Vouchers:     voucher.NewLedger(),
		Customers:    customers.NewStore(),
		Kafka:        finalizerPublisher,
		Notifier:     notifier,
		Reservations: tracker,
		Templates:    templates,
	}, cfg, log)

	handler := &checkout_api.Handler{
		CheckoutService: checkoutService,
		Logger:          log,
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes ---
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		log.Info("AUTH", "OIDC middleware applied to protected API routes")

		r.Route("/api", func(r chi.Router) {
			r.Post("/checkout", handler.PlaceBooking)
			r.Post("/voucher/validate", handler.ValidateVoucher)
			r.Get("/booking/{bookingId}", handler.GetBooking)
		})
		log.Info("ROUTER", "Checkout routes registered under /api")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Info("REDIS", "Starting reservation expiry subscription")
	subscribeReservationExpiry(redisClient, finalizer, log)

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Booking Service shutdown complete")
	}
}
