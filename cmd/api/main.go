package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/dealshop/internal/analytics"
	"github.com/example/dealshop/internal/api"
	"github.com/example/dealshop/internal/api/middleware"
	"github.com/example/dealshop/internal/auth"
	"github.com/example/dealshop/internal/domain/account"
	"github.com/example/dealshop/internal/domain/cart"
	"github.com/example/dealshop/internal/domain/order"
	"github.com/example/dealshop/internal/domain/payment"
	"github.com/example/dealshop/internal/domain/product"
	"github.com/example/dealshop/internal/email"
	"github.com/example/dealshop/internal/platform/kafka"
	"github.com/example/dealshop/internal/platform/store"
	"github.com/example/dealshop/pkg/config"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] Failed to load config: %v", err)
	}

	if cfg.JWTSecret == "" {
		log.Fatal("[API] JWT_SECRET environment variable is required")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("[API] JWT_SECRET must be at least 32 characters long")
	}

	log.Println("[API] ========================================")
	log.Println("[API] Deal Shop API")
	log.Println("[API] ========================================")
	log.Printf("[API] Store:  %s", cfg.StoreBackend)
	log.Printf("[API] Kafka:  %v", cfg.KafkaBrokers)
	log.Printf("[API] Topic:  %s", cfg.KafkaTopic)

	docs, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("[API] Failed to open document store: %v", err)
	}
	defer closeStore()

	// Analytics pipeline
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()
	sink := analytics.NewKafkaSink(producer)

	// Services
	jwtService := auth.NewJWTService(
		cfg.JWTSecret,
		15*time.Minute, // Access token expiry
		7*24*time.Hour, // Refresh token expiry (7 days)
	)
	who := middleware.ClaimsProvider{}
	mailer := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)

	cartSvc := cart.NewService(docs, who, sink)
	orderSvc := order.NewService(docs, who, sink, cartSvc)
	productSvc := product.NewService(docs)
	paymentSvc := payment.NewService(docs, who)
	accountSvc := account.NewService(docs, sink, mailer)

	// HTTP surface
	handlers := api.NewHandlers(cartSvc, orderSvc, productSvc, paymentSvc, accountSvc, sink)
	authHandlers := api.NewAuthHandlers(accountSvc, jwtService)
	router := api.NewRouter(api.RouterConfig{
		Handlers:     handlers,
		AuthHandlers: authHandlers,
		JWTService:   jwtService,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("[API] Server started on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}

// openStore builds the configured DocumentStore backend.
func openStore(ctx context.Context, cfg config.Config) (store.DocumentStore, func(), error) {
	switch cfg.StoreBackend {
	case "dynamo":
		client, err := store.NewDynamoClient(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("[API] Using DynamoDB table %s", cfg.DynamoTable)
		return store.NewDynamoStore(client, cfg.DynamoTable), func() {}, nil

	case "postgres":
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		ds, err := store.NewPostgresStore(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Println("[API] Connected to PostgreSQL")
		return ds, func() { db.Close() }, nil

	default:
		log.Println("[API] Using in-memory store (data is not persisted)")
		return store.NewMemoryStore(), func() {}, nil
	}
}
