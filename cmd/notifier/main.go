package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/dealshop/internal/email"
	"github.com/example/dealshop/internal/notification"
	"github.com/example/dealshop/internal/platform/kafka"
	"github.com/example/dealshop/internal/platform/store"
	"github.com/example/dealshop/pkg/config"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Notifier] Failed to load config: %v", err)
	}
	consumerGroup := "email-notifier" // Dedicated consumer group for email notifications

	log.Println("[Notifier] ========================================")
	log.Println("[Notifier] Deal Shop - Email Notification Service")
	log.Println("[Notifier] ========================================")
	log.Printf("[Notifier] Kafka: %v", cfg.KafkaBrokers)
	log.Printf("[Notifier] Topic: %s", cfg.KafkaTopic)
	log.Printf("[Notifier] Group: %s", consumerGroup)
	log.Printf("[Notifier] SMTP:  %s:%s", cfg.SMTPHost, cfg.SMTPPort)
	log.Printf("[Notifier] From:  %s", cfg.SMTPFrom)

	docs, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("[Notifier] Failed to open document store: %v", err)
	}
	defer closeStore()

	emailSvc := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	handler := notification.NewHandler(emailSvc, docs)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, consumerGroup)
	defer consumer.Close()

	go func() {
		log.Println("[Notifier] Starting event consumer...")
		if err := consumer.Consume(ctx, handler.HandleEvent); err != nil {
			if ctx.Err() == nil {
				log.Printf("[Notifier] Consumer error: %v", err)
			}
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Notifier] Shutting down...")
	cancel()
}

// openStore builds the configured DocumentStore backend for order lookups.
func openStore(ctx context.Context, cfg config.Config) (store.DocumentStore, func(), error) {
	switch cfg.StoreBackend {
	case "dynamo":
		client, err := store.NewDynamoClient(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
		if err != nil {
			return nil, nil, err
		}
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
		return ds, func() { db.Close() }, nil

	default:
		// The notifier cannot see the API's in-memory data.
		log.Println("[Notifier] Warning: in-memory store holds no shared data")
		return store.NewMemoryStore(), func() {}, nil
	}
}
