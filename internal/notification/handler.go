package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/example/dealshop/internal/analytics"
	"github.com/example/dealshop/internal/domain/order"
	"github.com/example/dealshop/internal/email"
	"github.com/example/dealshop/internal/platform/store"
)

// Handler processes analytics events for sending notifications
type Handler struct {
	emailService *email.Service
	store        store.DocumentStore
}

// NewHandler creates a new notification handler
func NewHandler(emailSvc *email.Service, docs store.DocumentStore) *Handler {
	return &Handler{
		emailService: emailSvc,
		store:        docs,
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event analytics.Event
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	// Only purchases trigger an email
	if event.Name == order.EventPurchase {
		return h.handlePurchase(ctx, event)
	}

	return nil
}

func (h *Handler) handlePurchase(ctx context.Context, event analytics.Event) error {
	orderID, _ := event.Properties["transaction_id"].(string)
	if orderID == "" {
		log.Printf("[Notifier] Purchase event without transaction_id, skipping")
		return nil
	}

	log.Printf("[Notifier] Processing purchase event for order %s", orderID)

	var o order.Order
	if err := h.store.Get(ctx, "orders", orderID, &o); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("[Notifier] Order not found: %s", orderID)
			return nil
		}
		log.Printf("[Notifier] Error loading order %s: %v", orderID, err)
		return err
	}

	if o.UserEmail == "" {
		log.Printf("[Notifier] Order %s has no email on record, skipping", orderID)
		return nil
	}

	emailItems := make([]email.OrderItem, len(o.Items))
	for i, item := range o.Items {
		emailItems[i] = email.OrderItem{
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    item.Price,
		}
	}

	if err := h.emailService.SendOrderConfirmation(o.UserEmail, orderID, o.TotalAmount, emailItems); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", o.UserEmail, err)
		return err
	}

	log.Printf("[Notifier] Order confirmation email sent to %s for order %s", o.UserEmail, orderID)
	return nil
}
