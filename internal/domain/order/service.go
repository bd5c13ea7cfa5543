package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/example/dealshop/internal/analytics"
	"github.com/example/dealshop/internal/domain/cart"
	"github.com/example/dealshop/internal/identity"
	"github.com/example/dealshop/internal/platform/store"
)

const (
	ordersCollection = "orders"

	// EventPurchase is the analytics event emitted when an order is created.
	EventPurchase = "purchase"

	// PaymentMethodKlarna is the single supported payment provider tag.
	PaymentMethodKlarna = "klarna"

	// Currency reported on purchase events.
	Currency = "GBP"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusCancelled Status = "cancelled"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrEmptyCart      = errors.New("cart is empty")
	ErrTotalMismatch  = errors.New("order total does not match cart contents")
	ErrInvalidStatus  = errors.New("invalid order status transition")
	ErrOrderShipped   = errors.New("cannot cancel shipped order")
	ErrOrderCancelled = errors.New("order is already cancelled")
	ErrNotOrderOwner  = errors.New("order belongs to another user")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusCancelled},
	StatusShipped:   {}, // terminal state
	StatusCancelled: {}, // terminal state
}

// Order is an immutable snapshot of a cart plus total, created at
// checkout. Only Status and UpdatedAt change after creation.
type Order struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	UserEmail     string      `json:"user_email"`
	Items         []cart.Item `json:"items"`
	TotalAmount   float64     `json:"total_amount"`
	Status        Status      `json:"status"`
	PaymentMethod string      `json:"payment_method"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// transitionError returns an appropriate error for an invalid transition
func (o *Order) transitionError(target Status) error {
	switch {
	case o.Status == StatusCancelled:
		return ErrOrderCancelled
	case o.Status == StatusShipped && target == StatusCancelled:
		return ErrOrderShipped
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
	}
}

// Service turns an accumulated cart into an order record and empties the
// originating cart in the same store transaction.
type Service struct {
	store     store.DocumentStore
	identity  identity.Provider
	analytics analytics.Sink
	carts     *cart.Service
}

func NewService(ds store.DocumentStore, ip identity.Provider, sink analytics.Sink, carts *cart.Service) *Service {
	return &Service{store: ds, identity: ip, analytics: sink, carts: carts}
}

// totalTolerance absorbs float rounding between the client-computed and
// recomputed totals.
const totalTolerance = 0.005

// Create snapshots the caller's cart into a new pending order and clears
// the cart atomically: if the order write fails the cart is untouched,
// and a created order never leaves stale items behind. The caller's
// total is validated against the cart contents, never trusted.
func (s *Service) Create(ctx context.Context, totalAmount float64) (string, error) {
	user, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return "", err
	}

	items, err := s.carts.Load(ctx)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", ErrEmptyCart
	}

	computed := 0.0
	for _, item := range items {
		computed += item.Price * float64(item.Quantity)
	}
	if math.Abs(computed-totalAmount) > totalTolerance {
		return "", fmt.Errorf("%w: got %.2f, cart totals %.2f", ErrTotalMismatch, totalAmount, computed)
	}

	orderID := uuid.New().String()
	doc := store.Doc(Order{
		ID:            orderID,
		UserID:        user.ID,
		UserEmail:     user.Email,
		Items:         items,
		TotalAmount:   totalAmount,
		Status:        StatusPending,
		PaymentMethod: PaymentMethodKlarna,
	})
	// Creation time comes from the store's clock, not ours.
	doc["created_at"] = store.ServerTimestamp
	doc["updated_at"] = store.ServerTimestamp

	ops := append([]store.Op{{
		Kind:       store.OpSet,
		Collection: ordersCollection,
		ID:         orderID,
		Doc:        doc,
	}}, cart.ClearOps(user.ID)...)

	if err := s.store.Transact(ctx, ops); err != nil {
		return "", fmt.Errorf("failed to create order: %w", err)
	}

	s.analytics.LogEvent(ctx, EventPurchase, map[string]any{
		"transaction_id": orderID,
		"value":          totalAmount,
		"currency":       Currency,
	})

	return orderID, nil
}

// Get returns one of the caller's orders. Another user's order reads as
// ErrNotOrderOwner so handlers can refuse without leaking existence.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	user, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != user.ID {
		return nil, ErrNotOrderOwner
	}
	return o, nil
}

// ListByUser returns the caller's orders, newest first.
func (s *Service) ListByUser(ctx context.Context) ([]Order, error) {
	user, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	var orders []Order
	err = s.store.Query(ctx, ordersCollection, store.Query{
		Filters: []store.Filter{{Field: "user_id", Value: user.ID}},
		OrderBy: "created_at",
		Desc:    true,
	}, &orders)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// Pay marks a pending order as paid.
func (s *Service) Pay(ctx context.Context, orderID string) error {
	return s.transition(ctx, orderID, StatusPaid)
}

// Ship marks a paid order as shipped.
func (s *Service) Ship(ctx context.Context, orderID string) error {
	return s.transition(ctx, orderID, StatusShipped)
}

// Cancel cancels a pending or paid order.
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	return s.transition(ctx, orderID, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, orderID string, target Status) error {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if !o.CanTransitionTo(target) {
		return o.transitionError(target)
	}

	err = s.store.UpdateFields(ctx, ordersCollection, orderID, map[string]any{
		"status":     target,
		"updated_at": store.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

func (s *Service) load(ctx context.Context, orderID string) (*Order, error) {
	var o Order
	err := s.store.Get(ctx, ordersCollection, orderID, &o)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &o, nil
}
