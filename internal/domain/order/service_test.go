package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/dealshop/internal/analytics"
	"github.com/example/dealshop/internal/domain/cart"
	"github.com/example/dealshop/internal/identity"
	"github.com/example/dealshop/internal/platform/store/mocks"
)

func newTestOrderService() (*Service, *mocks.MockDocumentStore, *analytics.Capture) {
	docs := mocks.NewMockDocumentStore()
	sink := &analytics.Capture{}
	who := identity.Static{Identity: identity.Identity{ID: "user-123", Email: "u@example.com", Name: "Test User"}}
	carts := cart.NewService(docs, who, analytics.Nop{})
	service := NewService(docs, who, sink, carts)
	return service, docs, sink
}

func seedCart(docs *mocks.MockDocumentStore, userID string, items []cart.Item) {
	docs.Seed("users", userID, map[string]any{
		"email": "u@example.com",
		"cart":  items,
	})
}

func twoItemCart() []cart.Item {
	return []cart.Item{
		{Name: "Widget", Price: 9.99, Quantity: 2},
		{Name: "Gadget", Price: 24.50, Quantity: 1},
	}
}

const twoItemTotal = 9.99*2 + 24.50

// ============================================
// Create Tests
// ============================================

func TestService_Create_Success(t *testing.T) {
	service, docs, sink := newTestOrderService()
	ctx := context.Background()
	seedCart(docs, "user-123", twoItemCart())

	orderID, err := service.Create(ctx, twoItemTotal)

	require.NoError(t, err)
	require.NotEmpty(t, orderID)

	// Order and cart clear go through one transaction
	require.Len(t, docs.TransactCalls, 1)
	ops := docs.TransactCalls[0]
	require.Len(t, ops, 2)
	assert.Equal(t, "orders", ops[0].Collection)
	assert.Equal(t, orderID, ops[0].ID)
	assert.Equal(t, "users", ops[1].Collection)
	assert.Equal(t, "user-123", ops[1].ID)

	// The persisted order carries the cart snapshot
	var o Order
	require.NoError(t, docs.Peek("orders", orderID, &o))
	assert.Equal(t, "user-123", o.UserID)
	assert.Equal(t, "u@example.com", o.UserEmail)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentMethodKlarna, o.PaymentMethod)
	assert.Len(t, o.Items, 2)
	assert.InDelta(t, twoItemTotal, o.TotalAmount, 0.001)
	assert.False(t, o.CreatedAt.IsZero())

	// Cart emptied by the same commit
	var user struct {
		Cart []cart.Item `json:"cart"`
	}
	require.NoError(t, docs.Peek("users", "user-123", &user))
	assert.Empty(t, user.Cart)

	// Purchase analytics event
	events := sink.Named(EventPurchase)
	require.Len(t, events, 1)
	assert.Equal(t, orderID, events[0].Properties["transaction_id"])
	assert.Equal(t, twoItemTotal, events[0].Properties["value"])
	assert.Equal(t, Currency, events[0].Properties["currency"])
}

func TestService_Create_EmptyCart(t *testing.T) {
	service, docs, sink := newTestOrderService()
	ctx := context.Background()
	seedCart(docs, "user-123", nil)

	_, err := service.Create(ctx, 0)

	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, docs.WriteCount())
	assert.Empty(t, sink.Events)
}

func TestService_Create_TotalMismatch(t *testing.T) {
	service, docs, sink := newTestOrderService()
	ctx := context.Background()
	seedCart(docs, "user-123", twoItemCart())

	_, err := service.Create(ctx, twoItemTotal+5)

	assert.ErrorIs(t, err, ErrTotalMismatch)
	assert.Zero(t, docs.WriteCount())
	assert.Empty(t, sink.Events)
}

func TestService_Create_TotalWithinTolerance(t *testing.T) {
	service, docs, _ := newTestOrderService()
	ctx := context.Background()
	seedCart(docs, "user-123", twoItemCart())

	// Float rounding on the client side must not reject the checkout
	_, err := service.Create(ctx, twoItemTotal+0.004)

	require.NoError(t, err)
}

func TestService_Create_Unauthenticated(t *testing.T) {
	docs := mocks.NewMockDocumentStore()
	sink := &analytics.Capture{}
	carts := cart.NewService(docs, identity.None{}, analytics.Nop{})
	service := NewService(docs, identity.None{}, sink, carts)

	_, err := service.Create(context.Background(), 10)

	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
	assert.Zero(t, docs.CallCount())
}

func TestService_Create_StoreFailureLeavesCartIntact(t *testing.T) {
	service, docs, sink := newTestOrderService()
	ctx := context.Background()
	seedCart(docs, "user-123", twoItemCart())
	docs.TransactErr = assert.AnError

	_, err := service.Create(ctx, twoItemTotal)

	assert.Error(t, err)
	assert.Empty(t, sink.Events)

	// The failed transaction must not have cleared the cart
	var user struct {
		Cart []cart.Item `json:"cart"`
	}
	require.NoError(t, docs.Peek("users", "user-123", &user))
	assert.Len(t, user.Cart, 2)
}

// ============================================
// Get / List Tests
// ============================================

func TestService_Get_Success(t *testing.T) {
	service, docs, _ := newTestOrderService()
	ctx := context.Background()
	seedCart(docs, "user-123", twoItemCart())

	orderID, err := service.Create(ctx, twoItemTotal)
	require.NoError(t, err)

	o, err := service.Get(ctx, orderID)

	require.NoError(t, err)
	assert.Equal(t, orderID, o.ID)
	assert.Equal(t, StatusPending, o.Status)
}

func TestService_Get_NotFound(t *testing.T) {
	service, _, _ := newTestOrderService()

	_, err := service.Get(context.Background(), "no-such-order")

	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestService_Get_OtherUsersOrder(t *testing.T) {
	service, docs, _ := newTestOrderService()
	ctx := context.Background()
	docs.Seed("orders", "order-1", Order{
		ID:     "order-1",
		UserID: "someone-else",
		Status: StatusPending,
	})

	_, err := service.Get(ctx, "order-1")

	assert.ErrorIs(t, err, ErrNotOrderOwner)
}

func TestService_ListByUser(t *testing.T) {
	service, docs, _ := newTestOrderService()
	ctx := context.Background()

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	docs.Seed("orders", "order-old", Order{ID: "order-old", UserID: "user-123", CreatedAt: older})
	docs.Seed("orders", "order-new", Order{ID: "order-new", UserID: "user-123", CreatedAt: newer})
	docs.Seed("orders", "order-other", Order{ID: "order-other", UserID: "someone-else", CreatedAt: newer})

	orders, err := service.ListByUser(ctx)

	require.NoError(t, err)
	require.Len(t, orders, 2)
	// Newest first
	assert.Equal(t, "order-new", orders[0].ID)
	assert.Equal(t, "order-old", orders[1].ID)
}

// ============================================
// Status Transition Tests
// ============================================

func TestOrder_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"pending to paid", StatusPending, StatusPaid, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to shipped", StatusPending, StatusShipped, false},
		{"paid to shipped", StatusPaid, StatusShipped, true},
		{"paid to cancelled", StatusPaid, StatusCancelled, true},
		{"shipped is terminal", StatusShipped, StatusCancelled, false},
		{"cancelled is terminal", StatusCancelled, StatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{Status: tt.from}
			assert.Equal(t, tt.allowed, o.CanTransitionTo(tt.to))
		})
	}
}

func TestService_Pay(t *testing.T) {
	service, docs, _ := newTestOrderService()
	ctx := context.Background()
	seedCart(docs, "user-123", twoItemCart())

	orderID, err := service.Create(ctx, twoItemTotal)
	require.NoError(t, err)

	require.NoError(t, service.Pay(ctx, orderID))

	var o Order
	require.NoError(t, docs.Peek("orders", orderID, &o))
	assert.Equal(t, StatusPaid, o.Status)
}

func TestService_Cancel_ShippedOrder(t *testing.T) {
	service, docs, _ := newTestOrderService()
	ctx := context.Background()
	docs.Seed("orders", "order-1", Order{ID: "order-1", UserID: "user-123", Status: StatusShipped})

	err := service.Cancel(ctx, "order-1")

	assert.ErrorIs(t, err, ErrOrderShipped)
}

func TestService_Pay_CancelledOrder(t *testing.T) {
	service, docs, _ := newTestOrderService()
	ctx := context.Background()
	docs.Seed("orders", "order-1", Order{ID: "order-1", UserID: "user-123", Status: StatusCancelled})

	err := service.Pay(ctx, "order-1")

	assert.ErrorIs(t, err, ErrOrderCancelled)
}

func TestService_Ship_PendingOrder(t *testing.T) {
	service, docs, _ := newTestOrderService()
	ctx := context.Background()
	docs.Seed("orders", "order-1", Order{ID: "order-1", UserID: "user-123", Status: StatusPending})

	err := service.Ship(ctx, "order-1")

	assert.ErrorIs(t, err, ErrInvalidStatus)
}
