package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/dealshop/internal/identity"
	"github.com/example/dealshop/internal/platform/store/mocks"
)

func newTestPaymentService() (*Service, *mocks.MockDocumentStore) {
	docs := mocks.NewMockDocumentStore()
	who := identity.Static{Identity: identity.Identity{ID: "user-123", Email: "u@example.com"}}
	return NewService(docs, who), docs
}

// ============================================
// Card Type Detection Tests
// ============================================

func TestDetectCardType(t *testing.T) {
	tests := []struct {
		name       string
		cardNumber string
		expected   string
	}{
		{"visa", "4111111111111111", "visa"},
		{"mastercard 51", "5105105105105100", "mastercard"},
		{"mastercard 55", "5555555555554444", "mastercard"},
		{"amex 34", "340000000000009", "amex"},
		{"amex 37", "378282246310005", "amex"},
		{"discover 6011", "6011111111111117", "discover"},
		{"discover 65", "6500000000000002", "discover"},
		{"unknown prefix", "9999999999999999", "unknown"},
		{"mastercard out of range", "5605105105105100", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectCardType(tt.cardNumber))
		})
	}
}

// ============================================
// Add Tests
// ============================================

func TestService_Add_StoresLast4Only(t *testing.T) {
	service, docs := newTestPaymentService()
	ctx := context.Background()

	m, err := service.Add(ctx, AddInput{
		CardholderName: "Test User",
		CardNumber:     "4111111111111111",
		ExpiryMonth:    12,
		ExpiryYear:     2028,
	})

	require.NoError(t, err)
	assert.Equal(t, "1111", m.Last4)
	assert.Equal(t, "visa", m.CardType)
	assert.Equal(t, "user-123", m.UserID)

	// The full PAN never reaches the store
	require.Len(t, docs.CreateCalls, 1)
	doc, ok := docs.CreateCalls[0].Doc.(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, doc, "card_number")
	assert.Equal(t, "1111", doc["last4"])
}

func TestService_Add_Validation(t *testing.T) {
	service, docs := newTestPaymentService()
	ctx := context.Background()

	_, err := service.Add(ctx, AddInput{CardNumber: "4111111111111111"})
	assert.ErrorIs(t, err, ErrCardholderNeeded)

	_, err = service.Add(ctx, AddInput{CardholderName: "Test User", CardNumber: "411"})
	assert.ErrorIs(t, err, ErrCardNumberShort)

	assert.Zero(t, docs.WriteCount())
}

func TestService_Add_Unauthenticated(t *testing.T) {
	docs := mocks.NewMockDocumentStore()
	service := NewService(docs, identity.None{})

	_, err := service.Add(context.Background(), AddInput{
		CardholderName: "Test User",
		CardNumber:     "4111111111111111",
	})

	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
	assert.Zero(t, docs.CallCount())
}

// ============================================
// List / Remove Tests
// ============================================

func TestService_List_OnlyOwnMethods(t *testing.T) {
	service, docs := newTestPaymentService()
	ctx := context.Background()

	_, err := service.Add(ctx, AddInput{CardholderName: "Test User", CardNumber: "4111111111111111"})
	require.NoError(t, err)
	docs.Seed("paymentMethods", "other-method", Method{ID: "other-method", UserID: "someone-else", Last4: "0005"})

	methods, err := service.List(ctx)

	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, "user-123", methods[0].UserID)
}

func TestService_Remove(t *testing.T) {
	service, _ := newTestPaymentService()
	ctx := context.Background()

	m, err := service.Add(ctx, AddInput{CardholderName: "Test User", CardNumber: "4111111111111111"})
	require.NoError(t, err)

	require.NoError(t, service.Remove(ctx, m.ID))

	methods, err := service.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, methods)
}

func TestService_Remove_OtherUsersMethod(t *testing.T) {
	service, docs := newTestPaymentService()
	ctx := context.Background()
	docs.Seed("paymentMethods", "other-method", Method{ID: "other-method", UserID: "someone-else"})

	err := service.Remove(ctx, "other-method")

	assert.ErrorIs(t, err, ErrNotMethodOwner)
	assert.Empty(t, docs.DeleteCalls)
}

func TestService_Remove_NotFound(t *testing.T) {
	service, _ := newTestPaymentService()

	err := service.Remove(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrMethodNotFound)
}

// ============================================
// SetDefault Tests
// ============================================

func TestService_SetDefault_FlipsAllInOneBatch(t *testing.T) {
	service, docs := newTestPaymentService()
	ctx := context.Background()

	first, err := service.Add(ctx, AddInput{CardholderName: "Test User", CardNumber: "4111111111111111", IsDefault: true})
	require.NoError(t, err)
	second, err := service.Add(ctx, AddInput{CardholderName: "Test User", CardNumber: "5105105105105100"})
	require.NoError(t, err)

	require.NoError(t, service.SetDefault(ctx, second.ID))

	// One transaction covering both methods
	require.Len(t, docs.TransactCalls, 1)
	assert.Len(t, docs.TransactCalls[0], 2)

	var m1, m2 Method
	require.NoError(t, docs.Peek("paymentMethods", first.ID, &m1))
	require.NoError(t, docs.Peek("paymentMethods", second.ID, &m2))
	assert.False(t, m1.IsDefault)
	assert.True(t, m2.IsDefault)
}
