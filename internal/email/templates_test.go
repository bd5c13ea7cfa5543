package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildOrderConfirmationSubject(t *testing.T) {
	assert.Equal(t, "Your order order-ab is confirmed",
		BuildOrderConfirmationSubject("order-abc-123"))
	assert.Equal(t, "Your order ord-1 is confirmed",
		BuildOrderConfirmationSubject("ord-1"))
}

func TestBuildOrderConfirmationBody(t *testing.T) {
	items := []OrderItem{
		{Name: "Cordless Drill", Quantity: 2, Price: 79.99},
		{Name: "Sofa", Quantity: 1, Price: 1250},
	}

	body := BuildOrderConfirmationBody("order-abc-123", 1409.98, items)

	assert.Contains(t, body, "order-abc-123")
	assert.Contains(t, body, "Cordless Drill")
	assert.Contains(t, body, "Sofa")
	// Line subtotal for two drills
	assert.Contains(t, body, "£159.98")
	// Grand total with thousands separator
	assert.Contains(t, body, "£1,409.98")
}

func TestBuildPasswordResetBody(t *testing.T) {
	body := BuildPasswordResetBody("reset-token-xyz")

	assert.Contains(t, body, "reset-token-xyz")
	assert.Contains(t, body, "expires in one hour")
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		expected string
	}{
		{"zero", 0, "£0.00"},
		{"pence only", 0.5, "£0.50"},
		{"round pounds", 25, "£25.00"},
		{"pounds and pence", 79.99, "£79.99"},
		{"thousands", 1250.5, "£1,250.50"},
		{"millions", 1234567.89, "£1,234,567.89"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatPrice(tt.amount))
		})
	}
}
