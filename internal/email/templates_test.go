package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		name     string
		minor    int64
		currency string
		expected string
	}{
		{"zero USD", 0, "USD", "$0.00"},
		{"cents only", 50, "USD", "$0.50"},
		{"typical amount", 1050, "USD", "$10.50"},
		{"thousands grouping", 123456, "USD", "$1,234.56"},
		{"millions grouping", 123456789, "USD", "$1,234,567.89"},
		{"EUR symbol", 1050, "EUR", "€10.50"},
		{"GBP symbol", 1050, "GBP", "£10.50"},
		{"unknown currency prefix", 1050, "JPY", "JPY 10.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatMoney(tt.minor, tt.currency))
		})
	}
}

func TestGroupThousands(t *testing.T) {
	tests := []struct {
		n        int64
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{12345, "12,345"},
		{1234567, "1,234,567"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, groupThousands(tt.n))
		})
	}
}

func TestBuildOrderConfirmationBody(t *testing.T) {
	items := []OrderItem{
		{ProductID: "p1", Name: "Widget", Quantity: 2, Price: 1000},
		{ProductID: "p2", Quantity: 1, Price: 550},
	}

	body := BuildOrderConfirmationBody("order-123", 2550, "USD", items)

	assert.Contains(t, body, "order-123")
	assert.Contains(t, body, "Widget")
	// Unnamed items fall back to the product id
	assert.Contains(t, body, "p2")
	// Unit price and line subtotal
	assert.Contains(t, body, "$10.00")
	assert.Contains(t, body, "$20.00")
	// Grand total
	assert.Contains(t, body, "$25.50")
}

func TestBuildOrderConfirmationBody_NoItems(t *testing.T) {
	body := BuildOrderConfirmationBody("order-123", 2000, "USD", nil)

	assert.Contains(t, body, "order-123")
	assert.Contains(t, body, "$20.00")
}
