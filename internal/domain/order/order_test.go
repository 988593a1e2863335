package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(t *testing.T) *Order {
	o, err := New("user-1", 2000, "USD", []Item{
		{ProductID: "p1", Name: "Widget", Quantity: 2, Price: 1000},
	}, "paypal", "PP-123", nil)
	require.NoError(t, err)
	return o
}

// ============================================
// Construction Tests
// ============================================

func TestNew_Success(t *testing.T) {
	o := newTestOrder(t)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "user-1", o.UserID)
	assert.Equal(t, int64(2000), o.Amount)
	assert.Equal(t, "USD", o.Currency)
	assert.Equal(t, "PP-123", o.PayPalOrderID)
	assert.Equal(t, StatusCreated, o.Status)
	assert.WithinDuration(t, time.Now(), o.CreatedAt, time.Second)
}

func TestNew_UniqueIDs(t *testing.T) {
	o1 := newTestOrder(t)
	o2 := newTestOrder(t)
	assert.NotEqual(t, o1.ID, o2.ID)
}

func TestNew_InvalidAmount(t *testing.T) {
	for _, amount := range []int64{0, -100} {
		o, err := New("user-1", amount, "USD", nil, "paypal", "PP-123", nil)
		assert.Nil(t, o)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
}

func TestNew_MissingPayPalOrderID(t *testing.T) {
	o, err := New("user-1", 2000, "USD", nil, "paypal", "", nil)
	assert.Nil(t, o)
	assert.ErrorIs(t, err, ErrMissingPayPalOrder)
}

// ============================================
// Transition Tests
// ============================================

func TestTransitionTo_ValidPaths(t *testing.T) {
	tests := []struct {
		name string
		path []Status
	}{
		{"created to completed", []Status{StatusCompleted}},
		{"created to failed", []Status{StatusFailed}},
		{"created via approved to completed", []Status{StatusApproved, StatusCompleted}},
		{"created via approved to failed", []Status{StatusApproved, StatusFailed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrder(t)
			for _, target := range tt.path {
				require.NoError(t, o.TransitionTo(target))
				assert.Equal(t, target, o.Status)
			}
		})
	}
}

func TestTransitionTo_TerminalStatesAreFinal(t *testing.T) {
	completed := newTestOrder(t)
	require.NoError(t, completed.TransitionTo(StatusCompleted))

	err := completed.TransitionTo(StatusFailed)
	assert.ErrorIs(t, err, ErrOrderCompleted)
	assert.Equal(t, StatusCompleted, completed.Status)

	failed := newTestOrder(t)
	require.NoError(t, failed.TransitionTo(StatusFailed))

	err = failed.TransitionTo(StatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, StatusFailed, failed.Status)
}

func TestTransitionTo_NoBackwardMoves(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.TransitionTo(StatusApproved))

	err := o.TransitionTo(StatusCreated)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCanTransitionTo(t *testing.T) {
	o := newTestOrder(t)

	assert.True(t, o.CanTransitionTo(StatusApproved))
	assert.True(t, o.CanTransitionTo(StatusCompleted))
	assert.True(t, o.CanTransitionTo(StatusFailed))
	assert.False(t, o.CanTransitionTo(StatusCreated))
}

// ============================================
// Total Tests
// ============================================

func TestTotal_FromItems(t *testing.T) {
	o, err := New("user-1", 9999, "USD", []Item{
		{ProductID: "p1", Quantity: 2, Price: 1000},
		{ProductID: "p2", Quantity: 1, Price: 550},
	}, "paypal", "PP-123", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2550), o.Total())
}

func TestTotal_FallsBackToAmount(t *testing.T) {
	o, err := New("user-1", 2000, "USD", nil, "paypal", "PP-123", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2000), o.Total())
}
