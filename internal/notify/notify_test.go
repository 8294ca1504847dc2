package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/naturemedica/commerce/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shippedTestEvent() Event {
	order := domain.NewOrder("NM000050",
		[]domain.OrderItem{{ProductID: "p1", Title: "Ashwagandha Capsules", Quantity: 1, UnitPricePaise: 60000}},
		domain.ShippingAddress{Name: "Asha Verma"},
		60000, 0, domain.PaymentOnline, time.Now(),
	)
	order.CustomerEmail = "asha@example.com"
	order.TrackingID = "SRAWB1"
	order.CourierName = "Xpressbees"

	return NewEvent(EventShipped, order)
}

func TestNewEvent(t *testing.T) {
	event := shippedTestEvent()

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventShipped, event.Kind)
	assert.Equal(t, "NM000050", event.OrderID)
	assert.Equal(t, "SRAWB1", event.TrackingID)
	assert.Equal(t, "asha@example.com", event.Email)
	assert.False(t, event.OccurredAt.IsZero())
}

func TestFanout_CollectsAllFailures(t *testing.T) {
	emailErr := errors.New("smtp down")
	var busCalled bool

	fanout := NewFanout(
		Func(func(ctx context.Context, event Event) error { return emailErr }),
		Func(func(ctx context.Context, event Event) error { busCalled = true; return nil }),
	)

	err := fanout.Notify(context.Background(), shippedTestEvent())
	require.Error(t, err)
	assert.ErrorIs(t, err, emailErr)
	assert.True(t, busCalled, "a failing notifier must not block the rest")
}

func TestFanout_AllHealthy(t *testing.T) {
	var calls int
	fanout := NewFanout(
		Func(func(ctx context.Context, event Event) error { calls++; return nil }),
		Func(func(ctx context.Context, event Event) error { calls++; return nil }),
	)

	require.NoError(t, fanout.Notify(context.Background(), shippedTestEvent()))
	assert.Equal(t, 2, calls)
}

func TestRenderEmail(t *testing.T) {
	event := shippedTestEvent()

	subject, body := renderEmail(event)
	assert.Contains(t, subject, "NM000050")
	assert.Contains(t, subject, "shipped")
	assert.Contains(t, body, "SRAWB1")
	assert.Contains(t, body, "Xpressbees")

	event.Kind = EventCancelled
	event.Reason = "Customer requested cancellation"
	subject, body = renderEmail(event)
	assert.Contains(t, subject, "cancelled")
	assert.Contains(t, body, "Customer requested cancellation")

	event.Kind = "order.unknown"
	subject, _ = renderEmail(event)
	assert.Empty(t, subject, "unknown kinds produce no email")
}
