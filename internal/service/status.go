package service

import (
	"context"
	"errors"
	"time"

	"github.com/naturemedica/commerce/internal/domain"
	"github.com/naturemedica/commerce/internal/notify"
	"github.com/naturemedica/commerce/internal/store"
	"github.com/naturemedica/commerce/internal/telemetry"

	"go.uber.org/zap"
)

// statusRetries bounds compare-and-set retries when concurrent writers move
// the same order.
const statusRetries = 3

// StatusService applies order status transitions through the state machine
// and keeps the history log strictly sequential.
type StatusService struct {
	repo     store.OrderRepository
	notifier notify.Notifier
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewStatusService creates a status service.
func NewStatusService(repo store.OrderRepository, notifier notify.Notifier, metrics *telemetry.Metrics, logger *zap.Logger) *StatusService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &StatusService{
		repo:     repo,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// UpdateOrderStatus transitions an order to newStatus with an optional note.
// Illegal edges are rejected with a state error and the order is left
// unchanged. The write is a compare-and-set on the current status, retried a
// bounded number of times under concurrent movement.
func (s *StatusService) UpdateOrderStatus(ctx context.Context, orderID string, newStatus domain.OrderStatus, note string) (*domain.Order, error) {
	return s.transition(ctx, orderID, newStatus, note)
}

// CancelOrder cancels an order with a mandatory reason. The reason check
// lives in the state machine, the single chokepoint all cancellation paths
// share.
func (s *StatusService) CancelOrder(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	order, err := s.transition(ctx, orderID, domain.StatusCancelled, reason)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.OrdersCancelled.Inc()
	}
	return order, nil
}

func (s *StatusService) transition(ctx context.Context, orderID string, newStatus domain.OrderStatus, note string) (*domain.Order, error) {
	var lastErr error

	for attempt := 0; attempt < statusRetries; attempt++ {
		order, err := s.repo.FindByOrderID(ctx, orderID)
		if err != nil {
			return nil, err
		}

		previous := order.Status
		if err := order.Transition(newStatus, note, s.now()); err != nil {
			return nil, err
		}
		entry := order.StatusHistory[len(order.StatusHistory)-1]

		err = s.repo.AppendStatus(ctx, orderID, previous, entry)
		if errors.Is(err, store.ErrStatusConflict) {
			// Someone else moved the order; re-read and re-validate the edge.
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}

		if s.metrics != nil {
			s.metrics.StatusTransitions.WithLabelValues(string(previous), string(newStatus)).Inc()
		}
		s.logger.Info("order status updated",
			zap.String("order_id", orderID),
			zap.String("from", string(previous)),
			zap.String("to", string(newStatus)),
		)

		s.notifyTransition(ctx, order, newStatus, note)
		return order, nil
	}

	return nil, lastErr
}

func (s *StatusService) notifyTransition(ctx context.Context, order *domain.Order, newStatus domain.OrderStatus, note string) {
	var kind string
	switch newStatus {
	case domain.StatusShipped:
		kind = notify.EventShipped
	case domain.StatusDelivered:
		kind = notify.EventDelivered
	case domain.StatusCancelled:
		kind = notify.EventCancelled
	default:
		return
	}

	event := notify.NewEvent(kind, order)
	if kind == notify.EventCancelled {
		event.Reason = note
	}

	if err := s.notifier.Notify(ctx, event); err != nil {
		if s.metrics != nil {
			s.metrics.NotificationsFailed.WithLabelValues(kind).Inc()
		}
		s.logger.Error("notification dispatch failed",
			zap.String("kind", kind),
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
		return
	}
	if s.metrics != nil {
		s.metrics.NotificationsSent.WithLabelValues(kind).Inc()
	}
}
