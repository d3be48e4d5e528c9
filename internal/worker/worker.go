package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront-api/internal/broker"
	"storefront-api/internal/models"
	"storefront-api/internal/util"

	"go.uber.org/zap"
)

// HistoryStore persists order history entries.
type HistoryStore interface {
	AppendOrderEvent(ctx context.Context, event models.OrderEvent) (bool, error)
}

// OrderEventWorker records every order event from Kafka into the order history
type OrderEventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	history      HistoryStore
	logger       *zap.Logger
}

// NewOrderEventWorker creates a new order event worker
func NewOrderEventWorker(consumer *broker.Consumer, history HistoryStore) *OrderEventWorker {
	w := &OrderEventWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		history:      history,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnOrderCreated(func(ctx context.Context, e *models.OrderCreatedEvent) error {
		return w.record(ctx, e.BaseEvent, e)
	})
	w.eventHandler.OnOrderCancelled(func(ctx context.Context, e *models.OrderCancelledEvent) error {
		return w.record(ctx, e.BaseEvent, e)
	})
	w.eventHandler.OnOrderStatusUpdated(func(ctx context.Context, e *models.OrderStatusUpdatedEvent) error {
		return w.record(ctx, e.BaseEvent, e)
	})

	return w
}

// Start consumes until ctx is cancelled
func (w *OrderEventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order event worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OrderEventWorker) Stop() error {
	w.logger.Info("Stopping order event worker")
	return w.consumer.Close()
}

// record appends one event. Redelivered events are recognised by id and skipped.
func (w *OrderEventWorker) record(ctx context.Context, base models.BaseEvent, event interface{}) error {
	if base.EventID == "" || base.OrderID == 0 {
		util.OrderEventsRecorded.WithLabelValues(base.EventType, "invalid").Inc()
		w.logger.Warn("Dropping order event without id", zap.String("type", base.EventType))
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	createdAt := base.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	inserted, err := w.history.AppendOrderEvent(ctx, models.OrderEvent{
		EventID:   base.EventID,
		OrderID:   base.OrderID,
		EventType: base.EventType,
		Payload:   payload,
		CreatedAt: createdAt,
	})
	if err != nil {
		util.OrderEventsRecorded.WithLabelValues(base.EventType, "error").Inc()
		return err
	}

	if !inserted {
		util.OrderEventsRecorded.WithLabelValues(base.EventType, "duplicate").Inc()
		w.logger.Debug("Order event already recorded", zap.String("event_id", base.EventID))
		return nil
	}

	util.OrderEventsRecorded.WithLabelValues(base.EventType, "recorded").Inc()
	w.logger.Info("Order event recorded",
		zap.String("event_id", base.EventID),
		zap.String("type", base.EventType),
		zap.Int64("order_id", base.OrderID))
	return nil
}
