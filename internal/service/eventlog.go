package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/linemk/crypto-shop/internal/domain/models"
	"github.com/linemk/crypto-shop/internal/eventbus"
	"github.com/linemk/crypto-shop/internal/storage"
)

// EventLog журнал платёжных событий. Ошибки записи только логируются
// и никогда не прерывают основной сценарий.
type EventLog struct {
	log       *slog.Logger
	repo      storage.PaymentEventStorage
	publisher eventbus.Publisher
}

func NewEventLog(log *slog.Logger, repo storage.PaymentEventStorage, publisher eventbus.Publisher) *EventLog {
	if publisher == nil {
		publisher = eventbus.NoopPublisher{}
	}
	return &EventLog{log: log, repo: repo, publisher: publisher}
}

// Record добавляет событие в таблицу и публикует его в шину.
// payload - сырые байты ([]byte, json.RawMessage) или значение для json.Marshal.
func (l *EventLog) Record(ctx context.Context, orderID int64, provider string, eventType models.EventType, payload any, at time.Time) {
	const op = "service.EventLog.Record"
	logger := l.log.With(
		slog.String("op", op),
		slog.Int64("orderID", orderID),
		slog.String("eventType", string(eventType)),
	)

	raw, err := encodePayload(payload)
	if err != nil {
		logger.Error("failed to encode event payload", slog.Any("error", err))
		raw = nil
	}

	event := &models.PaymentEvent{
		OrderID:   orderID,
		Provider:  provider,
		EventType: eventType,
		Payload:   raw,
		CreatedAt: at,
	}

	id, err := l.repo.CreateEvent(ctx, event)
	if err != nil {
		logger.Error("failed to store payment event", slog.Any("error", err))
	} else {
		event.ID = id
	}

	if err := l.publisher.Publish(ctx, event); err != nil {
		logger.Error("failed to publish payment event", slog.Any("error", err))
	}
}

// History события заказа в порядке записи.
func (l *EventLog) History(ctx context.Context, orderID int64) ([]*models.PaymentEvent, error) {
	events, err := l.repo.GetEventsByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service.EventLog.History: %w", err)
	}
	return events, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		if !json.Valid(p) {
			// не JSON: сохраняем как строку
			return json.Marshal(string(p))
		}
		return p, nil
	default:
		return json.Marshal(p)
	}
}
