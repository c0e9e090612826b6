package models

import (
	"encoding/json"
	"time"
)

// EventType тип события в журнале платежей
type EventType string

const (
	EventCreated   EventType = "created"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventExpired   EventType = "expired"
	EventCallback  EventType = "callback" // прочие уведомления провайдера
)

// PaymentEvent запись журнала платежей. Только добавление.
type PaymentEvent struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	Provider  string          `json:"provider"`
	EventType EventType       `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
