package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/linemk/crypto-shop/internal/domain/models"
)

// PaymentEventStorage журнал платёжных событий. Только вставка и чтение.
type PaymentEventStorage interface {
	// CreateEvent добавляет запись в журнал.
	CreateEvent(ctx context.Context, event *models.PaymentEvent) (int64, error)
	// GetEventsByOrderID возвращает историю заказа в порядке записи.
	GetEventsByOrderID(ctx context.Context, orderID int64) ([]*models.PaymentEvent, error)
}

type paymentEventRepository struct {
	db *sql.DB
}

func NewPaymentEventRepository(db *sql.DB) PaymentEventStorage {
	return &paymentEventRepository{db: db}
}

func (r *paymentEventRepository) CreateEvent(ctx context.Context, event *models.PaymentEvent) (int64, error) {
	payload := []byte(event.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	var id int64
	query := `INSERT INTO payment_events (order_id, provider, event_type, payload, created_at)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		event.OrderID, event.Provider, string(event.EventType), string(payload), event.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create payment event: %w", err)
	}
	return id, nil
}

func (r *paymentEventRepository) GetEventsByOrderID(ctx context.Context, orderID int64) ([]*models.PaymentEvent, error) {
	query := `
		SELECT id, order_id, provider, event_type, payload, created_at
		FROM payment_events
		WHERE order_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment events: %w", err)
	}
	defer rows.Close()

	var events []*models.PaymentEvent
	for rows.Next() {
		e := &models.PaymentEvent{}
		var payload []byte
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Provider, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment event: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
