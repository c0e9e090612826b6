package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/linemk/crypto-shop/internal/domain/models"
	"github.com/segmentio/kafka-go"
)

// Publisher рассылает записи журнала платежей внешним потребителям.
type Publisher interface {
	Publish(ctx context.Context, event *models.PaymentEvent) error
	Close() error
}

// Message конверт события в топике
type Message struct {
	EventID   string           `json:"eventId"`
	OrderID   int64            `json:"orderId"`
	Provider  string           `json:"provider"`
	EventType models.EventType `json:"eventType"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	log *slog.Logger
	w   messageWriter
}

// NewKafkaPublisher пишет асинхронно: ошибки доставки только логируются.
// Ключ сообщения - id заказа, события одного заказа попадают в одну партицию.
func NewKafkaPublisher(log *slog.Logger, brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error("failed to deliver payment events",
					slog.String("topic", topic), slog.Int("count", len(messages)), slog.Any("error", err))
			}
		},
	}
	return newKafkaPublisher(log, w)
}

func newKafkaPublisher(log *slog.Logger, w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{log: log, w: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event *models.PaymentEvent) error {
	const op = "eventbus.KafkaPublisher.Publish"

	msg := Message{
		EventID:   uuid.NewString(),
		OrderID:   event.OrderID,
		Provider:  event.Provider,
		EventType: event.EventType,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal event: %w", op, err)
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(event.OrderID, 10)),
		Value: value,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.EventType)},
			{Key: "event-id", Value: []byte(msg.EventID)},
		},
	})
	if err != nil {
		return fmt.Errorf("%s: failed to write message: %w", op, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// NoopPublisher используется, когда kafka выключена
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *models.PaymentEvent) error { return nil }
func (NoopPublisher) Close() error                                        { return nil }
