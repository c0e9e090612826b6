package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/linemk/crypto-shop/internal/domain/models"
	"github.com/linemk/crypto-shop/internal/payment"
	"github.com/linemk/crypto-shop/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, providerName string, header http.Header, body []byte) error
}

// HandleWebhook применяет уведомление провайдера.
// До проверки подписи состояние не читается и не меняется.
// После успешной проверки возвращает nil и для неизвестных платежей,
// чтобы провайдер не повторял доставку.
func (s *OrderService) HandleWebhook(ctx context.Context, providerName string, header http.Header, body []byte) error {
	const op = "service.OrderService.HandleWebhook"
	logger := s.log.With(slog.String("op", op), slog.String("provider", providerName))

	ctx, span := s.tracer.Start(ctx, "OrderService.HandleWebhook", trace.WithAttributes(
		attribute.String("payment.provider", providerName),
	))
	defer span.End()

	id, err := payment.ParseProviderID(providerName)
	if err != nil {
		return fmt.Errorf("%s: %w: provider", op, ErrNotFound)
	}
	provider, err := s.providers.Get(id)
	if err != nil {
		return fmt.Errorf("%s: %w: provider", op, ErrNotFound)
	}

	event, err := provider.VerifyWebhook(header, body)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			logger.Warn("webhook rejected: invalid signature")
			span.SetStatus(codes.Error, "invalid signature")
			return fmt.Errorf("%s: %w", op, ErrUnauthenticated)
		}
		// подпись верна, но тело не разобрать: подтверждаем, повтор ничего не даст
		logger.Warn("malformed webhook payload", slog.Any("error", err))
		return nil
	}

	logger = logger.With(slog.String("paymentID", event.PaymentID), slog.String("status", event.Status))
	span.SetAttributes(attribute.String("payment.id", event.PaymentID), attribute.String("payment.status", event.Status))

	order, err := s.orders.GetOrderByPaymentID(ctx, event.PaymentID)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			// счёт мог ещё не записаться или не наш: без записей в БД
			logger.Info("webhook for unknown payment id ignored")
			return nil
		}
		// единственный не-nil исход после проверки подписи: провайдер повторит доставку
		logger.Error("failed to get order", slog.Any("error", err))
		span.RecordError(err)
		return fmt.Errorf("%s: %w", op, ErrInternal)
	}
	if order.PaymentProvider != string(provider.ID()) {
		logger.Warn("webhook provider does not match order provider", slog.String("orderProvider", order.PaymentProvider))
		return nil
	}
	logger = logger.With(slog.Int64("orderID", order.ID))

	now := s.cfg.Now()

	switch {
	case event.IsCompleted():
		// просрочка по часам не мешает оплате, пока строка не переведена в expired
		if models.CanTransition(order.StoredState(), models.StateCompleted) {
			changed, err := s.orders.MarkCompleted(ctx, event.PaymentID, event.TxHash, now)
			if err != nil {
				logger.Error("failed to mark order completed", slog.Any("error", err))
				span.RecordError(err)
				return fmt.Errorf("%s: %w", op, ErrInternal)
			}
			if changed {
				logger.Info("order completed", slog.String("txHash", event.TxHash))
			} else {
				logger.Info("order left pending state concurrently, nothing changed")
			}
		} else {
			logger.Info("completion for order in terminal state, nothing changed",
				slog.String("state", string(order.StoredState())))
		}
		s.events.Record(ctx, order.ID, order.PaymentProvider, models.EventCompleted, event.Raw, now)

	case event.IsFailed():
		// статус заказа не меняется: терминальным сигналом считается только оплата
		logger.Info("provider reported failure")
		s.events.Record(ctx, order.ID, order.PaymentProvider, models.EventFailed, event.Raw, now)

	default:
		logger.Info("provider status recorded")
		s.events.Record(ctx, order.ID, order.PaymentProvider, models.EventCallback, event.Raw, now)
	}

	return nil
}
