package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/crypto-shop/internal/domain/models"
	"github.com/linemk/crypto-shop/internal/storage"
)

type OrderReader interface {
	GetOrder(ctx context.Context, userID, orderID int64) (*OrderDetails, error)
}

// OrderDetails заказ с вычисленным состоянием и историей событий
type OrderDetails struct {
	Order  *models.Order
	State  models.OrderState
	Events []*models.PaymentEvent
}

// GetOrder возвращает заказ владельцу. Просроченный pending-заказ
// при чтении переводится в expired, остаток возвращается.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*OrderDetails, error) {
	const op = "service.OrderService.GetOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int64("orderID", orderID))

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, fmt.Errorf("%s: %w: order", op, ErrNotFound)
		}
		logger.Error("failed to get order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, ErrInternal)
	}
	// чужой заказ неотличим от несуществующего
	if order.UserID != userID {
		logger.Warn("order belongs to another user")
		return nil, fmt.Errorf("%s: %w: order", op, ErrNotFound)
	}

	now := s.cfg.Now()
	if order.PaymentStatus == models.PaymentPending && order.State(now) == models.StateExpired {
		changed, err := s.orders.ExpireOrder(ctx, order.ID, now)
		if err != nil {
			logger.Error("failed to expire order", slog.Any("error", err))
			return nil, fmt.Errorf("%s: %w", op, ErrInternal)
		}
		if changed {
			logger.Info("order expired, stock restored")
			s.events.Record(ctx, order.ID, order.PaymentProvider, models.EventExpired, map[string]any{
				"expiresAt": order.ExpiresAt,
				"quantity":  order.Quantity,
			}, now)
		}
		// статус перечитываем: параллельно могла прийти оплата
		order, err = s.orders.GetOrderByID(ctx, order.ID)
		if err != nil {
			logger.Error("failed to reload order", slog.Any("error", err))
			return nil, fmt.Errorf("%s: %w", op, ErrInternal)
		}
	}

	events, err := s.events.History(ctx, order.ID)
	if err != nil {
		// история вспомогательная, заказ отдаём и без неё
		logger.Error("failed to load payment events", slog.Any("error", err))
	}

	return &OrderDetails{
		Order:  order,
		State:  order.State(now),
		Events: events,
	}, nil
}
