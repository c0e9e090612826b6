package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/crypto-shop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/crypto-shop/internal/service"
)

type OrderEvent struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type OrderResponse struct {
	ID            int64        `json:"id"`
	ProductID     int64        `json:"productId"`
	ProductName   string       `json:"productName"`
	Quantity      int          `json:"quantity"`
	TotalAmount   string       `json:"totalAmount"`
	Currency      string       `json:"currency"`
	Provider      string       `json:"provider"`
	PaymentStatus string       `json:"paymentStatus"`
	State         string       `json:"state"`
	PaymentURL    *string      `json:"paymentUrl,omitempty"`
	Address       *string      `json:"address,omitempty"`
	CryptoAmount  *string      `json:"cryptoAmount,omitempty"`
	TxHash        *string      `json:"txHash,omitempty"`
	ExpiresAt     time.Time    `json:"expiresAt"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	Events        []OrderEvent `json:"events"`
}

// OrderHandler GET /api/orders/{orderID}
func OrderHandler(log *slog.Logger, orders service.OrderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.OrderHandler"
		logger := log.With(slog.String("op", op))

		orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
		if err != nil || orderID <= 0 {
			writeError(w, logger, http.StatusBadRequest, "invalid order id")
			return
		}

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			writeError(w, logger, http.StatusUnauthorized, "unauthorized")
			return
		}

		details, err := orders.GetOrder(r.Context(), userID, orderID)
		if err != nil {
			logger.Warn("failed to get order", slog.Any("error", err))
			writeServiceError(w, logger, err)
			return
		}

		o := details.Order
		resp := OrderResponse{
			ID:            o.ID,
			ProductID:     o.ProductID,
			ProductName:   o.ProductName,
			Quantity:      o.Quantity,
			TotalAmount:   o.TotalAmount.StringFixed(2),
			Currency:      o.Currency,
			Provider:      o.PaymentProvider,
			PaymentStatus: string(o.PaymentStatus),
			State:         string(details.State),
			PaymentURL:    o.PaymentURL,
			Address:       o.CryptoAddress,
			CryptoAmount:  o.CryptoAmount,
			TxHash:        o.TxHash,
			ExpiresAt:     o.ExpiresAt,
			CreatedAt:     o.CreatedAt,
			UpdatedAt:     o.UpdatedAt,
			Events:        make([]OrderEvent, 0, len(details.Events)),
		}
		for _, e := range details.Events {
			resp.Events = append(resp.Events, OrderEvent{
				Type:      string(e.EventType),
				Payload:   e.Payload,
				CreatedAt: e.CreatedAt,
			})
		}

		writeJSON(w, logger, http.StatusOK, resp)
	}
}
