package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/crypto-shop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/crypto-shop/internal/service"
)

// BuyRequest тело покупки; пустое тело означает одну единицу товара
type BuyRequest struct {
	Quantity *int   `json:"quantity"`
	Provider string `json:"provider" validate:"omitempty,max=32"`
	Currency string `json:"currency" validate:"omitempty,len=3,alpha"`
}

// BuyResponse - структура ответа при успешной покупке.
type BuyResponse struct {
	Success      bool      `json:"success"`
	OrderID      int64     `json:"orderId"`
	Provider     string    `json:"provider"`
	TotalAmount  string    `json:"totalAmount"`
	Currency     string    `json:"currency"`
	PaymentURL   string    `json:"paymentUrl"`
	Address      string    `json:"address"`
	CryptoAmount string    `json:"cryptoAmount"`
	QRCode       string    `json:"qrCode,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// BuyHandler обрабатывает запрос POST /api/buy/{productID}.
// trustProxy разрешает брать хост для callback URL из X-Forwarded-*.
func BuyHandler(log *slog.Logger, purchaser service.Purchaser, trustProxy bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.BuyHandler"
		logger := log.With(slog.String("op", op))

		productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
		if err != nil || productID <= 0 {
			logger.Warn("invalid product id", slog.String("productID", chi.URLParam(r, "productID")))
			writeError(w, logger, http.StatusBadRequest, "invalid product id")
			return
		}

		// userID кладёт JWT middleware
		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			writeError(w, logger, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req BuyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			logger.Warn("invalid request: decoding error", slog.Any("error", err))
			writeError(w, logger, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Warn("invalid request: validation error", slog.Any("error", err))
			writeError(w, logger, http.StatusBadRequest, "validation error")
			return
		}
		quantity := 1
		if req.Quantity != nil {
			quantity = *req.Quantity
		}

		res, err := purchaser.Purchase(r.Context(), service.PurchaseRequest{
			UserID:    userID,
			ProductID: productID,
			Quantity:  quantity,
			Provider:  req.Provider,
			Currency:  req.Currency,
			BaseURL:   baseURL(r, trustProxy),
		})
		if err != nil {
			logger.Error("failed to complete purchase", slog.Any("error", err))
			writeServiceError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, BuyResponse{
			Success:      true,
			OrderID:      res.OrderID,
			Provider:     string(res.Provider),
			TotalAmount:  res.TotalAmount.StringFixed(2),
			Currency:     res.Currency,
			PaymentURL:   res.PaymentURL,
			Address:      res.Address,
			CryptoAmount: res.CryptoAmount,
			QRCode:       res.QRCode,
			ExpiresAt:    res.ExpiresAt,
		})
	}
}
