package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/crypto-shop/internal/service"
)

// maxWebhookBody ограничение на размер уведомления
const maxWebhookBody = 1 << 20

type WebhookResponse struct {
	Success bool `json:"success"`
}

// WebhookHandler POST /webhook/{provider}.
// Тело читается как есть: подпись проверяется по сырым байтам.
func WebhookHandler(log *slog.Logger, processor service.WebhookProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.WebhookHandler"
		provider := chi.URLParam(r, "provider")
		logger := log.With(slog.String("op", op), slog.String("provider", provider))

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			logger.Error("failed to read webhook body", slog.Any("error", err))
			writeError(w, logger, http.StatusBadRequest, "invalid request")
			return
		}

		if err := processor.HandleWebhook(r.Context(), provider, r.Header, body); err != nil {
			switch {
			case errors.Is(err, service.ErrUnauthenticated):
				writeError(w, logger, http.StatusUnauthorized, "invalid signature")
			case errors.Is(err, service.ErrNotFound):
				writeError(w, logger, http.StatusNotFound, "unknown provider")
			default:
				// после проверки подписи всё подтверждается 200, кроме сбоя БД:
				// 500 заставляет провайдера повторить, и оплата не теряется
				logger.Error("failed to process webhook", slog.Any("error", err))
				writeError(w, logger, http.StatusInternalServerError, "internal error")
			}
			return
		}

		writeJSON(w, logger, http.StatusOK, WebhookResponse{Success: true})
	}
}
