package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/linemk/crypto-shop/internal/domain/models"
	"github.com/linemk/crypto-shop/internal/service"
)

type ProductsResponse struct {
	Products []*models.Product `json:"products"`
}

// ProductsHandler GET /api/products
func ProductsHandler(log *slog.Logger, products service.ProductLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ProductsHandler"
		logger := log.With(slog.String("op", op))

		list, err := products.ListAvailable(r.Context())
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, ProductsResponse{Products: list})
	}
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler GET /healthz
func HealthHandler(log *slog.Logger, db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			log.Error("health check failed", slog.Any("error", err))
			writeJSON(w, log, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, log, http.StatusOK, map[string]string{"status": "ok"})
	}
}
