package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/linemk/crypto-shop/internal/service"
)

var validate = validator.New()

// ErrorResponse стабильная форма ошибки для клиента
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, status int, msg string) {
	writeJSON(w, log, status, ErrorResponse{Error: msg})
}

// writeServiceError переводит ошибку сервиса в статус и сообщение.
// Внутренние детали клиенту не отдаются.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, log, http.StatusBadRequest, "invalid request")
	case errors.Is(err, service.ErrProductUnavailable):
		writeError(w, log, http.StatusBadRequest, "product unavailable")
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, log, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, log, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrAlreadyExists):
		writeError(w, log, http.StatusConflict, "already exists")
	case errors.Is(err, service.ErrPaymentInitializationFailed):
		writeError(w, log, http.StatusInternalServerError, "payment initialization failed")
	default:
		writeError(w, log, http.StatusInternalServerError, "internal error")
	}
}

// baseURL схема и хост, по которым клиент обратился к сервису.
// X-Forwarded-Proto и X-Forwarded-Host учитываются только при trustProxy:
// иначе клиент мог бы увести уведомления провайдера на свой хост.
func baseURL(r *http.Request, trustProxy bool) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if trustProxy {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}
		if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
			host = fwd
		}
	}
	if host == "" {
		return ""
	}
	return scheme + "://" + host
}
