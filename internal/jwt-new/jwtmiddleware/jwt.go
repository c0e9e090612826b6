package jwtmiddleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	UserIDKey    contextKey = "userID"
	SessionIDKey contextKey = "sessionID"
)

// SessionLookup проверка, что сессия из токена ещё жива
type SessionLookup interface {
	Lookup(ctx context.Context, sessionID string) (int64, error)
}

// NewJWTMiddleware проверяет Bearer-токен и сессию, на которую он ссылается.
// Токен без живой сессии (после logout или TTL) отклоняется.
func NewJWTMiddleware(secret string, sessions SessionLookup) func(http.Handler) http.Handler {
	if secret == "" {
		panic("JWT secret is not set")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// формат: "Bearer <token>"
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "missing token")
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(w, "invalid token format")
				return
			}

			token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				unauthorized(w, "invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				unauthorized(w, "invalid token claims")
				return
			}

			sub, ok := claims["sub"].(string)
			if !ok {
				unauthorized(w, "invalid token claims: sub not found")
				return
			}
			userID, err := strconv.ParseInt(sub, 10, 64)
			if err != nil {
				unauthorized(w, "invalid token claims: invalid user id")
				return
			}

			sid, ok := claims["sid"].(string)
			if !ok || sid == "" {
				unauthorized(w, "invalid token claims: sid not found")
				return
			}
			owner, err := sessions.Lookup(r.Context(), sid)
			if err != nil || owner != userID {
				unauthorized(w, "session expired")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			ctx = context.WithValue(ctx, SessionIDKey, sid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// FromContext извлекает userID из контекста.
func FromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDKey).(int64)
	return id, ok
}

func SessionFromContext(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(SessionIDKey).(string)
	return sid, ok
}
