package service

import "errors"

// Ошибки, которые видит транспортный слой. Детали причин остаются в логах.
var (
	ErrInvalidRequest              = errors.New("invalid request")
	ErrProductUnavailable          = errors.New("product unavailable")
	ErrPaymentInitializationFailed = errors.New("payment initialization failed")
	ErrUnauthenticated             = errors.New("unauthenticated")
	ErrNotFound                    = errors.New("not found")
	ErrAlreadyExists               = errors.New("already exists")
	ErrInternal                    = errors.New("internal error")
)
