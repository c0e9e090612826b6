package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ProviderID идентификатор платёжного провайдера
type ProviderID string

const (
	WolvPay ProviderID = "wolvpay"
	OxaPay  ProviderID = "oxapay"
)

var (
	ErrInvoiceCreationFailed = errors.New("invoice creation failed")
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrUnknownProvider       = errors.New("unknown payment provider")
	ErrInvalidInvoiceRequest = errors.New("invalid invoice request")
	ErrMalformedWebhook      = errors.New("malformed webhook payload")
)

var validate = validator.New()

// ParseProviderID приводит строку к известному провайдеру.
func ParseProviderID(s string) (ProviderID, error) {
	switch id := ProviderID(strings.ToLower(strings.TrimSpace(s))); id {
	case WolvPay, OxaPay:
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// Provider единый интерфейс внешнего сервиса счетов.
type Provider interface {
	ID() ProviderID
	// CreateInvoice делает один исходящий запрос и не трогает локальное состояние.
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error)
	// VerifyWebhook проверяет подпись над сырым телом и разбирает уведомление.
	VerifyWebhook(header http.Header, body []byte) (*WebhookEvent, error)
}

type InvoiceRequest struct {
	OrderID     int64           `validate:"required,gt=0"`
	Amount      decimal.Decimal `validate:"-"`
	Currency    string          `validate:"required,len=3,uppercase"`
	Description string          `validate:"max=255"`
	CallbackURL string          `validate:"required,url"`
	ReturnURL   string          `validate:"required,url"`
	Lifetime    time.Duration   `validate:"-"`
}

func (r InvoiceRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInvoiceRequest)
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInvoiceRequest, err)
	}
	return nil
}

// lifetimeMinutes срок жизни счёта в минутах, по умолчанию 30
func (r InvoiceRequest) lifetimeMinutes() int {
	if r.Lifetime <= 0 {
		return 30
	}
	return int(r.Lifetime / time.Minute)
}

// Invoice нормализованный ответ провайдера
type Invoice struct {
	PaymentID    string
	PaymentURL   string
	Address      string
	CryptoAmount string
	QRCode       string
}

// InvoiceError ошибка провайдера с его диагностикой. Сводится к ErrInvoiceCreationFailed.
type InvoiceError struct {
	Provider   ProviderID
	StatusCode int
	Message    string
	Err        error
}

func (e *InvoiceError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, ErrInvoiceCreationFailed)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvoiceError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvoiceCreationFailed, e.Err}
	}
	return []error{ErrInvoiceCreationFailed}
}
