package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus хранимый статус оплаты заказа
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentExpired   PaymentStatus = "expired"
	PaymentFailed    PaymentStatus = "failed"
)

// Terminal - из терминального статуса переходов нет
func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentExpired || s == PaymentFailed
}

// OrderState состояние заказа в машине состояний.
// created и invoiced хранятся как pending и различаются наличием payment_id.
type OrderState string

const (
	StateCreated   OrderState = "created"
	StateInvoiced  OrderState = "invoiced"
	StateCompleted OrderState = "completed"
	StateExpired   OrderState = "expired"
	StateFailed    OrderState = "failed"
)

var validNext = map[OrderState]map[OrderState]bool{
	StateCreated:   {StateInvoiced: true, StateFailed: true, StateExpired: true},
	StateInvoiced:  {StateCompleted: true, StateExpired: true},
	StateCompleted: {},
	StateExpired:   {},
	StateFailed:    {},
}

func CanTransition(from, to OrderState) bool {
	return validNext[from][to]
}

// Order заказ, созданный при покупке товара
type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	ProductID       int64           `json:"product_id"`
	ProductName     string          `json:"product_name,omitempty"` // заполняется через JOIN с products
	Quantity        int             `json:"quantity"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	PaymentProvider string          `json:"payment_provider"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	PaymentID       *string         `json:"payment_id,omitempty"`
	PaymentURL      *string         `json:"payment_url,omitempty"`
	CryptoAddress   *string         `json:"crypto_address,omitempty"`
	CryptoAmount    *string         `json:"crypto_amount,omitempty"`
	TxHash          *string         `json:"tx_hash,omitempty"`
	ExpiresAt       time.Time       `json:"expires_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// State выводит состояние по хранимым полям. Просрочка вычисляется лениво:
// pending-заказ после expires_at считается expired.
func (o *Order) State(now time.Time) OrderState {
	state := o.StoredState()
	if !o.PaymentStatus.Terminal() && now.After(o.ExpiresAt) {
		return StateExpired
	}
	return state
}

// StoredState состояние строки без учёта времени: то, от чего
// отталкиваются условные UPDATE хранилища.
func (o *Order) StoredState() OrderState {
	switch o.PaymentStatus {
	case PaymentCompleted:
		return StateCompleted
	case PaymentExpired:
		return StateExpired
	case PaymentFailed:
		return StateFailed
	}
	if o.PaymentID == nil || *o.PaymentID == "" {
		return StateCreated
	}
	return StateInvoiced
}
