package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Словарь статусов провайдеров, без учёта регистра
var (
	completedStatuses = map[string]bool{"completed": true, "paid": true}
	failedStatuses    = map[string]bool{"failed": true, "expired": true, "canceled": true, "cancelled": true}
)

// WebhookEvent нормализованное уведомление провайдера
type WebhookEvent struct {
	Provider  ProviderID
	PaymentID string
	Status    string
	TxHash    string
	// Raw тело ровно в том виде, в каком его подписал провайдер
	Raw []byte
}

func (e *WebhookEvent) IsCompleted() bool {
	return completedStatuses[strings.ToLower(strings.TrimSpace(e.Status))]
}

func (e *WebhookEvent) IsFailed() bool {
	return failedStatuses[strings.ToLower(strings.TrimSpace(e.Status))]
}

// flexString принимает и строку, и число (trackId у OxaPay бывает числом)
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// webhookBody все известные варианты имён полей
type webhookBody struct {
	PaymentID  flexString `json:"payment_id"`
	InvoiceID  flexString `json:"invoice_id"`
	InvoiceID2 flexString `json:"invoiceId"`
	TrackID    flexString `json:"trackId"`
	TrackID2   flexString `json:"track_id"`
	Status     string     `json:"status"`
	TxHash     string     `json:"tx_hash"`
	TxID       string     `json:"txID"`
	TxID2      string     `json:"txid"`
}

func firstNonEmpty[T ~string](vals ...T) string {
	for _, v := range vals {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}

// ParseWebhook разбирает тело уведомления. Вызывать только после проверки подписи.
func ParseWebhook(provider ProviderID, body []byte) (*WebhookEvent, error) {
	var b webhookBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}

	event := &WebhookEvent{
		Provider:  provider,
		PaymentID: firstNonEmpty(b.PaymentID, b.InvoiceID, b.InvoiceID2, b.TrackID, b.TrackID2),
		Status:    strings.TrimSpace(b.Status),
		TxHash:    firstNonEmpty(b.TxHash, b.TxID, b.TxID2),
		Raw:       body,
	}
	if event.PaymentID == "" {
		return nil, fmt.Errorf("%w: payment id is missing", ErrMalformedWebhook)
	}
	return event, nil
}
