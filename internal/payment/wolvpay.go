package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

type wolvPayInvoiceRequest struct {
	Merchant     string `json:"merchant"`
	InvoiceValue string `json:"invoiceValue"`
	Currency     string `json:"currency"`
	Description  string `json:"description"`
	CallbackURL  string `json:"callbackUrl"`
	ReturnURL    string `json:"returnUrl"`
	Lifetime     int    `json:"lifetime"` // минуты
}

type wolvPayInvoiceResponse struct {
	InvoiceID    flexString `json:"invoiceId"`
	PaymentURL   string     `json:"paymentUrl"`
	Address      string     `json:"address"`
	CryptoAmount flexString `json:"cryptoAmount"`
	QRCode       string     `json:"qrCode"`
	Error        string     `json:"error"`
	Message      string     `json:"message"`
}

type WolvPayClient struct {
	log         *slog.Logger
	client      *resty.Client
	merchantKey string
	verifier    *Verifier
}

func NewWolvPayClient(log *slog.Logger, apiURL, merchantKey, webhookSecret string, timeout time.Duration) *WolvPayClient {
	client := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WolvPayClient{
		log:         log,
		client:      client,
		merchantKey: merchantKey,
		verifier:    NewVerifier(WolvPaySignatureHeader, webhookSecret),
	}
}

func (c *WolvPayClient) ID() ProviderID {
	return WolvPay
}

func (c *WolvPayClient) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	const op = "payment.WolvPayClient.CreateInvoice"
	logger := c.log.With(slog.String("op", op), slog.Int64("orderID", req.OrderID))

	if err := req.Validate(); err != nil {
		return nil, &InvoiceError{Provider: WolvPay, Err: err}
	}

	body := wolvPayInvoiceRequest{
		Merchant:     c.merchantKey,
		InvoiceValue: req.Amount.StringFixed(2),
		Currency:     req.Currency,
		Description:  req.Description,
		CallbackURL:  req.CallbackURL,
		ReturnURL:    req.ReturnURL,
		Lifetime:     req.lifetimeMinutes(),
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/invoice")
	if err != nil {
		logger.Error("provider request failed", slog.Any("error", err))
		return nil, &InvoiceError{Provider: WolvPay, Message: "provider unreachable", Err: err}
	}

	var out wolvPayInvoiceResponse
	decodeErr := json.Unmarshal(resp.Body(), &out)

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		msg := firstNonEmpty(out.Error, out.Message)
		logger.Warn("provider rejected invoice", slog.Int("status", resp.StatusCode()), slog.String("message", msg))
		return nil, &InvoiceError{Provider: WolvPay, StatusCode: resp.StatusCode(), Message: msg}
	}
	if decodeErr != nil {
		logger.Error("malformed provider response", slog.Any("error", decodeErr))
		return nil, &InvoiceError{Provider: WolvPay, Message: "malformed response", Err: decodeErr}
	}

	invoice := &Invoice{
		PaymentID:    string(out.InvoiceID),
		PaymentURL:   out.PaymentURL,
		Address:      out.Address,
		CryptoAmount: string(out.CryptoAmount),
		QRCode:       out.QRCode,
	}
	if err := checkInvoice(invoice); err != nil {
		logger.Error("incomplete provider response", slog.Any("error", err))
		return nil, &InvoiceError{Provider: WolvPay, Message: "incomplete response", Err: err}
	}
	return invoice, nil
}

func (c *WolvPayClient) VerifyWebhook(header http.Header, body []byte) (*WebhookEvent, error) {
	if err := c.verifier.Verify(header, body); err != nil {
		return nil, err
	}
	return ParseWebhook(WolvPay, body)
}

// checkInvoice без id, адреса или суммы счёт оплатить нельзя
func checkInvoice(inv *Invoice) error {
	switch {
	case inv.PaymentID == "":
		return fmt.Errorf("missing payment id")
	case inv.Address == "" && inv.PaymentURL == "":
		return fmt.Errorf("missing payment address and url")
	case inv.CryptoAmount == "":
		return fmt.Errorf("missing crypto amount")
	}
	return nil
}
