package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// oxaPayResultOK код успешного ответа OxaPay
const oxaPayResultOK = 100

type oxaPayInvoiceRequest struct {
	Amount      json.Number `json:"amount"`
	Currency    string      `json:"currency"`
	OrderID     string      `json:"order_id"`
	Description string      `json:"description,omitempty"`
	CallbackURL string      `json:"callback_url"`
	ReturnURL   string      `json:"return_url"`
	Lifetime    int         `json:"lifetime"`
}

type oxaPayInvoiceResponse struct {
	Result    int        `json:"result"`
	Message   string     `json:"message"`
	TrackID   flexString `json:"trackId"`
	PayLink   string     `json:"payLink"`
	Address   string     `json:"address"`
	PayAmount flexString `json:"payAmount"`
	QRCode    string     `json:"QRCode"`
}

type OxaPayClient struct {
	log      *slog.Logger
	client   *resty.Client
	verifier *Verifier
}

func NewOxaPayClient(log *slog.Logger, apiURL, apiKey, webhookSecret string, timeout time.Duration) *OxaPayClient {
	client := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(timeout).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &OxaPayClient{
		log:      log,
		client:   client,
		verifier: NewVerifier(OxaPaySignatureHeader, webhookSecret),
	}
}

func (c *OxaPayClient) ID() ProviderID {
	return OxaPay
}

func (c *OxaPayClient) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	const op = "payment.OxaPayClient.CreateInvoice"
	logger := c.log.With(slog.String("op", op), slog.Int64("orderID", req.OrderID))

	if err := req.Validate(); err != nil {
		return nil, &InvoiceError{Provider: OxaPay, Err: err}
	}

	body := oxaPayInvoiceRequest{
		Amount:      json.Number(req.Amount.StringFixed(2)),
		Currency:    req.Currency,
		OrderID:     strconv.FormatInt(req.OrderID, 10),
		Description: req.Description,
		CallbackURL: req.CallbackURL,
		ReturnURL:   req.ReturnURL,
		Lifetime:    req.lifetimeMinutes(),
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/merchant/invoice")
	if err != nil {
		logger.Error("provider request failed", slog.Any("error", err))
		return nil, &InvoiceError{Provider: OxaPay, Message: "provider unreachable", Err: err}
	}

	var out oxaPayInvoiceResponse
	decodeErr := json.Unmarshal(resp.Body(), &out)

	if resp.StatusCode() != http.StatusOK {
		logger.Warn("provider rejected invoice", slog.Int("status", resp.StatusCode()), slog.String("message", out.Message))
		return nil, &InvoiceError{Provider: OxaPay, StatusCode: resp.StatusCode(), Message: out.Message}
	}
	if decodeErr != nil {
		logger.Error("malformed provider response", slog.Any("error", decodeErr))
		return nil, &InvoiceError{Provider: OxaPay, Message: "malformed response", Err: decodeErr}
	}
	// OxaPay отвечает 200 и при ошибке, смотрим на result
	if out.Result != oxaPayResultOK {
		logger.Warn("provider rejected invoice", slog.Int("result", out.Result), slog.String("message", out.Message))
		return nil, &InvoiceError{Provider: OxaPay, StatusCode: resp.StatusCode(), Message: out.Message}
	}

	invoice := &Invoice{
		PaymentID:    string(out.TrackID),
		PaymentURL:   out.PayLink,
		Address:      out.Address,
		CryptoAmount: string(out.PayAmount),
		QRCode:       out.QRCode,
	}
	// сумму в крипте OxaPay может не вернуть до выбора монеты
	if invoice.CryptoAmount == "" {
		invoice.CryptoAmount = req.Amount.StringFixed(2)
	}
	if err := checkInvoice(invoice); err != nil {
		logger.Error("incomplete provider response", slog.Any("error", err))
		return nil, &InvoiceError{Provider: OxaPay, Message: "incomplete response", Err: err}
	}
	return invoice, nil
}

func (c *OxaPayClient) VerifyWebhook(header http.Header, body []byte) (*WebhookEvent, error) {
	if err := c.verifier.Verify(header, body); err != nil {
		return nil, err
	}
	return ParseWebhook(OxaPay, body)
}
