package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/linemk/crypto-shop/internal/domain/models"
	"github.com/linemk/crypto-shop/internal/payment"
	"github.com/linemk/crypto-shop/internal/storage"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Purchaser создание заказа со счётом
type Purchaser interface {
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)
}

// OrderConfig параметры заказов
type OrderConfig struct {
	TTL             time.Duration
	MaxQuantity     int
	DefaultCurrency string
	Currencies      []string
	DefaultProvider payment.ProviderID
	// Now источник времени, по умолчанию time.Now
	Now func() time.Time
}

// OrderService машина состояний заказа: покупка, уведомления провайдера
// и чтение заказа с ленивой просрочкой.
type OrderService struct {
	log       *slog.Logger
	orders    storage.OrderStorage
	providers *payment.Registry
	events    *EventLog
	cfg       OrderConfig
	tracer    trace.Tracer
}

func NewOrderService(log *slog.Logger, orders storage.OrderStorage, providers *payment.Registry, events *EventLog, cfg OrderConfig) *OrderService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = 10
	}
	return &OrderService{
		log:       log,
		orders:    orders,
		providers: providers,
		events:    events,
		cfg:       cfg,
		tracer:    otel.Tracer("github.com/linemk/crypto-shop/internal/service"),
	}
}

var (
	_ Purchaser        = (*OrderService)(nil)
	_ OrderReader      = (*OrderService)(nil)
	_ WebhookProcessor = (*OrderService)(nil)
)

type PurchaseRequest struct {
	UserID    int64
	ProductID int64
	Quantity  int
	Provider  string
	Currency  string
	// BaseURL схема и хост входящего запроса, из них строятся callback и return URL
	BaseURL string
}

type PurchaseResult struct {
	OrderID      int64
	Provider     payment.ProviderID
	TotalAmount  decimal.Decimal
	Currency     string
	PaymentURL   string
	Address      string
	CryptoAmount string
	QRCode       string
	ExpiresAt    time.Time
}

// Purchase создаёт заказ и счёт у провайдера.
// Остаток списывается до обращения к провайдеру; при ошибке провайдера
// заказ помечается failed и остаток возвращается.
func (s *OrderService) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	const op = "service.OrderService.Purchase"
	logger := s.log.With(
		slog.String("op", op),
		slog.Int64("userID", req.UserID),
		slog.Int64("productID", req.ProductID),
		slog.Int("quantity", req.Quantity),
	)

	ctx, span := s.tracer.Start(ctx, "OrderService.Purchase", trace.WithAttributes(
		attribute.Int64("user.id", req.UserID),
		attribute.Int64("product.id", req.ProductID),
		attribute.Int("order.quantity", req.Quantity),
	))
	defer span.End()

	res, err := s.purchase(ctx, logger, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	span.SetAttributes(attribute.Int64("order.id", res.OrderID), attribute.String("payment.provider", string(res.Provider)))
	return res, nil
}

func (s *OrderService) purchase(ctx context.Context, logger *slog.Logger, req PurchaseRequest) (*PurchaseResult, error) {
	// количество проверяется до любых обращений к остатку
	if req.Quantity < 1 || req.Quantity > s.cfg.MaxQuantity {
		logger.Warn("quantity out of range", slog.Int("max", s.cfg.MaxQuantity))
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidRequest, s.cfg.MaxQuantity)
	}
	if req.ProductID <= 0 {
		return nil, fmt.Errorf("%w: invalid product id", ErrInvalidRequest)
	}

	provider, err := s.selectProvider(req.Provider)
	if err != nil {
		logger.Warn("provider not available", slog.String("provider", req.Provider))
		return nil, err
	}
	currency, err := s.selectCurrency(req.Currency)
	if err != nil {
		logger.Warn("unsupported currency", slog.String("currency", req.Currency))
		return nil, err
	}
	baseURL := strings.TrimRight(req.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: missing request host", ErrInvalidRequest)
	}

	now := s.cfg.Now()
	order, err := s.orders.ReserveAndCreateOrder(ctx, storage.NewOrder{
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Currency:  currency,
		Provider:  string(provider.ID()),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInsufficientStock):
			logger.Warn("insufficient stock")
			return nil, ErrProductUnavailable
		case errors.Is(err, storage.ErrProductNotFound):
			logger.Warn("product not found")
			return nil, fmt.Errorf("%w: product", ErrNotFound)
		}
		logger.Error("failed to create order", slog.Any("error", err))
		return nil, ErrInternal
	}
	logger = logger.With(slog.Int64("orderID", order.ID))
	logger.Info("order created, stock reserved")

	invoice, err := provider.CreateInvoice(ctx, payment.InvoiceRequest{
		OrderID:     order.ID,
		Amount:      order.TotalAmount,
		Currency:    currency,
		Description: fmt.Sprintf("Order #%d - %s", order.ID, order.ProductName),
		CallbackURL: fmt.Sprintf("%s/webhook/%s", baseURL, provider.ID()),
		ReturnURL:   fmt.Sprintf("%s/api/orders/%d", baseURL, order.ID),
		Lifetime:    s.cfg.TTL,
	})

	// Дальнейшие записи не должны прерываться отменой запроса клиентом.
	bg := context.WithoutCancel(ctx)

	if err != nil {
		logger.Error("failed to create invoice", slog.Any("error", err))
		s.compensate(bg, logger, order, err)
		return nil, ErrPaymentInitializationFailed
	}

	details := storage.PaymentDetails{
		PaymentID:     invoice.PaymentID,
		PaymentURL:    invoice.PaymentURL,
		CryptoAddress: invoice.Address,
		CryptoAmount:  invoice.CryptoAmount,
	}
	attached := true
	if err := s.orders.AttachPaymentDetails(bg, order.ID, details, s.cfg.Now()); err != nil {
		// ответ покупателю уже собран: только логируем
		logger.Error("failed to attach payment details", slog.String("paymentID", invoice.PaymentID), slog.Any("error", err))
		attached = false
	}

	s.events.Record(bg, order.ID, string(provider.ID()), models.EventCreated, invoiceSnapshot{
		PaymentID:    invoice.PaymentID,
		PaymentURL:   invoice.PaymentURL,
		Address:      invoice.Address,
		CryptoAmount: invoice.CryptoAmount,
		QRCode:       invoice.QRCode,
		TotalAmount:  order.TotalAmount,
		Currency:     currency,
		Attached:     attached,
	}, s.cfg.Now())

	logger.Info("invoice created", slog.String("paymentID", invoice.PaymentID))

	return &PurchaseResult{
		OrderID:      order.ID,
		Provider:     provider.ID(),
		TotalAmount:  order.TotalAmount,
		Currency:     currency,
		PaymentURL:   invoice.PaymentURL,
		Address:      invoice.Address,
		CryptoAmount: invoice.CryptoAmount,
		QRCode:       invoice.QRCode,
		ExpiresAt:    order.ExpiresAt,
	}, nil
}

// compensate переводит заказ created -> failed и возвращает остаток.
// FailOrder условный, поэтому остаток возвращается не более одного раза.
func (s *OrderService) compensate(ctx context.Context, logger *slog.Logger, order *models.Order, cause error) {
	changed, err := s.orders.FailOrder(ctx, order.ID, s.cfg.Now())
	if err != nil {
		logger.Error("failed to restore stock", slog.Any("error", err))
		return
	}
	if !changed {
		logger.Warn("order already left pending state, stock not restored")
		return
	}
	logger.Info("order failed, stock restored")

	// текст провайдера остаётся в логах: журнал событий виден покупателю
	var invErr *payment.InvoiceError
	if errors.As(cause, &invErr) {
		logger.Warn("provider rejected invoice",
			slog.Int("statusCode", invErr.StatusCode),
			slog.String("message", invErr.Message),
		)
	}
	s.events.Record(ctx, order.ID, order.PaymentProvider, models.EventFailed, map[string]string{
		"reason": "invoice_creation_failed",
	}, s.cfg.Now())
}

func (s *OrderService) selectProvider(name string) (payment.Provider, error) {
	id := s.cfg.DefaultProvider
	if strings.TrimSpace(name) != "" {
		parsed, err := payment.ParseProviderID(name)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown provider", ErrInvalidRequest)
		}
		id = parsed
	}
	p, err := s.providers.Get(id)
	if err != nil {
		return nil, fmt.Errorf("%w: provider %s is not configured", ErrInvalidRequest, id)
	}
	return p, nil
}

func (s *OrderService) selectCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = strings.ToUpper(s.cfg.DefaultCurrency)
	}
	for _, c := range s.cfg.Currencies {
		if strings.EqualFold(c, code) {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported currency", ErrInvalidRequest)
}

type invoiceSnapshot struct {
	PaymentID    string          `json:"paymentId"`
	PaymentURL   string          `json:"paymentUrl"`
	Address      string          `json:"address,omitempty"`
	CryptoAmount string          `json:"cryptoAmount"`
	QRCode       string          `json:"qrCode,omitempty"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Currency     string          `json:"currency"`
	// Attached false: счёт выставлен, но в заказ не записан
	Attached bool `json:"attached"`
}
