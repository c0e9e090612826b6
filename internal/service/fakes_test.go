package service_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/linemk/crypto-shop/internal/domain/models"
	"github.com/linemk/crypto-shop/internal/payment"
	"github.com/linemk/crypto-shop/internal/storage"
	"github.com/shopspring/decimal"
)

// fakeStore хранилище заказов и остатков в памяти с теми же условными переходами, что и SQL
type fakeStore struct {
	mu       sync.Mutex
	products map[int64]*models.Product
	orders   map[int64]*models.Order
	nextID   int64

	reserveCalls  int
	completeCalls int
	writes        int

	attachErr error
	lookupErr error
}

var _ storage.OrderStorage = (*fakeStore)(nil)

func newFakeStore(products ...*models.Product) *fakeStore {
	s := &fakeStore{products: make(map[int64]*models.Product), orders: make(map[int64]*models.Order)}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *fakeStore) stock(productID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

func (s *fakeStore) order(id int64) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[id]
}

func (s *fakeStore) ReserveAndCreateOrder(_ context.Context, o storage.NewOrder) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserveCalls++

	p, ok := s.products[o.ProductID]
	if !ok {
		return nil, storage.ErrProductNotFound
	}
	if p.Stock < o.Quantity {
		return nil, storage.ErrInsufficientStock
	}
	p.Stock -= o.Quantity
	s.writes++

	s.nextID++
	order := &models.Order{
		ID:              s.nextID,
		UserID:          o.UserID,
		ProductID:       o.ProductID,
		ProductName:     p.Name,
		Quantity:        o.Quantity,
		TotalAmount:     p.Price.Mul(decimal.NewFromInt(int64(o.Quantity))),
		Currency:        o.Currency,
		PaymentProvider: o.Provider,
		PaymentStatus:   models.PaymentPending,
		ExpiresAt:       o.ExpiresAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.CreatedAt,
	}
	s.orders[order.ID] = order
	cp := *order
	return &cp, nil
}

func (s *fakeStore) AttachPaymentDetails(_ context.Context, orderID int64, d storage.PaymentDetails, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attachErr != nil {
		return s.attachErr
	}
	o, ok := s.orders[orderID]
	if !ok || o.PaymentID != nil || o.PaymentStatus != models.PaymentPending {
		return storage.ErrOrderNotFound
	}
	o.PaymentID = &d.PaymentID
	o.PaymentURL = &d.PaymentURL
	o.CryptoAddress = &d.CryptoAddress
	o.CryptoAmount = &d.CryptoAmount
	o.UpdatedAt = at
	s.writes++
	return nil
}

func (s *fakeStore) MarkCompleted(_ context.Context, paymentID, txHash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completeCalls++

	for _, o := range s.orders {
		if o.PaymentID != nil && *o.PaymentID == paymentID && o.PaymentStatus == models.PaymentPending {
			o.PaymentStatus = models.PaymentCompleted
			o.TxHash = &txHash
			o.UpdatedAt = at
			s.writes++
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) FailOrder(_ context.Context, orderID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok || o.PaymentStatus != models.PaymentPending || o.PaymentID != nil {
		return false, nil
	}
	return s.release(o, models.PaymentFailed, at), nil
}

func (s *fakeStore) ExpireOrder(_ context.Context, orderID int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok || o.PaymentStatus != models.PaymentPending || o.ExpiresAt.After(now) {
		return false, nil
	}
	return s.release(o, models.PaymentExpired, now), nil
}

func (s *fakeStore) release(o *models.Order, status models.PaymentStatus, at time.Time) bool {
	o.PaymentStatus = status
	o.UpdatedAt = at
	s.products[o.ProductID].Stock += o.Quantity
	s.writes++
	return true
}

func (s *fakeStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) GetOrderByPaymentID(_ context.Context, paymentID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}

	for _, o := range s.orders {
		if o.PaymentID != nil && *o.PaymentID == paymentID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, storage.ErrOrderNotFound
}

// fakeEventRepo журнал событий в памяти
type fakeEventRepo struct {
	mu     sync.Mutex
	events []*models.PaymentEvent
}

var _ storage.PaymentEventStorage = (*fakeEventRepo)(nil)

func (f *fakeEventRepo) CreateEvent(_ context.Context, e *models.PaymentEvent) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	cp.ID = int64(len(f.events) + 1)
	f.events = append(f.events, &cp)
	return cp.ID, nil
}

func (f *fakeEventRepo) GetEventsByOrderID(_ context.Context, orderID int64) ([]*models.PaymentEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PaymentEvent
	for _, e := range f.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) types(orderID int64) []models.EventType {
	events, _ := f.GetEventsByOrderID(context.Background(), orderID)
	var out []models.EventType
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}

// fakeProvider провайдер без сети, подпись проверяется настоящим Verifier
type fakeProvider struct {
	mu       sync.Mutex
	id       payment.ProviderID
	verifier *payment.Verifier
	err      error
	calls    int
	requests []payment.InvoiceRequest
}

var _ payment.Provider = (*fakeProvider)(nil)

func newFakeProvider(id payment.ProviderID, header, secret string) *fakeProvider {
	return &fakeProvider{id: id, verifier: payment.NewVerifier(header, secret)}
}

func (p *fakeProvider) ID() payment.ProviderID { return p.id }

func (p *fakeProvider) CreateInvoice(_ context.Context, req payment.InvoiceRequest) (*payment.Invoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.requests = append(p.requests, req)

	if err := req.Validate(); err != nil {
		return nil, &payment.InvoiceError{Provider: p.id, Err: err}
	}
	if p.err != nil {
		return nil, p.err
	}
	id := fmt.Sprintf("inv-%d", p.calls)
	return &payment.Invoice{
		PaymentID:    id,
		PaymentURL:   "https://pay.test/" + id,
		Address:      "bc1qaddr",
		CryptoAmount: "0.0005",
		QRCode:       "bitcoin:bc1qaddr?amount=0.0005",
	}, nil
}

func (p *fakeProvider) VerifyWebhook(header http.Header, body []byte) (*payment.WebhookEvent, error) {
	if err := p.verifier.Verify(header, body); err != nil {
		return nil, err
	}
	return payment.ParseWebhook(p.id, body)
}

// fakeUserRepo пользователи в памяти, ключ - username
type fakeUserRepo struct {
	users map[string]*models.User
}

var _ storage.UserStorage = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (f *fakeUserRepo) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	user, ok := f.users[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *models.User) (*models.User, error) {
	if _, ok := f.users[user.Username]; ok {
		return nil, storage.ErrUserExists
	}
	user.ID = int64(len(f.users) + 1)
	f.users[user.Username] = user
	return user, nil
}

// fakeSessions сессии в памяти
type fakeSessions struct {
	sessions map[string]int64
	next     int
}

var _ storage.SessionStorage = (*fakeSessions)(nil)

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]int64)}
}

func (f *fakeSessions) Create(_ context.Context, userID int64, _ time.Duration) (string, error) {
	f.next++
	sid := fmt.Sprintf("sid-%d", f.next)
	f.sessions[sid] = userID
	return sid, nil
}

func (f *fakeSessions) Lookup(_ context.Context, sid string) (int64, error) {
	id, ok := f.sessions[sid]
	if !ok {
		return 0, storage.ErrSessionNotFound
	}
	return id, nil
}

func (f *fakeSessions) Invalidate(_ context.Context, sid string) error {
	delete(f.sessions, sid)
	return nil
}

// fakeProducts витрина для ProductService
type fakeProducts []*models.Product

var _ storage.ProductStorage = fakeProducts(nil)

func (f fakeProducts) ListAvailable(context.Context) ([]*models.Product, error) {
	return f, nil
}

func (f fakeProducts) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	for _, p := range f {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, storage.ErrProductNotFound
}

func (f fakeProducts) ReserveStock(context.Context, *sql.Tx, int64, int) (*models.Product, error) {
	return nil, errors.New("not supported")
}

func (f fakeProducts) RestoreStock(context.Context, *sql.Tx, int64, int) error {
	return errors.New("not supported")
}

var errProviderDown = errors.New("connection refused")
