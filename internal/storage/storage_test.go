package storage_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/linemk/crypto-shop/internal/domain/models"
	"github.com/linemk/crypto-shop/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	productCols = []string{"id", "name", "description", "price", "stock"}
	orderCols   = []string{"id", "user_id", "product_id", "name", "quantity", "total_amount", "currency",
		"payment_provider", "payment_status", "payment_id", "payment_url", "crypto_address",
		"crypto_amount", "tx_hash", "expires_at", "created_at", "updated_at"}
)

const (
	reserveStockSQL  = `UPDATE products SET stock = stock - \$1 WHERE id = \$2 AND stock >= \$1`
	productExistsSQL = `SELECT EXISTS\(SELECT 1 FROM products WHERE id = \$1\)`
	restoreStockSQL  = `UPDATE products SET stock = stock \+ \$1 WHERE id = \$2`
	insertOrderSQL   = `INSERT INTO orders \(user_id, product_id, quantity, total_amount`
)

func newOrderRepo(t *testing.T) (storage.OrderStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	repo := storage.NewOrderRepository(db, logger, storage.NewProductRepository(db))
	return repo, mock
}

func TestReserveAndCreateOrder_Success(t *testing.T) {
	repo, mock := newOrderRepo(t)
	createdAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := createdAt.Add(30 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(reserveStockSQL).WithArgs(3, int64(7)).
		WillReturnRows(sqlmock.NewRows(productCols).AddRow(7, "Wallet", "", "10.00", 2))
	// Сумма: 10.00 * 3 = 30
	mock.ExpectQuery(insertOrderSQL).
		WithArgs(int64(1), int64(7), 3, "30", "USD", "wolvpay", "pending", expiresAt, createdAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectCommit()

	order, err := repo.ReserveAndCreateOrder(context.Background(), storage.NewOrder{
		UserID:    1,
		ProductID: 7,
		Quantity:  3,
		Currency:  "USD",
		Provider:  "wolvpay",
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), order.ID)
	assert.Equal(t, "30", order.TotalAmount.String())
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)
	assert.Nil(t, order.PaymentID)
	assert.Equal(t, "Wallet", order.ProductName)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveAndCreateOrder_InsufficientStock(t *testing.T) {
	repo, mock := newOrderRepo(t)

	mock.ExpectBegin()
	// Условный UPDATE не затронул ни одной строки
	mock.ExpectQuery(reserveStockSQL).WithArgs(5, int64(7)).WillReturnRows(sqlmock.NewRows(productCols))
	mock.ExpectQuery(productExistsSQL).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	order, err := repo.ReserveAndCreateOrder(context.Background(), storage.NewOrder{UserID: 1, ProductID: 7, Quantity: 5})
	assert.Nil(t, order)
	assert.True(t, errors.Is(err, storage.ErrInsufficientStock))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveAndCreateOrder_ProductNotFound(t *testing.T) {
	repo, mock := newOrderRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(reserveStockSQL).WithArgs(1, int64(99)).WillReturnRows(sqlmock.NewRows(productCols))
	mock.ExpectQuery(productExistsSQL).WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := repo.ReserveAndCreateOrder(context.Background(), storage.NewOrder{UserID: 1, ProductID: 99, Quantity: 1})
	assert.True(t, errors.Is(err, storage.ErrProductNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveAndCreateOrder_InsertFailsRollsBack(t *testing.T) {
	repo, mock := newOrderRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(reserveStockSQL).WithArgs(1, int64(7)).
		WillReturnRows(sqlmock.NewRows(productCols).AddRow(7, "Wallet", "", "10.00", 4))
	mock.ExpectQuery(insertOrderSQL).WillReturnError(errors.New("insert failed"))
	// Откат транзакции возвращает и списанный остаток
	mock.ExpectRollback()

	_, err := repo.ReserveAndCreateOrder(context.Background(), storage.NewOrder{UserID: 1, ProductID: 7, Quantity: 1})
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachPaymentDetails(t *testing.T) {
	repo, mock := newOrderRepo(t)
	at := time.Date(2025, 3, 1, 12, 0, 1, 0, time.UTC)
	details := storage.PaymentDetails{
		PaymentID:     "inv-1",
		PaymentURL:    "https://pay.test/inv-1",
		CryptoAddress: "bc1qaddr",
		CryptoAmount:  "0.0005",
	}

	mock.ExpectExec(`UPDATE orders SET payment_id = \$1`).
		WithArgs("inv-1", "https://pay.test/inv-1", "bc1qaddr", "0.0005", at, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.AttachPaymentDetails(context.Background(), 42, details, at))

	// Повторная запись не проходит: payment_id уже установлен
	mock.ExpectExec(`UPDATE orders SET payment_id = \$1`).
		WithArgs("inv-1", "https://pay.test/inv-1", "bc1qaddr", "0.0005", at, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.AttachPaymentDetails(context.Background(), 42, details, at)
	assert.True(t, errors.Is(err, storage.ErrOrderNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCompleted_Idempotent(t *testing.T) {
	repo, mock := newOrderRepo(t)
	at := time.Date(2025, 3, 1, 12, 10, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE orders SET payment_status = 'completed', tx_hash = \$1`).
		WithArgs("abc", at, "X").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE orders SET payment_status = 'completed', tx_hash = \$1`).
		WithArgs("abc", at, "X").WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.MarkCompleted(context.Background(), "X", "abc", at)
	assert.NoError(t, err)
	assert.True(t, changed)

	// Второй вызов ничего не меняет
	changed, err = repo.MarkCompleted(context.Background(), "X", "abc", at)
	assert.NoError(t, err)
	assert.False(t, changed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailOrder_RestoresStock(t *testing.T) {
	repo, mock := newOrderRepo(t)
	at := time.Date(2025, 3, 1, 12, 0, 2, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE orders SET payment_status = 'failed'`).WithArgs(at, int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity"}).AddRow(7, 3))
	mock.ExpectExec(restoreStockSQL).WithArgs(3, int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	changed, err := repo.FailOrder(context.Background(), 42, at)
	assert.NoError(t, err)
	assert.True(t, changed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailOrder_AlreadyReleased(t *testing.T) {
	repo, mock := newOrderRepo(t)
	at := time.Date(2025, 3, 1, 12, 0, 2, 0, time.UTC)

	// Заказ уже не pending: остаток не трогаем
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE orders SET payment_status = 'failed'`).WithArgs(at, int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity"}))
	mock.ExpectRollback()

	changed, err := repo.FailOrder(context.Background(), 42, at)
	assert.NoError(t, err)
	assert.False(t, changed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireOrder_RestoreFailsRollsBack(t *testing.T) {
	repo, mock := newOrderRepo(t)
	now := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE orders SET payment_status = 'expired'`).WithArgs(now, int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity"}).AddRow(7, 3))
	mock.ExpectExec(restoreStockSQL).WithArgs(3, int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	changed, err := repo.ExpireOrder(context.Background(), 42, now)
	assert.False(t, changed)
	assert.True(t, errors.Is(err, storage.ErrProductNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByPaymentID(t *testing.T) {
	repo, mock := newOrderRepo(t)
	createdAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(orderCols).AddRow(
		42, 1, 7, "Wallet", 3, "30.00", "USD",
		"wolvpay", "pending", "X", "https://pay.test/X", "bc1qaddr",
		"0.0005", nil, createdAt.Add(30*time.Minute), createdAt, createdAt,
	)
	mock.ExpectQuery(`WHERE o\.payment_id = \$1`).WithArgs("X").WillReturnRows(rows)

	order, err := repo.GetOrderByPaymentID(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, int64(42), order.ID)
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)
	require.NotNil(t, order.PaymentID)
	assert.Equal(t, "X", *order.PaymentID)
	assert.Nil(t, order.TxHash)
	assert.Equal(t, "30", order.TotalAmount.String())
	assert.Equal(t, models.StateInvoiced, order.State(createdAt))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByID_NotFound(t *testing.T) {
	repo, mock := newOrderRepo(t)

	mock.ExpectQuery(`WHERE o\.id = \$1`).WithArgs(int64(404)).WillReturnRows(sqlmock.NewRows(orderCols))

	order, err := repo.GetOrderByID(context.Background(), 404)
	assert.Nil(t, order)
	assert.True(t, errors.Is(err, storage.ErrOrderNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAvailableProducts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	rows := sqlmock.NewRows(productCols).
		AddRow(1, "Wallet", "Cold storage", "79.00", 25).
		AddRow(2, "Plate", "", "34.50", 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, description, price, stock FROM products WHERE stock > 0")).
		WillReturnRows(rows)

	products, err := repo.ListAvailable(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 2)
	assert.Equal(t, "79", products[0].Price.String())
	assert.Equal(t, 1, products[1].Stock)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewProductRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, description, price, stock FROM products WHERE id = $1")).
		WithArgs(int64(5)).WillReturnRows(sqlmock.NewRows(productCols))

	p, err := repo.GetProductByID(context.Background(), 5)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, storage.ErrProductNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePaymentEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewPaymentEventRepository(db)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO payment_events`).
		WithArgs(int64(42), "wolvpay", "completed", `{"status":"completed"}`, at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	// Пустой payload сохраняется как пустой объект
	mock.ExpectQuery(`INSERT INTO payment_events`).
		WithArgs(int64(42), "wolvpay", "failed", `{}`, at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))

	id, err := repo.CreateEvent(context.Background(), &models.PaymentEvent{
		OrderID:   42,
		Provider:  "wolvpay",
		EventType: models.EventCompleted,
		Payload:   []byte(`{"status":"completed"}`),
		CreatedAt: at,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(9), id)

	id, err = repo.CreateEvent(context.Background(), &models.PaymentEvent{
		OrderID:   42,
		Provider:  "wolvpay",
		EventType: models.EventFailed,
		CreatedAt: at,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(10), id)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEventsByOrderID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewPaymentEventRepository(db)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "order_id", "provider", "event_type", "payload", "created_at"}).
		AddRow(1, 42, "wolvpay", "created", []byte(`{"paymentId":"X"}`), at).
		AddRow(2, 42, "wolvpay", "completed", []byte(`{"status":"completed"}`), at.Add(time.Minute))
	mock.ExpectQuery(`FROM payment_events\s+WHERE order_id = \$1`).WithArgs(int64(42)).WillReturnRows(rows)

	events, err := repo.GetEventsByOrderID(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventCreated, events[0].EventType)
	assert.JSONEq(t, `{"status":"completed"}`, string(events[1].Payload))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByUsername_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)
	query := regexp.QuoteMeta("SELECT id, username, COALESCE(email, ''), pass_hash FROM users WHERE username = $1")
	mock.ExpectQuery(query).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "pass_hash"}))

	user, err := repo.GetUserByUsername(context.Background(), "ghost")
	assert.Nil(t, user)
	assert.True(t, errors.Is(err, storage.ErrUserNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByID_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)
	query := regexp.QuoteMeta("SELECT id, username, COALESCE(email, ''), pass_hash FROM users WHERE id = $1")
	mock.ExpectQuery(query).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "pass_hash"}).
			AddRow(1, "satoshi", "", []byte("hashed")))

	user, err := repo.GetUserByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "satoshi", user.Username)
	assert.Equal(t, []byte("hashed"), user.PassHash)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewUserRepository(db)
	query := regexp.QuoteMeta("INSERT INTO users (username, email, pass_hash) VALUES ($1, $2, $3) RETURNING id")

	mock.ExpectQuery(query).WithArgs("satoshi", nil, []byte("hashed")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(query).WithArgs("satoshi", nil, []byte("hashed")).
		WillReturnError(&pq.Error{Code: "23505"})

	user, err := repo.CreateUser(context.Background(), &models.User{Username: "satoshi", PassHash: []byte("hashed")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)

	// Повторная регистрация того же имени
	_, err = repo.CreateUser(context.Background(), &models.User{Username: "satoshi", PassHash: []byte("hashed")})
	assert.True(t, errors.Is(err, storage.ErrUserExists))

	assert.NoError(t, mock.ExpectationsWereMet())
}
