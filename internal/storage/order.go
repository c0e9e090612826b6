package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/linemk/crypto-shop/internal/domain/models"
	"github.com/shopspring/decimal"
)

var ErrOrderNotFound = errors.New("order not found")

// NewOrder данные для создания заказа
type NewOrder struct {
	UserID    int64
	ProductID int64
	Quantity  int
	Currency  string
	Provider  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// PaymentDetails данные счёта провайдера
type PaymentDetails struct {
	PaymentID     string
	PaymentURL    string
	CryptoAddress string
	CryptoAmount  string
}

// OrderStorage описывает методы для работы с заказами.
// Все смены статуса - условные UPDATE от исходного статуса.
type OrderStorage interface {
	// ReserveAndCreateOrder списывает остаток и создаёт заказ в одной транзакции.
	ReserveAndCreateOrder(ctx context.Context, o NewOrder) (*models.Order, error)
	// AttachPaymentDetails записывает данные счёта один раз.
	AttachPaymentDetails(ctx context.Context, orderID int64, d PaymentDetails, at time.Time) error
	// MarkCompleted переводит pending-заказ в completed; false, если переход не выполнен.
	MarkCompleted(ctx context.Context, paymentID, txHash string, at time.Time) (bool, error)
	// FailOrder помечает неоплачиваемый заказ как failed и возвращает остаток.
	FailOrder(ctx context.Context, orderID int64, at time.Time) (bool, error)
	// ExpireOrder помечает просроченный pending-заказ как expired и возвращает остаток.
	ExpireOrder(ctx context.Context, orderID int64, now time.Time) (bool, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)
}

// orderRepository - конкретная реализация OrderStorage.
type orderRepository struct {
	db       *sql.DB
	log      *slog.Logger
	products ProductStorage
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *sql.DB, log *slog.Logger, products ProductStorage) OrderStorage {
	return &orderRepository{db: db, log: log, products: products}
}

const orderColumns = `o.id, o.user_id, o.product_id, p.name, o.quantity, o.total_amount, o.currency,
		o.payment_provider, o.payment_status, o.payment_id, o.payment_url, o.crypto_address,
		o.crypto_amount, o.tx_hash, o.expires_at, o.created_at, o.updated_at`

func (r *orderRepository) ReserveAndCreateOrder(ctx context.Context, o NewOrder) (*models.Order, error) {
	const op = "storage.OrderRepository.ReserveAndCreateOrder"
	logger := r.log.With(slog.String("op", op), slog.Int64("productID", o.ProductID), slog.Int("quantity", o.Quantity))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	product, err := r.products.ReserveStock(ctx, tx, o.ProductID, o.Quantity)
	if err != nil {
		rollback(tx, logger)
		return nil, err
	}

	// сумма фиксируется один раз по цене, прочитанной вместе со списанием
	total := product.Price.Mul(decimal.NewFromInt(int64(o.Quantity)))

	var id int64
	query := `INSERT INTO orders (user_id, product_id, quantity, total_amount, currency, payment_provider,
	          payment_status, expires_at, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id`
	err = tx.QueryRowContext(ctx, query,
		o.UserID, o.ProductID, o.Quantity, total, o.Currency, o.Provider,
		string(models.PaymentPending), o.ExpiresAt, o.CreatedAt,
	).Scan(&id)
	if err != nil {
		rollback(tx, logger)
		return nil, fmt.Errorf("%s: failed to create order: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	return &models.Order{
		ID:              id,
		UserID:          o.UserID,
		ProductID:       o.ProductID,
		ProductName:     product.Name,
		Quantity:        o.Quantity,
		TotalAmount:     total,
		Currency:        o.Currency,
		PaymentProvider: o.Provider,
		PaymentStatus:   models.PaymentPending,
		ExpiresAt:       o.ExpiresAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.CreatedAt,
	}, nil
}

func (r *orderRepository) AttachPaymentDetails(ctx context.Context, orderID int64, d PaymentDetails, at time.Time) error {
	query := `UPDATE orders SET payment_id = $1, payment_url = $2, crypto_address = $3, crypto_amount = $4, updated_at = $5
	          WHERE id = $6 AND payment_id IS NULL AND payment_status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, d.PaymentID, d.PaymentURL, d.CryptoAddress, d.CryptoAmount, at, orderID)
	if err != nil {
		return fmt.Errorf("failed to attach payment details: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) MarkCompleted(ctx context.Context, paymentID, txHash string, at time.Time) (bool, error) {
	query := `UPDATE orders SET payment_status = 'completed', tx_hash = $1, updated_at = $2
	          WHERE payment_id = $3 AND payment_status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, txHash, at, paymentID)
	if err != nil {
		return false, fmt.Errorf("failed to mark order completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *orderRepository) FailOrder(ctx context.Context, orderID int64, at time.Time) (bool, error) {
	query := `UPDATE orders SET payment_status = 'failed', updated_at = $1
	          WHERE id = $2 AND payment_status = 'pending' AND payment_id IS NULL
	          RETURNING product_id, quantity`
	return r.releaseOrder(ctx, "storage.OrderRepository.FailOrder", query, at, orderID)
}

func (r *orderRepository) ExpireOrder(ctx context.Context, orderID int64, now time.Time) (bool, error) {
	query := `UPDATE orders SET payment_status = 'expired', updated_at = $1
	          WHERE id = $2 AND payment_status = 'pending' AND expires_at <= $1
	          RETURNING product_id, quantity`
	return r.releaseOrder(ctx, "storage.OrderRepository.ExpireOrder", query, now, orderID)
}

// releaseOrder переводит заказ в терминальный статус и возвращает остаток
// в той же транзакции. Остаток возвращается ровно один раз: повторный вызов
// не находит pending-строку.
func (r *orderRepository) releaseOrder(ctx context.Context, op, query string, at time.Time, orderID int64) (bool, error) {
	logger := r.log.With(slog.String("op", op), slog.Int64("orderID", orderID))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	var productID int64
	var quantity int
	if err := tx.QueryRowContext(ctx, query, at, orderID).Scan(&productID, &quantity); err != nil {
		rollback(tx, logger)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%s: failed to update order: %w", op, err)
	}

	if err := r.products.RestoreStock(ctx, tx, productID, quantity); err != nil {
		rollback(tx, logger)
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}
	return true, nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders o
		JOIN products p ON o.product_id = p.id
		WHERE o.id = $1`
	return scanOrder(r.db.QueryRowContext(ctx, query, id))
}

func (r *orderRepository) GetOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders o
		JOIN products p ON o.product_id = p.id
		WHERE o.payment_id = $1`
	return scanOrder(r.db.QueryRowContext(ctx, query, paymentID))
}

func scanOrder(row *sql.Row) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(&o.ID, &o.UserID, &o.ProductID, &o.ProductName, &o.Quantity, &o.TotalAmount, &o.Currency,
		&o.PaymentProvider, &o.PaymentStatus, &o.PaymentID, &o.PaymentURL, &o.CryptoAddress,
		&o.CryptoAmount, &o.TxHash, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

func rollback(tx *sql.Tx, logger *slog.Logger) {
	if rbErr := tx.Rollback(); rbErr != nil {
		logger.Error("transaction rollback failed", slog.Any("error", rbErr))
	}
}
