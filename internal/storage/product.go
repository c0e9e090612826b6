package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/crypto-shop/internal/domain/models"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ProductStorage описывает методы для работы с товарами и их остатками.
// Остаток меняется только здесь.
type ProductStorage interface {
	// ListAvailable возвращает товары, которые есть в наличии.
	ListAvailable(ctx context.Context) ([]*models.Product, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	// ReserveStock списывает остаток одним условным UPDATE внутри транзакции.
	ReserveStock(ctx context.Context, tx *sql.Tx, id int64, quantity int) (*models.Product, error)
	// RestoreStock возвращает списанный остаток (компенсация).
	RestoreStock(ctx context.Context, tx *sql.Tx, id int64, quantity int) error
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт новый репозиторий товаров.
func NewProductRepository(db *sql.DB) ProductStorage {
	return &productRepository{db: db}
}

func (r *productRepository) ListAvailable(ctx context.Context) ([]*models.Product, error) {
	query := "SELECT id, name, description, price, stock FROM products WHERE stock > 0 ORDER BY id"
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p := &models.Product{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *productRepository) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	p := &models.Product{}
	row := r.db.QueryRowContext(ctx, "SELECT id, name, description, price, stock FROM products WHERE id = $1", id)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

// ReserveStock - проверка и списание за один запрос, поэтому
// параллельные покупки не могут увести остаток ниже нуля.
func (r *productRepository) ReserveStock(ctx context.Context, tx *sql.Tx, id int64, quantity int) (*models.Product, error) {
	p := &models.Product{}
	query := `UPDATE products SET stock = stock - $1
	          WHERE id = $2 AND stock >= $1
	          RETURNING id, name, description, price, stock`
	row := tx.QueryRowContext(ctx, query, quantity, id)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to reserve stock: %w", err)
		}
		// ни одной строки: либо товара нет, либо не хватает остатка
		var exists bool
		if err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)", id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check product: %w", err)
		}
		if !exists {
			return nil, ErrProductNotFound
		}
		return nil, ErrInsufficientStock
	}
	return p, nil
}

func (r *productRepository) RestoreStock(ctx context.Context, tx *sql.Tx, id int64, quantity int) error {
	res, err := tx.ExecContext(ctx, "UPDATE products SET stock = stock + $1 WHERE id = $2", quantity, id)
	if err != nil {
		return fmt.Errorf("failed to restore stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}
