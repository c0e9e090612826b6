package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/linemk/crypto-shop/internal/domain/models"
	"github.com/linemk/crypto-shop/internal/storage"
)

type ProductLister interface {
	ListAvailable(ctx context.Context) ([]*models.Product, error)
}

// ProductService витрина: товары в наличии
type ProductService struct {
	log      *slog.Logger
	products storage.ProductStorage
}

func NewProductService(log *slog.Logger, products storage.ProductStorage) *ProductService {
	return &ProductService{log: log, products: products}
}

func (s *ProductService) ListAvailable(ctx context.Context) ([]*models.Product, error) {
	const op = "service.ProductService.ListAvailable"

	products, err := s.products.ListAvailable(ctx)
	if err != nil {
		s.log.Error("failed to list products", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, ErrInternal)
	}
	if products == nil {
		products = []*models.Product{}
	}
	return products, nil
}
