package models

import "github.com/shopspring/decimal"

// Product товар витрины
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"` // цена в валюте витрины
	Stock       int             `json:"stock"`
}
