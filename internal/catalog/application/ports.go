package application

import (
	"context"

	"github.com/bazarlink/bazarlink/internal/catalog/domain"
)

type ProductRepository interface {
	Get(ctx context.Context, id string) (domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
	// Upsert inserts the product or, when (name, bazar) already exists,
	// refreshes its attributes and adds the incoming stock to the current one.
	Upsert(ctx context.Context, p domain.Product) (domain.Product, error)
	Delete(ctx context.Context, id string) error
	// DecrementStock subtracts qty only while stock >= qty and reports
	// whether the condition held.
	DecrementStock(ctx context.Context, id string, qty int) (bool, error)
	IncrementStock(ctx context.Context, id string, qty int) error
}
