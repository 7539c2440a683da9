package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazarlink/bazarlink/internal/catalog/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

const productColumns = `id, name, category, price, stock, item_unit,
	COALESCE(farmer_id::text, ''), bazar, COALESCE(image, ''), savings, competitor_price, updated_at`

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Stock, &p.ItemUnit,
		&p.FarmerID, &p.Bazar, &p.Image, &p.Savings, &p.CompetitorPrice, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, err
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	return scanProduct(row)
}

func (r *Repository) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) Upsert(ctx context.Context, p domain.Product) (domain.Product, error) {
	var farmerID any
	if p.FarmerID != "" {
		farmerID = p.FarmerID
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO products (id, name, category, price, stock, item_unit, farmer_id, bazar, image, savings, competitor_price, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (name, bazar) DO UPDATE SET
			category=EXCLUDED.category,
			price=EXCLUDED.price,
			stock=products.stock + EXCLUDED.stock,
			item_unit=EXCLUDED.item_unit,
			image=EXCLUDED.image,
			savings=EXCLUDED.savings,
			competitor_price=EXCLUDED.competitor_price,
			updated_at=EXCLUDED.updated_at
		RETURNING `+productColumns,
		p.ID, p.Name, p.Category, p.Price, p.Stock, p.ItemUnit, farmerID, p.Bazar, p.Image,
		p.Savings, p.CompetitorPrice, time.Now().UTC())
	return scanProduct(row)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DecrementStock is the single concurrency-safety primitive the order flow
// relies on: one conditional UPDATE, no read-modify-write.
func (r *Repository) DecrementStock(ctx context.Context, id string, qty int) (bool, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1 AND stock >= $2`,
		id, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repository) IncrementStock(ctx context.Context, id string, qty int) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`,
		id, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
