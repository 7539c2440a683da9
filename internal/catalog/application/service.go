package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bazarlink/bazarlink/internal/catalog/domain"
)

// Service owns product lifecycle and the stock-ledger primitives every other
// context goes through. No stock value is ever cached across requests.
type Service struct {
	log  *slog.Logger
	repo ProductRepository
}

func NewService(log *slog.Logger, repo ProductRepository) *Service {
	return &Service{log: log, repo: repo}
}

type UpsertInput struct {
	Name            string
	Category        string
	Price           int64
	Stock           int
	ItemUnit        string
	FarmerID        string
	Bazar           string
	Image           string
	Savings         int64
	CompetitorPrice int64
}

// Upsert creates the product or, when the farmer already sells it at this
// bazar, adds the incoming stock on top of the existing quantity.
func (s *Service) Upsert(ctx context.Context, in UpsertInput) (domain.Product, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Bazar) == "" {
		return domain.Product{}, fmt.Errorf("%w: name and bazar are required", domain.ErrInvalidInput)
	}
	if in.Price < 0 || in.Stock < 0 {
		return domain.Product{}, fmt.Errorf("%w: price and stock must be non-negative", domain.ErrInvalidInput)
	}
	unit := in.ItemUnit
	if unit == "" {
		unit = "kg"
	}
	p := domain.Product{
		ID:              uuid.NewString(),
		Name:            in.Name,
		Category:        in.Category,
		Price:           in.Price,
		Stock:           in.Stock,
		ItemUnit:        unit,
		FarmerID:        in.FarmerID,
		Bazar:           in.Bazar,
		Image:           in.Image,
		Savings:         in.Savings,
		CompetitorPrice: in.CompetitorPrice,
	}
	out, err := s.repo.Upsert(ctx, p)
	if err != nil {
		return domain.Product{}, err
	}
	s.log.Info("product upserted", "product_id", out.ID, "bazar", out.Bazar, "stock", out.Stock)
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	return s.repo.List(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// AddStock is the farmer restock action.
func (s *Service) AddStock(ctx context.Context, id string, qty int) (domain.Product, error) {
	if qty <= 0 {
		return domain.Product{}, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	}
	if err := s.repo.IncrementStock(ctx, id, qty); err != nil {
		return domain.Product{}, err
	}
	return s.repo.Get(ctx, id)
}

// Reserve atomically decrements stock, failing with ErrStockConflict when a
// concurrent order got there first.
func (s *Service) Reserve(ctx context.Context, id string, qty int) error {
	ok, err := s.repo.DecrementStock(ctx, id, qty)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrStockConflict
	}
	return nil
}

// Release returns a reserved quantity to the shelf (cancellation, rollback).
func (s *Service) Release(ctx context.Context, id string, qty int) error {
	return s.repo.IncrementStock(ctx, id, qty)
}
