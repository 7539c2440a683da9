package application

import (
	"context"

	"github.com/bazarlink/bazarlink/internal/account/domain"
	"github.com/bazarlink/bazarlink/internal/geo"
)

type UserRepository interface {
	Create(ctx context.Context, u domain.User) error
	Get(ctx context.Context, id string) (domain.User, error)
	GetByIdentifier(ctx context.Context, identifier string, role domain.Role) (domain.User, error)
	UpdateLocation(ctx context.Context, id string, loc geo.Point) error
	SetStatus(ctx context.Context, id string, status domain.Availability) error
}
