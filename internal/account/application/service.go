package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bazarlink/bazarlink/internal/account/domain"
	"github.com/bazarlink/bazarlink/internal/geo"
)

type Service struct {
	log  *slog.Logger
	repo UserRepository
}

func NewService(log *slog.Logger, repo UserRepository) *Service {
	return &Service{log: log, repo: repo}
}

type RegisterInput struct {
	Name        string
	Identifier  string
	Password    string
	Role        domain.Role
	Address     string
	Bazar       string
	VehicleType string
	ServiceArea string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Identifier) == "" {
		return domain.User{}, fmt.Errorf("%w: name and identifier are required", domain.ErrInvalidInput)
	}
	if len(in.Password) < 6 {
		return domain.User{}, fmt.Errorf("%w: password too short", domain.ErrInvalidInput)
	}
	if !in.Role.Valid() {
		return domain.User{}, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, in.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	u := domain.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Identifier:   in.Identifier,
		PasswordHash: string(hash),
		Role:         in.Role,
		Address:      in.Address,
		Bazar:        in.Bazar,
		VehicleType:  in.VehicleType,
		ServiceArea:  in.ServiceArea,
		Status:       domain.Available,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return domain.User{}, err
	}
	s.log.Info("user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// Authenticate verifies the password against the stored bcrypt hash. Lookup
// failure and hash mismatch collapse into the same error so callers cannot
// enumerate which identifiers exist.
func (s *Service) Authenticate(ctx context.Context, identifier, password string, role domain.Role) (domain.User, error) {
	u, err := s.repo.GetByIdentifier(ctx, identifier, role)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.User, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) UpdateLocation(ctx context.Context, id string, lng, lat float64) error {
	loc, err := geo.NewPoint(lng, lat)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return s.repo.UpdateLocation(ctx, id, loc)
}

func (s *Service) SetAvailability(ctx context.Context, id string, status domain.Availability) error {
	return s.repo.SetStatus(ctx, id, status)
}

// FarmerLocation reports the farmer's last known position for pickup
// derivation. A farmer without a recorded location yields (nil, nil).
func (s *Service) FarmerLocation(ctx context.Context, farmerID string) (*geo.Point, error) {
	u, err := s.repo.Get(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	return u.CurrentLocation, nil
}
