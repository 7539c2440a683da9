package domain

import (
	"errors"
	"time"

	"github.com/bazarlink/bazarlink/internal/geo"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleFarmer   Role = "farmer"
	RoleDelivery Role = "delivery"
)

type Availability string

const (
	Available Availability = "available"
	Busy      Availability = "busy"
)

// User covers all three actor kinds. Bazar is set for farmers, vehicle type
// and service area for delivery partners.
type User struct {
	ID                string
	Name              string
	Identifier        string // email or phone
	PasswordHash      string
	Role              Role
	Address           string
	Bazar             string
	VehicleType       string
	ServiceArea       string
	CurrentLocation   *geo.Point
	LocationUpdatedAt time.Time
	Status            Availability
	CreatedAt         time.Time
}

var (
	ErrNotFound           = errors.New("user not found")
	ErrAlreadyExists      = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid user input")
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleFarmer, RoleDelivery:
		return true
	}
	return false
}
