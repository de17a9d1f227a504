// Package booking holds the booking model, its validation rules and the
// stores that persist it.
package booking

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

const (
	ServiceRepair      = "repair"
	ServiceMaintenance = "maintenance"
	ServiceRent        = "rent"

	ACWindow  = "window"
	ACSplit   = "split"
	ACCentral = "central"
)

var ErrNotFound = errors.New("booking not found")

// Booking is a stored booking. JSON names follow the bookings table columns.
type Booking struct {
	ID            int64      `json:"id"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	CustomerEmail *string    `json:"customer_email"`
	ServiceType   string     `json:"service_type"`
	ACType        string     `json:"ac_type"`
	Address       string     `json:"address"`
	PreferredDate string     `json:"preferred_date"`
	PreferredTime string     `json:"preferred_time"`
	Status        Status     `json:"status"`
	Notes         *string    `json:"notes"`
	UserID        *string    `json:"user_id"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
}

// NewBooking is the customer-supplied part of a booking.
type NewBooking struct {
	CustomerName  string `json:"customer_name" validate:"required"`
	CustomerPhone string `json:"customer_phone" validate:"min=10"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
	ServiceType   string `json:"service_type" validate:"oneof=repair maintenance rent"`
	ACType        string `json:"ac_type" validate:"oneof=window split central"`
	Address       string `json:"address" validate:"min=5"`
	PreferredDate string `json:"preferred_date" validate:"required"`
	PreferredTime string `json:"preferred_time" validate:"required"`
	Notes         string `json:"notes"`

	// UserID is set from a verified customer token, never from the body.
	UserID string `json:"-"`
}

// StatusUpdate is the admin request to move a booking to another status.
type StatusUpdate struct {
	ID     *int64 `json:"id" validate:"required"`
	Status Status `json:"status" validate:"oneof=pending confirmed completed cancelled"`
}

// Store persists bookings. List returns newest first. Get and UpdateStatus
// return ErrNotFound for unknown ids.
type Store interface {
	Create(ctx context.Context, nb NewBooking) (int64, error)
	List(ctx context.Context) ([]Booking, error)
	Get(ctx context.Context, id int64) (Booking, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	Close() error
}

// newRecord builds the stored form of nb. Empty optional fields become nil.
func newRecord(nb NewBooking, id int64, now time.Time) Booking {
	return Booking{
		ID:            id,
		CustomerName:  nb.CustomerName,
		CustomerPhone: nb.CustomerPhone,
		CustomerEmail: optional(nb.CustomerEmail),
		ServiceType:   nb.ServiceType,
		ACType:        nb.ACType,
		Address:       nb.Address,
		PreferredDate: nb.PreferredDate,
		PreferredTime: nb.PreferredTime,
		Status:        StatusPending,
		Notes:         optional(nb.Notes),
		UserID:        optional(nb.UserID),
		CreatedAt:     now.UTC(),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
