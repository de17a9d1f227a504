package booking

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError carries the first failing rule as a message fit for clients.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var messages = map[string]string{
	"CustomerName.required":  "Name is required",
	"CustomerPhone.min":      "Valid phone number is required",
	"CustomerEmail.email":    "Invalid email",
	"ServiceType.oneof":      "Invalid service type. Expected 'repair' | 'maintenance' | 'rent'",
	"ACType.oneof":           "Invalid AC type. Expected 'window' | 'split' | 'central'",
	"Address.min":            "Complete address is required",
	"PreferredDate.required": "Date is required",
	"PreferredTime.required": "Time is required",
	"ID.required":            "Booking id is required",
	"Status.oneof":           "Invalid status. Expected 'pending' | 'confirmed' | 'completed' | 'cancelled'",
}

// Validate checks nb and returns a *ValidationError for the first broken rule.
func (nb NewBooking) Validate() error {
	return check(nb)
}

// Validate checks u and returns a *ValidationError for the first broken rule.
func (u StatusUpdate) Validate() error {
	return check(u)
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	first := verrs[0]
	msg, ok := messages[first.StructField()+"."+first.Tag()]
	if !ok {
		msg = "Invalid input"
	}
	return &ValidationError{Field: first.Field(), Message: msg}
}
