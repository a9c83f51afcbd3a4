package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"mlaku/shared/model"
)

const (
	TableName  = "bookings"
	EntityName = "booking"

	FieldID     = "id"
	FieldTripID = "trip_id"
	FieldUserID = "user_id"
	FieldStatus = "status"
	FieldNotes  = "notes"

	ConstraintTripUser = "bookings_trip_user_key"
	ConstraintTrip     = "bookings_trip_id_fkey"
)

var (
	ErrTripNotFound      = errors.New("trip not found")
	ErrTripInactive      = errors.New("trip is not active")
	ErrTripFull          = errors.New("trip is fully booked")
	ErrDuplicateBooking  = errors.New("booking already exists for this trip")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrInvalidTransition = errors.New("invalid booking status transition")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
	StatusCancelled: {StatusConfirmed},
}

// ActiveStatuses consume one unit of trip capacity.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))

	switch status {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return status, nil
	}

	return "", fmt.Errorf("unknown booking status %q", value)
}

func (s Status) String() string {
	return string(s)
}

// Active reports whether a booking in this status holds a capacity slot.
func (s Status) Active() bool {
	return slices.Contains(ActiveStatuses, s)
}

func (s Status) CanTransition(to Status) bool {
	return slices.Contains(transitions[s], to)
}

// CapacityDelta is the change to the trip counter when a booking moves
// from one status to another.
func CapacityDelta(from, to Status) int {
	switch {
	case !from.Active() && to.Active():
		return 1
	case from.Active() && !to.Active():
		return -1
	default:
		return 0
	}
}

type Booking struct {
	ID     string `db:"id"`
	TripID string `db:"trip_id"`
	UserID string `db:"user_id"`
	Status Status `db:"status"`
	Notes  string `db:"notes"`
	model.Metadata
}
