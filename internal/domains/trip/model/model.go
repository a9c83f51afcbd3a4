package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mlaku/shared/model"
)

const (
	TableName  = "trips"
	EntityName = "trip"

	FieldID              = "id"
	FieldTitle           = "title"
	FieldDescription     = "description"
	FieldDestination     = "destination"
	FieldStartDate       = "start_date"
	FieldEndDate         = "end_date"
	FieldMaxCapacity     = "max_capacity"
	FieldCurrentBookings = "current_bookings"
	FieldPrice           = "price"
	FieldStatus          = "status"
	FieldOwnerID         = "owner_id"
	FieldImageURL        = "image_url"

	ConstraintDates    = "trips_dates_check"
	ConstraintCapacity = "trips_capacity_check"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Destination is stored as a JSONB document.
type Destination struct {
	Name        string       `json:"name"`
	Location    string       `json:"location"`
	Description string       `json:"description"`
	Highlights  []string     `json:"highlights"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

func (d Destination) Value() (driver.Value, error) {
	if d.Highlights == nil {
		d.Highlights = []string{}
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode destination: %w", err)
	}

	return raw, nil
}

func (d *Destination) Scan(src any) error {
	var raw []byte

	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		*d = Destination{}

		return nil
	default:
		return errors.New("destination: unsupported source type")
	}

	if err := json.Unmarshal(raw, d); err != nil {
		return fmt.Errorf("failed to decode destination: %w", err)
	}

	return nil
}

type Trip struct {
	ID              string      `db:"id"`
	Title           string      `db:"title"`
	Description     string      `db:"description"`
	Destination     Destination `db:"destination"`
	StartDate       time.Time   `db:"start_date"`
	EndDate         time.Time   `db:"end_date"`
	MaxCapacity     int         `db:"max_capacity"`
	CurrentBookings int         `db:"current_bookings"`
	Price           float64     `db:"price"`
	Status          Status      `db:"status"`
	OwnerID         string      `db:"owner_id"`
	ImageURL        *string     `db:"image_url"`
	model.Metadata
}

// Available reports whether the trip can take another booking.
func (t Trip) Available() bool {
	return t.Status == StatusActive && t.CurrentBookings < t.MaxCapacity
}

func (t Trip) RemainingCapacity() int {
	return max(t.MaxCapacity-t.CurrentBookings, 0)
}
