package dto

import (
	"github.com/google/uuid"

	"mlaku/internal/domains/booking/model"
	tripModel "mlaku/internal/domains/trip/model"
	tripDto "mlaku/internal/domains/trip/model/dto"
	gDto "mlaku/shared/dto"
	gModel "mlaku/shared/model"
	"mlaku/shared/timezone"
)

type CreateBookingRequest struct {
	TripID string `json:"tripId" validate:"required,uuid"`
	Notes  string `json:"notes"  validate:"max=1000"`
	// UserID books on behalf of a tourist. Staff and owners only.
	UserID string `json:"userId,omitempty" validate:"omitempty,uuid"`
}

func (r CreateBookingRequest) ToModel(userID, actor string, status model.Status) model.Booking {
	now := timezone.Now()

	return model.Booking{
		ID:     uuid.NewString(),
		TripID: r.TripID,
		UserID: userID,
		Status: status,
		Notes:  r.Notes,
		Metadata: gModel.Metadata{
			CreatedAt:  now,
			ModifiedAt: now,
			CreatedBy:  actor,
			ModifiedBy: actor,
		},
	}
}

type UpdateBookingRequest struct {
	Status *string `json:"status,omitempty" validate:"omitempty,oneof=pending confirmed cancelled completed" enums:"pending,confirmed,cancelled,completed"`
	Notes  *string `json:"notes,omitempty"  validate:"omitempty,max=1000"`
}

// UpdateNotesFields keeps a set but empty note so that notes can be cleared.
type UpdateNotesFields struct {
	Notes *string `db:"notes"`
}

type BookingResponse struct {
	ID     string               `json:"id"`
	TripID string               `json:"tripId"`
	UserID string               `json:"userId"`
	Status model.Status         `json:"status" swaggertype:"string" enums:"pending,confirmed,cancelled,completed"`
	Notes  string               `json:"notes"`
	Trip   *tripDto.TripSummary `json:"trip,omitempty"`
	gDto.Metadata
}

func (r *BookingResponse) FromModel(m model.Booking) {
	r.ID = m.ID
	r.TripID = m.TripID
	r.UserID = m.UserID
	r.Status = m.Status
	r.Notes = m.Notes
	r.Metadata.FromModel(m.Metadata)
}

func (r *BookingResponse) SetTrip(trip tripModel.Trip) {
	if trip.ID == "" {
		return
	}

	r.Trip = &tripDto.TripSummary{}
	r.Trip.FromModel(trip)
}

// FromModels attaches the trip summary of each booking found in trips.
func FromModels(models []model.Booking, trips map[string]tripModel.Trip) []BookingResponse {
	res := make([]BookingResponse, 0, len(models))

	for _, m := range models {
		var item BookingResponse
		item.FromModel(m)
		item.SetTrip(trips[m.TripID])
		res = append(res, item)
	}

	return res
}

type ListBookingsQuery struct {
	TripID string `json:"tripId" validate:"omitempty,uuid"`
	Status string `json:"status" validate:"omitempty,oneof=pending confirmed cancelled completed"`
	UserID string `json:"-"`
}

func (q ListBookingsQuery) ToFilter() gDto.FilterGroup {
	filter := gDto.FilterGroup{Operator: gDto.FilterGroupOperatorAnd}

	if q.TripID != "" {
		filter.Filters = append(filter.Filters, gDto.Filter{
			Field:    model.FieldTripID,
			Operator: gDto.FilterOperatorEq,
			Value:    q.TripID,
			Table:    model.TableName,
		})
	}

	if q.Status != "" {
		filter.Filters = append(filter.Filters, gDto.Filter{
			Field:    model.FieldStatus,
			Operator: gDto.FilterOperatorEq,
			Value:    q.Status,
			Table:    model.TableName,
		})
	}

	if q.UserID != "" {
		filter.Filters = append(filter.Filters, gDto.Filter{
			Field:    model.FieldUserID,
			Operator: gDto.FilterOperatorEq,
			Value:    q.UserID,
			Table:    model.TableName,
		})
	}

	return filter
}

// StatusChangedEvent is published whenever a booking changes status.
type StatusChangedEvent struct {
	BookingID string       `json:"bookingId"`
	TripID    string       `json:"tripId"`
	UserID    string       `json:"userId"`
	From      model.Status `json:"from,omitempty"`
	To        model.Status `json:"to"`
	Actor     string       `json:"actor"`
}
