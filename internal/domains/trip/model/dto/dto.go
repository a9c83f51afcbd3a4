package dto

import (
	"mime/multipart"
	"time"

	"github.com/google/uuid"

	bookingModel "mlaku/internal/domains/booking/model"
	"mlaku/internal/domains/trip/model"
	userDto "mlaku/internal/domains/user/model/dto"
	"mlaku/shared/constant"
	gDto "mlaku/shared/dto"
	"mlaku/shared/failure"
	gModel "mlaku/shared/model"
	"mlaku/shared/timezone"
)

const errDateOrder = "startDate must not be after endDate"

type CoordinatesRequest struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

type DestinationRequest struct {
	Name        string              `json:"name"                  validate:"required,max=200"`
	Location    string              `json:"location"              validate:"required,max=200"`
	Description string              `json:"description"           validate:"max=2000"`
	Highlights  []string            `json:"highlights"            validate:"omitempty,max=20,dive,required,max=200"`
	Coordinates *CoordinatesRequest `json:"coordinates,omitempty"`
}

func (d DestinationRequest) ToModel() model.Destination {
	dest := model.Destination{
		Name:        d.Name,
		Location:    d.Location,
		Description: d.Description,
		Highlights:  d.Highlights,
	}

	if d.Coordinates != nil {
		dest.Coordinates = &model.Coordinates{Lat: d.Coordinates.Lat, Lng: d.Coordinates.Lng}
	}

	return dest
}

type CreateTripRequest struct {
	Title       string              `json:"title"       validate:"required,max=200"`
	Description string              `json:"description" validate:"required,max=5000"`
	Destination *DestinationRequest `json:"destination" validate:"required"`
	StartDate   string              `json:"startDate"   validate:"required,utc_iso8601" example:"2026-02-10T08:00:00Z"`
	EndDate     string              `json:"endDate"     validate:"required,utc_iso8601" example:"2026-02-14T17:00:00Z"`
	MaxCapacity int                 `json:"maxCapacity" validate:"required,gt=0,lte=100000"`
	Price       *float64            `json:"price"       validate:"required,gte=0"`
	Status      string              `json:"status"      validate:"omitempty,oneof=active inactive" enums:"active,inactive"`
}

// Schedule parses and orders the requested dates.
func (r CreateTripRequest) Schedule() (time.Time, time.Time, error) {
	return parseSchedule(r.StartDate, r.EndDate)
}

func (r CreateTripRequest) ToModel(ownerID string, start, end time.Time) model.Trip {
	now := timezone.Now()

	status := model.Status(r.Status)
	if status == "" {
		status = model.StatusActive
	}

	return model.Trip{
		ID:          uuid.NewString(),
		Title:       r.Title,
		Description: r.Description,
		Destination: r.Destination.ToModel(),
		StartDate:   start,
		EndDate:     end,
		MaxCapacity: r.MaxCapacity,
		Price:       *r.Price,
		Status:      status,
		OwnerID:     ownerID,
		Metadata: gModel.Metadata{
			CreatedAt:  now,
			ModifiedAt: now,
			CreatedBy:  ownerID,
			ModifiedBy: ownerID,
		},
	}
}

type UpdateTripRequest struct {
	Title       *string             `json:"title,omitempty"       validate:"omitempty,min=1,max=200"`
	Description *string             `json:"description,omitempty" validate:"omitempty,min=1,max=5000"`
	Destination *DestinationRequest `json:"destination,omitempty"`
	StartDate   *string             `json:"startDate,omitempty"   validate:"omitempty,utc_iso8601"`
	EndDate     *string             `json:"endDate,omitempty"     validate:"omitempty,utc_iso8601"`
	MaxCapacity *int                `json:"maxCapacity,omitempty" validate:"omitempty,gt=0,lte=100000"`
	Price       *float64            `json:"price,omitempty"       validate:"omitempty,gte=0"`
	Status      *string             `json:"status,omitempty"      validate:"omitempty,oneof=active inactive" enums:"active,inactive"`
}

// UpdateTripFields is the column set of a partial trip update.
type UpdateTripFields struct {
	Title       *string            `db:"title"`
	Description *string            `db:"description"`
	Destination *model.Destination `db:"destination"`
	StartDate   *time.Time         `db:"start_date"`
	EndDate     *time.Time         `db:"end_date"`
	MaxCapacity *int               `db:"max_capacity"`
	Price       *float64           `db:"price"`
	Status      *model.Status      `db:"status"`
}

// ToFields merges the request over current and checks the resulting schedule.
func (r UpdateTripRequest) ToFields(current model.Trip) (UpdateTripFields, error) {
	fields := UpdateTripFields{
		Title:       r.Title,
		Description: r.Description,
		MaxCapacity: r.MaxCapacity,
		Price:       r.Price,
	}

	if r.Destination != nil {
		dest := r.Destination.ToModel()
		fields.Destination = &dest
	}

	if r.Status != nil {
		status := model.Status(*r.Status)
		fields.Status = &status
	}

	start, end := current.StartDate, current.EndDate

	if r.StartDate != nil {
		parsed, err := timezone.ParseUTC(*r.StartDate)
		if err != nil {
			return fields, dateFailure("startDate")
		}

		start = parsed
		fields.StartDate = &start
	}

	if r.EndDate != nil {
		parsed, err := timezone.ParseUTC(*r.EndDate)
		if err != nil {
			return fields, dateFailure("endDate")
		}

		end = parsed
		fields.EndDate = &end
	}

	if start.After(end) {
		return fields, failure.Validation(errDateOrder, failure.FieldError{Field: "startDate", Message: errDateOrder})
	}

	return fields, nil
}

type TripResponse struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Destination     model.Destination `json:"destination"`
	StartDate       string            `json:"startDate"`
	EndDate         string            `json:"endDate"`
	MaxCapacity     int               `json:"maxCapacity"`
	CurrentBookings int               `json:"currentBookings"`
	AvailableSlots  int               `json:"availableSlots"`
	Price           float64           `json:"price"`
	Status          model.Status      `json:"status"          swaggertype:"string" enums:"active,inactive"`
	OwnerID         string            `json:"ownerId"`
	ImageURL        *string           `json:"imageUrl,omitempty"`
	gDto.Metadata
}

func (r *TripResponse) FromModel(m model.Trip) {
	r.ID = m.ID
	r.Title = m.Title
	r.Description = m.Description
	r.Destination = m.Destination
	r.StartDate = m.StartDate.UTC().Format(constant.DateFormat)
	r.EndDate = m.EndDate.UTC().Format(constant.DateFormat)
	r.MaxCapacity = m.MaxCapacity
	r.CurrentBookings = m.CurrentBookings
	r.AvailableSlots = m.RemainingCapacity()
	r.Price = m.Price
	r.Status = m.Status
	r.OwnerID = m.OwnerID
	r.ImageURL = m.ImageURL
	r.Metadata.FromModel(m.Metadata)
}

func FromModels(models []model.Trip) []TripResponse {
	res := make([]TripResponse, 0, len(models))

	for _, m := range models {
		var item TripResponse
		item.FromModel(m)
		res = append(res, item)
	}

	return res
}

type BookingSummary struct {
	ID        string              `json:"id"`
	UserID    string              `json:"userId"`
	Status    bookingModel.Status `json:"status"    swaggertype:"string"`
	CreatedAt string              `json:"createdAt"`
}

// TripDetailResponse lists at most gDto.MaxLimit of the newest bookings.
// BookingsTotal counts all of them and BookingsTruncated marks a cut list.
type TripDetailResponse struct {
	TripResponse
	Owner             *userDto.UserSummary `json:"owner"`
	Bookings          []BookingSummary     `json:"bookings"`
	BookingsTotal     int                  `json:"bookingsTotal"`
	BookingsTruncated bool                 `json:"bookingsTruncated"`
}

func (r *TripDetailResponse) SetBookings(bookings []bookingModel.Booking, total int) {
	r.Bookings = make([]BookingSummary, 0, len(bookings))
	r.BookingsTotal = max(total, len(bookings))
	r.BookingsTruncated = r.BookingsTotal > len(bookings)

	for _, b := range bookings {
		r.Bookings = append(r.Bookings, BookingSummary{
			ID:        b.ID,
			UserID:    b.UserID,
			Status:    b.Status,
			CreatedAt: timezone.Format(b.CreatedAt, constant.DateFormat),
		})
	}
}

// TripSummary is the trip view embedded in booking responses.
type TripSummary struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	StartDate string       `json:"startDate"`
	EndDate   string       `json:"endDate"`
	Price     float64      `json:"price"`
	Status    model.Status `json:"status" swaggertype:"string"`
}

func (s *TripSummary) FromModel(m model.Trip) {
	s.ID = m.ID
	s.Title = m.Title
	s.StartDate = m.StartDate.UTC().Format(constant.DateFormat)
	s.EndDate = m.EndDate.UTC().Format(constant.DateFormat)
	s.Price = m.Price
	s.Status = m.Status
}

type UploadImageRequest struct {
	Image *multipart.FileHeader `json:"image" validate:"required,mimetypes=image/jpeg image/png image/webp,maxfilesize=5"`
}

type UpdateImageFields struct {
	ImageURL string `db:"image_url"`
}

type ReconcileResponse struct {
	TripID   string `json:"tripId"`
	Previous int    `json:"previous"`
	Current  int    `json:"current"`
	Drifted  bool   `json:"drifted"`
}

// AvailableFilter selects active trips with at least one free slot.
func AvailableFilter() gDto.FilterGroup {
	return gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: model.FieldStatus, Operator: gDto.FilterOperatorEq, Value: model.StatusActive, Table: model.TableName},
			gDto.Filter{Operator: gDto.FilterPlainQuery, Value: model.TableName + ".current_bookings < " + model.TableName + ".max_capacity"},
		},
	}
}

func OwnerFilter(ownerID string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{Field: model.FieldOwnerID, Operator: gDto.FilterOperatorEq, Value: ownerID, Table: model.TableName},
		},
	}
}

func parseSchedule(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := timezone.ParseUTC(startDate)
	if err != nil {
		return start, start, dateFailure("startDate")
	}

	end, err := timezone.ParseUTC(endDate)
	if err != nil {
		return start, end, dateFailure("endDate")
	}

	if start.After(end) {
		return start, end, failure.Validation(errDateOrder, failure.FieldError{Field: "startDate", Message: errDateOrder})
	}

	return start, end, nil
}

func dateFailure(field string) error {
	msg := field + " must be an ISO 8601 UTC timestamp (e.g., 2025-02-10T12:00:00Z)"

	return failure.Validation(msg, failure.FieldError{Field: field, Message: msg})
}
