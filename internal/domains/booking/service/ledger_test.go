package service_test

import (
	"context"
	"sync"

	"mlaku/internal/domains/booking/model"
	tripModel "mlaku/internal/domains/trip/model"
	gDto "mlaku/shared/dto"
)

type tripState struct {
	status  tripModel.Status
	current int
	max     int
}

// ledger is an in-memory repository.Booking. The mutex stands in for the
// conditional update and row locks of the postgres ledger: a reservation and
// its insert are one indivisible step.
type ledger struct {
	mu       sync.Mutex
	trips    map[string]*tripState
	bookings map[string]model.Booking
}

func newLedger() *ledger {
	return &ledger{
		trips:    map[string]*tripState{},
		bookings: map[string]model.Booking{},
	}
}

func (l *ledger) addTrip(id string, maxCapacity int, status tripModel.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.trips[id] = &tripState{status: status, max: maxCapacity}
}

func (l *ledger) counter(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.trips[id].current
}

func (l *ledger) activeCount(tripID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.activeCountLocked(tripID)
}

func (l *ledger) activeCountLocked(tripID string) int {
	total := 0

	for _, b := range l.bookings {
		if b.TripID == tripID && b.Status.Active() {
			total++
		}
	}

	return total
}

func (l *ledger) setStatus(id string, status model.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bookings[id]
	b.Status = status
	l.bookings[id] = b
}

func (l *ledger) setTripStatus(id string, status tripModel.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.trips[id].status = status
}

func (l *ledger) Get(_ context.Context, filter gDto.FilterGroup, _ ...string) (model.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, b := range l.bookings {
		if matches(b, filter) {
			return b, nil
		}
	}

	return model.Booking{}, nil
}

func (l *ledger) GetAll(_ context.Context, _ gDto.QueryParams, filter gDto.FilterGroup, _ ...string) ([]model.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := []model.Booking{}

	for _, b := range l.bookings {
		if matches(b, filter) {
			res = append(res, b)
		}
	}

	return res, nil
}

func (l *ledger) Count(ctx context.Context, filter gDto.FilterGroup) (int, error) {
	all, err := l.GetAll(ctx, gDto.QueryParams{}, filter)

	return len(all), err
}

func (l *ledger) UpdateReturning(_ context.Context, req map[string]any, filter gDto.FilterGroup) (model.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, b := range l.bookings {
		if !matches(b, filter) {
			continue
		}

		if notes, ok := req[model.FieldNotes].(string); ok {
			b.Notes = notes
		}

		l.bookings[id] = b

		return b, nil
	}

	return model.Booking{}, nil
}

func (l *ledger) CreateReserving(_ context.Context, booking model.Booking) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, b := range l.bookings {
		if b.TripID == booking.TripID && b.UserID == booking.UserID {
			return model.ErrDuplicateBooking
		}
	}

	if booking.Status.Active() {
		if err := l.reserveLocked(booking.TripID); err != nil {
			return err
		}
	}

	l.bookings[booking.ID] = booking

	return nil
}

func (l *ledger) Transition(_ context.Context, id string, status model.Status, actor string) (model.Booking, model.Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.bookings[id]
	if !ok {
		return model.Booking{}, "", model.ErrBookingNotFound
	}

	if !b.Status.CanTransition(status) {
		return model.Booking{}, "", model.ErrInvalidTransition
	}

	switch model.CapacityDelta(b.Status, status) {
	case 1:
		if err := l.reserveLocked(b.TripID); err != nil {
			return model.Booking{}, "", err
		}
	case -1:
		if trip := l.trips[b.TripID]; trip.current > 0 {
			trip.current--
		}
	}

	previous := b.Status
	b.Status = status
	b.ModifiedBy = actor
	l.bookings[id] = b

	return b, previous, nil
}

func (l *ledger) Reconcile(_ context.Context, tripID string) (int, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	trip, ok := l.trips[tripID]
	if !ok {
		return 0, 0, model.ErrTripNotFound
	}

	previous := trip.current
	trip.current = l.activeCountLocked(tripID)

	return previous, trip.current, nil
}

func (l *ledger) reserveLocked(tripID string) error {
	trip, ok := l.trips[tripID]

	switch {
	case !ok:
		return model.ErrTripNotFound
	case trip.status != tripModel.StatusActive:
		return model.ErrTripInactive
	case trip.current >= trip.max:
		return model.ErrTripFull
	}

	trip.current++

	return nil
}

func matches(b model.Booking, filter gDto.FilterGroup) bool {
	for _, f := range filter.Filters {
		cond, ok := f.(gDto.Filter)
		if !ok || cond.Operator != gDto.FilterOperatorEq {
			continue
		}

		var value string

		switch cond.Field {
		case model.FieldID:
			value = b.ID
		case model.FieldTripID:
			value = b.TripID
		case model.FieldUserID:
			value = b.UserID
		case model.FieldStatus:
			value = b.Status.String()
		default:
			continue
		}

		if value != toString(cond.Value) {
			return false
		}
	}

	return true
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case model.Status:
		return val.String()
	default:
		return ""
	}
}
