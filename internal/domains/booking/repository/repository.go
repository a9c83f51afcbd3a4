package repository

//go:generate go run go.uber.org/mock/mockgen -source=./repository.go -destination=../mocks/repository_mock.go -package=mocks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"mlaku/infras/otel"
	"mlaku/infras/postgres"
	"mlaku/internal/domains/booking/model"
	tripModel "mlaku/internal/domains/trip/model"
	"mlaku/shared"
	"mlaku/shared/constant"
	gDto "mlaku/shared/dto"
	gRepo "mlaku/shared/repository"
	"mlaku/shared/timezone"
)

const (
	reserveSlotQuery = `
UPDATE trips
SET current_bookings = current_bookings + 1, modified_at = NOW()
WHERE id = $1 AND status = $2 AND current_bookings < max_capacity`

	releaseSlotQuery = `
UPDATE trips
SET current_bookings = current_bookings - 1, modified_at = NOW()
WHERE id = $1 AND current_bookings > 0`

	tripStateQuery = `SELECT status, current_bookings, max_capacity FROM trips WHERE id = $1`

	lockCounterQuery = `SELECT current_bookings FROM trips WHERE id = $1 FOR UPDATE`

	countActiveQuery = `SELECT COUNT(*) FROM bookings WHERE trip_id = $1 AND status = ANY($2)`

	setCounterQuery = `UPDATE trips SET current_bookings = $2, modified_at = NOW() WHERE id = $1`
)

// Booking is the ledger of reservations. Every method that moves a booking
// into or out of an active status adjusts the trip counter in the same
// transaction.
type Booking interface {
	Get(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.Booking, error)
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.Booking, error)
	Count(ctx context.Context, filter gDto.FilterGroup) (int, error)
	UpdateReturning(ctx context.Context, req map[string]any, filter gDto.FilterGroup) (model.Booking, error)
	// CreateReserving inserts the booking and takes a slot on the trip.
	CreateReserving(ctx context.Context, booking model.Booking) error
	// Transition moves the booking to status and returns the status it left.
	Transition(ctx context.Context, id string, status model.Status, actor string) (model.Booking, model.Status, error)
	// Reconcile recomputes the trip counter from booking rows.
	Reconcile(ctx context.Context, tripID string) (previous, current int, err error)
}

type repositoryImpl struct {
	gRepo.Repository[model.Booking]
	db   *postgres.Connection
	otel otel.Otel
}

func New(db *postgres.Connection, otel otel.Otel) Booking {
	return &repositoryImpl{
		Repository: gRepo.NewRepository[model.Booking](model.EntityName, model.TableName, model.FieldID, db, otel),
		db:         db,
		otel:       otel,
	}
}

func (r *repositoryImpl) CreateReserving(ctx context.Context, booking model.Booking) error {
	ctx, scope := r.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".booking.CreateReserving")
	defer scope.End()

	// the insert takes the user key lock before the trip row is locked,
	// the same order a user delete takes them in
	err := r.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if err := r.InsertTx(ctx, tx, booking); err != nil {
			if constraint, ok := gRepo.IsUniqueViolation(err); ok && constraint == model.ConstraintTripUser {
				return model.ErrDuplicateBooking
			}

			if constraint, ok := gRepo.IsForeignKeyViolation(err); ok && constraint == model.ConstraintTrip {
				return model.ErrTripNotFound
			}

			return err
		}

		if booking.Status.Active() {
			return reserveSlot(ctx, tx, booking.TripID)
		}

		return nil
	})
	if err != nil {
		scope.TraceError(err)

		return err
	}

	return nil
}

func (r *repositoryImpl) Transition(ctx context.Context, id string, status model.Status, actor string) (res model.Booking, previous model.Status, err error) {
	ctx, scope := r.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".booking.Transition")
	defer scope.End()

	err = r.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		filter := shared.FilterByID(id, model.FieldID, model.TableName)

		locked, err := r.GetForUpdateTx(ctx, tx, filter)
		if err != nil {
			return err
		}

		if locked.ID == "" {
			return model.ErrBookingNotFound
		}

		if !locked.Status.CanTransition(status) {
			return model.ErrInvalidTransition
		}

		switch model.CapacityDelta(locked.Status, status) {
		case 1:
			if err = reserveSlot(ctx, tx, locked.TripID); err != nil {
				return err
			}
		case -1:
			if err = releaseSlot(ctx, tx, locked.TripID); err != nil {
				return err
			}
		}

		fields := map[string]any{
			model.FieldStatus:        status,
			constant.FieldModifiedAt: timezone.Now(),
			constant.FieldModifiedBy: actor,
		}

		res, err = r.UpdateReturningTx(ctx, tx, fields, filter)
		if err != nil {
			return err
		}

		previous = locked.Status

		return nil
	})
	if err != nil {
		scope.TraceError(err)

		return res, previous, err
	}

	return res, previous, nil
}

func (r *repositoryImpl) Reconcile(ctx context.Context, tripID string) (previous, current int, err error) {
	ctx, scope := r.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".booking.Reconcile")
	defer scope.End()

	err = r.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		// the row lock waits out in-flight reservations on this trip
		if err := tx.GetContext(ctx, &previous, lockCounterQuery, tripID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return model.ErrTripNotFound
			}

			return fmt.Errorf("failed to lock trip: %w", err)
		}

		if err := tx.GetContext(ctx, &current, countActiveQuery, tripID, pq.Array(activeStatuses())); err != nil {
			return fmt.Errorf("failed to count active bookings: %w", err)
		}

		if current == previous {
			return nil
		}

		log.Warn().Str("tripID", tripID).Int("previous", previous).Int("current", current).Msg("trip booking counter drifted")

		if _, err := tx.ExecContext(ctx, setCounterQuery, tripID, current); err != nil {
			return fmt.Errorf("failed to correct booking counter: %w", err)
		}

		return nil
	})
	if err != nil {
		scope.TraceError(err)

		return 0, 0, err
	}

	return previous, current, nil
}

// reserveSlot increments the counter only while the trip is active and not
// full, so concurrent reservations for the last slot cannot both succeed.
func reserveSlot(ctx context.Context, tx *sqlx.Tx, tripID string) error {
	result, err := tx.ExecContext(ctx, reserveSlotQuery, tripID, tripModel.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to reserve trip slot: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read reserved rows: %w", err)
	}

	if affected == 1 {
		return nil
	}

	var state struct {
		Status          tripModel.Status `db:"status"`
		CurrentBookings int              `db:"current_bookings"`
		MaxCapacity     int              `db:"max_capacity"`
	}

	if err = tx.GetContext(ctx, &state, tripStateQuery, tripID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrTripNotFound
		}

		return fmt.Errorf("failed to read trip state: %w", err)
	}

	if state.Status != tripModel.StatusActive {
		return model.ErrTripInactive
	}

	return model.ErrTripFull
}

func releaseSlot(ctx context.Context, tx *sqlx.Tx, tripID string) error {
	result, err := tx.ExecContext(ctx, releaseSlotQuery, tripID)
	if err != nil {
		return fmt.Errorf("failed to release trip slot: %w", err)
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		log.Warn().Str("tripID", tripID).Msg("trip booking counter already at zero on release")
	}

	return nil
}

func activeStatuses() []string {
	statuses := make([]string, 0, len(model.ActiveStatuses))

	for _, status := range model.ActiveStatuses {
		statuses = append(statuses, status.String())
	}

	return statuses
}
