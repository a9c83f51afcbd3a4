package repository

//go:generate go run go.uber.org/mock/mockgen -source=./repository.go -destination=../mocks/repository_mock.go -package=mocks

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mlaku/infras/otel"
	"mlaku/infras/postgres"
	bookingModel "mlaku/internal/domains/booking/model"
	"mlaku/internal/domains/user/model"
	"mlaku/permissions"
	"mlaku/shared"
	"mlaku/shared/constant"
	gDto "mlaku/shared/dto"
	gRepo "mlaku/shared/repository"
)

// Lock order is user row, then active booking rows, then trip rows. Booking
// transitions lock booking then trip, so both paths agree on the order.
const (
	lockUserQuery = `SELECT id FROM users WHERE id = $1 FOR UPDATE`

	lockActiveBookingsQuery = `
SELECT trip_id
FROM bookings
WHERE user_id = $1 AND status = ANY($2)
ORDER BY trip_id
FOR UPDATE`

	releaseSlotsQuery = `
UPDATE trips
SET current_bookings = current_bookings - $2, modified_at = NOW()
WHERE id = $1`
)

type User interface {
	Insert(ctx context.Context, model model.User) error
	Get(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.User, error)
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.User, error)
	Exist(ctx context.Context, filter gDto.FilterGroup) (bool, error)
	Count(ctx context.Context, filter gDto.FilterGroup) (int, error)
	Update(ctx context.Context, req map[string]any, filter gDto.FilterGroup) error
	UpdateReturning(ctx context.Context, req map[string]any, filter gDto.FilterGroup) (model.User, error)
	Delete(ctx context.Context, filter gDto.FilterGroup) (int64, error)
	// GetActor loads the stored role of id. A zero Actor means no such user.
	GetActor(ctx context.Context, id string) (permissions.Actor, error)
	// DeleteReleasingBookings removes the user and releases the trip capacity
	// held by their active bookings in one transaction. The user row and the
	// active booking rows are locked before the release is computed.
	DeleteReleasingBookings(ctx context.Context, id string) (int64, error)
}

type repositoryImpl struct {
	gRepo.Repository[model.User]
	db   *postgres.Connection
	otel otel.Otel
}

func New(db *postgres.Connection, otel otel.Otel) User {
	return &repositoryImpl{
		Repository: gRepo.NewRepository[model.User](model.EntityName, model.TableName, model.FieldID, db, otel),
		db:         db,
		otel:       otel,
	}
}

func (r *repositoryImpl) GetActor(ctx context.Context, id string) (permissions.Actor, error) {
	ctx, scope := r.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".user.GetActor")
	defer scope.End()

	user, err := r.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName), model.FieldID, model.FieldRole)
	if err != nil {
		scope.TraceError(err)

		return permissions.Actor{}, err
	}

	if user.ID == "" {
		return permissions.Actor{}, nil
	}

	return user.Actor(), nil
}

func (r *repositoryImpl) DeleteReleasingBookings(ctx context.Context, id string) (int64, error) {
	ctx, scope := r.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".user.DeleteReleasingBookings")
	defer scope.End()

	var affected int64

	err := r.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		var locked []string
		if err := tx.SelectContext(ctx, &locked, lockUserQuery, id); err != nil {
			return fmt.Errorf("failed to lock user: %w", err)
		}

		if len(locked) == 0 {
			return nil
		}

		var tripIDs []string
		if err := tx.SelectContext(ctx, &tripIDs, lockActiveBookingsQuery, id, pq.Array(activeStatuses())); err != nil {
			return fmt.Errorf("failed to lock bookings: %w", err)
		}

		for _, held := range countByTrip(tripIDs) {
			if _, err := tx.ExecContext(ctx, releaseSlotsQuery, held.tripID, held.total); err != nil {
				return fmt.Errorf("failed to release bookings: %w", err)
			}
		}

		deleted, err := r.DeleteTx(ctx, tx, shared.FilterByID(id, model.FieldID, model.TableName))
		if err != nil {
			return err
		}

		affected = deleted

		return nil
	})
	if err != nil {
		scope.TraceError(err)

		return 0, fmt.Errorf("failed to delete user: %w", err)
	}

	return affected, nil
}

type heldSlots struct {
	tripID string
	total  int
}

// countByTrip folds sorted trip ids into per-trip totals, keeping their order.
func countByTrip(tripIDs []string) []heldSlots {
	held := make([]heldSlots, 0, len(tripIDs))
	for _, tripID := range tripIDs {
		if n := len(held); n > 0 && held[n-1].tripID == tripID {
			held[n-1].total++

			continue
		}

		held = append(held, heldSlots{tripID: tripID, total: 1})
	}

	return held
}

func activeStatuses() []string {
	statuses := make([]string, len(bookingModel.ActiveStatuses))
	for i, status := range bookingModel.ActiveStatuses {
		statuses[i] = string(status)
	}

	return statuses
}
