package service_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"mlaku/config"
	kafkaMocks "mlaku/infras/kafka/mocks"
	"mlaku/infras/otel/mocks"
	"mlaku/internal/domains/booking/model"
	"mlaku/internal/domains/booking/model/dto"
	"mlaku/internal/domains/booking/repository"
	"mlaku/internal/domains/booking/service"
	tripMocks "mlaku/internal/domains/trip/mocks"
	tripModel "mlaku/internal/domains/trip/model"
	userMocks "mlaku/internal/domains/user/mocks"
	userModel "mlaku/internal/domains/user/model"
	"mlaku/permissions"
	"mlaku/shared/background"
	cacheMocks "mlaku/shared/cache/mocks"
	gDto "mlaku/shared/dto"
	"mlaku/shared/failure"
	notifierMocks "mlaku/shared/notifier/mocks"
)

var _ repository.Booking = (*ledger)(nil)

const (
	tripID   = "trip-1"
	touristA = "tourist-a"
	touristB = "tourist-b"
	staffID  = "staff-1"
	ownerID  = "owner-1"
)

var roles = map[string]permissions.Role{
	staffID: permissions.RoleStaff,
	ownerID: permissions.RoleOwner,
}

type fixture struct {
	ledger   *ledger
	trips    *tripMocks.MockTrip
	users    *userMocks.MockUser
	notifier *notifierMocks.MockNotifier
	svc      service.Booking
}

func newFixture(t *testing.T, initialStatus string) fixture {
	ctrl := gomock.NewController(t)

	f := fixture{
		ledger:   newLedger(),
		trips:    tripMocks.NewMockTrip(ctrl),
		users:    userMocks.NewMockUser(ctrl),
		notifier: notifierMocks.NewMockNotifier(ctrl),
	}

	cache := cacheMocks.NewMockRedisCache(ctrl)
	kafka := kafkaMocks.NewMockClient(ctrl)

	f.users.EXPECT().GetActor(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, id string) (permissions.Actor, error) {
			if role, ok := roles[id]; ok {
				return permissions.Actor{ID: id, Role: role}, nil
			}

			if strings.HasPrefix(id, "tourist") {
				return permissions.Actor{ID: id, Role: permissions.RoleTourist}, nil
			}

			return permissions.Actor{}, nil
		}).AnyTimes()
	f.users.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(userModel.User{Email: "tourist@mlaku.id"}, nil).AnyTimes()
	f.trips.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(tripModel.Trip{ID: tripID, Title: "Bromo sunrise"}, nil).AnyTimes()
	f.trips.EXPECT().GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]tripModel.Trip{{ID: tripID, Title: "Bromo sunrise"}}, nil).AnyTimes()
	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	cache.EXPECT().Clear(gomock.Any(), "trip:*").Return(nil).AnyTimes()
	kafka.EXPECT().SendMessages(gomock.Any(), "mlaku.booking", gomock.Any()).Return(nil).AnyTimes()

	cfg := &config.Config{}
	cfg.Booking.InitialStatus = initialStatus
	cfg.Kafka.Topics.Booking = "mlaku.booking"

	f.svc = service.New(f.ledger, f.trips, f.users, cfg, cache, f.notifier, kafka, background.Inline(), mocks.NewOtel())

	return f
}

func (f fixture) assertCounter(t *testing.T, want int) {
	t.Helper()

	assert.Equal(t, want, f.ledger.counter(tripID))
	assert.Equal(t, f.ledger.activeCount(tripID), f.ledger.counter(tripID), "counter drifted from active bookings")
}

func book(t *testing.T, f fixture, actor string) dto.BookingResponse {
	t.Helper()

	res, err := f.svc.Create(context.Background(), actor, dto.CreateBookingRequest{TripID: tripID})
	require.NoError(t, err)

	return res
}

func TestBookingService_CapacityScenario(t *testing.T) {
	f := newFixture(t, "pending")
	f.ledger.addTrip(tripID, 1, tripModel.StatusActive)

	a := book(t, f, touristA)
	assert.Equal(t, model.StatusPending, a.Status)
	require.NotNil(t, a.Trip)
	assert.Equal(t, "Bromo sunrise", a.Trip.Title)
	f.assertCounter(t, 1)

	_, err := f.svc.Create(context.Background(), touristB, dto.CreateBookingRequest{TripID: tripID})
	assert.Equal(t, http.StatusConflict, failure.GetCode(err))
	f.assertCounter(t, 1)

	cancelled, err := f.svc.Cancel(context.Background(), touristA, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	f.assertCounter(t, 0)

	b := book(t, f, touristB)
	assert.Equal(t, model.StatusPending, b.Status)
	f.assertCounter(t, 1)
}

func TestBookingService_ConcurrentLastSlot(t *testing.T) {
	const attempts = 32

	f := newFixture(t, "pending")
	f.ledger.addTrip(tripID, 1, tripModel.StatusActive)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)

	for i := range attempts {
		wg.Add(1)

		go func(actor string) {
			defer wg.Done()

			_, err := f.svc.Create(context.Background(), actor, dto.CreateBookingRequest{TripID: tripID})

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				succeeded++
			case failure.GetCode(err) == http.StatusConflict:
				conflicts++
			}
		}(fmt.Sprintf("tourist-%d", i))
	}

	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicts)
	f.assertCounter(t, 1)
}

func TestBookingService_Create(t *testing.T) {
	t.Run("initial status policy", func(t *testing.T) {
		f := newFixture(t, "confirmed")
		f.ledger.addTrip(tripID, 2, tripModel.StatusActive)

		res := book(t, f, touristA)

		assert.Equal(t, model.StatusConfirmed, res.Status)
		f.assertCounter(t, 1)
	})

	t.Run("unsupported initial status falls back to pending", func(t *testing.T) {
		f := newFixture(t, "cancelled")
		f.ledger.addTrip(tripID, 2, tripModel.StatusActive)

		assert.Equal(t, model.StatusPending, book(t, f, touristA).Status)
	})

	t.Run("duplicate booking", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 5, tripModel.StatusActive)
		book(t, f, touristA)

		_, err := f.svc.Create(context.Background(), touristA, dto.CreateBookingRequest{TripID: tripID})

		assert.Equal(t, http.StatusConflict, failure.GetCode(err))
		f.assertCounter(t, 1)
	})

	t.Run("duplicate of a cancelled booking", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 5, tripModel.StatusActive)
		a := book(t, f, touristA)
		_, err := f.svc.Cancel(context.Background(), touristA, a.ID)
		require.NoError(t, err)

		_, err = f.svc.Create(context.Background(), touristA, dto.CreateBookingRequest{TripID: tripID})

		assert.Equal(t, http.StatusConflict, failure.GetCode(err))
		f.assertCounter(t, 0)
	})

	t.Run("inactive trip", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 5, tripModel.StatusInactive)

		_, err := f.svc.Create(context.Background(), touristA, dto.CreateBookingRequest{TripID: tripID})

		assert.Equal(t, http.StatusConflict, failure.GetCode(err))
		f.assertCounter(t, 0)
	})

	t.Run("missing trip", func(t *testing.T) {
		f := newFixture(t, "pending")

		_, err := f.svc.Create(context.Background(), touristA, dto.CreateBookingRequest{TripID: "nope"})

		assert.Equal(t, http.StatusConflict, failure.GetCode(err))
	})

	t.Run("staff books on behalf of a tourist", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 5, tripModel.StatusActive)

		res, err := f.svc.Create(context.Background(), staffID, dto.CreateBookingRequest{TripID: tripID, UserID: touristA})

		require.NoError(t, err)
		assert.Equal(t, touristA, res.UserID)
		assert.Equal(t, staffID, res.CreatedBy)
	})

	t.Run("tourist cannot book for someone else", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 5, tripModel.StatusActive)

		_, err := f.svc.Create(context.Background(), touristA, dto.CreateBookingRequest{TripID: tripID, UserID: touristB})

		assert.Equal(t, http.StatusForbidden, failure.GetCode(err))
	})

	t.Run("on behalf target must be a tourist", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 5, tripModel.StatusActive)

		_, err := f.svc.Create(context.Background(), ownerID, dto.CreateBookingRequest{TripID: tripID, UserID: staffID})

		assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))
	})

	t.Run("on behalf target missing", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 5, tripModel.StatusActive)

		_, err := f.svc.Create(context.Background(), ownerID, dto.CreateBookingRequest{TripID: tripID, UserID: "ghost"})

		assert.Equal(t, http.StatusNotFound, failure.GetCode(err))
	})

	t.Run("staff needs a tourist to book for", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 5, tripModel.StatusActive)

		_, err := f.svc.Create(context.Background(), staffID, dto.CreateBookingRequest{TripID: tripID})

		assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))
	})

	t.Run("unknown actor", func(t *testing.T) {
		f := newFixture(t, "pending")

		_, err := f.svc.Create(context.Background(), "ghost", dto.CreateBookingRequest{TripID: tripID})

		assert.Equal(t, http.StatusForbidden, failure.GetCode(err))
	})
}

func TestBookingService_Transitions(t *testing.T) {
	status := func(s model.Status) *string {
		v := s.String()

		return &v
	}

	t.Run("tourist cannot confirm", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 5, tripModel.StatusActive)
		a := book(t, f, touristA)

		_, err := f.svc.Update(context.Background(), touristA, a.ID, dto.UpdateBookingRequest{Status: status(model.StatusConfirmed)})

		assert.Equal(t, http.StatusForbidden, failure.GetCode(err))
	})

	t.Run("staff confirms then completes, releasing capacity", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 5, tripModel.StatusActive)
		a := book(t, f, touristA)

		res, err := f.svc.Update(context.Background(), staffID, a.ID, dto.UpdateBookingRequest{Status: status(model.StatusConfirmed)})
		require.NoError(t, err)
		assert.Equal(t, model.StatusConfirmed, res.Status)
		f.assertCounter(t, 1)

		res, err = f.svc.Update(context.Background(), staffID, a.ID, dto.UpdateBookingRequest{Status: status(model.StatusCompleted)})
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, res.Status)
		f.assertCounter(t, 0)
	})

	t.Run("pending cannot complete", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 5, tripModel.StatusActive)
		a := book(t, f, touristA)

		_, err := f.svc.Update(context.Background(), ownerID, a.ID, dto.UpdateBookingRequest{Status: status(model.StatusCompleted)})

		assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))
		f.assertCounter(t, 1)
	})

	t.Run("cancel twice", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 5, tripModel.StatusActive)
		a := book(t, f, touristA)

		_, err := f.svc.Cancel(context.Background(), touristA, a.ID)
		require.NoError(t, err)

		_, err = f.svc.Cancel(context.Background(), touristA, a.ID)
		assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))
		f.assertCounter(t, 0)
	})

	t.Run("completed cannot be cancelled", func(t *testing.T) {
		f := newFixture(t, "confirmed")
		f.ledger.addTrip(tripID, 5, tripModel.StatusActive)
		a := book(t, f, touristA)
		_, err := f.svc.Update(context.Background(), staffID, a.ID, dto.UpdateBookingRequest{Status: status(model.StatusCompleted)})
		require.NoError(t, err)

		_, err = f.svc.Cancel(context.Background(), touristA, a.ID)

		assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))
		f.assertCounter(t, 0)
	})

	t.Run("reinstate is blocked when the trip filled up", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 1, tripModel.StatusActive)
		a := book(t, f, touristA)
		_, err := f.svc.Cancel(context.Background(), touristA, a.ID)
		require.NoError(t, err)
		book(t, f, touristB)

		_, err = f.svc.Update(context.Background(), staffID, a.ID, dto.UpdateBookingRequest{Status: status(model.StatusConfirmed)})

		assert.Equal(t, http.StatusConflict, failure.GetCode(err))
		f.assertCounter(t, 1)
	})

	t.Run("reinstate reclaims capacity", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 2, tripModel.StatusActive)
		a := book(t, f, touristA)
		_, err := f.svc.Cancel(context.Background(), touristA, a.ID)
		require.NoError(t, err)

		res, err := f.svc.Update(context.Background(), ownerID, a.ID, dto.UpdateBookingRequest{Status: status(model.StatusConfirmed)})

		require.NoError(t, err)
		assert.Equal(t, model.StatusConfirmed, res.Status)
		f.assertCounter(t, 1)
	})

	t.Run("reinstate on an inactive trip", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 2, tripModel.StatusActive)
		a := book(t, f, touristA)
		_, err := f.svc.Cancel(context.Background(), touristA, a.ID)
		require.NoError(t, err)
		f.ledger.setTripStatus(tripID, tripModel.StatusInactive)

		_, err = f.svc.Update(context.Background(), staffID, a.ID, dto.UpdateBookingRequest{Status: status(model.StatusConfirmed)})

		assert.Equal(t, http.StatusConflict, failure.GetCode(err))
		f.assertCounter(t, 0)
	})

	t.Run("another tourist is forbidden", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 5, tripModel.StatusActive)
		a := book(t, f, touristA)

		_, err := f.svc.Cancel(context.Background(), touristB, a.ID)

		assert.Equal(t, http.StatusForbidden, failure.GetCode(err))
		f.assertCounter(t, 1)
	})

	t.Run("missing booking", func(t *testing.T) {
		f := newFixture(t, "pending")

		_, err := f.svc.Cancel(context.Background(), touristA, "nope")

		assert.Equal(t, http.StatusNotFound, failure.GetCode(err))
	})

	t.Run("tourist edits notes", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 5, tripModel.StatusActive)
		a := book(t, f, touristA)

		notes := "vegetarian meals"
		res, err := f.svc.Update(context.Background(), touristA, a.ID, dto.UpdateBookingRequest{Notes: &notes})

		require.NoError(t, err)
		assert.Equal(t, notes, res.Notes)
		assert.Equal(t, model.StatusPending, res.Status)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		f := newFixture(t, "pending")
		f.ledger.addTrip(tripID, 5, tripModel.StatusActive)
		a := book(t, f, touristA)

		res, err := f.svc.Update(context.Background(), touristA, a.ID, dto.UpdateBookingRequest{Status: status(model.StatusPending)})

		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, res.Status)
		f.assertCounter(t, 1)
	})
}

func TestBookingService_Reads(t *testing.T) {
	f := newFixture(t, "pending")
	f.ledger.addTrip(tripID, 5, tripModel.StatusActive)
	a := book(t, f, touristA)
	book(t, f, touristB)

	t.Run("owner of the booking", func(t *testing.T) {
		res, err := f.svc.Get(context.Background(), touristA, a.ID)

		require.NoError(t, err)
		assert.Equal(t, a.ID, res.ID)
		require.NotNil(t, res.Trip)
	})

	t.Run("staff reads any booking", func(t *testing.T) {
		_, err := f.svc.Get(context.Background(), staffID, a.ID)

		require.NoError(t, err)
	})

	t.Run("other tourist", func(t *testing.T) {
		_, err := f.svc.Get(context.Background(), touristB, a.ID)

		assert.Equal(t, http.StatusForbidden, failure.GetCode(err))
	})

	t.Run("list mine only returns own bookings", func(t *testing.T) {
		res, err := f.svc.ListMine(context.Background(), touristA, gDto.QueryParams{}, dto.ListBookingsQuery{UserID: touristB})

		require.NoError(t, err)
		require.Len(t, res.Items, 1)
		assert.Equal(t, touristA, res.Items[0].UserID)
		assert.Equal(t, 1, res.Meta.Total)
	})

	t.Run("list all requires staff", func(t *testing.T) {
		_, err := f.svc.ListAll(context.Background(), touristA, gDto.QueryParams{}, dto.ListBookingsQuery{})

		assert.Equal(t, http.StatusForbidden, failure.GetCode(err))
	})

	t.Run("list all filters by trip", func(t *testing.T) {
		res, err := f.svc.ListAll(context.Background(), staffID, gDto.QueryParams{}, dto.ListBookingsQuery{TripID: tripID})

		require.NoError(t, err)
		assert.Len(t, res.Items, 2)
	})

	t.Run("list mine unauthenticated", func(t *testing.T) {
		_, err := f.svc.ListMine(context.Background(), "", gDto.QueryParams{}, dto.ListBookingsQuery{})

		assert.Equal(t, http.StatusUnauthorized, failure.GetCode(err))
	})
}
