package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mlaku/config"
	"mlaku/infras/kafka"
	"mlaku/infras/otel"
	"mlaku/internal/domains/booking/model"
	"mlaku/internal/domains/booking/model/dto"
	"mlaku/internal/domains/booking/repository"
	tripModel "mlaku/internal/domains/trip/model"
	tripRepo "mlaku/internal/domains/trip/repository"
	userModel "mlaku/internal/domains/user/model"
	userRepo "mlaku/internal/domains/user/repository"
	"mlaku/permissions"
	"mlaku/shared"
	"mlaku/shared/background"
	"mlaku/shared/cache"
	"mlaku/shared/constant"
	gDto "mlaku/shared/dto"
	"mlaku/shared/failure"
	"mlaku/shared/notifier"
)

const (
	errBookingNotFound  = "booking not found"
	errUserNotFound     = "user not found"
	errNotYourBooking   = "you can only manage your own bookings"
	errTouristOnly      = "bookings can only be made for tourist accounts"
	errOnBehalf         = "only staff and owners can book on behalf of another user"
	errTouristStatus    = "tourists can only cancel their bookings"
	errAlreadyCancelled = "booking is already cancelled"
	errNotCancellable   = "completed bookings cannot be cancelled"
)

var sortableColumns = []string{constant.FieldCreatedAt, model.FieldStatus}

type Booking interface {
	Create(ctx context.Context, actorID string, req dto.CreateBookingRequest) (dto.BookingResponse, error)
	Get(ctx context.Context, actorID, id string) (dto.BookingResponse, error)
	ListMine(ctx context.Context, actorID string, params gDto.QueryParams, query dto.ListBookingsQuery) (gDto.Page[dto.BookingResponse], error)
	ListAll(ctx context.Context, actorID string, params gDto.QueryParams, query dto.ListBookingsQuery) (gDto.Page[dto.BookingResponse], error)
	Update(ctx context.Context, actorID, id string, req dto.UpdateBookingRequest) (dto.BookingResponse, error)
	Cancel(ctx context.Context, actorID, id string) (dto.BookingResponse, error)
}

type serviceImpl struct {
	repo          repository.Booking
	tripRepo      tripRepo.Trip
	userRepo      userRepo.User
	cfg           *config.Config
	cache         cache.RedisCache
	notifier      notifier.Notifier
	kafka         kafka.Client
	runner        background.Runner
	otel          otel.Otel
	initialStatus model.Status
}

func New(
	repo repository.Booking,
	tripRepo tripRepo.Trip,
	userRepo userRepo.User,
	cfg *config.Config,
	cache cache.RedisCache,
	notifier notifier.Notifier,
	kafka kafka.Client,
	runner background.Runner,
	otel otel.Otel,
) Booking {
	return &serviceImpl{
		repo:          repo,
		tripRepo:      tripRepo,
		userRepo:      userRepo,
		cfg:           cfg,
		cache:         cache,
		notifier:      notifier,
		kafka:         kafka,
		runner:        runner,
		otel:          otel,
		initialStatus: initialStatus(cfg.Booking.InitialStatus),
	}
}

// initialStatus resolves the configured creation status. Only statuses that
// hold a capacity slot are accepted.
func initialStatus(value string) model.Status {
	status, err := model.ParseStatus(value)
	if err != nil || !status.Active() {
		log.Warn().Str("value", value).Msg("unsupported initial booking status, using pending")

		return model.StatusPending
	}

	return status
}

func (s *serviceImpl) Create(ctx context.Context, actorID string, req dto.CreateBookingRequest) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.Create")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return res, err
	}

	userID, err := s.bookingOwner(ctx, actor, req.UserID)
	if err != nil {
		return res, err
	}

	booking := req.ToModel(userID, actorID, s.initialStatus)

	if err = s.repo.CreateReserving(ctx, booking); err != nil {
		if fail := ledgerFailure(err); fail != nil {
			return res, fail
		}

		log.Error().Err(err).Str("tripID", req.TripID).Msg("failed to create booking")

		return res, fmt.Errorf("failed to create booking: %w", err)
	}

	trip, err := s.tripRepo.Get(ctx, shared.FilterByID(booking.TripID, tripModel.FieldID, tripModel.TableName))
	if err != nil {
		log.Warn().Err(err).Str("tripID", booking.TripID).Msg("failed to load trip for booking response")
	}

	s.announce(ctx, constant.EventBookingCreated, booking, "", actorID, trip.Title)

	res.FromModel(booking)
	res.SetTrip(trip)

	return res, nil
}

func (s *serviceImpl) Get(ctx context.Context, actorID, id string) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.Get")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return res, err
	}

	booking, err := s.accessible(ctx, actor, id)
	if err != nil {
		return res, err
	}

	trips, err := s.tripsOf(ctx, []model.Booking{booking})
	if err != nil {
		return res, err
	}

	res.FromModel(booking)
	res.SetTrip(trips[booking.TripID])

	return res, nil
}

func (s *serviceImpl) ListMine(ctx context.Context, actorID string, params gDto.QueryParams, query dto.ListBookingsQuery) (res gDto.Page[dto.BookingResponse], err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.ListMine")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	if actorID == "" {
		return res, failure.Unauthorized("authentication required")
	}

	query.UserID = actorID

	return s.list(ctx, params, query)
}

func (s *serviceImpl) ListAll(ctx context.Context, actorID string, params gDto.QueryParams, query dto.ListBookingsQuery) (res gDto.Page[dto.BookingResponse], err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.ListAll")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return res, err
	}

	if err = permissions.Authorize(&actor, permissions.RoleStaff); err != nil {
		return res, err
	}

	query.UserID = ""

	return s.list(ctx, params, query)
}

func (s *serviceImpl) Update(ctx context.Context, actorID, id string, req dto.UpdateBookingRequest) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.Update")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return res, err
	}

	booking, err := s.accessible(ctx, actor, id)
	if err != nil {
		return res, err
	}

	if req.Status != nil {
		status, parseErr := model.ParseStatus(*req.Status)
		if parseErr != nil {
			return res, failure.Validation(parseErr.Error(), failure.FieldError{Field: "status", Message: parseErr.Error()})
		}

		if status != booking.Status {
			if booking, err = s.transition(ctx, actor, booking, status); err != nil {
				return res, err
			}
		}
	}

	if req.Notes != nil {
		fields := shared.TransformFields(dto.UpdateNotesFields{Notes: req.Notes}, actorID)

		booking, err = s.repo.UpdateReturning(ctx, fields, shared.FilterByID(id, model.FieldID, model.TableName))
		if err != nil {
			log.Error().Err(err).Str("bookingID", id).Msg("failed to update booking notes")

			return res, fmt.Errorf("failed to update booking notes: %w", err)
		}

		if booking.ID == "" {
			return res, failure.NotFound(errBookingNotFound)
		}
	}

	trips, err := s.tripsOf(ctx, []model.Booking{booking})
	if err != nil {
		return res, err
	}

	res.FromModel(booking)
	res.SetTrip(trips[booking.TripID])

	return res, nil
}

func (s *serviceImpl) Cancel(ctx context.Context, actorID, id string) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.Cancel")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return res, err
	}

	booking, err := s.accessible(ctx, actor, id)
	if err != nil {
		return res, err
	}

	booking, err = s.transition(ctx, actor, booking, model.StatusCancelled)
	if err != nil {
		return res, err
	}

	trips, err := s.tripsOf(ctx, []model.Booking{booking})
	if err != nil {
		return res, err
	}

	res.FromModel(booking)
	res.SetTrip(trips[booking.TripID])

	return res, nil
}

// transition applies a status change through the ledger, which re-reads the
// booking under lock and adjusts the trip counter in the same transaction.
func (s *serviceImpl) transition(ctx context.Context, actor permissions.Actor, booking model.Booking, to model.Status) (model.Booking, error) {
	switch {
	case to == model.StatusCancelled && booking.Status == model.StatusCancelled:
		return booking, failure.Validation(errAlreadyCancelled)
	case to == model.StatusCancelled && booking.Status == model.StatusCompleted:
		return booking, failure.Validation(errNotCancellable)
	}

	if to != model.StatusCancelled && !actor.Role.Satisfies(permissions.RoleStaff) {
		return booking, failure.Forbidden(errTouristStatus)
	}

	updated, previous, err := s.repo.Transition(ctx, booking.ID, to, actor.ID)
	if err != nil {
		if fail := ledgerFailure(err); fail != nil {
			return booking, fail
		}

		log.Error().Err(err).Str("bookingID", booking.ID).Str("status", to.String()).Msg("failed to change booking status")

		return booking, fmt.Errorf("failed to change booking status: %w", err)
	}

	title := ""
	if trip, tripErr := s.tripRepo.Get(ctx, shared.FilterByID(updated.TripID, tripModel.FieldID, tripModel.TableName), tripModel.FieldTitle); tripErr == nil {
		title = trip.Title
	}

	s.announce(ctx, constant.EventBookingStatusChanged, updated, previous, actor.ID, title)

	return updated, nil
}

func (s *serviceImpl) list(ctx context.Context, params gDto.QueryParams, query dto.ListBookingsQuery) (res gDto.Page[dto.BookingResponse], err error) {
	params.Normalize(constant.FieldCreatedAt, gDto.SortDirDesc, sortableColumns...)

	filter := query.ToFilter()

	var (
		total  int
		models []model.Booking
	)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var countErr error
		total, countErr = s.repo.Count(gctx, filter)

		return countErr
	})

	group.Go(func() error {
		var listErr error
		models, listErr = s.repo.GetAll(gctx, params, filter)

		return listErr
	})

	if err = group.Wait(); err != nil {
		log.Error().Err(err).Msg("failed to list bookings")

		return res, fmt.Errorf("failed to list bookings: %w", err)
	}

	trips, err := s.tripsOf(ctx, models)
	if err != nil {
		return res, err
	}

	res.Items = dto.FromModels(models, trips)
	res.Meta = gDto.NewPaginationMeta(params.Page, params.Limit, total)

	return res, nil
}

// tripsOf loads the trips referenced by bookings in a single query.
func (s *serviceImpl) tripsOf(ctx context.Context, bookings []model.Booking) (map[string]tripModel.Trip, error) {
	trips := make(map[string]tripModel.Trip)

	ids := make([]string, 0, len(bookings))
	seen := make(map[string]struct{}, len(bookings))

	for _, b := range bookings {
		if _, ok := seen[b.TripID]; ok {
			continue
		}

		seen[b.TripID] = struct{}{}
		ids = append(ids, b.TripID)
	}

	if len(ids) == 0 {
		return trips, nil
	}

	params := gDto.QueryParams{Page: 1, Limit: len(ids), SortBy: tripModel.FieldStartDate, SortDir: gDto.SortDirAsc}
	filter := gDto.FilterGroup{Filters: []any{gDto.Filter{
		Field:    tripModel.FieldID,
		Operator: gDto.FilterOperatorIn,
		Value:    ids,
		Table:    tripModel.TableName,
	}}}

	models, err := s.tripRepo.GetAll(ctx, params, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to load booked trips")

		return trips, fmt.Errorf("failed to load booked trips: %w", err)
	}

	for _, trip := range models {
		trips[trip.ID] = trip
	}

	return trips, nil
}

func (s *serviceImpl) actor(ctx context.Context, actorID string) (permissions.Actor, error) {
	if actorID == "" {
		return permissions.Actor{}, failure.Unauthorized("authentication required")
	}

	actor, err := s.userRepo.GetActor(ctx, actorID)
	if err != nil {
		log.Error().Err(err).Str("actorID", actorID).Msg("failed to load actor")

		return actor, fmt.Errorf("failed to load actor: %w", err)
	}

	if err = permissions.Authorize(&actor, permissions.RoleTourist, permissions.RoleStaff); err != nil {
		return actor, err
	}

	return actor, nil
}

// bookingOwner resolves the tourist a new booking belongs to.
func (s *serviceImpl) bookingOwner(ctx context.Context, actor permissions.Actor, requested string) (string, error) {
	if requested == "" || requested == actor.ID {
		if actor.Role != permissions.RoleTourist {
			return "", failure.Validation(errTouristOnly,
				failure.FieldError{Field: "userId", Message: "userId of a tourist is required"})
		}

		return actor.ID, nil
	}

	if !actor.Role.Satisfies(permissions.RoleStaff) {
		return "", failure.Forbidden(errOnBehalf)
	}

	target, err := s.userRepo.GetActor(ctx, requested)
	if err != nil {
		log.Error().Err(err).Str("userID", requested).Msg("failed to load booking user")

		return "", fmt.Errorf("failed to load booking user: %w", err)
	}

	if target.ID == "" {
		return "", failure.NotFound(errUserNotFound)
	}

	if target.Role != permissions.RoleTourist {
		return "", failure.Validation(errTouristOnly, failure.FieldError{Field: "userId", Message: errTouristOnly})
	}

	return target.ID, nil
}

// accessible returns the booking when actor is its tourist or staff.
func (s *serviceImpl) accessible(ctx context.Context, actor permissions.Actor, id string) (model.Booking, error) {
	booking, err := s.repo.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName))
	if err != nil {
		log.Error().Err(err).Str("bookingID", id).Msg("failed to get booking")

		return booking, fmt.Errorf("failed to get booking: %w", err)
	}

	if booking.ID == "" {
		return booking, failure.NotFound(errBookingNotFound)
	}

	if booking.UserID != actor.ID && !actor.Role.Satisfies(permissions.RoleStaff) {
		return booking, failure.Forbidden(errNotYourBooking)
	}

	return booking, nil
}

// announce runs the post-commit side effects of a booking change.
func (s *serviceImpl) announce(ctx context.Context, event string, booking model.Booking, from model.Status, actorID, tripTitle string) {
	s.runner.Go(ctx, "cache.invalidate.trip", func(ctx context.Context) error {
		shared.InvalidateCaches(ctx, s.cache, constant.CachePrefixTrip)

		return nil
	})

	s.runner.Go(ctx, event, func(ctx context.Context) error {
		return s.kafka.SendMessages(ctx, s.cfg.Kafka.Topics.Booking, kafka.Message{
			Key:   booking.TripID,
			Event: event,
			Value: dto.StatusChangedEvent{
				BookingID: booking.ID,
				TripID:    booking.TripID,
				UserID:    booking.UserID,
				From:      from,
				To:        booking.Status,
				Actor:     actorID,
			},
		})
	})

	s.runner.Go(ctx, "notify."+event, func(ctx context.Context) error {
		user, err := s.userRepo.Get(ctx, shared.FilterByID(booking.UserID, userModel.FieldID, userModel.TableName), userModel.FieldEmail)
		if err != nil {
			return fmt.Errorf("failed to load booking user: %w", err)
		}

		if user.Email == "" {
			return nil
		}

		return s.notifier.Notify(ctx, notifier.BookingStatusMessage(user.Email, tripTitle, booking.Status.String()))
	})
}

func ledgerFailure(err error) error {
	for _, conflict := range []error{model.ErrTripNotFound, model.ErrTripInactive, model.ErrTripFull, model.ErrDuplicateBooking} {
		if errors.Is(err, conflict) {
			return failure.Conflict(conflict.Error())
		}
	}

	switch {
	case errors.Is(err, model.ErrBookingNotFound):
		return failure.NotFound(errBookingNotFound)
	case errors.Is(err, model.ErrInvalidTransition):
		msg := model.ErrInvalidTransition.Error()

		return failure.Validation(msg, failure.FieldError{Field: "status", Message: msg})
	default:
		return nil
	}
}
