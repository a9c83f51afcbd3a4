package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mlaku/config"
	"mlaku/infras/otel"
	"mlaku/infras/s3"
	bookingModel "mlaku/internal/domains/booking/model"
	bookingRepo "mlaku/internal/domains/booking/repository"
	"mlaku/internal/domains/trip/model"
	"mlaku/internal/domains/trip/model/dto"
	"mlaku/internal/domains/trip/repository"
	userModel "mlaku/internal/domains/user/model"
	userDto "mlaku/internal/domains/user/model/dto"
	userRepo "mlaku/internal/domains/user/repository"
	"mlaku/permissions"
	"mlaku/shared"
	"mlaku/shared/background"
	"mlaku/shared/cache"
	"mlaku/shared/constant"
	gDto "mlaku/shared/dto"
	"mlaku/shared/failure"
	gRepo "mlaku/shared/repository"
)

const (
	errTripNotFound   = "trip not found"
	errNotTripOwner   = "you can only manage your own trips"
	errActiveBookings = "trip has active bookings and cannot be deleted"
	errCapacityBelow  = "maxCapacity cannot be lower than the current number of bookings"
	errStorageMissing = "image storage is not configured"

	imageDirectory = "trips"
)

var (
	cacheAvailableTrips = shared.BuildCacheKey(constant.CachePrefixTrip, "available")
	cacheGetTrip        = shared.BuildCacheKey(constant.CachePrefixTrip, "get")

	ownerSortColumns = []string{constant.FieldCreatedAt, model.FieldStartDate, model.FieldTitle, model.FieldPrice}
)

type Trip interface {
	Create(ctx context.Context, actorID string, req dto.CreateTripRequest) (dto.TripResponse, error)
	Update(ctx context.Context, actorID, id string, req dto.UpdateTripRequest) (dto.TripResponse, error)
	Delete(ctx context.Context, actorID, id string) error
	ListAvailable(ctx context.Context, params gDto.QueryParams) (gDto.Page[dto.TripResponse], error)
	ListForOwner(ctx context.Context, ownerID string, params gDto.QueryParams) (gDto.Page[dto.TripResponse], error)
	Get(ctx context.Context, id string) (dto.TripDetailResponse, error)
	UploadImage(ctx context.Context, actorID, id string, file multipart.File, header *multipart.FileHeader) (dto.TripResponse, error)
	Reconcile(ctx context.Context, actorID, id string) (dto.ReconcileResponse, error)
}

type serviceImpl struct {
	repo        repository.Trip
	userRepo    userRepo.User
	bookingRepo bookingRepo.Booking
	cfg         *config.Config
	cache       cache.RedisCache
	s3          s3.S3
	runner      background.Runner
	otel        otel.Otel
}

func New(
	repo repository.Trip,
	userRepo userRepo.User,
	bookingRepo bookingRepo.Booking,
	cfg *config.Config,
	cache cache.RedisCache,
	s3 s3.S3,
	runner background.Runner,
	otel otel.Otel,
) Trip {
	return &serviceImpl{
		repo:        repo,
		userRepo:    userRepo,
		bookingRepo: bookingRepo,
		cfg:         cfg,
		cache:       cache,
		s3:          s3,
		runner:      runner,
		otel:        otel,
	}
}

func (s *serviceImpl) Create(ctx context.Context, actorID string, req dto.CreateTripRequest) (res dto.TripResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".trip.Create")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	if err = s.authorizeOwner(ctx, actorID); err != nil {
		return res, err
	}

	start, end, err := req.Schedule()
	if err != nil {
		return res, err
	}

	trip := req.ToModel(actorID, start, end)

	if err = s.repo.Insert(ctx, trip); err != nil {
		if fail := constraintFailure(err); fail != nil {
			return res, fail
		}

		log.Error().Err(err).Msg("failed to create trip")

		return res, fmt.Errorf("failed to create trip: %w", err)
	}

	s.invalidate(ctx)

	res.FromModel(trip)

	return res, nil
}

func (s *serviceImpl) Update(ctx context.Context, actorID, id string, req dto.UpdateTripRequest) (res dto.TripResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".trip.Update")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	if err = s.authorizeOwner(ctx, actorID); err != nil {
		return res, err
	}

	current, err := s.ownedTrip(ctx, actorID, id)
	if err != nil {
		return res, err
	}

	fields, err := req.ToFields(current)
	if err != nil {
		return res, err
	}

	guard := ownedFilter(id, actorID)

	// shrinking capacity must still fit the bookings held at write time
	if fields.MaxCapacity != nil {
		guard.Filters = append(guard.Filters, gDto.Filter{
			Field:    model.FieldCurrentBookings,
			Operator: gDto.FilterOperatorLessEq,
			Value:    *fields.MaxCapacity,
			Table:    model.TableName,
		})
	}

	updated, err := s.repo.UpdateReturning(ctx, shared.TransformFields(fields, actorID), guard)
	if err != nil {
		if fail := constraintFailure(err); fail != nil {
			return res, fail
		}

		log.Error().Err(err).Str("tripID", id).Msg("failed to update trip")

		return res, fmt.Errorf("failed to update trip: %w", err)
	}

	if updated.ID == "" {
		return res, failure.Validation(errCapacityBelow,
			failure.FieldError{Field: "maxCapacity", Message: errCapacityBelow})
	}

	s.invalidate(ctx)

	res.FromModel(updated)

	return res, nil
}

func (s *serviceImpl) Delete(ctx context.Context, actorID, id string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".trip.Delete")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	if err = s.authorizeOwner(ctx, actorID); err != nil {
		return err
	}

	trip, err := s.ownedTrip(ctx, actorID, id)
	if err != nil {
		return err
	}

	guard := ownedFilter(id, actorID)
	guard.Filters = append(guard.Filters, gDto.Filter{
		Field:    model.FieldCurrentBookings,
		Operator: gDto.FilterOperatorEq,
		Value:    0,
		Table:    model.TableName,
	})

	affected, err := s.repo.Delete(ctx, guard)
	if err != nil {
		log.Error().Err(err).Str("tripID", id).Msg("failed to delete trip")

		return fmt.Errorf("failed to delete trip: %w", err)
	}

	if affected == 0 {
		return failure.Validation(errActiveBookings)
	}

	if trip.ImageURL != nil {
		s.deleteImage(ctx, *trip.ImageURL)
	}

	s.invalidate(ctx)

	return nil
}

func (s *serviceImpl) ListAvailable(ctx context.Context, params gDto.QueryParams) (res gDto.Page[dto.TripResponse], err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".trip.ListAvailable")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	params.Normalize(model.FieldStartDate, gDto.SortDirAsc)
	params.SortBy, params.SortDir = model.FieldStartDate, gDto.SortDirAsc

	filter := dto.AvailableFilter()
	cacheKey := shared.BuildCacheKeyWithQuery(cacheAvailableTrips, params, filter)

	if err = s.cache.Get(ctx, cacheKey, &res); err == nil {
		log.Debug().Str("cacheKey", cacheKey).Msg("cache hit for available trips")

		return res, nil
	}

	res, err = s.list(ctx, params, filter)
	if err != nil {
		return res, err
	}

	s.runner.Go(ctx, "cache.save.trips", func(ctx context.Context) error {
		return s.cache.Save(ctx, cacheKey, res, s.cfg.Cache.TTL)
	})

	return res, nil
}

func (s *serviceImpl) ListForOwner(ctx context.Context, ownerID string, params gDto.QueryParams) (res gDto.Page[dto.TripResponse], err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".trip.ListForOwner")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	params.Normalize(constant.FieldCreatedAt, gDto.SortDirDesc, ownerSortColumns...)

	return s.list(ctx, params, dto.OwnerFilter(ownerID))
}

func (s *serviceImpl) Get(ctx context.Context, id string) (res dto.TripDetailResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".trip.Get")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	cacheKey := shared.BuildCacheKey(cacheGetTrip, id)

	if err = s.cache.Get(ctx, cacheKey, &res); err == nil {
		return res, nil
	}

	trip, err := s.find(ctx, id)
	if err != nil {
		return res, err
	}

	var (
		owner        userModel.User
		bookings     []bookingModel.Booking
		bookingTotal int
	)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var ownerErr error
		owner, ownerErr = s.userRepo.Get(gctx, shared.FilterByID(trip.OwnerID, userModel.FieldID, userModel.TableName),
			userModel.FieldID, userModel.FieldEmail, userModel.FieldRole)

		return ownerErr
	})

	bookingFilter := gDto.FilterGroup{Filters: []any{gDto.Filter{
		Field:    bookingModel.FieldTripID,
		Operator: gDto.FilterOperatorEq,
		Value:    trip.ID,
		Table:    bookingModel.TableName,
	}}}

	group.Go(func() error {
		params := gDto.QueryParams{Page: 1, Limit: gDto.MaxLimit, SortBy: constant.FieldCreatedAt, SortDir: gDto.SortDirDesc}

		var bookingErr error
		bookings, bookingErr = s.bookingRepo.GetAll(gctx, params, bookingFilter)

		return bookingErr
	})

	group.Go(func() error {
		var countErr error
		bookingTotal, countErr = s.bookingRepo.Count(gctx, bookingFilter)

		return countErr
	})

	if err = group.Wait(); err != nil {
		log.Error().Err(err).Str("tripID", id).Msg("failed to load trip details")

		return res, fmt.Errorf("failed to load trip details: %w", err)
	}

	res.FromModel(trip)
	res.SetBookings(bookings, bookingTotal)

	if owner.ID != "" {
		res.Owner = &userDto.UserSummary{}
		res.Owner.FromModel(owner)
	}

	s.runner.Go(ctx, "cache.save.trip", func(ctx context.Context) error {
		return s.cache.Save(ctx, cacheKey, res, s.cfg.Cache.TTL)
	})

	return res, nil
}

func (s *serviceImpl) UploadImage(ctx context.Context, actorID, id string, file multipart.File, header *multipart.FileHeader) (res dto.TripResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".trip.UploadImage")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	if err = s.authorizeOwner(ctx, actorID); err != nil {
		return res, err
	}

	trip, err := s.ownedTrip(ctx, actorID, id)
	if err != nil {
		return res, err
	}

	fileName := uuid.NewString() + strings.ToLower(filepath.Ext(header.Filename))

	url, err := s.s3.UploadFile(ctx, imageDirectory+"/"+id, file, header, fileName)
	if err != nil {
		if errors.Is(err, s3.ErrNotConfigured) {
			return res, failure.InternalError(errors.New(errStorageMissing))
		}

		log.Error().Err(err).Str("tripID", id).Msg("failed to upload trip image")

		return res, fmt.Errorf("failed to upload trip image: %w", err)
	}

	fields := shared.TransformFields(dto.UpdateImageFields{ImageURL: url}, actorID)

	updated, err := s.repo.UpdateReturning(ctx, fields, ownedFilter(id, actorID))
	if err != nil {
		log.Error().Err(err).Str("tripID", id).Msg("failed to store trip image")
		s.deleteImage(ctx, url)

		return res, fmt.Errorf("failed to store trip image: %w", err)
	}

	if updated.ID == "" {
		s.deleteImage(ctx, url)

		return res, failure.NotFound(errTripNotFound)
	}

	if trip.ImageURL != nil && *trip.ImageURL != url {
		s.deleteImage(ctx, *trip.ImageURL)
	}

	s.invalidate(ctx)

	res.FromModel(updated)

	return res, nil
}

func (s *serviceImpl) Reconcile(ctx context.Context, actorID, id string) (res dto.ReconcileResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".trip.Reconcile")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	if err = s.authorizeOwner(ctx, actorID); err != nil {
		return res, err
	}

	if _, err = s.ownedTrip(ctx, actorID, id); err != nil {
		return res, err
	}

	previous, current, err := s.bookingRepo.Reconcile(ctx, id)
	if err != nil {
		if errors.Is(err, bookingModel.ErrTripNotFound) {
			return res, failure.NotFound(errTripNotFound)
		}

		log.Error().Err(err).Str("tripID", id).Msg("failed to reconcile trip")

		return res, fmt.Errorf("failed to reconcile trip: %w", err)
	}

	if previous != current {
		s.invalidate(ctx)
	}

	return dto.ReconcileResponse{TripID: id, Previous: previous, Current: current, Drifted: previous != current}, nil
}

func (s *serviceImpl) list(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup) (res gDto.Page[dto.TripResponse], err error) {
	var (
		total  int
		models []model.Trip
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
		log.Error().Err(err).Msg("failed to list trips")

		return res, fmt.Errorf("failed to list trips: %w", err)
	}

	res.Items = dto.FromModels(models)
	res.Meta = gDto.NewPaginationMeta(params.Page, params.Limit, total)

	return res, nil
}

func (s *serviceImpl) find(ctx context.Context, id string) (model.Trip, error) {
	trip, err := s.repo.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName))
	if err != nil {
		log.Error().Err(err).Str("tripID", id).Msg("failed to get trip")

		return trip, fmt.Errorf("failed to get trip: %w", err)
	}

	if trip.ID == "" {
		return trip, failure.NotFound(errTripNotFound)
	}

	return trip, nil
}

func (s *serviceImpl) ownedTrip(ctx context.Context, actorID, id string) (model.Trip, error) {
	trip, err := s.find(ctx, id)
	if err != nil {
		return trip, err
	}

	if trip.OwnerID != actorID {
		return trip, failure.Forbidden(errNotTripOwner)
	}

	return trip, nil
}

// authorizeOwner checks the stored role of the actor, not the token claim.
func (s *serviceImpl) authorizeOwner(ctx context.Context, actorID string) error {
	actor, err := s.userRepo.GetActor(ctx, actorID)
	if err != nil {
		log.Error().Err(err).Str("actorID", actorID).Msg("failed to load actor")

		return fmt.Errorf("failed to load actor: %w", err)
	}

	return permissions.Authorize(&actor, permissions.RoleOwner)
}

func (s *serviceImpl) invalidate(ctx context.Context) {
	s.runner.Go(ctx, "cache.invalidate.trip", func(ctx context.Context) error {
		shared.InvalidateCaches(ctx, s.cache, constant.CachePrefixTrip)

		return nil
	})
}

func (s *serviceImpl) deleteImage(ctx context.Context, url string) {
	objectKey := s.s3.GetObjectNameFromURL(url)
	if objectKey == "" {
		return
	}

	s.runner.Go(ctx, "s3.delete.trip_image", func(ctx context.Context) error {
		return s.s3.DeleteFile(ctx, objectKey)
	})
}

func ownedFilter(id, ownerID string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: model.FieldID, Operator: gDto.FilterOperatorEq, Value: id, Table: model.TableName},
			gDto.Filter{Field: model.FieldOwnerID, Operator: gDto.FilterOperatorEq, Value: ownerID, Table: model.TableName},
		},
	}
}

func constraintFailure(err error) error {
	constraint, ok := gRepo.IsCheckViolation(err)
	if !ok {
		return nil
	}

	switch constraint {
	case model.ConstraintDates:
		msg := "startDate must not be after endDate"

		return failure.Validation(msg, failure.FieldError{Field: "startDate", Message: msg})
	case model.ConstraintCapacity:
		return failure.Validation(errCapacityBelow, failure.FieldError{Field: "maxCapacity", Message: errCapacityBelow})
	default:
		return failure.Validation("trip violates constraint " + constraint)
	}
}
