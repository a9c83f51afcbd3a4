package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mlaku/config"
	"mlaku/infras/kafka"
	"mlaku/infras/otel"
	"mlaku/internal/domains/user/model"
	"mlaku/internal/domains/user/model/dto"
	"mlaku/internal/domains/user/repository"
	"mlaku/permissions"
	"mlaku/shared"
	"mlaku/shared/background"
	"mlaku/shared/cache"
	"mlaku/shared/constant"
	gDto "mlaku/shared/dto"
	"mlaku/shared/failure"
)

const (
	errUserNotFound     = "user not found"
	errOwnerImmutable   = "owner accounts cannot change role"
	errOwnerUndeletable = "owner accounts cannot be deleted"
)

var sortableColumns = []string{constant.FieldCreatedAt, model.FieldEmail, model.FieldRole, model.FieldLastLogin}

// publicColumns never include credentials or token material.
var publicColumns = []string{
	model.FieldID, model.FieldEmail, model.FieldPhone, model.FieldRole, model.FieldIsVerified, model.FieldLastLogin,
	constant.FieldCreatedAt, constant.FieldModifiedAt, constant.FieldCreatedBy, constant.FieldModifiedBy,
}

type User interface {
	List(ctx context.Context, params gDto.QueryParams, query dto.ListUsersQuery) (gDto.Page[dto.UserResponse], error)
	Get(ctx context.Context, id string) (dto.UserResponse, error)
	Me(ctx context.Context, userID string) (dto.UserResponse, error)
	UpdateRole(ctx context.Context, actorID, targetID string, req dto.UpdateRoleRequest) (dto.UserResponse, error)
	Delete(ctx context.Context, actorID, targetID string) error
}

type serviceImpl struct {
	repo   repository.User
	cfg    *config.Config
	cache  cache.RedisCache
	kafka  kafka.Client
	runner background.Runner
	otel   otel.Otel
}

func New(repo repository.User, cfg *config.Config, cache cache.RedisCache, kafka kafka.Client, runner background.Runner, otel otel.Otel) User {
	return &serviceImpl{
		repo:   repo,
		cfg:    cfg,
		cache:  cache,
		kafka:  kafka,
		runner: runner,
		otel:   otel,
	}
}

func (s *serviceImpl) List(ctx context.Context, params gDto.QueryParams, query dto.ListUsersQuery) (res gDto.Page[dto.UserResponse], err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".user.List")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	params.Normalize(constant.FieldCreatedAt, gDto.SortDirDesc, sortableColumns...)
	filter := query.ToFilter()

	var (
		total  int
		models []model.User
	)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var countErr error
		total, countErr = s.repo.Count(gctx, filter)

		return countErr
	})

	group.Go(func() error {
		var listErr error
		models, listErr = s.repo.GetAll(gctx, params, filter, publicColumns...)

		return listErr
	})

	if err = group.Wait(); err != nil {
		log.Error().Err(err).Msg("failed to list users")

		return res, fmt.Errorf("failed to list users: %w", err)
	}

	res.Items = dto.FromModels(models)
	res.Meta = gDto.NewPaginationMeta(params.Page, params.Limit, total)

	return res, nil
}

func (s *serviceImpl) Get(ctx context.Context, id string) (res dto.UserResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".user.Get")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	user, err := s.find(ctx, id)
	if err != nil {
		return res, err
	}

	res.FromModel(user)

	return res, nil
}

func (s *serviceImpl) Me(ctx context.Context, userID string) (res dto.UserResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".user.Me")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	if userID == "" {
		return res, failure.Unauthorized("authentication required")
	}

	return s.Get(ctx, userID)
}

func (s *serviceImpl) UpdateRole(ctx context.Context, actorID, targetID string, req dto.UpdateRoleRequest) (res dto.UserResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".user.UpdateRole")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	role, err := permissions.ParseRole(req.Role)
	if err != nil {
		msg := "role must be one of [owner staff tourist]"

		return res, failure.Validation(msg, failure.FieldError{Field: "role", Message: msg})
	}

	if err = s.authorizeOwner(ctx, actorID); err != nil {
		return res, err
	}

	target, err := s.find(ctx, targetID)
	if err != nil {
		return res, err
	}

	if target.Role == permissions.RoleOwner {
		return res, failure.Forbidden(errOwnerImmutable)
	}

	fields := shared.TransformFields(dto.UpdateRoleFields{Role: role}, actorID)

	updated, err := s.repo.UpdateReturning(ctx, fields, shared.FilterByID(targetID, model.FieldID, model.TableName))
	if err != nil {
		log.Error().Err(err).Str("userID", targetID).Msg("failed to update user role")

		return res, fmt.Errorf("failed to update user role: %w", err)
	}

	if updated.ID == "" {
		return res, failure.NotFound(errUserNotFound)
	}

	res.FromModel(updated)

	s.runner.Go(ctx, constant.EventUserRoleChanged, func(ctx context.Context) error {
		return s.kafka.SendMessages(ctx, s.cfg.Kafka.Topics.User, kafka.Message{
			Key:   updated.ID,
			Event: constant.EventUserRoleChanged,
			Value: map[string]any{"userId": updated.ID, "from": target.Role, "to": updated.Role, "by": actorID},
		})
	})

	return res, nil
}

func (s *serviceImpl) Delete(ctx context.Context, actorID, targetID string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".user.Delete")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	if err = s.authorizeOwner(ctx, actorID); err != nil {
		return err
	}

	target, err := s.find(ctx, targetID)
	if err != nil {
		return err
	}

	if target.Role == permissions.RoleOwner {
		return failure.Forbidden(errOwnerUndeletable)
	}

	affected, err := s.repo.DeleteReleasingBookings(ctx, targetID)
	if err != nil {
		log.Error().Err(err).Str("userID", targetID).Msg("failed to delete user")

		return fmt.Errorf("failed to delete user: %w", err)
	}

	if affected == 0 {
		return failure.NotFound(errUserNotFound)
	}

	// released bookings change trip availability
	s.runner.Go(ctx, "cache.invalidate.trip", func(ctx context.Context) error {
		shared.InvalidateCaches(ctx, s.cache, constant.CachePrefixTrip)

		return nil
	})

	return nil
}

func (s *serviceImpl) find(ctx context.Context, id string) (model.User, error) {
	user, err := s.repo.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName), publicColumns...)
	if err != nil {
		log.Error().Err(err).Str("userID", id).Msg("failed to get user")

		return user, fmt.Errorf("failed to get user: %w", err)
	}

	if user.ID == "" {
		return user, failure.NotFound(errUserNotFound)
	}

	return user, nil
}

// authorizeOwner checks the stored role of the actor, not the token claim.
func (s *serviceImpl) authorizeOwner(ctx context.Context, actorID string) error {
	actor, err := s.repo.GetActor(ctx, actorID)
	if err != nil {
		log.Error().Err(err).Str("actorID", actorID).Msg("failed to load actor")

		return fmt.Errorf("failed to load actor: %w", err)
	}

	return permissions.Authorize(&actor, permissions.RoleOwner)
}
