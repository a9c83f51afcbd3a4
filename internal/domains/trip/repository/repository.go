package repository

//go:generate go run go.uber.org/mock/mockgen -source=./repository.go -destination=../mocks/repository_mock.go -package=mocks

import (
	"context"

	"mlaku/infras/otel"
	"mlaku/infras/postgres"
	"mlaku/internal/domains/trip/model"
	gDto "mlaku/shared/dto"
	gRepo "mlaku/shared/repository"
)

type Trip interface {
	Insert(ctx context.Context, model model.Trip) error
	Get(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.Trip, error)
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.Trip, error)
	Exist(ctx context.Context, filter gDto.FilterGroup) (bool, error)
	Count(ctx context.Context, filter gDto.FilterGroup) (int, error)
	Update(ctx context.Context, req map[string]any, filter gDto.FilterGroup) error
	UpdateReturning(ctx context.Context, req map[string]any, filter gDto.FilterGroup) (model.Trip, error)
	Delete(ctx context.Context, filter gDto.FilterGroup) (int64, error)
}

type repositoryImpl struct {
	gRepo.Repository[model.Trip]
	db   *postgres.Connection
	otel otel.Otel
}

func New(db *postgres.Connection, otel otel.Otel) Trip {
	return &repositoryImpl{
		Repository: gRepo.NewRepository[model.Trip](model.EntityName, model.TableName, model.FieldID, db, otel),
		db:         db,
		otel:       otel,
	}
}
