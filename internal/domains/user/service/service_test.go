package service_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"mlaku/config"
	kafkaMocks "mlaku/infras/kafka/mocks"
	"mlaku/infras/otel/mocks"
	userMocks "mlaku/internal/domains/user/mocks"
	"mlaku/internal/domains/user/model"
	"mlaku/internal/domains/user/model/dto"
	"mlaku/internal/domains/user/service"
	"mlaku/permissions"
	"mlaku/shared/background"
	cacheMocks "mlaku/shared/cache/mocks"
	gDto "mlaku/shared/dto"
	"mlaku/shared/failure"
)

const (
	ownerID   = "owner-1"
	touristID = "tourist-1"
)

type fixture struct {
	repo  *userMocks.MockUser
	cache *cacheMocks.MockRedisCache
	kafka *kafkaMocks.MockClient
	svc   service.User
}

func newFixture(t *testing.T) fixture {
	ctrl := gomock.NewController(t)

	f := fixture{
		repo:  userMocks.NewMockUser(ctrl),
		cache: cacheMocks.NewMockRedisCache(ctrl),
		kafka: kafkaMocks.NewMockClient(ctrl),
	}

	cfg := &config.Config{}
	cfg.Kafka.Topics.User = "mlaku.user"

	f.svc = service.New(f.repo, cfg, f.cache, f.kafka, background.Inline(), mocks.NewOtel())

	return f
}

func TestUserService_List(t *testing.T) {
	tests := []struct {
		name      string
		params    gDto.QueryParams
		setupMock func(f fixture)
		wantErr   bool
		wantTotal int
		wantPages int
	}{
		{
			name:   "paginates and clamps the limit",
			params: gDto.QueryParams{Page: 1, Limit: 500, SortBy: "password"},
			setupMock: func(f fixture) {
				f.repo.EXPECT().Count(gomock.Any(), gomock.Any()).Return(150, nil)
				f.repo.EXPECT().
					GetAll(gomock.Any(), gDto.QueryParams{Page: 1, Limit: gDto.MaxLimit, SortBy: "created_at", SortDir: gDto.SortDirDesc}, gomock.Any(), gomock.Any()).
					Return([]model.User{{ID: "u-1", Email: "a@x.com", Role: permissions.RoleTourist}}, nil)
			},
			wantTotal: 150,
			wantPages: 2,
		},
		{
			name:   "count failure",
			params: gDto.QueryParams{Page: 1, Limit: 10},
			setupMock: func(f fixture) {
				f.repo.EXPECT().Count(gomock.Any(), gomock.Any()).Return(0, errors.New("database error"))
				f.repo.EXPECT().GetAll(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			res, err := f.svc.List(context.Background(), tt.params, dto.ListUsersQuery{})

			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, res.Meta.Total)
			assert.Equal(t, tt.wantPages, res.Meta.TotalPages)
			assert.Len(t, res.Items, 1)
		})
	}
}

func TestUserService_Get(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).Return(model.User{}, nil)

		_, err := f.svc.Get(context.Background(), "missing")

		assert.Equal(t, http.StatusNotFound, failure.GetCode(err))
	})

	t.Run("found", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(model.User{ID: touristID, Email: "t@x.com", Role: permissions.RoleTourist, IsVerified: true}, nil)

		res, err := f.svc.Get(context.Background(), touristID)

		require.NoError(t, err)
		assert.Equal(t, "t@x.com", res.Email)
		assert.True(t, res.IsVerified)
	})
}

func TestUserService_Me(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Me(context.Background(), "")

	assert.Equal(t, http.StatusUnauthorized, failure.GetCode(err))
}

func TestUserService_UpdateRole(t *testing.T) {
	tests := []struct {
		name      string
		actorID   string
		targetID  string
		role      string
		setupMock func(f fixture)
		wantCode  int
		wantRole  permissions.Role
	}{
		{
			name:     "owner promotes tourist to staff",
			actorID:  ownerID,
			targetID: touristID,
			role:     "staff",
			setupMock: func(f fixture) {
				f.repo.EXPECT().GetActor(gomock.Any(), ownerID).
					Return(permissions.Actor{ID: ownerID, Role: permissions.RoleOwner}, nil)
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(model.User{ID: touristID, Role: permissions.RoleTourist}, nil)
				f.repo.EXPECT().UpdateReturning(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, fields map[string]any, _ gDto.FilterGroup) (model.User, error) {
						assert.Equal(t, permissions.RoleStaff, fields[model.FieldRole])
						assert.Equal(t, ownerID, fields["modified_by"])

						return model.User{ID: touristID, Role: permissions.RoleStaff}, nil
					})
				f.kafka.EXPECT().SendMessages(gomock.Any(), "mlaku.user", gomock.Any()).Return(nil)
			},
			wantRole: permissions.RoleStaff,
		},
		{
			name:     "owner cannot change another owner",
			actorID:  ownerID,
			targetID: "owner-2",
			role:     "tourist",
			setupMock: func(f fixture) {
				f.repo.EXPECT().GetActor(gomock.Any(), ownerID).
					Return(permissions.Actor{ID: ownerID, Role: permissions.RoleOwner}, nil)
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(model.User{ID: "owner-2", Role: permissions.RoleOwner}, nil)
			},
			wantCode: http.StatusForbidden,
		},
		{
			name:     "staff actor is rejected by stored role",
			actorID:  "staff-1",
			targetID: touristID,
			role:     "staff",
			setupMock: func(f fixture) {
				f.repo.EXPECT().GetActor(gomock.Any(), "staff-1").
					Return(permissions.Actor{ID: "staff-1", Role: permissions.RoleStaff}, nil)
			},
			wantCode: http.StatusForbidden,
		},
		{
			name:     "unknown actor",
			actorID:  "ghost",
			targetID: touristID,
			role:     "staff",
			setupMock: func(f fixture) {
				f.repo.EXPECT().GetActor(gomock.Any(), "ghost").Return(permissions.Actor{}, nil)
			},
			wantCode: http.StatusForbidden,
		},
		{
			name:      "invalid role",
			actorID:   ownerID,
			targetID:  touristID,
			role:      "admin",
			setupMock: func(fixture) {},
			wantCode:  http.StatusBadRequest,
		},
		{
			name:     "target missing",
			actorID:  ownerID,
			targetID: "missing",
			role:     "staff",
			setupMock: func(f fixture) {
				f.repo.EXPECT().GetActor(gomock.Any(), ownerID).
					Return(permissions.Actor{ID: ownerID, Role: permissions.RoleOwner}, nil)
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).Return(model.User{}, nil)
			},
			wantCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			res, err := f.svc.UpdateRole(context.Background(), tt.actorID, tt.targetID, dto.UpdateRoleRequest{Role: tt.role})

			if tt.wantCode != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, failure.GetCode(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, res.Role)
		})
	}
}

func TestUserService_Delete(t *testing.T) {
	ownerActor := func(f fixture) {
		f.repo.EXPECT().GetActor(gomock.Any(), ownerID).
			Return(permissions.Actor{ID: ownerID, Role: permissions.RoleOwner}, nil)
	}

	tests := []struct {
		name      string
		setupMock func(f fixture)
		wantCode  int
	}{
		{
			name: "deletes tourist and releases capacity",
			setupMock: func(f fixture) {
				ownerActor(f)
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(model.User{ID: touristID, Role: permissions.RoleTourist}, nil)
				f.repo.EXPECT().DeleteReleasingBookings(gomock.Any(), touristID).Return(int64(1), nil)
				f.cache.EXPECT().Clear(gomock.Any(), "trip:*").Return(nil)
			},
		},
		{
			name: "owner accounts are undeletable",
			setupMock: func(f fixture) {
				ownerActor(f)
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(model.User{ID: touristID, Role: permissions.RoleOwner}, nil)
			},
			wantCode: http.StatusForbidden,
		},
		{
			name: "row vanished before delete",
			setupMock: func(f fixture) {
				ownerActor(f)
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(model.User{ID: touristID, Role: permissions.RoleTourist}, nil)
				f.repo.EXPECT().DeleteReleasingBookings(gomock.Any(), touristID).Return(int64(0), nil)
			},
			wantCode: http.StatusNotFound,
		},
		{
			name: "store failure",
			setupMock: func(f fixture) {
				ownerActor(f)
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(model.User{ID: touristID, Role: permissions.RoleTourist}, nil)
				f.repo.EXPECT().DeleteReleasingBookings(gomock.Any(), touristID).Return(int64(0), errors.New("database error"))
			},
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			err := f.svc.Delete(context.Background(), ownerID, touristID)

			if tt.wantCode != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, failure.GetCode(err))

				return
			}

			assert.NoError(t, err)
		})
	}
}
