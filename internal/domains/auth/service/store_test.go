package service_test

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/lib/pq"

	userModel "mlaku/internal/domains/user/model"
	"mlaku/permissions"
	"mlaku/shared/constant"
	gDto "mlaku/shared/dto"
)

// userStore is an in-memory users table understanding the filters the auth
// service issues.
type userStore struct {
	mu    sync.Mutex
	users map[string]userModel.User
}

func newUserStore() *userStore {
	return &userStore{users: map[string]userModel.User{}}
}

func (s *userStore) byEmail(email string) userModel.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return u
		}
	}

	return userModel.User{}
}

func (s *userStore) put(u userModel.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[u.ID] = u
}

func (s *userStore) Insert(_ context.Context, m userModel.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == m.Email {
			return &pq.Error{Code: constant.PqErrorCodeUniqueViolation, Constraint: userModel.ConstraintEmail}
		}

		if u.Phone == m.Phone {
			return &pq.Error{Code: constant.PqErrorCodeUniqueViolation, Constraint: userModel.ConstraintPhone}
		}
	}

	s.users[m.ID] = m

	return nil
}

func (s *userStore) Get(_ context.Context, filter gDto.FilterGroup, _ ...string) (userModel.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if matches(u, filter) {
			return u, nil
		}
	}

	return userModel.User{}, nil
}

func (s *userStore) GetAll(_ context.Context, _ gDto.QueryParams, filter gDto.FilterGroup, _ ...string) ([]userModel.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []userModel.User

	for _, u := range s.users {
		if matches(u, filter) {
			res = append(res, u)
		}
	}

	return res, nil
}

func (s *userStore) Exist(ctx context.Context, filter gDto.FilterGroup) (bool, error) {
	n, err := s.Count(ctx, filter)

	return n > 0, err
}

func (s *userStore) Count(ctx context.Context, filter gDto.FilterGroup) (int, error) {
	res, err := s.GetAll(ctx, gDto.QueryParams{}, filter)

	return len(res), err
}

func (s *userStore) Update(ctx context.Context, req map[string]any, filter gDto.FilterGroup) error {
	_, err := s.UpdateReturning(ctx, req, filter)

	return err
}

func (s *userStore) UpdateReturning(_ context.Context, req map[string]any, filter gDto.FilterGroup) (userModel.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last userModel.User

	for id, u := range s.users {
		if !matches(u, filter) {
			continue
		}

		apply(&u, req)
		s.users[id] = u
		last = u
	}

	return last, nil
}

func (s *userStore) Delete(_ context.Context, filter gDto.FilterGroup) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64

	for id, u := range s.users {
		if matches(u, filter) {
			delete(s.users, id)
			n++
		}
	}

	return n, nil
}

func (s *userStore) GetActor(_ context.Context, id string) (permissions.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.users[id].Actor(), nil
}

func (s *userStore) DeleteReleasingBookings(ctx context.Context, id string) (int64, error) {
	return s.Delete(ctx, gDto.FilterGroup{Filters: []any{gDto.Filter{Field: userModel.FieldID, Operator: gDto.FilterOperatorEq, Value: id}}})
}

func column(u userModel.User, name string) any {
	switch name {
	case userModel.FieldID:
		return u.ID
	case userModel.FieldEmail:
		return u.Email
	case userModel.FieldPhone:
		return u.Phone
	case userModel.FieldRole:
		return u.Role
	case userModel.FieldIsVerified:
		return u.IsVerified
	case userModel.FieldOTPToken:
		if u.OTPToken == nil {
			return nil
		}

		return *u.OTPToken
	case userModel.FieldRefreshTokenHash:
		if u.RefreshTokenHash == nil {
			return nil
		}

		return *u.RefreshTokenHash
	case userModel.FieldOTPExpiry:
		return u.OTPExpiry
	case userModel.FieldRefreshTokenExpiry:
		return u.RefreshTokenExpiry
	}

	return nil
}

func matches(u userModel.User, group gDto.FilterGroup) bool {
	for _, raw := range group.Filters {
		f, ok := raw.(gDto.Filter)
		if !ok {
			return false
		}

		value := column(u, f.Field)

		switch f.Operator {
		case gDto.FilterOperatorEq:
			if !reflect.DeepEqual(value, f.Value) {
				return false
			}
		case gDto.FilterOperatorGreaterEq:
			at, _ := value.(*time.Time)
			bound, _ := f.Value.(time.Time)

			if at == nil || at.Before(bound) {
				return false
			}
		default:
			return false
		}
	}

	return true
}

func apply(u *userModel.User, req map[string]any) {
	for key, value := range req {
		switch key {
		case userModel.FieldIsVerified:
			u.IsVerified, _ = value.(bool)
		case userModel.FieldRole:
			u.Role, _ = value.(permissions.Role)
		case userModel.FieldOTPToken:
			u.OTPToken = stringPtr(value)
		case userModel.FieldRefreshTokenHash:
			u.RefreshTokenHash = stringPtr(value)
		case userModel.FieldOTPExpiry:
			u.OTPExpiry = timePtr(value)
		case userModel.FieldRefreshTokenExpiry:
			u.RefreshTokenExpiry = timePtr(value)
		case userModel.FieldLastLogin:
			u.LastLogin = timePtr(value)
		}
	}
}

func stringPtr(value any) *string {
	v, ok := value.(string)
	if !ok {
		return nil
	}

	return &v
}

func timePtr(value any) *time.Time {
	v, ok := value.(time.Time)
	if !ok {
		return nil
	}

	return &v
}
