package dto

import (
	"time"

	"mlaku/internal/domains/user/model"
	"mlaku/permissions"
	"mlaku/shared/constant"
	gDto "mlaku/shared/dto"
	"mlaku/shared/timezone"
)

type UserResponse struct {
	ID         string           `json:"id"`
	Email      string           `json:"email"`
	Phone      string           `json:"phone"`
	Role       permissions.Role `json:"role"                swaggertype:"string" enums:"owner,staff,tourist"`
	IsVerified bool             `json:"isVerified"`
	LastLogin  *string          `json:"lastLogin,omitempty"`
	gDto.Metadata
}

func (r *UserResponse) FromModel(model model.User) {
	r.ID = model.ID
	r.Email = model.Email
	r.Phone = model.Phone
	r.Role = model.Role
	r.IsVerified = model.IsVerified
	r.LastLogin = nil

	if model.LastLogin != nil {
		lastLogin := timezone.Format(*model.LastLogin, constant.DateFormat)
		r.LastLogin = &lastLogin
	}

	r.Metadata.FromModel(model.Metadata)
}

// UserSummary is the public view of a user embedded in other resources.
type UserSummary struct {
	ID    string           `json:"id"`
	Email string           `json:"email"`
	Role  permissions.Role `json:"role" swaggertype:"string"`
}

func (r *UserSummary) FromModel(model model.User) {
	r.ID = model.ID
	r.Email = model.Email
	r.Role = model.Role
}

func FromModels(models []model.User) []UserResponse {
	res := make([]UserResponse, 0, len(models))

	for _, m := range models {
		var item UserResponse
		item.FromModel(m)
		res = append(res, item)
	}

	return res
}

type ListUsersQuery struct {
	Role     string `json:"role"     validate:"omitempty,oneof=owner staff tourist"`
	Verified *bool  `json:"verified"`
}

func (q ListUsersQuery) ToFilter() gDto.FilterGroup {
	filter := gDto.FilterGroup{Operator: gDto.FilterGroupOperatorAnd}

	if q.Role != "" {
		filter.Filters = append(filter.Filters, gDto.Filter{
			Field:    model.FieldRole,
			Operator: gDto.FilterOperatorEq,
			Value:    q.Role,
			Table:    model.TableName,
		})
	}

	if q.Verified != nil {
		filter.Filters = append(filter.Filters, gDto.Filter{
			Field:    model.FieldIsVerified,
			Operator: gDto.FilterOperatorEq,
			Value:    *q.Verified,
			Table:    model.TableName,
		})
	}

	return filter
}

type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=owner staff tourist" enums:"owner,staff,tourist"`
}

type UpdateRoleFields struct {
	Role permissions.Role `db:"role"`
}

// UpdateLoginFields is written on every successful login.
type UpdateLoginFields struct {
	RefreshTokenHash   string    `db:"refresh_token_hash"`
	RefreshTokenExpiry time.Time `db:"refresh_token_expiry"`
	LastLogin          time.Time `db:"last_login"`
}
