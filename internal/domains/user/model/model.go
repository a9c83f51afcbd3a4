package model

import (
	"time"

	"mlaku/permissions"
	"mlaku/shared/model"
)

const (
	TableName  = "users"
	EntityName = "user"

	FieldID                 = "id"
	FieldEmail              = "email"
	FieldPhone              = "phone"
	FieldPassword           = "password"
	FieldRole               = "role"
	FieldIsVerified         = "is_verified"
	FieldOTPToken           = "otp_token"
	FieldOTPExpiry          = "otp_expiry"
	FieldRefreshTokenHash   = "refresh_token_hash"
	FieldRefreshTokenExpiry = "refresh_token_expiry"
	FieldLastLogin          = "last_login"

	ConstraintEmail = "users_email_key"
	ConstraintPhone = "users_phone_key"
)

type User struct {
	ID                 string           `db:"id"`
	Email              string           `db:"email"`
	Phone              string           `db:"phone"`
	Password           string           `db:"password"`
	Role               permissions.Role `db:"role"`
	IsVerified         bool             `db:"is_verified"`
	OTPToken           *string          `db:"otp_token"`
	OTPExpiry          *time.Time       `db:"otp_expiry"`
	RefreshTokenHash   *string          `db:"refresh_token_hash"`
	RefreshTokenExpiry *time.Time       `db:"refresh_token_expiry"`
	LastLogin          *time.Time       `db:"last_login"`
	model.Metadata
}

// Actor is the identity the stored role grants to this user.
func (u User) Actor() permissions.Actor {
	return permissions.Actor{ID: u.ID, Role: u.Role}
}

// OTPValid reports whether code matches the stored, unexpired OTP.
func (u User) OTPValid(code string, now time.Time) bool {
	if u.OTPToken == nil || u.OTPExpiry == nil {
		return false
	}

	return *u.OTPToken == code && now.Before(*u.OTPExpiry)
}
