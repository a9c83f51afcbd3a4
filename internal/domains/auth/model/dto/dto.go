package dto

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"mlaku/infras/jwt"
	userModel "mlaku/internal/domains/user/model"
	userDto "mlaku/internal/domains/user/model/dto"
	"mlaku/permissions"
	gModel "mlaku/shared/model"
	"mlaku/shared/timezone"
)

const createdBySystem = "system"

type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Phone    string `json:"phone"    validate:"required,max=32"`
	Role     string `json:"role"     validate:"required,oneof=staff tourist" enums:"staff,tourist"`
}

type RegisterOwnerRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Phone    string `json:"phone"    validate:"required,max=32"`
}

// Registration is the normalised input shared by both registration paths.
type Registration struct {
	Email    string
	Password string
	Phone    string
	Role     permissions.Role
}

func (r RegisterRequest) ToRegistration() Registration {
	return Registration{
		Email:    NormalizeEmail(r.Email),
		Password: r.Password,
		Phone:    strings.TrimSpace(r.Phone),
		Role:     permissions.Role(strings.ToLower(strings.TrimSpace(r.Role))),
	}
}

func (r RegisterOwnerRequest) ToRegistration() Registration {
	return Registration{
		Email:    NormalizeEmail(r.Email),
		Password: r.Password,
		Phone:    strings.TrimSpace(r.Phone),
		Role:     permissions.RoleOwner,
	}
}

// ToUserModel builds the row to insert. An empty otp leaves the OTP columns null.
func (r Registration) ToUserModel(hashedPassword string, verified bool, otp string, otpExpiry time.Time) userModel.User {
	now := timezone.Now()

	user := userModel.User{
		ID:         uuid.NewString(),
		Email:      r.Email,
		Phone:      r.Phone,
		Password:   hashedPassword,
		Role:       r.Role,
		IsVerified: verified,
		Metadata: gModel.Metadata{
			CreatedAt:  now,
			ModifiedAt: now,
			CreatedBy:  createdBySystem,
			ModifiedBy: createdBySystem,
		},
	}

	if otp != "" {
		user.OTPToken = &otp
		user.OTPExpiry = &otpExpiry
	}

	return user
}

type VerifyOtpRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp"   validate:"required,max=32"`
}

type ResendOtpRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

type LoginResponse struct {
	AccessToken      string               `json:"accessToken"`
	RefreshToken     string               `json:"refreshToken"`
	TokenType        string               `json:"tokenType"`
	ExpiresIn        int64                `json:"expiresIn"`
	RefreshExpiresIn int64                `json:"refreshExpiresIn"`
	User             userDto.UserResponse `json:"user"`
}

func (l *LoginResponse) FromTokenPair(tokenPair *jwt.TokenPair, user userModel.User) {
	l.AccessToken = tokenPair.AccessToken
	l.RefreshToken = tokenPair.RefreshToken
	l.TokenType = tokenPair.TokenType
	l.ExpiresIn = tokenPair.ExpiresIn
	l.RefreshExpiresIn = tokenPair.RefreshExpiresIn
	l.User.FromModel(user)
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
	UserID       string `json:"userId"       validate:"omitempty,uuid"`
}

type RefreshTokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

func (r *RefreshTokenResponse) FromTokenPair(tokenPair *jwt.TokenPair) {
	r.AccessToken = tokenPair.AccessToken
	r.TokenType = tokenPair.TokenType
	r.ExpiresIn = tokenPair.ExpiresIn
}

type UpdateOTPFields struct {
	OTPToken  string    `db:"otp_token"`
	OTPExpiry time.Time `db:"otp_expiry"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeOTP drops all whitespace and upper-cases the code.
func NormalizeOTP(otp string) string {
	return strings.ToUpper(strings.Join(strings.Fields(otp), ""))
}
