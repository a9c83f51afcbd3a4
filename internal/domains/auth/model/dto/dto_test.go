package dto_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlaku/infras/jwt"
	"mlaku/internal/domains/auth/model/dto"
	userModel "mlaku/internal/domains/user/model"
	"mlaku/permissions"
	"mlaku/shared/timezone"
)

func TestLoginResponse_FromTokenPair(t *testing.T) {
	tokenPair := &jwt.TokenPair{
		AccessToken:      "test-access-token",
		RefreshToken:     "test-refresh-token",
		TokenType:        "Bearer",
		ExpiresIn:        900,
		RefreshExpiresIn: 604800,
	}

	var response dto.LoginResponse
	response.FromTokenPair(tokenPair, userModel.User{ID: "u-1", Email: "a@x.com", Password: "hash"})

	assert.Equal(t, tokenPair.AccessToken, response.AccessToken)
	assert.Equal(t, tokenPair.RefreshToken, response.RefreshToken)
	assert.Less(t, response.ExpiresIn, response.RefreshExpiresIn)
	assert.Equal(t, "a@x.com", response.User.Email)
}

func TestRefreshTokenResponse_FromTokenPair(t *testing.T) {
	var response dto.RefreshTokenResponse
	response.FromTokenPair(&jwt.TokenPair{AccessToken: "new-access-token", TokenType: "Bearer", ExpiresIn: 900})

	assert.Equal(t, "new-access-token", response.AccessToken)
	assert.Equal(t, int64(900), response.ExpiresIn)
}

func TestRegistration_ToUserModel(t *testing.T) {
	req := dto.RegisterRequest{Email: "  A@X.com ", Password: "pw123456", Phone: " +1000 ", Role: "Tourist"}
	reg := req.ToRegistration()

	assert.Equal(t, "a@x.com", reg.Email)
	assert.Equal(t, "+1000", reg.Phone)
	assert.Equal(t, permissions.RoleTourist, reg.Role)

	expiry := timezone.Now().Add(10 * time.Minute)
	user := reg.ToUserModel("hash", false, "AB12CD", expiry)

	assert.NotEmpty(t, user.ID)
	assert.False(t, user.IsVerified)
	require.NotNil(t, user.OTPToken)
	assert.Equal(t, "AB12CD", *user.OTPToken)
	assert.True(t, user.OTPValid("AB12CD", timezone.Now()))

	owner := dto.RegisterOwnerRequest{Email: "o@x.com", Password: "Password1", Phone: "+2000"}.ToRegistration().
		ToUserModel("hash", true, "", time.Time{})

	assert.Equal(t, permissions.RoleOwner, owner.Role)
	assert.True(t, owner.IsVerified)
	assert.Nil(t, owner.OTPToken)
	assert.Nil(t, owner.OTPExpiry)
}

func TestNormalizeOTP(t *testing.T) {
	assert.Equal(t, "AB12CD", dto.NormalizeOTP(" ab 12\tcd\n"))
	assert.Equal(t, "", dto.NormalizeOTP("   "))
}
