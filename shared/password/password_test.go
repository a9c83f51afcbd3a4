package password_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"mlaku/shared/password"
)

func TestHash(t *testing.T) {
	tests := []struct {
		name          string
		password      string
		expectedError error
	}{
		{name: "valid password", password: "pw123456"},
		{name: "unicode password", password: "pässwörd-ünïcode"},
		{name: "empty password", password: "", expectedError: password.ErrEmptyPassword},
		{name: "too long", password: strings.Repeat("a", 73), expectedError: password.ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := password.HashWithCost(tt.password, bcrypt.MinCost)

			if tt.expectedError != nil {
				require.ErrorIs(t, err, tt.expectedError)
				assert.Empty(t, hash)

				return
			}

			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(hash, "$2a$"))
			assert.NoError(t, password.Verify(tt.password, hash))
		})
	}
}

func TestHash_IsSalted(t *testing.T) {
	first, err := password.HashWithCost("pw123456", bcrypt.MinCost)
	require.NoError(t, err)

	second, err := password.HashWithCost("pw123456", bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerify(t *testing.T) {
	validHash, err := password.HashWithCost("pw123456", bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		hash     string
		wantErr  error
	}{
		{name: "match", password: "pw123456", hash: validHash},
		{name: "wrong password", password: "pw654321", hash: validHash, wantErr: password.ErrInvalidPassword},
		{name: "empty password", password: "", hash: validHash, wantErr: password.ErrInvalidPassword},
		{name: "empty hash", password: "pw123456", hash: "", wantErr: password.ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := password.Verify(tt.password, tt.hash)
			if tt.wantErr == nil {
				assert.NoError(t, err)

				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	err := password.Verify("pw123456", "not-a-bcrypt-hash")

	require.Error(t, err)
	assert.NotErrorIs(t, err, password.ErrInvalidPassword)
}
