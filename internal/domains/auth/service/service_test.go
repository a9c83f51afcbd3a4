package service_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"mlaku/config"
	"mlaku/infras/jwt"
	kafkaMocks "mlaku/infras/kafka/mocks"
	"mlaku/infras/otel/mocks"
	"mlaku/internal/domains/auth/model/dto"
	"mlaku/internal/domains/auth/service"
	userMocks "mlaku/internal/domains/user/mocks"
	userModel "mlaku/internal/domains/user/model"
	userRepo "mlaku/internal/domains/user/repository"
	"mlaku/permissions"
	"mlaku/shared/background"
	"mlaku/shared/constant"
	"mlaku/shared/failure"
	limiterMocks "mlaku/shared/limiter/mocks"
	"mlaku/shared/notifier"
	notifierMocks "mlaku/shared/notifier/mocks"
	"mlaku/shared/timezone"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Name = "mlaku-test"
	cfg.JWT.AccessSecret = "access-secret"
	cfg.JWT.RefreshSecret = "refresh-secret"
	cfg.JWT.AccessExpireMin = 15
	cfg.JWT.RefreshExpireMin = 10080
	cfg.Auth.OTPLength = 6
	cfg.Auth.OTPExpireMin = 10
	cfg.Auth.OTPChannel = "email"
	cfg.Auth.OwnerAutoVerify = true
	cfg.Auth.MaxAttempts = 5
	cfg.Auth.AttemptWindowSecs = 600
	cfg.Auth.LoginMaxAttempts = 10
	cfg.Auth.LoginWindowSeconds = 60
	cfg.Kafka.Topics.User = "mlaku.user"

	return cfg
}

type harness struct {
	svc      service.Auth
	limiter  *limiterMocks.MockLimiter
	notifier *notifierMocks.MockNotifier
	kafka    *kafkaMocks.MockClient
}

func newHarness(t *testing.T, repo userRepo.User) harness {
	ctrl := gomock.NewController(t)
	cfg := testConfig()
	otl := mocks.NewOtel()

	h := harness{
		limiter:  limiterMocks.NewMockLimiter(ctrl),
		notifier: notifierMocks.NewMockNotifier(ctrl),
		kafka:    kafkaMocks.NewMockClient(ctrl),
	}

	h.svc = service.New(repo, cfg, jwt.New(cfg, otl), h.limiter, h.notifier, h.kafka, background.Inline(), otl)

	return h
}

func (h harness) allowAll() {
	h.limiter.EXPECT().Attempt(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	h.limiter.EXPECT().Reset(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	h.kafka.EXPECT().SendMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
}

func storedOTP(t *testing.T, store *userStore, email string) string {
	t.Helper()

	user := store.byEmail(email)
	require.NotNil(t, user.OTPToken)

	return *user.OTPToken
}

func TestAuthService_RegisterVerifyLogin(t *testing.T) {
	store := newUserStore()
	h := newHarness(t, store)
	h.allowAll()

	var sent notifier.Message

	h.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg notifier.Message) error {
			sent = msg

			return nil
		})

	ctx := context.Background()

	user, err := h.svc.Register(ctx, dto.RegisterRequest{Email: "a@x.com", Password: "pw123456", Phone: "+1000", Role: "tourist"})
	require.NoError(t, err)
	assert.Equal(t, permissions.RoleTourist, user.Role)
	assert.False(t, user.IsVerified)

	otp := storedOTP(t, store, "a@x.com")
	assert.Len(t, otp, 6)
	assert.Regexp(t, "^[A-Z0-9]{6}$", otp)
	assert.Equal(t, "a@x.com", sent.To)
	assert.Contains(t, sent.Body, otp)

	_, err = h.svc.VerifyOtp(ctx, dto.VerifyOtpRequest{Email: "a@x.com", OTP: "WRONG1"})
	assert.Equal(t, http.StatusUnauthorized, failure.GetCode(err))

	// whitespace and case are ignored
	verified, err := h.svc.VerifyOtp(ctx, dto.VerifyOtpRequest{Email: "a@x.com", OTP: " " + otp[:3] + " " + otp[3:] + " "})
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)
	assert.Nil(t, store.byEmail("a@x.com").OTPToken)

	_, err = h.svc.VerifyOtp(ctx, dto.VerifyOtpRequest{Email: "a@x.com", OTP: otp})
	assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))

	login, err := h.svc.Login(ctx, dto.LoginRequest{Email: "a@x.com", Password: "pw123456"})
	require.NoError(t, err)
	assert.NotEmpty(t, login.AccessToken)
	assert.NotEmpty(t, login.RefreshToken)
	assert.Less(t, login.ExpiresIn, login.RefreshExpiresIn)

	stored := store.byEmail("a@x.com")
	require.NotNil(t, stored.RefreshTokenHash)
	assert.Equal(t, jwt.Fingerprint(login.RefreshToken), *stored.RefreshTokenHash)
	assert.NotEqual(t, login.RefreshToken, *stored.RefreshTokenHash)
	assert.NotNil(t, stored.LastLogin)
}

func TestAuthService_Register(t *testing.T) {
	t.Run("dispatch failure does not fail registration", func(t *testing.T) {
		store := newUserStore()
		h := newHarness(t, store)
		h.allowAll()
		h.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))

		_, err := h.svc.Register(context.Background(), dto.RegisterRequest{Email: "a@x.com", Password: "pw123456", Phone: "+1000", Role: "staff"})

		require.NoError(t, err)
		assert.NotEmpty(t, store.byEmail("a@x.com").ID)
	})

	t.Run("duplicate email and phone conflict", func(t *testing.T) {
		store := newUserStore()
		store.put(userModel.User{ID: "u-1", Email: "a@x.com", Phone: "+1000", Role: permissions.RoleTourist})
		h := newHarness(t, store)

		_, err := h.svc.Register(context.Background(), dto.RegisterRequest{Email: "A@x.com", Password: "pw123456", Phone: "+2000", Role: "tourist"})
		assert.Equal(t, http.StatusConflict, failure.GetCode(err))
		assert.Equal(t, "email already registered", err.Error())

		_, err = h.svc.Register(context.Background(), dto.RegisterRequest{Email: "b@x.com", Password: "pw123456", Phone: "+1000", Role: "tourist"})
		assert.Equal(t, http.StatusConflict, failure.GetCode(err))
		assert.Equal(t, "phone already registered", err.Error())
	})

	t.Run("blank phone", func(t *testing.T) {
		h := newHarness(t, newUserStore())

		_, err := h.svc.Register(context.Background(), dto.RegisterRequest{Email: "a@x.com", Password: "pw123456", Phone: "   ", Role: "tourist"})

		assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))
	})

	t.Run("owner role is not self-service", func(t *testing.T) {
		h := newHarness(t, newUserStore())

		_, err := h.svc.Register(context.Background(), dto.RegisterRequest{Email: "a@x.com", Password: "pw123456", Phone: "+1000", Role: "owner"})

		assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))
	})

	t.Run("unique violation on insert becomes conflict", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := userMocks.NewMockUser(ctrl)
		h := newHarness(t, repo)

		repo.EXPECT().Exist(gomock.Any(), gomock.Any()).Return(false, nil).Times(2)
		repo.EXPECT().Insert(gomock.Any(), gomock.Any()).
			Return(&pq.Error{Code: constant.PqErrorCodeUniqueViolation, Constraint: userModel.ConstraintPhone})

		_, err := h.svc.Register(context.Background(), dto.RegisterRequest{Email: "a@x.com", Password: "pw123456", Phone: "+1000", Role: "tourist"})

		assert.Equal(t, http.StatusConflict, failure.GetCode(err))
		assert.Equal(t, "phone already registered", err.Error())
	})
}

func TestAuthService_RegisterOwner(t *testing.T) {
	store := newUserStore()
	h := newHarness(t, store)
	h.allowAll()

	res, err := h.svc.RegisterOwner(context.Background(), dto.RegisterOwnerRequest{Email: "o@x.com", Password: "Password1", Phone: "+3000"})

	require.NoError(t, err)
	assert.Equal(t, permissions.RoleOwner, res.Role)
	assert.True(t, res.IsVerified)
	assert.Nil(t, store.byEmail("o@x.com").OTPToken)
}

func TestAuthService_ResendOtp(t *testing.T) {
	store := newUserStore()
	h := newHarness(t, store)
	h.allowAll()
	h.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	ctx := context.Background()

	_, err := h.svc.Register(ctx, dto.RegisterRequest{Email: "a@x.com", Password: "pw123456", Phone: "+1000", Role: "tourist"})
	require.NoError(t, err)

	first := storedOTP(t, store, "a@x.com")

	require.NoError(t, h.svc.ResendOtp(ctx, dto.ResendOtpRequest{Email: "a@x.com"}))

	second := storedOTP(t, store, "a@x.com")
	if first == second {
		t.Skip("regenerated otp collided with the previous one")
	}

	_, err = h.svc.VerifyOtp(ctx, dto.VerifyOtpRequest{Email: "a@x.com", OTP: first})
	assert.Equal(t, http.StatusUnauthorized, failure.GetCode(err))

	_, err = h.svc.VerifyOtp(ctx, dto.VerifyOtpRequest{Email: "a@x.com", OTP: second})
	assert.NoError(t, err)

	err = h.svc.ResendOtp(ctx, dto.ResendOtpRequest{Email: "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))

	err = h.svc.ResendOtp(ctx, dto.ResendOtpRequest{Email: "nobody@x.com"})
	assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))
}

func TestAuthService_VerifyOtp_Expired(t *testing.T) {
	store := newUserStore()
	code := "ABC123"
	expired := timezone.Now().Add(-time.Minute)
	store.put(userModel.User{ID: "u-1", Email: "a@x.com", Phone: "+1000", Role: permissions.RoleTourist, OTPToken: &code, OTPExpiry: &expired})

	h := newHarness(t, store)
	h.allowAll()

	_, err := h.svc.VerifyOtp(context.Background(), dto.VerifyOtpRequest{Email: "a@x.com", OTP: code})

	assert.Equal(t, http.StatusUnauthorized, failure.GetCode(err))
	assert.False(t, store.byEmail("a@x.com").IsVerified)
}

func TestAuthService_VerifyOtp_Throttled(t *testing.T) {
	h := newHarness(t, newUserStore())
	h.limiter.EXPECT().Attempt(gomock.Any(), "otp:verify:a@x.com", gomock.Any()).
		Return(failure.TooManyRequests("Too many attempts, try again in 60 seconds"))

	_, err := h.svc.VerifyOtp(context.Background(), dto.VerifyOtpRequest{Email: "a@x.com", OTP: "ABC123"})

	assert.Equal(t, http.StatusTooManyRequests, failure.GetCode(err))
}

func TestAuthService_Login(t *testing.T) {
	store := newUserStore()
	h := newHarness(t, store)
	h.allowAll()
	h.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)

	ctx := context.Background()

	_, err := h.svc.Register(ctx, dto.RegisterRequest{Email: "a@x.com", Password: "pw123456", Phone: "+1000", Role: "tourist"})
	require.NoError(t, err)

	_, err = h.svc.Login(ctx, dto.LoginRequest{Email: "a@x.com", Password: "pw123456"})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, failure.GetCode(err))
	assert.Contains(t, err.Error(), "not verified")

	_, wrongPassword := h.svc.Login(ctx, dto.LoginRequest{Email: "a@x.com", Password: "nope-nope"})
	_, unknownEmail := h.svc.Login(ctx, dto.LoginRequest{Email: "ghost@x.com", Password: "pw123456"})

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, http.StatusUnauthorized, failure.GetCode(unknownEmail))
}

func TestAuthService_RefreshAndLogout(t *testing.T) {
	store := newUserStore()
	h := newHarness(t, store)
	h.allowAll()

	ctx := context.Background()

	_, err := h.svc.RegisterOwner(ctx, dto.RegisterOwnerRequest{Email: "o@x.com", Password: "Password1", Phone: "+3000"})
	require.NoError(t, err)

	login, err := h.svc.Login(ctx, dto.LoginRequest{Email: "o@x.com", Password: "Password1"})
	require.NoError(t, err)

	refreshed, err := h.svc.RefreshAccessToken(ctx, dto.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Equal(t, int64(900), refreshed.ExpiresIn)

	_, err = h.svc.RefreshAccessToken(ctx, dto.RefreshTokenRequest{RefreshToken: login.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, failure.GetCode(err))

	_, err = h.svc.RefreshAccessToken(ctx, dto.RefreshTokenRequest{RefreshToken: login.RefreshToken, UserID: "00000000-0000-0000-0000-000000000000"})
	assert.Equal(t, http.StatusUnauthorized, failure.GetCode(err))

	require.NoError(t, h.svc.Logout(ctx, store.byEmail("o@x.com").ID))

	_, err = h.svc.RefreshAccessToken(ctx, dto.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, failure.GetCode(err))
}
