package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mlaku/config"
	"mlaku/infras/jwt"
	"mlaku/infras/kafka"
	"mlaku/infras/otel"
	"mlaku/internal/domains/auth/model/dto"
	userModel "mlaku/internal/domains/user/model"
	userDto "mlaku/internal/domains/user/model/dto"
	userRepo "mlaku/internal/domains/user/repository"
	"mlaku/permissions"
	"mlaku/shared"
	"mlaku/shared/background"
	"mlaku/shared/constant"
	gDto "mlaku/shared/dto"
	"mlaku/shared/failure"
	"mlaku/shared/limiter"
	"mlaku/shared/notifier"
	"mlaku/shared/password"
	gRepo "mlaku/shared/repository"
	"mlaku/shared/timezone"
)

const (
	errInvalidCredentials = "invalid email or password"
	errNotVerified        = "account is not verified, please verify the OTP sent to you"
	errInvalidOTP         = "invalid or expired OTP"
	errAlreadyVerified    = "account is already verified"
	errUnknownEmail       = "email is not registered"
	errInvalidRefresh     = "invalid or expired refresh token"
	errEmailTaken         = "email already registered"
	errPhoneTaken         = "phone already registered"
)

type Auth interface {
	Register(ctx context.Context, req dto.RegisterRequest) (userDto.UserResponse, error)
	RegisterOwner(ctx context.Context, req dto.RegisterOwnerRequest) (userDto.UserResponse, error)
	VerifyOtp(ctx context.Context, req dto.VerifyOtpRequest) (userDto.UserResponse, error)
	ResendOtp(ctx context.Context, req dto.ResendOtpRequest) error
	Login(ctx context.Context, req dto.LoginRequest) (dto.LoginResponse, error)
	RefreshAccessToken(ctx context.Context, req dto.RefreshTokenRequest) (dto.RefreshTokenResponse, error)
	Logout(ctx context.Context, userID string) error
}

type serviceImpl struct {
	userRepo   userRepo.User
	cfg        *config.Config
	jwtService jwt.JWT
	limiter    limiter.Limiter
	notifier   notifier.Notifier
	kafka      kafka.Client
	runner     background.Runner
	otel       otel.Otel
}

func New(
	userRepo userRepo.User,
	cfg *config.Config,
	jwt jwt.JWT,
	limiter limiter.Limiter,
	notifier notifier.Notifier,
	kafka kafka.Client,
	runner background.Runner,
	otel otel.Otel,
) Auth {
	return &serviceImpl{
		userRepo:   userRepo,
		cfg:        cfg,
		jwtService: jwt,
		limiter:    limiter,
		notifier:   notifier,
		kafka:      kafka,
		runner:     runner,
		otel:       otel,
	}
}

func (s *serviceImpl) Register(ctx context.Context, req dto.RegisterRequest) (res userDto.UserResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".auth.Register")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	reg := req.ToRegistration()

	if reg.Role != permissions.RoleStaff && reg.Role != permissions.RoleTourist {
		msg := "role must be one of [staff tourist]"

		return res, failure.Validation(msg, failure.FieldError{Field: "role", Message: msg})
	}

	return s.register(ctx, reg, false)
}

func (s *serviceImpl) RegisterOwner(ctx context.Context, req dto.RegisterOwnerRequest) (res userDto.UserResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".auth.RegisterOwner")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	return s.register(ctx, req.ToRegistration(), s.cfg.Auth.OwnerAutoVerify)
}

func (s *serviceImpl) register(ctx context.Context, reg dto.Registration, verified bool) (res userDto.UserResponse, err error) {
	if reg.Phone == "" {
		msg := "phone is required"

		return res, failure.Validation(msg, failure.FieldError{Field: "phone", Message: msg})
	}

	if err = s.ensureUnique(ctx, userModel.FieldEmail, reg.Email, errEmailTaken); err != nil {
		return res, err
	}

	if err = s.ensureUnique(ctx, userModel.FieldPhone, reg.Phone, errPhoneTaken); err != nil {
		return res, err
	}

	hashedPassword, err := password.Hash(reg.Password)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash password")

		return res, fmt.Errorf("failed to hash password: %w", err)
	}

	var (
		otp       string
		otpExpiry time.Time
	)

	if !verified {
		otp, err = generateOTP(s.cfg.Auth.OTPLength)
		if err != nil {
			log.Error().Err(err).Msg("failed to generate otp")

			return res, err
		}

		otpExpiry = timezone.Now().Add(s.otpLifetime())
	}

	user := reg.ToUserModel(hashedPassword, verified, otp, otpExpiry)

	if err = s.userRepo.Insert(ctx, user); err != nil {
		if constraint, ok := gRepo.IsUniqueViolation(err); ok {
			return res, failure.Conflict(conflictMessage(constraint))
		}

		log.Error().Err(err).Msg("failed to create user")

		return res, fmt.Errorf("failed to create user: %w", err)
	}

	if otp != "" {
		s.sendOTP(ctx, user, otp)
	}

	s.publish(ctx, constant.EventUserRegistered, user)

	res.FromModel(user)

	return res, nil
}

func (s *serviceImpl) VerifyOtp(ctx context.Context, req dto.VerifyOtpRequest) (res userDto.UserResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".auth.VerifyOtp")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	email := dto.NormalizeEmail(req.Email)
	attemptKey := shared.BuildCacheKey(constant.CachePrefixOTP, "verify", email)

	if err = s.limiter.Attempt(ctx, attemptKey, s.otpAttemptLimit()); err != nil {
		return res, err
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return res, err
	}

	if user.ID == "" {
		return res, failure.Unauthorized(errInvalidOTP)
	}

	if user.IsVerified {
		return res, failure.Validation(errAlreadyVerified)
	}

	code := dto.NormalizeOTP(req.OTP)
	now := timezone.Now()

	if !user.OTPValid(code, now) {
		log.Warn().Str("userID", user.ID).Msg("otp verification failed")

		return res, failure.Unauthorized(errInvalidOTP)
	}

	fields := map[string]any{
		userModel.FieldIsVerified: true,
		userModel.FieldOTPToken:   nil,
		userModel.FieldOTPExpiry:  nil,
		constant.FieldModifiedAt:  now,
		constant.FieldModifiedBy:  user.ID,
	}

	// the code is consumed only if it is still the stored, unexpired one
	guard := gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: userModel.FieldID, Operator: gDto.FilterOperatorEq, Value: user.ID, Table: userModel.TableName},
			gDto.Filter{Field: userModel.FieldOTPToken, Operator: gDto.FilterOperatorEq, Value: code, Table: userModel.TableName},
			gDto.Filter{Field: userModel.FieldIsVerified, Operator: gDto.FilterOperatorEq, Value: false, Table: userModel.TableName},
			gDto.Filter{Field: userModel.FieldOTPExpiry, Operator: gDto.FilterOperatorGreaterEq, Value: now, Table: userModel.TableName},
		},
	}

	updated, err := s.userRepo.UpdateReturning(ctx, fields, guard)
	if err != nil {
		log.Error().Err(err).Str("userID", user.ID).Msg("failed to verify user")

		return res, fmt.Errorf("failed to verify user: %w", err)
	}

	if updated.ID == "" {
		return res, failure.Unauthorized(errInvalidOTP)
	}

	s.resetAttempts(ctx, attemptKey)
	s.publish(ctx, constant.EventUserVerified, updated)

	res.FromModel(updated)

	return res, nil
}

func (s *serviceImpl) ResendOtp(ctx context.Context, req dto.ResendOtpRequest) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".auth.ResendOtp")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	email := dto.NormalizeEmail(req.Email)

	if err = s.limiter.Attempt(ctx, shared.BuildCacheKey(constant.CachePrefixOTP, "resend", email), s.otpAttemptLimit()); err != nil {
		return err
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	if user.ID == "" {
		return failure.Validation(errUnknownEmail)
	}

	if user.IsVerified {
		return failure.Validation(errAlreadyVerified)
	}

	otp, err := generateOTP(s.cfg.Auth.OTPLength)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate otp")

		return err
	}

	fields := shared.TransformFields(dto.UpdateOTPFields{
		OTPToken:  otp,
		OTPExpiry: timezone.Now().Add(s.otpLifetime()),
	}, user.ID)

	filter := gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: userModel.FieldID, Operator: gDto.FilterOperatorEq, Value: user.ID, Table: userModel.TableName},
			gDto.Filter{Field: userModel.FieldIsVerified, Operator: gDto.FilterOperatorEq, Value: false, Table: userModel.TableName},
		},
	}

	if err = s.userRepo.Update(ctx, fields, filter); err != nil {
		log.Error().Err(err).Str("userID", user.ID).Msg("failed to store otp")

		return fmt.Errorf("failed to store otp: %w", err)
	}

	s.sendOTP(ctx, user, otp)

	return nil
}

func (s *serviceImpl) Login(ctx context.Context, req dto.LoginRequest) (res dto.LoginResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".auth.Login")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	email := dto.NormalizeEmail(req.Email)
	attemptKey := shared.BuildCacheKey(constant.CachePrefixLogin, email)
	loginLimit := limiter.Window(s.cfg.Auth.LoginMaxAttempts, time.Duration(s.cfg.Auth.LoginWindowSeconds)*time.Second)

	if err = s.limiter.Attempt(ctx, attemptKey, loginLimit); err != nil {
		return res, err
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return res, err
	}

	if user.ID == "" {
		log.Warn().Msg("login attempt with unknown email")

		return res, failure.Unauthorized(errInvalidCredentials)
	}

	if err = password.Verify(req.Password, user.Password); err != nil {
		log.Warn().Str("userID", user.ID).Msg("login attempt with wrong password")

		return res, failure.Unauthorized(errInvalidCredentials)
	}

	if !user.IsVerified {
		return res, failure.Unauthorized(errNotVerified)
	}

	tokenPair, err := s.jwtService.GenerateTokenPair(ctx, user.ID, user.Email, user.Role.String())
	if err != nil {
		log.Error().Err(err).Msg("failed to generate tokens")

		return res, fmt.Errorf("failed to generate tokens: %w", err)
	}

	now := timezone.Now()
	fields := shared.TransformFields(userDto.UpdateLoginFields{
		RefreshTokenHash:   jwt.Fingerprint(tokenPair.RefreshToken),
		RefreshTokenExpiry: tokenPair.RefreshExpiresAt,
		LastLogin:          now,
	}, user.ID)

	if err = s.userRepo.Update(ctx, fields, shared.FilterByID(user.ID, userModel.FieldID, userModel.TableName)); err != nil {
		log.Error().Err(err).Str("userID", user.ID).Msg("failed to store refresh token")

		return res, fmt.Errorf("failed to store refresh token: %w", err)
	}

	s.resetAttempts(ctx, attemptKey)

	user.LastLogin = &now
	res.FromTokenPair(tokenPair, user)

	return res, nil
}

func (s *serviceImpl) RefreshAccessToken(ctx context.Context, req dto.RefreshTokenRequest) (res dto.RefreshTokenResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".auth.RefreshAccessToken")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	claims, err := s.jwtService.ValidateToken(ctx, req.RefreshToken, jwt.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token rejected")

		return res, failure.Unauthorized(errInvalidRefresh)
	}

	if req.UserID != "" && req.UserID != claims.UserID {
		return res, failure.Unauthorized(errInvalidRefresh)
	}

	filter := gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: userModel.FieldID, Operator: gDto.FilterOperatorEq, Value: claims.UserID, Table: userModel.TableName},
			gDto.Filter{Field: userModel.FieldRefreshTokenHash, Operator: gDto.FilterOperatorEq, Value: jwt.Fingerprint(req.RefreshToken), Table: userModel.TableName},
			gDto.Filter{Field: userModel.FieldRefreshTokenExpiry, Operator: gDto.FilterOperatorGreaterEq, Value: timezone.Now(), Table: userModel.TableName},
		},
	}

	user, err := s.userRepo.Get(ctx, filter, userModel.FieldID, userModel.FieldEmail, userModel.FieldRole)
	if err != nil {
		log.Error().Err(err).Msg("failed to look up refresh token")

		return res, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	if user.ID == "" {
		return res, failure.Unauthorized(errInvalidRefresh)
	}

	tokenPair, err := s.jwtService.GenerateAccessToken(ctx, user.ID, user.Email, user.Role.String())
	if err != nil {
		log.Error().Err(err).Msg("failed to generate access token")

		return res, fmt.Errorf("failed to generate access token: %w", err)
	}

	res.FromTokenPair(tokenPair)

	return res, nil
}

func (s *serviceImpl) Logout(ctx context.Context, userID string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".auth.Logout")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	if userID == "" {
		return failure.Unauthorized("authentication required")
	}

	fields := map[string]any{
		userModel.FieldRefreshTokenHash:   nil,
		userModel.FieldRefreshTokenExpiry: nil,
		constant.FieldModifiedAt:          timezone.Now(),
		constant.FieldModifiedBy:          userID,
	}

	if err = s.userRepo.Update(ctx, fields, shared.FilterByID(userID, userModel.FieldID, userModel.TableName)); err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("failed to clear refresh token")

		return fmt.Errorf("failed to clear refresh token: %w", err)
	}

	return nil
}

func (s *serviceImpl) findByEmail(ctx context.Context, email string) (userModel.User, error) {
	filter := gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{
				Field:    userModel.FieldEmail,
				Operator: gDto.FilterOperatorEq,
				Value:    email,
				Table:    userModel.TableName,
			},
		},
	}

	user, err := s.userRepo.Get(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get user by email")

		return user, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

func (s *serviceImpl) ensureUnique(ctx context.Context, field, value, message string) error {
	filter := gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{
				Field:    field,
				Operator: gDto.FilterOperatorEq,
				Value:    value,
				Table:    userModel.TableName,
			},
		},
	}

	exists, err := s.userRepo.Exist(ctx, filter)
	if err != nil {
		log.Error().Err(err).Str("field", field).Msg("failed to check if user exists")

		return fmt.Errorf("failed to check if user exists: %w", err)
	}

	if exists {
		return failure.Conflict(message)
	}

	return nil
}

// sendOTP runs after the user row is committed; its failure never undoes it.
func (s *serviceImpl) sendOTP(ctx context.Context, user userModel.User, otp string) {
	channel := notifier.ParseChannel(s.cfg.Auth.OTPChannel)

	to := user.Email
	if channel == notifier.ChannelWhatsApp {
		to = user.Phone
	}

	name, _, _ := strings.Cut(user.Email, "@")
	msg := notifier.OTPMessage(channel, to, name, otp, int(s.otpLifetime().Minutes()))

	s.runner.Go(ctx, "notify.otp", func(ctx context.Context) error {
		return s.notifier.Notify(ctx, msg)
	})
}

func (s *serviceImpl) publish(ctx context.Context, event string, user userModel.User) {
	payload := map[string]any{
		"userId":     user.ID,
		"email":      user.Email,
		"role":       user.Role,
		"isVerified": user.IsVerified,
	}

	s.runner.Go(ctx, event, func(ctx context.Context) error {
		return s.kafka.SendMessages(ctx, s.cfg.Kafka.Topics.User, kafka.Message{
			Key:   user.ID,
			Event: event,
			Value: payload,
		})
	})
}

func (s *serviceImpl) resetAttempts(ctx context.Context, key string) {
	if err := s.limiter.Reset(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to reset attempt counter")
	}
}

func (s *serviceImpl) otpLifetime() time.Duration {
	minutes := s.cfg.Auth.OTPExpireMin
	if minutes <= 0 {
		minutes = 10
	}

	return time.Duration(minutes) * time.Minute
}

func (s *serviceImpl) otpAttemptLimit() limiter.Limit {
	return limiter.Window(s.cfg.Auth.MaxAttempts, time.Duration(s.cfg.Auth.AttemptWindowSecs)*time.Second)
}

func conflictMessage(constraint string) string {
	if constraint == userModel.ConstraintPhone {
		return errPhoneTaken
	}

	return errEmailTaken
}
