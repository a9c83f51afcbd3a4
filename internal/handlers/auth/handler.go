package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"mlaku/infras/otel"
	"mlaku/internal/domains/auth/model/dto"
	"mlaku/internal/domains/auth/service"
	"mlaku/shared"
	"mlaku/shared/constant"
	"mlaku/shared/validator"
	"mlaku/transport/http/response"
)

type Handler struct {
	service service.Auth
	otel    otel.Otel
}

func New(service service.Auth, otel otel.Otel) Handler {
	return Handler{
		service: service,
		otel:    otel,
	}
}

func (handler *Handler) Router(r chi.Router) {
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/register-owner", handler.RegisterOwner)
	r.Post("/auth/verify-otp", handler.VerifyOtp)
	r.Post("/auth/resend-otp", handler.ResendOtp)
	r.Post("/auth/login", handler.Login)
	r.Post("/auth/refresh-token", handler.RefreshToken)
	r.Post("/auth/logout", handler.Logout)
}

// Register handles user registration
// @Summary Register a new user
// @Description Register a staff or tourist account. An OTP is sent to verify it.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "Register Request"
// @Success 201 {object} response.Error "Registered user"
// @Failure 400 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/auth/register [post]
func (handler *Handler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".Register")
	defer scope.End()

	req := dto.RegisterRequest{}

	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	res, err := handler.service.Register(ctx, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to register user")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("User registered successfully")

	response.WithJSON(w, http.StatusCreated, "User registered successfully, please verify the OTP sent to you", res)
}

// RegisterOwner creates an owner account.
// @Summary Register an owner
// @Description Internal endpoint guarded by the service API key.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.RegisterOwnerRequest true "Register Owner Request"
// @Success 201 {object} response.Error "Registered user"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 409 {object} response.Error
// @Router /v1/auth/register-owner [post]
// @Security ApiKeyAuth
func (handler *Handler) RegisterOwner(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".RegisterOwner")
	defer scope.End()

	req := dto.RegisterOwnerRequest{}

	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	res, err := handler.service.RegisterOwner(ctx, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to register owner")

		response.WithError(w, err)

		return
	}

	response.WithJSON(w, http.StatusCreated, "Owner registered successfully", res)
}

// VerifyOtp handles account verification
// @Summary Verify an account
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.VerifyOtpRequest true "Verify OTP Request"
// @Success 200 {object} response.Error "Verified user"
// @Failure 400 {object} response.Error
// @Failure 401 {object} response.Error
// @Failure 429 {object} response.Error
// @Router /v1/auth/verify-otp [post]
func (handler *Handler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".VerifyOtp")
	defer scope.End()

	req := dto.VerifyOtpRequest{}

	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	res, err := handler.service.VerifyOtp(ctx, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to verify otp")

		response.WithError(w, err)

		return
	}

	response.WithJSON(w, http.StatusOK, "Account verified successfully", res)
}

// ResendOtp issues a fresh OTP
// @Summary Resend the verification code
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.ResendOtpRequest true "Resend OTP Request"
// @Success 200 {object} response.Error
// @Failure 400 {object} response.Error
// @Failure 429 {object} response.Error
// @Router /v1/auth/resend-otp [post]
func (handler *Handler) ResendOtp(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".ResendOtp")
	defer scope.End()

	req := dto.ResendOtpRequest{}

	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	if err := handler.service.ResendOtp(ctx, req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to resend otp")

		response.WithError(w, err)

		return
	}

	response.WithMessage(w, http.StatusOK, "A new OTP has been sent")
}

// Login handles user login
// @Summary Login a user
// @Description Login a user with the provided credentials.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login Request"
// @Success 200 {object} response.Envelope[dto.LoginResponse]
// @Failure 400 {object} response.Error
// @Failure 401 {object} response.Error
// @Failure 429 {object} response.Error
// @Router /v1/auth/login [post]
func (handler *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".Login")
	defer scope.End()

	req := dto.LoginRequest{}

	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	res, err := handler.service.Login(ctx, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to login user")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("User logged in successfully")

	response.WithJSON(w, http.StatusOK, "Login successful", res)
}

// RefreshToken handles token refresh
// @Summary Refresh the access token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.RefreshTokenRequest true "Refresh Token Request"
// @Success 200 {object} response.Envelope[dto.RefreshTokenResponse]
// @Failure 400 {object} response.Error
// @Failure 401 {object} response.Error
// @Router /v1/auth/refresh-token [post]
func (handler *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".RefreshToken")
	defer scope.End()

	req := dto.RefreshTokenRequest{}

	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	res, err := handler.service.RefreshAccessToken(ctx, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to refresh token")

		response.WithError(w, err)

		return
	}

	response.WithJSON(w, http.StatusOK, "Token refreshed successfully", res)
}

// Logout revokes the refresh token of the caller
// @Summary Logout
// @Tags Auth
// @Produce json
// @Success 200 {object} response.Error
// @Failure 401 {object} response.Error
// @Router /v1/auth/logout [post]
// @Security BearerAuth
func (handler *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".Logout")
	defer scope.End()

	if err := handler.service.Logout(ctx, shared.UserIDFromContext(ctx)); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to logout")

		response.WithError(w, err)

		return
	}

	response.WithMessage(w, http.StatusOK, "Logged out successfully")
}
