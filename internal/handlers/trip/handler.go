package trip

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"mlaku/infras/otel"
	"mlaku/internal/domains/trip/model/dto"
	"mlaku/internal/domains/trip/service"
	"mlaku/shared"
	"mlaku/shared/constant"
	gDto "mlaku/shared/dto"
	"mlaku/shared/failure"
	"mlaku/shared/validator"
	"mlaku/transport/http/response"
)

type Handler struct {
	service service.Trip
	otel    otel.Otel
}

func New(service service.Trip, otel otel.Otel) Handler {
	return Handler{
		service: service,
		otel:    otel,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Get("/trips", handler.ListAvailable)
	router.Get("/trips/owner/all", handler.ListMine)
	router.Get("/trips/{id}", handler.GetTripByID)
	router.Post("/trips", handler.CreateTrip)
	router.Patch("/trips/{id}", handler.UpdateTrip)
	router.Delete("/trips/{id}", handler.DeleteTrip)
	router.Put("/trips/{id}/image", handler.UploadImage)
	router.Post("/trips/{id}/reconcile", handler.Reconcile)
}

// ListAvailable returns the public catalogue.
// @Summary List available trips
// @Description Active trips that still have free slots, soonest first.
// @Tags Trip
// @Produce json
// @Param pagination query gDto.QueryParams false "Pagination parameters"
// @Success 200 {object} response.Envelope[[]dto.TripResponse] "List of trips"
// @Failure 400 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/trips [get]
func (handler *Handler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".ListAvailable")
	defer scope.End()

	queryParams := gDto.QueryParams{}
	queryParams.FromRequest(r, true)

	trips, err := handler.service.ListAvailable(ctx, queryParams)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to list available trips")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Trips retrieved successfully")

	response.WithPage(w, "Trips retrieved successfully", trips)
}

// ListMine returns every trip of the calling owner, whatever its status.
// @Summary List own trips
// @Tags Trip
// @Produce json
// @Param pagination query gDto.QueryParams false "Pagination parameters"
// @Success 200 {object} response.Envelope[[]dto.TripResponse] "List of trips"
// @Failure 403 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/trips/owner/all [get]
// @Security BearerAuth
func (handler *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".ListMine")
	defer scope.End()

	queryParams := gDto.QueryParams{}
	queryParams.FromRequest(r, true)

	trips, err := handler.service.ListForOwner(ctx, shared.UserIDFromContext(ctx), queryParams)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to list owner trips")

		response.WithError(w, err)

		return
	}

	response.WithPage(w, "Trips retrieved successfully", trips)
}

// GetTripByID returns a trip with its owner and bookings.
// @Summary Get a trip by ID
// @Tags Trip
// @Produce json
// @Param id path string true "Trip ID"
// @Success 200 {object} response.Envelope[dto.TripDetailResponse] "Trip details"
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/trips/{id} [get]
func (handler *Handler) GetTripByID(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetTripByID")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	trip, err := handler.service.Get(ctx, id)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get trip by ID")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Trip retrieved successfully")

	response.WithJSON(w, http.StatusOK, "Trip retrieved successfully", trip)
}

// CreateTrip handles the creation of a new trip.
// @Summary Create a new trip
// @Tags Trip
// @Accept json
// @Produce json
// @Param request body dto.CreateTripRequest true "Create Trip Request"
// @Success 201 {object} response.Envelope[dto.TripResponse] "Trip created successfully"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/trips [post]
// @Security BearerAuth
func (handler *Handler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".CreateTrip")
	defer scope.End()

	req := dto.CreateTripRequest{}

	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	trip, err := handler.service.Create(ctx, shared.UserIDFromContext(ctx), req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to create trip")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Trip created successfully")

	response.WithJSON(w, http.StatusCreated, "Trip created successfully", trip)
}

// UpdateTrip applies a partial update to a trip.
// @Summary Update a trip
// @Tags Trip
// @Accept json
// @Produce json
// @Param id path string true "Trip ID"
// @Param request body dto.UpdateTripRequest true "Update Trip Request"
// @Success 200 {object} response.Envelope[dto.TripResponse] "Trip updated successfully"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/trips/{id} [patch]
// @Security BearerAuth
func (handler *Handler) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".UpdateTrip")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	req := dto.UpdateTripRequest{}
	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	trip, err := handler.service.Update(ctx, shared.UserIDFromContext(ctx), id, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to update trip")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Trip updated successfully")

	response.WithJSON(w, http.StatusOK, "Trip updated successfully", trip)
}

// DeleteTrip removes a trip that has no active bookings.
// @Summary Delete a trip
// @Tags Trip
// @Produce json
// @Param id path string true "Trip ID"
// @Success 200 {object} response.Error "Trip deleted successfully"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Router /v1/trips/{id} [delete]
// @Security BearerAuth
func (handler *Handler) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".DeleteTrip")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	if err := handler.service.Delete(ctx, shared.UserIDFromContext(ctx), id); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to delete trip")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Trip deleted successfully")

	response.WithMessage(w, http.StatusOK, "Trip deleted successfully")
}

// UploadImage replaces the cover image of a trip.
// @Summary Upload a trip image
// @Tags Trip
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Trip ID"
// @Param image formData file true "Trip image (jpeg, png or webp, max 5MB)"
// @Success 200 {object} response.Envelope[dto.TripResponse] "Image uploaded successfully"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/trips/{id}/image [put]
// @Security BearerAuth
func (handler *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".UploadImage")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	if err := r.ParseMultipartForm(constant.RequestMaxMemory); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to parse multipart form")

		response.WithError(w, failure.BadRequestFromString("request must be a multipart form"))

		return
	}

	file, fileHeader, err := r.FormFile(constant.FormFileImage)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get file from form")

		response.WithError(w, failure.Validation("image is required",
			failure.FieldError{Field: constant.FormFileImage, Message: "image is required"}))

		return
	}
	defer file.Close()

	req := dto.UploadImageRequest{Image: fileHeader}
	if err := validator.ValidateStruct(&req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate image")

		response.WithError(w, err)

		return
	}

	trip, err := handler.service.UploadImage(ctx, shared.UserIDFromContext(ctx), id, file, fileHeader)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to upload trip image")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Trip image uploaded successfully")

	response.WithJSON(w, http.StatusOK, "Image uploaded successfully", trip)
}

// Reconcile recomputes the booking counter of a trip from its active bookings.
// @Summary Reconcile a trip's booking counter
// @Tags Trip
// @Produce json
// @Param id path string true "Trip ID"
// @Success 200 {object} response.Envelope[dto.ReconcileResponse]
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Router /v1/trips/{id}/reconcile [post]
// @Security BearerAuth
func (handler *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".Reconcile")
	defer scope.End()

	id := chi.URLParam(r, constant.RequestParamID)

	res, err := handler.service.Reconcile(ctx, shared.UserIDFromContext(ctx), id)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to reconcile trip")

		response.WithError(w, err)

		return
	}

	response.WithJSON(w, http.StatusOK, "Trip reconciled successfully", res)
}
