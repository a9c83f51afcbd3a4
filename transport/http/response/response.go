package response

import (
	"encoding/json"
	"net/http"

	"mlaku/shared/constant"
	gDto "mlaku/shared/dto"
	"mlaku/shared/failure"
	"mlaku/shared/logger"
)

// Envelope is the body of every response. Error responses carry a null data
// and the per-field problems in ValidationErrors.
type Envelope[T any] struct {
	StatusCode       int                  `json:"statusCode"`
	Message          string               `json:"message"`
	Data             *T                   `json:"data"`
	Meta             *gDto.PaginationMeta `json:"meta,omitempty"`
	ValidationErrors []failure.FieldError `json:"validationErrors"`
}

// Error documents the shape of an error response.
type Error = Envelope[any]

// WithMessage sends a response with a simple text message
func WithMessage(writer http.ResponseWriter, code int, message string) {
	response(writer, code, Envelope[any]{StatusCode: code, Message: message})
}

// WithJSON sends a response containing a JSON object
func WithJSON[T any](writer http.ResponseWriter, code int, message string, payload T) {
	response(writer, code, Envelope[T]{StatusCode: code, Message: message, Data: &payload})
}

// WithPage sends a list of items together with its pagination meta.
func WithPage[T any](writer http.ResponseWriter, message string, page gDto.Page[T]) {
	items := page.Items
	if items == nil {
		items = []T{}
	}

	response(writer, http.StatusOK, Envelope[[]T]{
		StatusCode: http.StatusOK,
		Message:    message,
		Data:       &items,
		Meta:       &page.Meta,
	})
}

// WithError sends a response with an error message. Errors outside the
// failure taxonomy are reported as a generic internal error.
func WithError(writer http.ResponseWriter, err error) {
	code := failure.GetCode(err)
	body := Envelope[any]{StatusCode: code, Message: constant.ResponseErrorInternal}

	if fail, ok := failure.From(err); ok && code != http.StatusInternalServerError {
		body.Message = fail.Message
		body.ValidationErrors = fail.Fields
	}

	response(writer, code, body)
}

// WithRequestLimitExceeded sends a default response for when the request limit is exceeded
func WithRequestLimitExceeded(writer http.ResponseWriter) {
	WithMessage(writer, http.StatusTooManyRequests, constant.ResponseErrorRequestLimitExceeded)
}

// WithPreparingShutdown sends a default response for when the server is preparing to shut down
func WithPreparingShutdown(writer http.ResponseWriter) {
	WithMessage(writer, http.StatusServiceUnavailable, constant.ResponseErrorPrepareShutdown)
}

// WithUnhealthy sends a default response for when the server is unhealthy
func WithUnhealthy(writer http.ResponseWriter) {
	WithMessage(writer, http.StatusServiceUnavailable, constant.ResponseErrorUnhealthy)
}

func response[T any](writer http.ResponseWriter, code int, payload Envelope[T]) {
	if payload.ValidationErrors == nil {
		payload.ValidationErrors = []failure.FieldError{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		logger.ErrorWithStack(err)

		return
	}

	writer.Header().Set(constant.RequestHeaderContentType, constant.ContentTypeJSON)
	writer.WriteHeader(code)

	if _, err = writer.Write(body); err != nil {
		logger.ErrorWithStack(err)
	}
}
