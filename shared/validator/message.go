package validator

import (
	"errors"
	"strings"

	val "github.com/go-playground/validator/v10"

	"mlaku/shared/failure"
)

const defaultMessage = "Validation failed"

var (
	messages = map[string]string{
		"required":    "{field} is required",
		"gt":          "{field} must be greater than {param}",
		"gte":         "{field} must be greater than or equal to {param}",
		"lte":         "{field} must be less than or equal to {param}",
		"oneof":       "{field} must be one of {param}",
		"max":         "{field} must be at most {param} characters",
		"min":         "{field} must be at least {param} characters",
		"len":         "{field} must be exactly {param} characters",
		"email":       "{field} must be a valid email address",
		"e164":        "{field} must be a valid E.164 phone number (e.g., +6281234567890)",
		"uuid":        "{field} must be a valid UUID",
		"alphanum":    "{field} must only contain letters and digits",
		"latitude":    "{field} must be a valid latitude",
		"longitude":   "{field} must be a valid longitude",
		"dive":        "{field} contains an invalid item",
		"utc_iso8601": "{field} must be an ISO 8601 UTC timestamp (e.g., 2025-02-10T12:00:00Z)",
		"mimetypes":   "{field} must be one of {param}",
		"maxfilesize": "{field} must not exceed {param} MB",
	}
)

// fieldPath drops the root struct name from the namespace so nested fields
// read as destination.name.
func fieldPath(valErr val.FieldError) string {
	namespace := valErr.Namespace()
	if _, rest, found := strings.Cut(namespace, "."); found {
		return rest
	}

	return valErr.Field()
}

func fieldErrors(err error) []failure.FieldError {
	var valErrors val.ValidationErrors
	if !errors.As(err, &valErrors) {
		return nil
	}

	fields := make([]failure.FieldError, 0, len(valErrors))

	for _, valErr := range valErrors {
		field := fieldPath(valErr)

		msg, ok := messages[valErr.Tag()]
		if !ok {
			msg = "{field} is invalid"
		}

		msg = strings.ReplaceAll(msg, "{field}", field)
		msg = strings.ReplaceAll(msg, "{param}", valErr.Param())

		fields = append(fields, failure.FieldError{Field: field, Message: msg})
	}

	return fields
}

func toFailure(err error) error {
	fields := fieldErrors(err)
	if len(fields) == 0 {
		return failure.Validation(defaultMessage)
	}

	return failure.Validation(fields[0].Message, fields...)
}
