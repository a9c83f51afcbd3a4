package validator_test

import (
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlaku/shared/failure"
	"mlaku/shared/validator"
)

type destination struct {
	Name string `json:"name" validate:"required"`
}

type request struct {
	Email       string      `json:"email"       validate:"required,email"`
	Phone       string      `json:"phone"       validate:"required,e164"`
	Role        string      `json:"role"        validate:"omitempty,oneof=staff tourist"`
	StartDate   string      `json:"startDate"   validate:"required,utc_iso8601"`
	Destination destination `json:"destination"`
}

func validRequest() request {
	return request{
		Email:       "a@x.com",
		Phone:       "+6281234567890",
		Role:        "tourist",
		StartDate:   "2025-02-10T12:00:00Z",
		Destination: destination{Name: "Bromo"},
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *request)
		wantField string
	}{
		{name: "valid", mutate: func(*request) {}},
		{name: "missing email", mutate: func(r *request) { r.Email = "" }, wantField: "email"},
		{name: "bad phone", mutate: func(r *request) { r.Phone = "0812" }, wantField: "phone"},
		{name: "owner is not self-service", mutate: func(r *request) { r.Role = "owner" }, wantField: "role"},
		{name: "local time rejected", mutate: func(r *request) { r.StartDate = "2025-02-10T12:00:00" }, wantField: "startDate"},
		{name: "offset time rejected", mutate: func(r *request) { r.StartDate = "2025-02-10T12:00:00+07:00" }, wantField: "startDate"},
		{name: "nested field", mutate: func(r *request) { r.Destination.Name = "" }, wantField: "destination.name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := validator.ValidateStruct(&req)
			if tt.wantField == "" {
				assert.NoError(t, err)

				return
			}

			fail, ok := failure.From(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusBadRequest, fail.Code)
			require.NotEmpty(t, fail.Fields)
			assert.Equal(t, tt.wantField, fail.Fields[0].Field)
			assert.Equal(t, fail.Fields[0].Message, fail.Message)
		})
	}
}

func TestValidateStruct_CollectsEveryField(t *testing.T) {
	err := validator.ValidateStruct(&request{})

	fail, ok := failure.From(err)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(fail.Fields), 4)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "valid",
			body: `{"email":"a@x.com","phone":"+6281234567890","startDate":"2025-02-10T12:00:00Z","destination":{"name":"Bromo"}}`,
		},
		{name: "malformed", body: `{"email":}`, wantErr: "request body is not valid JSON"},
		{name: "empty body", body: ``, wantErr: "request body is required"},
		{name: "invalid", body: `{"email":"nope"}`, wantErr: "email must be a valid email address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var data request

			err := validator.Validate(strings.NewReader(tt.body), &data)
			if tt.wantErr == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
			assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))
		})
	}
}

func TestValidateVar(t *testing.T) {
	assert.NoError(t, validator.ValidateVar("2025-02-10T12:00:00+00:00", "utc_iso8601"))
	assert.Error(t, validator.ValidateVar("10/02/2025", "utc_iso8601"))
	assert.NoError(t, validator.ValidateVar("6fa459ea-ee8a-3ca4-894e-db77e160355e", "uuid"))
	assert.Error(t, validator.ValidateVar("not-a-uuid", "uuid"))
}

type upload struct {
	Image *multipart.FileHeader `json:"image" validate:"required,mimetypes=image/jpeg image/png,maxfilesize=1"`
}

func TestFileValidation(t *testing.T) {
	header := func(contentType string, size int64) *multipart.FileHeader {
		return &multipart.FileHeader{
			Filename: "cover",
			Header:   textproto.MIMEHeader{"Content-Type": []string{contentType}},
			Size:     size,
		}
	}

	assert.NoError(t, validator.ValidateStruct(&upload{Image: header("image/png", 512)}))
	assert.Error(t, validator.ValidateStruct(&upload{Image: header("application/pdf", 512)}))
	assert.Error(t, validator.ValidateStruct(&upload{Image: header("image/jpeg", 2<<20)}))
	assert.Error(t, validator.ValidateStruct(&upload{}))
}
