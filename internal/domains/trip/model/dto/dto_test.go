package dto_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlaku/internal/domains/trip/model/dto"
	"mlaku/shared/validator"
)

const createBody = `{
	"title": "Kawah Ijen blue fire",
	"description": "Night hike to the crater",
	"destination": {"name": "Ijen", "location": "East Java"},
	"startDate": "2026-03-01T00:00:00Z",
	"endDate": "2026-03-02T08:00:00Z",
	"maxCapacity": 12%s
}`

func TestCreateTripRequest_Price(t *testing.T) {
	tests := []struct {
		name      string
		price     string
		wantErr   bool
		wantPrice float64
	}{
		{name: "free trip", price: `, "price": 0`, wantPrice: 0},
		{name: "paid trip", price: `, "price": 250000`, wantPrice: 250000},
		{name: "negative price", price: `, "price": -1`, wantErr: true},
		{name: "missing price", price: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req dto.CreateTripRequest

			err := validator.Validate(strings.NewReader(strings.Replace(createBody, "%s", tt.price, 1)), &req)

			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)

			start, end, err := req.Schedule()
			require.NoError(t, err)

			trip := req.ToModel("owner-1", start, end)
			assert.Equal(t, tt.wantPrice, trip.Price)
		})
	}
}

func TestUpdateTripRequest_Price(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "drops price to zero", body: `{"price": 0}`},
		{name: "negative price", body: `{"price": -5}`, wantErr: true},
		{name: "price untouched", body: `{"title": "Ijen"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req dto.UpdateTripRequest

			err := validator.Validate(strings.NewReader(tt.body), &req)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
