package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/robolist/robolist/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageParam(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 1, false},
		{"page=3", 3, false},
		{"page=0", 0, true},
		{"page=-2", 0, true},
		{"page=two", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			page, err := pageParam(httptest.NewRequest(http.MethodGet, "/listings?"+tt.query, nil))
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, page)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var req struct {
		Name string `json:"name" validate:"required"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	err := decodeJSON(httptest.NewRecorder(), r, &req)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name": 1}`))
	err = decodeJSON(httptest.NewRecorder(), r, &req)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	err = decodeJSON(httptest.NewRecorder(), r, &req)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name": "gripper"}`))
	err = decodeJSON(httptest.NewRecorder(), r, &req)
	require.NoError(t, err)
	assert.Equal(t, "gripper", req.Name)
}

func TestErrorRedaction(t *testing.T) {
	internal := fmt.Errorf("dynamodb: throttled on table www-prod: %w", errors.New("boom"))
	r := httptest.NewRequest(http.MethodGet, "/listings", nil)

	rec := httptest.NewRecorder()
	responder{trusted: false}.error(rec, r, internal)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "www-prod")

	rec = httptest.NewRecorder()
	responder{trusted: true}.error(rec, r, internal)
	assert.Contains(t, rec.Body.String(), "www-prod")

	rec = httptest.NewRecorder()
	responder{trusted: false}.error(rec, r, fmt.Errorf("listing abc not found: %w", apperr.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "listing abc not found")
}
