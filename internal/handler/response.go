package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/robolist/robolist/internal/apperr"
	"github.com/robolist/robolist/internal/ctxkeys"
	"github.com/robolist/robolist/internal/model"
	"github.com/robolist/robolist/internal/validation"
)

const maxJSONBody = 1 << 20

// responder writes JSON responses. Error details are returned verbatim only
// when trusted is set (development and test environments).
type responder struct {
	trusted bool
}

type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (rs responder) error(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path, "request_id", ctxkeys.RequestID(r.Context()))
	} else {
		slog.Debug("request rejected", "error", err, "status", status, "path", r.URL.Path)
	}
	writeJSON(w, status, errorBody{
		Message: apperr.Message(err),
		Detail:  apperr.Detail(err, rs.trusted),
	})
}

// decodeJSON reads a JSON body into v and checks its validate tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("request body is empty: %w", apperr.ErrInvalidInput)
	}
	if err != nil {
		return fmt.Errorf("invalid JSON body: %s: %w", err.Error(), apperr.ErrInvalidInput)
	}
	return validation.Struct(v)
}

// pageParam reads the 1-based page query parameter.
func pageParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, fmt.Errorf("page must be a positive integer: %w", apperr.ErrInvalidInput)
	}
	return page, nil
}

// boolParam reads an optional boolean query parameter.
func boolParam(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false: %w", name, apperr.ErrInvalidInput)
	}
	return &b, nil
}

// actor returns the authenticated user. Routes that call it are wrapped in
// middleware.RequireAuth.
func actor(r *http.Request) *model.User {
	return ctxkeys.User(r.Context())
}

// userParam resolves "me" to the caller's id.
func userParam(r *http.Request, name string) (string, error) {
	id := r.PathValue(name)
	if id != "me" {
		return id, nil
	}
	u := actor(r)
	if u == nil {
		return "", apperr.ErrUnauthenticated
	}
	return u.ID, nil
}
