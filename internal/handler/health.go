package handler

import (
	"fmt"
	"net/http"

	"github.com/robolist/robolist/internal/apperr"
)

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	responder{}.error(w, r, fmt.Errorf("no route for %s %s: %w", r.Method, r.URL.Path, apperr.ErrNotFound))
}
