package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/robolist/robolist/internal/apperr"
	"github.com/robolist/robolist/internal/ctxkeys"
	"github.com/robolist/robolist/internal/model"
)

// APIKeyHeader carries an API key token. Authorization: Bearer is accepted too.
const APIKeyHeader = "x-kscale-api-key"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Principal, error)
}

// Authenticate resolves the request token to a principal and adds it to the
// context. Requests without a valid token continue anonymously.
func Authenticate(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := RequestToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			p, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				slog.Debug("request token rejected", "error", err, "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			ctx := ctxkeys.WithPrincipal(r.Context(), p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestToken returns the API key or bearer token of the request.
func RequestToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(APIKeyHeader)); token != "" {
		return token
	}
	authz := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(authz, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ctxkeys.User(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, apperr.Message(apperr.ErrUnauthenticated), "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	}
}

// RequireScope rejects requests whose principal lacks scope.
func RequireScope(scope model.Scope) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return RequireAuth(func(w http.ResponseWriter, r *http.Request) {
			if !ctxkeys.Principal(r.Context()).Can(scope) {
				writeError(w, http.StatusForbidden, apperr.Message(apperr.ErrNotAllowed), "Missing permission: "+string(scope))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(map[string]string{"message": message, "detail": detail})
	if err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}
