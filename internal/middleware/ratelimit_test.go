package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/robolist/robolist/internal/ctxkeys"
	"github.com/robolist/robolist/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestLimiterRefills(t *testing.T) {
	l := NewLimiter("test", 2, time.Minute, ClientIP)
	now := time.Now()

	assert.True(t, l.allow("a", now))
	assert.True(t, l.allow("a", now))
	assert.False(t, l.allow("a", now))
	assert.True(t, l.allow("b", now))

	// One token comes back every window/requests.
	assert.True(t, l.allow("a", now.Add(31*time.Second)))
	assert.False(t, l.allow("a", now.Add(31*time.Second)))
}

func TestLimiterSweepsIdleClients(t *testing.T) {
	l := NewLimiter("test", 1, time.Minute, ClientIP)
	now := time.Now()

	l.allow("a", now)
	l.allow("b", now.Add(2*time.Minute))
	assert.NotContains(t, l.buckets, "a")
	assert.Contains(t, l.buckets, "b")
}

func TestDisabledLimiterPassesThrough(t *testing.T) {
	l := NewLimiter("test", 0, time.Minute, ClientIP)
	assert.Nil(t, l)

	called := 0
	h := l.Wrap(func(w http.ResponseWriter, r *http.Request) { called++ })
	for range 5 {
		h(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/listings", nil))
	}
	assert.Equal(t, 5, called)
}

func TestLimiterRejectsWith429(t *testing.T) {
	h := WriteLimiter(1, time.Hour).Wrap(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	req := func(userID string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/listings", nil)
		p := &model.Principal{User: &model.User{ID: userID}}
		return r.WithContext(ctxkeys.WithPrincipal(r.Context(), p))
	}

	rec := httptest.NewRecorder()
	h(rec, req("u1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h(rec, req("u1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	h(rec, req("u2"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestClientKeys(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:5123"
	assert.Equal(t, "203.0.113.7", ClientIP(r))
	assert.Equal(t, "ip:203.0.113.7", PrincipalKey(r))

	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	assert.Equal(t, "198.51.100.1", ClientIP(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", ClientIP(r))

	p := &model.Principal{User: &model.User{ID: "u1"}}
	r = r.WithContext(ctxkeys.WithPrincipal(r.Context(), p))
	assert.Equal(t, "user:u1", PrincipalKey(r))
}
