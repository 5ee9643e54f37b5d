package routes

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/robolist/robolist/internal/app"
	"github.com/robolist/robolist/internal/config"
	"github.com/robolist/robolist/internal/middleware"
	"github.com/robolist/robolist/internal/storage"
	"github.com/robolist/robolist/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "tangerine-violin-42"

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, configure func(*config.Config)) http.Handler {
	t.Helper()
	cfg := &config.Config{
		AppName:          "RoboList",
		AppEnv:           "test",
		AppURL:           "http://localhost:8090",
		StoreBackend:     config.StoreSQL,
		S3PresignExpiry:  time.Hour,
		ArtifactMinBytes: 1,
		ArtifactMaxBytes: 10 << 20,
		JWTSecret:        "test-secret",
		APIKeyTTL:        time.Hour,
		MaxAPIKeys:       10,
	}
	if configure != nil {
		configure(cfg)
	}
	a := app.Wire(cfg, storetest.New(t), storage.NewMemoryStorage(""), nil)
	return SetupRoutes(a)
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(middleware.APIKeyHeader, token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type session struct {
	APIKey   string `json:"api_key"`
	APIKeyID string `json:"api_key_id"`
	User     struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		Username string `json:"username"`
	} `json:"user"`
}

func signup(t *testing.T, h http.Handler, email string) session {
	t.Helper()
	rec := call(t, h, http.MethodPost, "/auth/signup", "", map[string]string{"email": email, "password": testPassword})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[session](t, rec)
}

type listingBody struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Slug      string   `json:"slug"`
	HTML      string   `json:"description_html"`
	Username  string   `json:"username"`
	Score     int64    `json:"score"`
	Upvotes   int64    `json:"upvotes"`
	Tags      []string `json:"tags"`
	UserVote  *bool    `json:"user_vote"`
	CanEdit   bool     `json:"can_edit"`
	Artifacts []struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		ArtifactType string `json:"artifact_type"`
	} `json:"artifacts"`
}

func TestHealthAndFallback(t *testing.T) {
	h := newTestServer(t)

	rec := call(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = call(t, h, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.NotEmpty(t, body["message"])

	rec = call(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "robolist_http_requests_total")
}

func TestSignupLoginAndKeys(t *testing.T) {
	h := newTestServer(t)

	s := signup(t, h, "alice@example.com")
	assert.NotEmpty(t, s.APIKey)
	assert.Equal(t, "alice@example.com", s.User.Email)
	assert.Equal(t, "alice", s.User.Username)

	rec := call(t, h, http.MethodPost, "/auth/signup", "", map[string]string{"email": "alice@example.com", "password": testPassword})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodPost, "/auth/signup", "", map[string]string{"email": "not-an-email", "password": testPassword})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "wrong-password-123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, h, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[session](t, rec)
	assert.NotEqual(t, s.APIKeyID, login.APIKeyID)

	rec = call(t, h, http.MethodGet, "/users/me", login.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[map[string]any](t, rec)
	assert.Equal(t, s.User.ID, me["id"])
	assert.Equal(t, true, me["has_password"])

	// Read-only key
	rec = call(t, h, http.MethodPost, "/auth/keys", login.APIKey, map[string]any{"permissions": []string{"read"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[struct {
		APIKey string `json:"api_key"`
		Key    struct {
			ID          string   `json:"id"`
			Permissions []string `json:"permissions"`
		} `json:"key"`
	}](t, rec)
	assert.Equal(t, []string{"read"}, created.Key.Permissions)

	rec = call(t, h, http.MethodGet, "/users/me", created.APIKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = call(t, h, http.MethodPost, "/listings", created.APIKey, map[string]string{"name": "Gripper"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = call(t, h, http.MethodPost, "/auth/keys", created.APIKey, map[string]any{"permissions": []string{"write"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = call(t, h, http.MethodPost, "/auth/keys", login.APIKey, map[string]any{"permissions": []string{"root"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodGet, "/auth/keys", login.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	keys := decode[struct {
		Keys []struct {
			ID string `json:"id"`
		} `json:"keys"`
	}](t, rec)
	assert.Len(t, keys.Keys, 3)

	rec = call(t, h, http.MethodDelete, "/auth/keys/"+created.Key.ID, login.APIKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = call(t, h, http.MethodGet, "/users/me", created.APIKey, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, h, http.MethodPost, "/auth/logout", login.APIKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = call(t, h, http.MethodGet, "/users/me", login.APIKey, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, h, http.MethodGet, "/users/me", s.APIKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	h := newTestServer(t)

	rec := call(t, h, http.MethodGet, "/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, h, http.MethodGet, "/users/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s := signup(t, h, "bob@example.com")
	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, h, http.MethodGet, "/users/public/"+s.User.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	public := decode[map[string]any](t, rec)
	assert.Equal(t, "bob", public["username"])
	assert.NotContains(t, public, "email")

	rec = call(t, h, http.MethodGet, "/users/public/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, h, http.MethodPost, "/users/"+s.User.ID+"/moderator", s.APIKey, map[string]bool{"enabled": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSetUsername(t *testing.T) {
	h := newTestServer(t)
	alice := signup(t, h, "alice@example.com")
	bob := signup(t, h, "bob@example.com")

	rec := call(t, h, http.MethodPut, "/users/me/username", alice.APIKey, map[string]string{"username": "alice_bot"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, h, http.MethodGet, "/users/name/alice_bot", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, alice.User.ID, decode[map[string]any](t, rec)["id"])

	rec = call(t, h, http.MethodPut, "/users/me/username", bob.APIKey, map[string]string{"username": "alice_bot"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListingLifecycle(t *testing.T) {
	h := newTestServer(t)
	alice := signup(t, h, "alice@example.com")
	bob := signup(t, h, "bob@example.com")

	rec := call(t, h, http.MethodPost, "/listings", alice.APIKey, map[string]any{
		"name":        "Gripper Arm",
		"description": "Two finger gripper",
		"tags":        []string{"gripper"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	listing := decode[listingBody](t, rec)
	assert.Equal(t, "gripper-arm", listing.Slug)

	rec = call(t, h, http.MethodGet, "/listings/"+listing.ID, alice.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[listingBody](t, rec)
	assert.Equal(t, "Gripper Arm", detail.Name)
	assert.Equal(t, "alice", detail.Username)
	assert.Contains(t, detail.HTML, "<p>Two finger gripper</p>")
	assert.Equal(t, []string{"gripper"}, detail.Tags)
	assert.True(t, detail.CanEdit)
	assert.Nil(t, detail.UserVote)
	assert.Empty(t, detail.Artifacts)

	rec = call(t, h, http.MethodGet, "/listings/"+listing.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[listingBody](t, rec).CanEdit)

	rec = call(t, h, http.MethodGet, "/listings/by/alice/gripper-arm", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, listing.ID, decode[listingBody](t, rec).ID)

	// Tags
	rec = call(t, h, http.MethodPut, "/listings/"+listing.ID+"/tags", alice.APIKey, map[string]any{"tags": []string{"arm", "gripper"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = call(t, h, http.MethodGet, "/listings/"+listing.ID+"/tags", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"arm", "gripper"}, decode[map[string][]string](t, rec)["tags"])

	// Edits by others are refused
	rec = call(t, h, http.MethodPatch, "/listings/"+listing.ID, bob.APIKey, map[string]string{"name": "Stolen"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = call(t, h, http.MethodPatch, "/listings/"+listing.ID, alice.APIKey, map[string]string{"description": "Three finger gripper"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Votes
	rec = call(t, h, http.MethodPost, "/listings/"+listing.ID+"/vote?upvote=true", bob.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["score"])

	rec = call(t, h, http.MethodPost, "/listings/"+listing.ID+"/vote?upvote=false", bob.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, -1, decode[map[string]any](t, rec)["score"])

	rec = call(t, h, http.MethodGet, "/listings/"+listing.ID+"/vote", bob.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_vote": false}`, rec.Body.String())

	rec = call(t, h, http.MethodPost, "/listings/"+listing.ID+"/vote?upvote=maybe", bob.APIKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodDelete, "/listings/"+listing.ID+"/vote", bob.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode[map[string]any](t, rec)["score"])

	rec = call(t, h, http.MethodDelete, "/listings/"+listing.ID+"/vote", bob.APIKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Views and lists
	rec = call(t, h, http.MethodPost, "/listings/"+listing.ID+"/view", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, h, http.MethodGet, "/listings?user_id=me", alice.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		Listings []listingBody `json:"listings"`
		HasNext  bool          `json:"has_next"`
	}](t, rec)
	require.Len(t, page.Listings, 1)
	assert.Equal(t, "alice", page.Listings[0].Username)
	assert.False(t, page.HasNext)

	rec = call(t, h, http.MethodGet, "/listings?sort=sideways", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodGet, "/sitemap.xml", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<loc>http://localhost:8090/item/alice/gripper-arm</loc>")

	// Delete
	rec = call(t, h, http.MethodDelete, "/listings/"+listing.ID, bob.APIKey, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = call(t, h, http.MethodDelete, "/listings/"+listing.ID, alice.APIKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = call(t, h, http.MethodGet, "/listings/"+listing.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	for x := range 64 {
		for y := range 32 {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: 100, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func upload(t *testing.T, h http.Handler, token, listingID, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="files"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/artifacts/upload/"+listingID, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(middleware.APIKeyHeader, token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestArtifactRoutes(t *testing.T) {
	h := newTestServer(t)
	alice := signup(t, h, "alice@example.com")
	bob := signup(t, h, "bob@example.com")

	rec := call(t, h, http.MethodPost, "/listings", alice.APIKey, map[string]any{"name": "Camera Mount"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	listing := decode[listingBody](t, rec)

	rec = upload(t, h, bob.APIKey, listing.ID, "mount.png", "image/png", testPNG(t))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = upload(t, h, alice.APIKey, listing.ID, "mount.png", "image/png", testPNG(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	uploaded := decode[struct {
		Artifacts []struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			ArtifactType string `json:"artifact_type"`
			URLs         struct {
				Large string `json:"large"`
				Small string `json:"small"`
			} `json:"urls"`
		} `json:"artifacts"`
	}](t, rec)
	require.Len(t, uploaded.Artifacts, 1)
	art := uploaded.Artifacts[0]
	assert.Equal(t, "image", art.ArtifactType)
	assert.Equal(t, "mount.png", art.Name)
	assert.NotEmpty(t, art.URLs.Small)

	rec = call(t, h, http.MethodGet, "/artifacts/list/"+listing.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), art.ID)

	rec = call(t, h, http.MethodGet, "/artifacts/download/"+art.ID+"?size=small", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="mount.png"`, rec.Header().Get("Content-Disposition"))
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, img.Bounds().Dx(), 2*img.Bounds().Dy())

	rec = call(t, h, http.MethodGet, "/artifacts/download/"+art.ID+"?size=medium", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodPut, "/artifacts/"+art.ID, alice.APIKey, map[string]string{"description": "Front view"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Front view", decode[map[string]any](t, rec)["description"])

	rec = call(t, h, http.MethodPost, "/artifacts/main/"+art.ID, alice.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode[map[string]any](t, rec)["is_main"])

	rec = call(t, h, http.MethodGet, "/listings/"+listing.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[listingBody](t, rec).Artifacts, 1)

	rec = call(t, h, http.MethodPost, "/artifacts/presigned/"+listing.ID, alice.APIKey, map[string]string{"filename": "arm.stl", "content_type": "application/octet-stream"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[map[string]any](t, rec)["upload_url"])

	rec = call(t, h, http.MethodDelete, "/artifacts/"+art.ID, bob.APIKey, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = call(t, h, http.MethodDelete, "/artifacts/"+art.ID, alice.APIKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = call(t, h, http.MethodGet, "/artifacts/info/"+art.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRobotRoutes(t *testing.T) {
	h := newTestServer(t)
	alice := signup(t, h, "alice@example.com")
	bob := signup(t, h, "bob@example.com")

	rec := call(t, h, http.MethodPut, "/robots/zbot", alice.APIKey, map[string]any{
		"description": "Small humanoid",
		"metadata":    map[string]any{"control_frequency": 50},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	class := decode[map[string]any](t, rec)

	rec = call(t, h, http.MethodPut, "/robots/zbot", bob.APIKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodGet, "/robots/name/zbot", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, class["id"], decode[map[string]any](t, rec)["id"])

	rec = call(t, h, http.MethodGet, "/robots/id/"+class["id"].(string), "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, h, http.MethodGet, "/robots/user/me", alice.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = call(t, h, http.MethodPut, "/robots/urdf/zbot", alice.APIKey, map[string]string{"filename": "robot.tgz", "content_type": "application/gzip"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[map[string]any](t, rec)["url"])

	rec = call(t, h, http.MethodGet, "/robots/urdf/zbot", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Robots
	rec = call(t, h, http.MethodPut, "/robot/r1", bob.APIKey, map[string]string{"class_name": "zbot"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	robot := decode[map[string]any](t, rec)
	assert.Equal(t, "zbot", robot["class_name"])

	rec = call(t, h, http.MethodPut, "/robot/r2", bob.APIKey, map[string]string{"class_name": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, h, http.MethodGet, "/robot/id/"+robot["id"].(string), alice.APIKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, h, http.MethodPost, "/robot/r1", bob.APIKey, map[string]string{"new_robot_name": "r9"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = call(t, h, http.MethodGet, "/robot/name/r9", bob.APIKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, h, http.MethodGet, "/robot", bob.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = call(t, h, http.MethodDelete, "/robot/r9", bob.APIKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, h, http.MethodDelete, "/robots/zbot", bob.APIKey, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = call(t, h, http.MethodDelete, "/robots/zbot", alice.APIKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimits(t *testing.T) {
	h := newTestServerWith(t, func(cfg *config.Config) {
		cfg.AuthRateLimit = 3
		cfg.AuthRateWindow = time.Hour
		cfg.WriteRateLimit = 2
		cfg.WriteRateWindow = time.Hour
	})

	alice := signup(t, h, "alice@example.com")
	bob := signup(t, h, "bob@example.com")

	// Writes are counted per user.
	for _, name := range []string{"One", "Two"} {
		rec := call(t, h, http.MethodPost, "/listings", alice.APIKey, map[string]string{"name": name})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := call(t, h, http.MethodPost, "/listings", alice.APIKey, map[string]string{"name": "Three"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = call(t, h, http.MethodPost, "/listings", bob.APIKey, map[string]string{"name": "One"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Reads are not limited.
	rec = call(t, h, http.MethodGet, "/listings", alice.APIKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Credential routes are counted per client address; two signups used two tokens.
	rec = call(t, h, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": testPassword})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = call(t, h, http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": testPassword})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
