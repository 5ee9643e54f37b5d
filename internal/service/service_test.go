package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/robolist/robolist/internal/model"
	"github.com/robolist/robolist/internal/storage"
	"github.com/robolist/robolist/internal/store"
	"github.com/robolist/robolist/internal/store/storetest"
	"github.com/robolist/robolist/internal/validation"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

type testEnv struct {
	store     *store.SQLStore
	blobs     *storage.MemoryStorage
	sender    *mockSender
	users     *UserService
	auth      *AuthService
	artifacts *ArtifactService
	listings  *ListingService
	classes   *RobotClassService
	robots    *RobotService
}

// newTestEnv wires every service over an in-memory store. Emails go to the
// mock sender only when sendEmails is set; otherwise they are logged.
func newTestEnv(t *testing.T, sendEmails bool) *testEnv {
	t.Helper()
	s := storetest.New(t)
	blobs := storage.NewMemoryStorage("")
	sender := &mockSender{}

	emails := NewEmailServiceWithSender(sender, "http://localhost:8090", "RoboList", !sendEmails)
	users := NewUserService(s, emails)
	auth := NewAuthService(s, users, emails, nil, AuthConfig{
		JWTSecret:  "test-secret",
		APIKeyTTL:  time.Hour,
		MaxAPIKeys: 3,
	})
	artifacts := NewArtifactService(s, blobs, ArtifactConfig{
		PresignExpiry: time.Hour,
		Limits:        validation.UploadLimits{MinBytes: 1, MaxBytes: 10 << 20},
	})
	classes := NewRobotClassService(s, blobs, time.Hour)

	return &testEnv{
		store:     s,
		blobs:     blobs,
		sender:    sender,
		users:     users,
		auth:      auth,
		artifacts: artifacts,
		listings:  NewListingService(s, artifacts, users),
		classes:   classes,
		robots:    NewRobotService(s, classes),
	}
}

func (e *testEnv) newUser(t *testing.T, email string, perms ...model.UserPermission) *model.User {
	t.Helper()
	ctx := context.Background()
	u, err := e.users.Create(ctx, NewUser{Email: email})
	require.NoError(t, err)
	if len(perms) > 0 {
		require.NoError(t, e.users.users.Update(ctx, u.ID, store.NewUpdate().Set("permissions", perms)))
		u.Permissions = perms
	}
	return u
}

func (e *testEnv) vote(t *testing.T, userID, listingID string, upvote *bool) *model.Listing {
	t.Helper()
	l, err := e.listings.HandleVote(context.Background(), userID, listingID, upvote)
	require.NoError(t, err)
	return l
}

func (e *testEnv) newListing(t *testing.T, owner *model.User, name string) *model.Listing {
	t.Helper()
	l, err := e.listings.Add(context.Background(), owner, NewListing{Name: name})
	require.NoError(t, err)
	return l
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadFile(name, contentType string, data []byte) UploadFile {
	return UploadFile{
		Filename:    name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	}
}
