package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robolist/robolist/internal/apperr"
	"github.com/robolist/robolist/internal/model"
	"github.com/robolist/robolist/internal/repository"
	"github.com/robolist/robolist/internal/store"
	"github.com/robolist/robolist/internal/validation"
	"golang.org/x/sync/errgroup"
)

var (
	emailUnique     = store.Unique{"email"}
	usernameUnique  = store.Unique{"username"}
	userTokenUnique = store.Unique{"user_token"}

	userUniques = []store.Unique{emailUnique, usernameUnique}
)

// maxUsernameAttempts bounds the random suffix retries in GenerateUsername.
const maxUsernameAttempts = 8

type UserService struct {
	users        *repository.Repository[model.User]
	apiKeys      *repository.Repository[model.APIKey]
	oauthKeys    *repository.Repository[model.OAuthKey]
	emailService *EmailService
}

func NewUserService(s store.Store, emailService *EmailService) *UserService {
	return &UserService{
		users:        repository.New[model.User](s, model.KindUser),
		apiKeys:      repository.New[model.APIKey](s, model.KindAPIKey),
		oauthKeys:    repository.New[model.OAuthKey](s, model.KindOAuthKey),
		emailService: emailService,
	}
}

func (s *UserService) ByID(ctx context.Context, id string) (*model.User, error) {
	return s.users.Get(ctx, id)
}

func (s *UserService) ByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.users.FindBy(ctx, "email", normalizeEmail(email))
}

func (s *UserService) ByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.users.GetBy(ctx, "username", username)
}

// NewUser describes an account to create. PasswordHash is empty for OAuth users.
type NewUser struct {
	Email        string
	PasswordHash string
	GithubID     string
	GoogleID     string
	FirstName    string
	LastName     string
}

// Create adds a user with a username generated from the email address.
func (s *UserService) Create(ctx context.Context, in NewUser) (*model.User, error) {
	email := normalizeEmail(in.Email)
	err := validation.ValidateEmail(email)
	if err != nil {
		return nil, err
	}

	base, _, _ := strings.Cut(email, "@")
	username, err := s.GenerateUsername(ctx, base)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
		GithubID:     in.GithubID,
		GoogleID:     in.GoogleID,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	}

	err = s.users.Add(ctx, user, userUniques...)
	if errors.Is(err, apperr.ErrConflict) {
		return nil, fmt.Errorf("email or username already in use: %w", apperr.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// GenerateUsername returns base if it is free, otherwise base plus a random
// five character suffix.
func (s *UserService) GenerateUsername(ctx context.Context, base string) (string, error) {
	base = slugify(base)
	if len(base) < 3 {
		base += "user"
	}
	if len(base) > 58 {
		base = base[:58]
	}

	username := base
	for range maxUsernameAttempts {
		existing, err := s.users.FindBy(ctx, "username", username)
		if err != nil {
			return "", fmt.Errorf("failed to check username: %w", err)
		}
		if existing == nil {
			return username, nil
		}
		username = base + strings.ToLower(rand.Text()[:5])
	}
	return "", fmt.Errorf("could not generate a free username for %q: %w", base, apperr.ErrConflict)
}

func (s *UserService) SetUsername(ctx context.Context, userID, username string) (*model.User, error) {
	err := validation.ValidateUsername(username)
	if err != nil {
		return nil, err
	}

	upd := store.NewUpdate().
		Set("username", username).
		Set("updated_at", time.Now().Unix())
	err = s.users.Update(ctx, userID, upd, userUniques...)
	if errors.Is(err, apperr.ErrConflict) {
		return nil, fmt.Errorf("username %q is taken: %w", username, apperr.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return s.users.Get(ctx, userID)
}

// SetPermission grants or revokes a permission. Only admins may call it.
func (s *UserService) SetPermission(ctx context.Context, actor *model.User, userID string, perm model.UserPermission, on bool) (*model.User, error) {
	if actor == nil || !actor.IsAdmin() {
		return nil, fmt.Errorf("only admins can change permissions: %w", apperr.ErrNotAllowed)
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	perms := user.WithPermission(perm, on)
	upd := store.NewUpdate().
		Set("permissions", perms).
		Set("updated_at", time.Now().Unix())
	err = s.users.Update(ctx, userID, upd)
	if err != nil {
		return nil, err
	}

	slog.Info("user permission changed", "user_id", userID, "permission", perm, "enabled", on, "by", actor.ID)
	user.Permissions = perms
	return user, nil
}

// Delete removes the user with their API and OAuth keys, then sends a goodbye email.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keys, err := s.apiKeys.ListBy(gctx, "user_id", userID, store.Filter{})
		if err != nil {
			return err
		}
		return deleteAll(gctx, s.apiKeys, keys, func(k model.APIKey) string { return k.ID })
	})
	g.Go(func() error {
		keys, err := s.oauthKeys.ListBy(gctx, "user_id", userID, store.Filter{})
		if err != nil {
			return err
		}
		return deleteAll(gctx, s.oauthKeys, keys, func(k model.OAuthKey) string { return k.ID })
	})
	err = g.Wait()
	if err != nil {
		return fmt.Errorf("failed to delete keys for user %s: %w", userID, err)
	}

	err = s.users.Delete(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", userID, err)
	}
	slog.Info("user deleted", "user_id", userID)

	err = s.emailService.SendAccountDeletedEmail(ctx, user.Email, displayName(user))
	if err != nil {
		slog.Warn("failed to send account deleted email", "error", err, "user_id", userID)
	}
	return nil
}

// Usernames maps user ids to usernames. Unknown users are left out.
func (s *UserService) Usernames(ctx context.Context, ids []string) (map[string]string, error) {
	users, err := s.users.BatchGet(ctx, uniqueStrings(ids))
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}
	return names, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func displayName(u *model.User) string {
	switch {
	case u.Name != "":
		return u.Name
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

// deleteAll deletes items concurrently.
func deleteAll[T any](ctx context.Context, repo *repository.Repository[T], items []T, id func(T) string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, item := range items {
		g.Go(func() error {
			return repo.Delete(ctx, id(item))
		})
	}
	return g.Wait()
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
