package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/robolist/robolist/internal/apperr"
	"github.com/robolist/robolist/internal/model"
	"github.com/robolist/robolist/internal/repository"
	"github.com/robolist/robolist/internal/store"
	"github.com/robolist/robolist/internal/validation"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = fmt.Errorf("invalid email or password: %w", apperr.ErrUnauthenticated)

// OAuth providers.
const (
	ProviderGithub  = "github"
	ProviderGoogle  = "google"
	ProviderCognito = "cognito"
)

type AuthConfig struct {
	JWTSecret  string
	APIKeyTTL  time.Duration
	MaxAPIKeys int
}

type AuthService struct {
	users        *UserService
	apiKeys      *repository.Repository[model.APIKey]
	oauthKeys    *repository.Repository[model.OAuthKey]
	emailService *EmailService
	cognito      *CognitoVerifier
	cfg          AuthConfig
}

// NewAuthService wires the auth service. cognito may be nil.
func NewAuthService(s store.Store, users *UserService, emailService *EmailService, cognito *CognitoVerifier, cfg AuthConfig) *AuthService {
	if cfg.APIKeyTTL <= 0 {
		cfg.APIKeyTTL = 90 * 24 * time.Hour
	}
	if cfg.MaxAPIKeys <= 0 {
		cfg.MaxAPIKeys = 10
	}
	return &AuthService{
		users:        users,
		apiKeys:      repository.New[model.APIKey](s, model.KindAPIKey),
		oauthKeys:    repository.New[model.OAuthKey](s, model.KindOAuthKey),
		emailService: emailService,
		cognito:      cognito,
		cfg:          cfg,
	}
}

func (s *AuthService) Signup(ctx context.Context, email, password string) (*model.User, error) {
	err := validation.ValidatePassword(password)
	if err != nil {
		return nil, err
	}

	existing, err := s.users.ByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("email already registered: %w", apperr.ErrConflict)
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.Create(ctx, NewUser{Email: email, PasswordHash: hash})
	if err != nil {
		return nil, err
	}
	s.sendWelcome(ctx, user)
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.ByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || !user.HasPassword() {
		return nil, ErrInvalidCredentials
	}

	err = s.ComparePassword(password, user.PasswordHash)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *AuthService) HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

func (s *AuthService) ComparePassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// OAuthIdentity is what a provider reports about the signed-in account.
type OAuthIdentity struct {
	Provider   string
	ProviderID string
	Email      string
	FirstName  string
	LastName   string
}

// userToken is the unique OAuth key value: GitHub accounts by id, everything
// else by email.
func (id OAuthIdentity) userToken() string {
	if id.Provider == ProviderGithub || id.Provider == ProviderCognito {
		return id.Provider + ":" + id.ProviderID
	}
	return id.Provider + ":" + normalizeEmail(id.Email)
}

// OAuthLogin returns the user linked to the identity, linking an existing
// account with the same email or creating a new one.
func (s *AuthService) OAuthLogin(ctx context.Context, id OAuthIdentity) (*model.User, error) {
	token := id.userToken()

	key, err := s.oauthKeys.FindBy(ctx, "user_token", token)
	if err != nil {
		return nil, fmt.Errorf("failed to look up oauth key: %w", err)
	}
	if key != nil {
		return s.users.ByID(ctx, key.UserID)
	}

	if id.Email == "" {
		return nil, fmt.Errorf("%s account has no email: %w", id.Provider, apperr.ErrInvalidInput)
	}

	user, err := s.users.ByEmail(ctx, id.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	created := false
	switch {
	case user == nil:
		in := NewUser{Email: id.Email, FirstName: id.FirstName, LastName: id.LastName}
		switch id.Provider {
		case ProviderGithub:
			in.GithubID = id.ProviderID
		case ProviderGoogle:
			in.GoogleID = id.ProviderID
		}
		user, err = s.users.Create(ctx, in)
		if err != nil {
			return nil, err
		}
		created = true
	case id.Provider == ProviderGithub || id.Provider == ProviderGoogle:
		field := id.Provider + "_id"
		err = s.users.users.Update(ctx, user.ID, store.NewUpdate().
			Set(field, id.ProviderID).
			Set("updated_at", time.Now().Unix()))
		if err != nil {
			return nil, fmt.Errorf("failed to link %s account: %w", id.Provider, err)
		}
	}

	err = s.oauthKeys.Add(ctx, &model.OAuthKey{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Provider:  id.Provider,
		UserToken: token,
	}, userTokenUnique)
	if err != nil && !errors.Is(err, apperr.ErrConflict) {
		return nil, fmt.Errorf("failed to add oauth key: %w", err)
	}

	slog.Info("user logged in with oauth", "user_id", user.ID, "provider", id.Provider, "created", created)
	if created {
		s.sendWelcome(ctx, user)
	}
	return user, nil
}

// CreateAPIKey stores a new key and returns its signed token. An empty
// permission set grants full access. The oldest keys beyond the per-user cap
// are removed.
func (s *AuthService) CreateAPIKey(ctx context.Context, userID string, source model.APIKeySource, perms []model.APIKeyPermission) (string, *model.APIKey, error) {
	if len(perms) == 0 {
		perms = model.FullAccess
	}
	for _, p := range perms {
		if !slices.Contains(model.FullAccess, p) {
			return "", nil, fmt.Errorf("unknown permission %q: %w", p, apperr.ErrInvalidInput)
		}
	}

	now := time.Now()
	key := &model.APIKey{
		ID:          uuid.New().String(),
		UserID:      userID,
		Source:      source,
		Permissions: slices.Clone(perms),
		ExpiresAt:   now.Add(s.cfg.APIKeyTTL).Unix(),
		CreatedAt:   now.Unix(),
	}
	err := s.apiKeys.Add(ctx, key)
	if err != nil {
		return "", nil, fmt.Errorf("failed to add api key: %w", err)
	}

	err = s.pruneAPIKeys(ctx, userID)
	if err != nil {
		slog.Warn("failed to prune api keys", "error", err, "user_id", userID)
	}

	token, err := s.signAPIKey(key)
	if err != nil {
		return "", nil, err
	}
	return token, key, nil
}

// ListAPIKeys returns the unexpired keys of a user, newest first.
func (s *AuthService) ListAPIKeys(ctx context.Context, userID string) ([]model.APIKey, error) {
	keys, err := s.apiKeys.ListBy(ctx, "user_id", userID, store.Filter{})
	if err != nil {
		return nil, err
	}
	keys = slices.DeleteFunc(keys, func(k model.APIKey) bool { return k.IsExpired() })
	slices.SortFunc(keys, func(a, b model.APIKey) int {
		return cmp.Or(cmp.Compare(b.CreatedAt, a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
	return keys, nil
}

// DeleteAPIKey revokes a key owned by actor. Admins may revoke any key.
func (s *AuthService) DeleteAPIKey(ctx context.Context, actor *model.User, keyID string) error {
	key, err := s.apiKeys.Get(ctx, keyID)
	if err != nil {
		return err
	}
	if key.UserID != actor.ID && !actor.IsAdmin() {
		return fmt.Errorf("api key belongs to another user: %w", apperr.ErrNotAllowed)
	}
	return s.apiKeys.Delete(ctx, keyID)
}

func (s *AuthService) pruneAPIKeys(ctx context.Context, userID string) error {
	keys, err := s.apiKeys.ListBy(ctx, "user_id", userID, store.Filter{})
	if err != nil {
		return err
	}

	var stale []model.APIKey
	live := keys[:0]
	for _, k := range keys {
		if k.IsExpired() {
			stale = append(stale, k)
		} else {
			live = append(live, k)
		}
	}
	if extra := len(live) - s.cfg.MaxAPIKeys; extra > 0 {
		slices.SortFunc(live, func(a, b model.APIKey) int {
			return cmp.Or(cmp.Compare(a.CreatedAt, b.CreatedAt), cmp.Compare(a.ID, b.ID))
		})
		stale = append(stale, live[:extra]...)
	}
	return deleteAll(ctx, s.apiKeys, stale, func(k model.APIKey) string { return k.ID })
}

func (s *AuthService) signAPIKey(key *model.APIKey) (string, error) {
	claims := jwt.MapClaims{
		"sub": key.UserID,
		"jti": key.ID,
		"iat": key.CreatedAt,
		"exp": key.ExpiresAt,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign api key: %w", err)
	}
	return tokenString, nil
}

func (s *AuthService) parseAPIKey(tokenString string) (keyID, userID string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("invalid api key: %w", apperr.ErrUnauthenticated)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("invalid api key claims: %w", apperr.ErrUnauthenticated)
	}
	keyID, _ = claims["jti"].(string)
	userID, _ = claims["sub"].(string)
	if keyID == "" || userID == "" {
		return "", "", fmt.Errorf("invalid api key claims: %w", apperr.ErrUnauthenticated)
	}
	return keyID, userID, nil
}

// Authenticate resolves a raw token to a principal. API keys are tried first,
// then Cognito tokens when a verifier is configured.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	if token == "" {
		return nil, fmt.Errorf("missing token: %w", apperr.ErrUnauthenticated)
	}

	keyID, userID, err := s.parseAPIKey(token)
	if err == nil {
		return s.apiKeyPrincipal(ctx, keyID, userID)
	}
	if s.cognito == nil {
		return nil, err
	}

	identity, err := s.cognito.Verify(token)
	if err != nil {
		return nil, err
	}
	return s.cognitoPrincipal(ctx, identity)
}

func (s *AuthService) apiKeyPrincipal(ctx context.Context, keyID, userID string) (*model.Principal, error) {
	key, err := s.apiKeys.Find(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if key == nil || key.IsExpired() || key.UserID != userID {
		return nil, fmt.Errorf("api key revoked or expired: %w", apperr.ErrUnauthenticated)
	}

	user, err := s.users.ByID(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("api key user no longer exists: %w", apperr.ErrUnauthenticated)
	}
	if err != nil {
		return nil, err
	}

	return &model.Principal{User: user, APIKeyID: key.ID, Scopes: model.ScopesFor(key.Permissions)}, nil
}

// cognitoPrincipal grants read and write plus the scopes and permissions of
// the token's groups. Group permissions apply to the request only.
func (s *AuthService) cognitoPrincipal(ctx context.Context, id *CognitoIdentity) (*model.Principal, error) {
	user, err := s.OAuthLogin(ctx, OAuthIdentity{
		Provider:   ProviderCognito,
		ProviderID: id.Subject,
		Email:      id.Email,
	})
	if err != nil {
		return nil, err
	}

	for _, p := range id.Permissions {
		if !user.Has(p) {
			user.Permissions = append(user.Permissions, p)
		}
	}
	scopes := append([]model.Scope{model.ScopeRead, model.ScopeWrite}, id.Scopes...)
	return &model.Principal{User: user, Scopes: scopes}, nil
}

func (s *AuthService) sendWelcome(ctx context.Context, user *model.User) {
	err := s.emailService.SendWelcomeEmail(ctx, user.Email, displayName(user))
	if err != nil {
		slog.Warn("failed to send welcome email", "error", err, "user_id", user.ID)
	}
}
