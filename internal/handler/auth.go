package handler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/robolist/robolist/internal/apperr"
	"github.com/robolist/robolist/internal/config"
	"github.com/robolist/robolist/internal/ctxkeys"
	"github.com/robolist/robolist/internal/model"
	"github.com/robolist/robolist/internal/service"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

const oauthStateCookie = "oauth_state"

// Provider endpoints for user details, replaceable in tests.
type oauthEndpoints struct {
	GithubUser   string
	GithubEmails string
	GoogleUser   string
}

var defaultOAuthEndpoints = oauthEndpoints{
	GithubUser:   "https://api.github.com/user",
	GithubEmails: "https://api.github.com/user/emails",
	GoogleUser:   "https://www.googleapis.com/oauth2/v2/userinfo",
}

type AuthHandler struct {
	responder
	authService       *service.AuthService
	googleOAuthConfig *oauth2.Config
	githubOAuthConfig *oauth2.Config
	endpoints         oauthEndpoints
	secureCookies     bool
}

func NewAuthHandler(authService *service.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		responder:   responder{trusted: cfg.Trusted()},
		authService: authService,
		googleOAuthConfig: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.AppURL + "/auth/google/callback",
			Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
			Endpoint:     google.Endpoint,
		},
		githubOAuthConfig: &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.AppURL + "/auth/github/callback",
			Scopes:       []string{"user:email"},
			Endpoint:     github.Endpoint,
		},
		endpoints:     defaultOAuthEndpoints,
		secureCookies: cfg.IsProduction(),
	}
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		h.error(w, r, err)
		return
	}

	user, err := h.authService.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.session(w, r, http.StatusCreated, user, model.APIKeySourcePassword)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		h.error(w, r, err)
		return
	}

	user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		slog.Info("login failed", "error", err)
		h.error(w, r, err)
		return
	}
	slog.Info("user logged in", "user_id", user.ID)
	h.session(w, r, http.StatusOK, user, model.APIKeySourcePassword)
}

// session issues a full access API key for an interactive login.
func (h *AuthHandler) session(w http.ResponseWriter, r *http.Request, status int, user *model.User, source model.APIKeySource) {
	token, key, err := h.authService.CreateAPIKey(r.Context(), user.ID, source, model.FullAccess)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, status, sessionResponse{
		APIKey:    token,
		APIKeyID:  key.ID,
		ExpiresAt: key.ExpiresAt,
		User:      newUserView(user),
	})
}

// Logout revokes the API key the request was made with. Identity provider
// tokens have nothing to revoke.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p := ctxkeys.Principal(r.Context())
	if p.APIKeyID != "" {
		err := h.authService.DeleteAPIKey(r.Context(), p.User, p.APIKeyID)
		if err != nil {
			h.error(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.authService.ListAPIKeys(r.Context(), actor(r).ID)
	if err != nil {
		h.error(w, r, err)
		return
	}
	views := make([]apiKeyView, 0, len(keys))
	for i := range keys {
		views = append(views, newAPIKeyView(&keys[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": views})
}

type createKeyRequest struct {
	Permissions []model.APIKeyPermission `json:"permissions" validate:"dive,oneof=read write admin"`
}

// CreateKey issues a key with at most the permissions of the calling key.
func (h *AuthHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	p := ctxkeys.Principal(r.Context())
	perms := req.Permissions
	if len(perms) == 0 {
		perms = model.FullAccess
	}
	for _, perm := range perms {
		if !p.Can(model.Scope(perm)) {
			h.error(w, r, fmt.Errorf("cannot grant %q: %w", perm, apperr.ErrNotAllowed))
			return
		}
	}

	token, key, err := h.authService.CreateAPIKey(r.Context(), p.User.ID, model.APIKeySourceUser, perms)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"api_key": token,
		"key":     newAPIKeyView(key),
	})
}

func (h *AuthHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	err := h.authService.DeleteAPIKey(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GoogleAuth redirects user to Google OAuth consent screen
func (h *AuthHandler) GoogleAuth(w http.ResponseWriter, r *http.Request) {
	h.redirect(w, r, h.googleOAuthConfig)
}

// GitHubAuth redirects user to GitHub OAuth consent screen
func (h *AuthHandler) GitHubAuth(w http.ResponseWriter, r *http.Request) {
	h.redirect(w, r, h.githubOAuthConfig)
}

func (h *AuthHandler) redirect(w http.ResponseWriter, r *http.Request, cfg *oauth2.Config) {
	if cfg.ClientID == "" {
		h.error(w, r, fmt.Errorf("oauth provider is not configured: %w", apperr.ErrNotFound))
		return
	}

	// Generate secure state token for CSRF protection
	state := generateOAuthState()

	// Store state in secure cookie
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies, // Secure flag based on APP_ENV (safer than r.TLS behind load balancers)
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600, // 10 minutes
	})

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// exchange validates the callback state and trades the code for a token.
func (h *AuthHandler) exchange(w http.ResponseWriter, r *http.Request, cfg *oauth2.Config) (*http.Client, error) {
	// Validate state parameter for CSRF protection
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value != state || state == "" {
		return nil, fmt.Errorf("oauth state mismatch: %w", apperr.ErrUnauthenticated)
	}

	// Clear state cookie
	http.SetCookie(w, &http.Cookie{
		Name:   oauthStateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, fmt.Errorf("oauth callback is missing the code: %w", apperr.ErrInvalidInput)
	}

	token, err := cfg.Exchange(r.Context(), code)
	if err != nil {
		slog.Error("oauth token exchange failed", "error", err)
		return nil, fmt.Errorf("oauth token exchange failed: %w", apperr.ErrUnauthenticated)
	}
	return cfg.Client(r.Context(), token), nil
}

// GoogleCallback handles the OAuth callback from Google
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	client, err := h.exchange(w, r, h.googleOAuthConfig)
	if err != nil {
		h.error(w, r, err)
		return
	}

	var userInfo struct {
		ID         string `json:"id"`
		Email      string `json:"email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
	}
	err = getJSON(r.Context(), client, h.endpoints.GoogleUser, &userInfo)
	if err != nil {
		slog.Error("failed to get google user info", "error", err)
		h.error(w, r, err)
		return
	}

	h.oauthLogin(w, r, service.OAuthIdentity{
		Provider:   service.ProviderGoogle,
		ProviderID: userInfo.ID,
		Email:      userInfo.Email,
		FirstName:  userInfo.GivenName,
		LastName:   userInfo.FamilyName,
	})
}

// GitHubCallback handles the OAuth callback from GitHub
func (h *AuthHandler) GitHubCallback(w http.ResponseWriter, r *http.Request) {
	client, err := h.exchange(w, r, h.githubOAuthConfig)
	if err != nil {
		h.error(w, r, err)
		return
	}

	var userInfo struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	err = getJSON(r.Context(), client, h.endpoints.GithubUser, &userInfo)
	if err != nil {
		slog.Error("failed to get github user info", "error", err)
		h.error(w, r, err)
		return
	}

	// GitHub API may not return email in main response if it's private
	if userInfo.Email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		err = getJSON(r.Context(), client, h.endpoints.GithubEmails, &emails)
		if err != nil {
			slog.Error("failed to get github user emails", "error", err)
			h.error(w, r, err)
			return
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				userInfo.Email = e.Email
				break
			}
		}
	}

	first, last, _ := strings.Cut(userInfo.Name, " ")
	h.oauthLogin(w, r, service.OAuthIdentity{
		Provider:   service.ProviderGithub,
		ProviderID: strconv.FormatInt(userInfo.ID, 10),
		Email:      userInfo.Email,
		FirstName:  first,
		LastName:   last,
	})
}

func (h *AuthHandler) oauthLogin(w http.ResponseWriter, r *http.Request, id service.OAuthIdentity) {
	user, err := h.authService.OAuthLogin(r.Context(), id)
	if err != nil {
		slog.Error("oauth authentication failed", "error", err, "provider", id.Provider)
		h.error(w, r, err)
		return
	}
	slog.Info("user logged in with oauth", "user_id", user.ID, "provider", id.Provider)
	h.session(w, r, http.StatusOK, user, model.APIKeySourceOAuth)
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			slog.Error("failed to close response body", "error", closeErr)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned %d: %w", url, resp.StatusCode, apperr.ErrUnauthenticated)
	}
	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return nil
}

// generateOAuthState creates cryptographically secure random state token for OAuth CSRF protection
func generateOAuthState() string {
	bytes := make([]byte, 32)
	_, err := rand.Read(bytes)
	if err != nil {
		panic("failed to generate oauth state: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
