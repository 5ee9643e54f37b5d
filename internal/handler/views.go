package handler

import (
	"github.com/robolist/robolist/internal/model"
)

// userView is the caller's own account.
type userView struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Username         string `json:"username"`
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	Name             string `json:"name,omitempty"`
	Bio              string `json:"bio,omitempty"`
	HasPassword      bool   `json:"has_password"`
	GithubID         string `json:"github_id,omitempty"`
	GoogleID         string `json:"google_id,omitempty"`
	IsAdmin          bool   `json:"is_admin"`
	IsMod            bool   `json:"is_mod"`
	IsContentManager bool   `json:"is_content_manager"`
	CreatedAt        int64  `json:"created_at"`
}

func newUserView(u *model.User) userView {
	return userView{
		ID:               u.ID,
		Email:            u.Email,
		Username:         u.Username,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Name:             u.Name,
		Bio:              u.Bio,
		HasPassword:      u.HasPassword(),
		GithubID:         u.GithubID,
		GoogleID:         u.GoogleID,
		IsAdmin:          u.IsAdmin(),
		IsMod:            u.IsMod(),
		IsContentManager: u.IsContentManager(),
		CreatedAt:        u.CreatedAt,
	}
}

// publicUserView is what other users may see.
type publicUserView struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Name      string `json:"name,omitempty"`
	Bio       string `json:"bio,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

func newPublicUserView(u *model.User) publicUserView {
	return publicUserView{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Name:      u.Name,
		Bio:       u.Bio,
		CreatedAt: u.CreatedAt,
	}
}

type apiKeyView struct {
	ID          string                   `json:"id"`
	Source      model.APIKeySource       `json:"source"`
	Permissions []model.APIKeyPermission `json:"permissions"`
	CreatedAt   int64                    `json:"created_at"`
	ExpiresAt   int64                    `json:"expires_at"`
}

func newAPIKeyView(k *model.APIKey) apiKeyView {
	return apiKeyView{
		ID:          k.ID,
		Source:      k.Source,
		Permissions: k.Permissions,
		CreatedAt:   k.CreatedAt,
		ExpiresAt:   k.ExpiresAt,
	}
}

// sessionResponse is returned by every login flow.
type sessionResponse struct {
	APIKey    string   `json:"api_key"`
	APIKeyID  string   `json:"api_key_id"`
	ExpiresAt int64    `json:"expires_at"`
	User      userView `json:"user"`
}
