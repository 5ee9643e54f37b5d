package model

import (
	"slices"
	"time"
)

type UserPermission string

const (
	PermissionAdmin          UserPermission = "is_admin"
	PermissionMod            UserPermission = "is_mod"
	PermissionContentManager UserPermission = "is_content_manager"
	PermissionVerifiedMember UserPermission = "is_verified_member"
)

type User struct {
	ID           string           `json:"id" dynamodbav:"id"`
	Email        string           `json:"email" dynamodbav:"email"`
	Username     string           `json:"username" dynamodbav:"username"`
	PasswordHash string           `json:"password_hash,omitempty" dynamodbav:"password_hash,omitempty"` // Empty for OAuth-only users
	Permissions  []UserPermission `json:"permissions,omitempty" dynamodbav:"permissions,omitempty"`
	CreatedAt    int64            `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt    int64            `json:"updated_at" dynamodbav:"updated_at"`
	GithubID     string           `json:"github_id,omitempty" dynamodbav:"github_id,omitempty"`
	GoogleID     string           `json:"google_id,omitempty" dynamodbav:"google_id,omitempty"`
	FirstName    string           `json:"first_name,omitempty" dynamodbav:"first_name,omitempty"`
	LastName     string           `json:"last_name,omitempty" dynamodbav:"last_name,omitempty"`
	Name         string           `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Bio          string           `json:"bio,omitempty" dynamodbav:"bio,omitempty"`
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

func (u *User) Has(p UserPermission) bool {
	return slices.Contains(u.Permissions, p)
}

func (u *User) IsAdmin() bool {
	return u.Has(PermissionAdmin)
}

func (u *User) IsMod() bool {
	return u.Has(PermissionMod)
}

func (u *User) IsContentManager() bool {
	return u.IsAdmin() || u.Has(PermissionContentManager)
}

// WithPermission returns the permission set with p added or removed.
func (u *User) WithPermission(p UserPermission, on bool) []UserPermission {
	out := slices.DeleteFunc(slices.Clone(u.Permissions), func(x UserPermission) bool { return x == p })
	if on {
		out = append(out, p)
	}
	return out
}

type APIKeySource string

const (
	APIKeySourceUser     APIKeySource = "user"
	APIKeySourceOAuth    APIKeySource = "oauth"
	APIKeySourcePassword APIKeySource = "password"
)

type APIKeyPermission string

const (
	APIKeyRead  APIKeyPermission = "read"
	APIKeyWrite APIKeyPermission = "write"
	APIKeyAdmin APIKeyPermission = "admin"
)

// FullAccess is the permission set granted to interactive logins.
var FullAccess = []APIKeyPermission{APIKeyRead, APIKeyWrite, APIKeyAdmin}

type APIKey struct {
	ID          string             `json:"id" dynamodbav:"id"`
	UserID      string             `json:"user_id" dynamodbav:"user_id"`
	Source      APIKeySource       `json:"source" dynamodbav:"source"`
	Permissions []APIKeyPermission `json:"permissions,omitempty" dynamodbav:"permissions,omitempty"`
	ExpiresAt   int64              `json:"expires_at,omitempty" dynamodbav:"expires_at,omitempty"`
	CreatedAt   int64              `json:"created_at" dynamodbav:"created_at"`
}

func (k *APIKey) IsExpired() bool {
	return k.ExpiresAt != 0 && time.Now().Unix() >= k.ExpiresAt
}

func (k *APIKey) Allows(p APIKeyPermission) bool {
	return slices.Contains(k.Permissions, p)
}

// OAuthKey links a provider identity to a user. UserToken is "github:{id}" or
// "google:{email}" and is unique across the table.
type OAuthKey struct {
	ID        string `json:"id" dynamodbav:"id"`
	UserID    string `json:"user_id" dynamodbav:"user_id"`
	Provider  string `json:"provider" dynamodbav:"provider"`
	UserToken string `json:"user_token" dynamodbav:"user_token"`
}
