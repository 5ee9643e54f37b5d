package model

import "slices"

// Scope is a capability granted to an authenticated request.
type Scope string

const (
	ScopeRead   Scope = "read"
	ScopeWrite  Scope = "write"
	ScopeAdmin  Scope = "admin"
	ScopeUpload Scope = "upload"
	ScopeTest   Scope = "test"
)

// Principal is the resolved caller of a request.
type Principal struct {
	User     *User
	APIKeyID string // Empty for identity provider tokens
	Scopes   []Scope
}

// Can reports whether the principal holds s. Admin users hold every scope;
// write and upload imply each other.
func (p *Principal) Can(s Scope) bool {
	if p == nil {
		return false
	}
	if (p.User != nil && p.User.IsAdmin()) || slices.Contains(p.Scopes, s) {
		return true
	}
	switch s {
	case ScopeUpload:
		return slices.Contains(p.Scopes, ScopeWrite)
	case ScopeWrite:
		return slices.Contains(p.Scopes, ScopeUpload)
	case ScopeRead:
		return len(p.Scopes) > 0
	}
	return false
}

// ScopesFor maps API key permissions to request scopes.
func ScopesFor(perms []APIKeyPermission) []Scope {
	scopes := make([]Scope, 0, len(perms))
	for _, p := range perms {
		scopes = append(scopes, Scope(p))
	}
	return scopes
}
