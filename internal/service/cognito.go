package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/robolist/robolist/internal/apperr"
	"github.com/robolist/robolist/internal/model"
)

// cognitoGroups maps Cognito groups to the permissions they grant.
var cognitoGroups = map[string]cognitoGrant{
	"www-admin":  {permission: model.PermissionAdmin},
	"www-mod":    {permission: model.PermissionMod},
	"www-cm":     {permission: model.PermissionContentManager},
	"www-upload": {scope: model.ScopeUpload},
	"www-test":   {scope: model.ScopeTest},
}

type cognitoGrant struct {
	permission model.UserPermission
	scope      model.Scope
}

// CognitoIdentity is the verified content of a Cognito access or id token.
type CognitoIdentity struct {
	Subject     string
	Email       string
	Groups      []string
	Permissions []model.UserPermission
	Scopes      []model.Scope
}

// CognitoVerifier validates Cognito RS256 tokens against the pool's JWKS.
type CognitoVerifier struct {
	jwks   *keyfunc.JWKS
	issuer string
}

// NewCognitoVerifier fetches the JWKS. It returns nil when jwksURL is empty.
func NewCognitoVerifier(ctx context.Context, jwksURL, issuer string) (*CognitoVerifier, error) {
	if jwksURL == "" {
		return nil, nil
	}

	options := keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			slog.Error("cognito jwks refresh error", "error", err)
		},
	}

	jwks, err := keyfunc.Get(jwksURL, options)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cognito jwks: %w", err)
	}

	return &CognitoVerifier{jwks: jwks, issuer: issuer}, nil
}

func (v *CognitoVerifier) Verify(raw string) (*CognitoIdentity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.NewParser(opts...).ParseWithClaims(raw, jwt.MapClaims{}, v.jwks.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("invalid cognito token: %w", apperr.ErrUnauthenticated)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid cognito token claims: %w", apperr.ErrUnauthenticated)
	}

	return identityFromClaims(claims)
}

// Close stops the background JWKS refresh.
func (v *CognitoVerifier) Close() {
	if v != nil && v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func identityFromClaims(claims jwt.MapClaims) (*CognitoIdentity, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("cognito token has no subject: %w", apperr.ErrUnauthenticated)
	}

	id := &CognitoIdentity{Subject: sub}
	id.Email, _ = claims["email"].(string)

	groups, _ := claims["cognito:groups"].([]any)
	for _, g := range groups {
		name, ok := g.(string)
		if !ok {
			continue
		}
		id.Groups = append(id.Groups, name)
		grant, ok := cognitoGroups[name]
		if !ok {
			continue
		}
		if grant.permission != "" {
			id.Permissions = append(id.Permissions, grant.permission)
		}
		if grant.scope != "" {
			id.Scopes = append(id.Scopes, grant.scope)
		}
	}
	return id, nil
}
