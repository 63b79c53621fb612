package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// StaticToken wraps a pre-issued bearer token. A blank token yields nil so
// requests report ErrAuthenticationRequired.
func StaticToken(token string) oauth2.TokenSource {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

// ClientCredentials configures a machine token scoped to an audience.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Audience     string
	Scopes       []string
}

// TokenSource returns a caching token source for the client-credentials flow.
func (c ClientCredentials) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.TokenURL) == "" {
		return nil, fmt.Errorf("%w: client id and token url are required", ErrInvalidConfig)
	}
	cfg := clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}
	if aud := strings.TrimSpace(c.Audience); aud != "" {
		cfg.EndpointParams = url.Values{"audience": {aud}}
	}
	return cfg.TokenSource(ctx), nil
}

// Session describes the identity carried by the bearer token.
type Session struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
}

// Expired reports whether the token has expired at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// ParseSession reads the registered claims of a JWT without verifying its
// signature. The backend verifies tokens; the client only displays them.
func ParseSession(token string) (Session, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Session{}, fmt.Errorf("parse token claims: %w", err)
	}
	out := Session{
		Subject:  claims.Subject,
		Issuer:   claims.Issuer,
		Audience: []string(claims.Audience),
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
