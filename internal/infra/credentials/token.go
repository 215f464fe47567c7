package credentials

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"patternsvc/internal/domain"
)

// CloudPlatformScope is the OAuth scope required by Vertex AI predict calls.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// TokenProvider yields a bearer token for outbound calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// ServiceAccount exchanges a service-account key for an access token. The key
// is parsed on every call so each request authenticates on its own.
type ServiceAccount struct {
	key        []byte
	scopes     []string
	httpClient *http.Client
}

// NewServiceAccount keeps the raw key and scopes; httpClient may be nil.
func NewServiceAccount(key []byte, httpClient *http.Client, scopes ...string) *ServiceAccount {
	if len(scopes) == 0 {
		scopes = []string{CloudPlatformScope}
	}
	return &ServiceAccount{
		key:        append([]byte(nil), key...),
		scopes:     scopes,
		httpClient: httpClient,
	}
}

// Fetch performs the JWT exchange and returns the full token.
func (s *ServiceAccount) Fetch(ctx context.Context) (*oauth2.Token, error) {
	if s == nil || len(s.key) == 0 {
		return nil, &domain.AuthError{Err: errors.New("service account credential is missing")}
	}
	cfg, err := google.JWTConfigFromJSON(s.key, s.scopes...)
	if err != nil {
		return nil, &domain.AuthError{Err: err}
	}
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	tok, err := cfg.TokenSource(ctx).Token()
	if err != nil {
		return nil, &domain.AuthError{Err: err}
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return nil, &domain.AuthError{Err: errors.New("token endpoint returned an empty access token")}
	}
	return tok, nil
}

// Token returns just the access token string.
func (s *ServiceAccount) Token(ctx context.Context) (string, error) {
	tok, err := s.Fetch(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Static returns a fixed token. Useful against emulators and in tests.
type Static string

func (s Static) Token(ctx context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", &domain.AuthError{Err: errors.New("static token is empty")}
	}
	return string(s), nil
}

var (
	_ TokenProvider = (*ServiceAccount)(nil)
	_ TokenProvider = Static("")
)
