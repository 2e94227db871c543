package authn

import (
	"context"

	"golang.org/x/oauth2/clientcredentials"
)

// ServiceCredentials exchanges OAuth2 client-credentials tokens for the
// worker's downstream registry calls, one bearer token per scope
// (archive, artifact), as the spec's transport section requires.
type ServiceCredentials struct {
	cfg clientcredentials.Config
}

// NewServiceCredentials builds a credential source for issuer/clientID/secret.
// If issuer is empty, service-to-service auth is disabled and BearerToken
// returns an empty string (unauthenticated downstream calls).
func NewServiceCredentials(issuer, clientID, clientSecret string) *ServiceCredentials {
	if issuer == "" {
		return &ServiceCredentials{}
	}
	return &ServiceCredentials{cfg: clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     issuer + "/oauth2/token",
	}}
}

// BearerToken obtains a bearer token scoped to scope, or "" if
// service-to-service auth is not configured.
func (s *ServiceCredentials) BearerToken(ctx context.Context, scope string) (string, error) {
	if s.cfg.TokenURL == "" {
		return "", nil
	}
	cfg := s.cfg
	cfg.Scopes = []string{scope}
	token, err := cfg.Token(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}
