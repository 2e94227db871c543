package authn

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	vorpalerrors "github.com/vorpalbuild/vorpal/pkg/errors"
)

type discoveryDoc struct {
	JWKSURI string `json:"jwks_uri"`
	Issuer  string `json:"issuer"`
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// OidcValidator verifies RS256 bearer tokens against an OIDC issuer's
// JWKS, with a single-shot refresh-and-retry on unknown kid — exactly
// the policy the spec's transport section mandates to avoid turning
// JWKS refresh into a DoS vector.
type OidcValidator struct {
	issuer      string
	expectedAud string
	jwksURI     string
	httpClient  *http.Client

	mu   sync.RWMutex
	jwks jwkSet
}

// NewOidcValidator performs discovery and an initial JWKS fetch.
func NewOidcValidator(ctx context.Context, issuer, expectedAud string) (*OidcValidator, error) {
	v := &OidcValidator{
		issuer:      issuer,
		expectedAud: expectedAud,
		httpClient:  http.DefaultClient,
	}

	doc, err := v.fetchDiscovery(ctx)
	if err != nil {
		return nil, err
	}
	if doc.Issuer != "" && doc.Issuer != issuer {
		return nil, vorpalerrors.Newf(vorpalerrors.ErrCodeInternal, "oidc discovery issuer mismatch: got %q want %q", doc.Issuer, issuer)
	}
	v.jwksURI = doc.JWKSURI

	set, err := v.fetchJWKS(ctx)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.jwks = *set
	v.mu.Unlock()

	return v, nil
}

func (v *OidcValidator) fetchDiscovery(ctx context.Context) (*discoveryDoc, error) {
	url := strings.TrimSuffix(v.issuer, "/") + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "build discovery request", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "fetch oidc discovery document", err)
	}
	defer resp.Body.Close()

	var doc discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "decode oidc discovery document", err)
	}
	return &doc, nil
}

func (v *OidcValidator) fetchJWKS(ctx context.Context) (*jwkSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURI, nil)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "build jwks request", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "fetch jwks", err)
	}
	defer resp.Body.Close()

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "decode jwks", err)
	}
	return &set, nil
}

// Validate strips the "Bearer " prefix from authHeader, verifies the
// JWT's signature and standard claims, and returns the resulting Claims.
func (v *OidcValidator) Validate(ctx context.Context, authHeader string) (*Claims, error) {
	if authHeader == "" {
		return nil, vorpalerrors.New(vorpalerrors.ErrCodeUnauthenticated, "missing authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return nil, vorpalerrors.New(vorpalerrors.ErrCodeUnauthenticated, "authorization header has an invalid scheme")
	}
	raw := strings.TrimPrefix(authHeader, prefix)

	claims, err := v.tryDecode(raw)
	if err == nil {
		return claims, nil
	}
	if _, unknown := asUnknownKid(err); !unknown {
		return nil, err
	}

	// Single-shot refresh-and-retry on unknown kid.
	set, ferr := v.fetchJWKS(ctx)
	if ferr != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeUnauthenticated, "refresh jwks", ferr)
	}
	v.mu.Lock()
	v.jwks = *set
	v.mu.Unlock()

	claims, err = v.tryDecode(raw)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeUnauthenticated, "token key not found after jwks refresh", err)
	}
	return claims, nil
}

type unknownKidError struct{ kid string }

func (e *unknownKidError) Error() string { return fmt.Sprintf("unknown kid %q", e.kid) }

func (v *OidcValidator) tryDecode(raw string) (*Claims, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		key := v.findKey(kid)
		if key == nil {
			return nil, &unknownKidError{kid: kid}
		}
		return key, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithIssuer(v.issuer), jwt.WithAudience(v.expectedAud))
	if err != nil {
		if uk, ok := asUnknownKid(err); ok {
			return nil, uk
		}
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeUnauthenticated, "invalid token", err)
	}
	if !token.Valid {
		return nil, vorpalerrors.New(vorpalerrors.ErrCodeUnauthenticated, "invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, vorpalerrors.New(vorpalerrors.ErrCodeUnauthenticated, "unexpected claims type")
	}

	c := &Claims{Issuer: v.issuer}
	if sub, ok := mapClaims["sub"].(string); ok {
		c.Subject = sub
	}
	if scope, ok := mapClaims["scope"].(string); ok {
		c.Scope = scope
	}
	switch aud := mapClaims["aud"].(type) {
	case string:
		c.Audience = []string{aud}
	case []interface{}:
		for _, a := range aud {
			if s, ok := a.(string); ok {
				c.Audience = append(c.Audience, s)
			}
		}
	}
	return c, nil
}

func asUnknownKid(err error) (*unknownKidError, bool) {
	var uk *unknownKidError
	if errors.As(err, &uk) {
		return uk, true
	}
	return nil, false
}

func (v *OidcValidator) findKey(kid string) interface{} {
	v.mu.RLock()
	defer v.mu.RUnlock()

	for _, k := range v.jwks.Keys {
		if k.Kid != kid || k.Kty != "RSA" {
			continue
		}
		return rsaPublicKeyFromJWK(k)
	}
	return nil
}

func rsaPublicKeyFromJWK(k jwk) *rsa.PublicKey {
	n := new(big.Int).SetBytes(base64urlDecode(k.N))
	e := new(big.Int).SetBytes(base64urlDecode(k.E))
	return &rsa.PublicKey{N: n, E: int(e.Int64())}
}

func base64urlDecode(s string) []byte {
	decoded, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return decoded
}
