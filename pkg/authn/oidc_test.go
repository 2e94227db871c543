package authn

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// jwksHandler is swappable so tests can simulate a JWKS rotation between
// the validator's initial fetch and its single-shot refresh.
type jwksHandler struct {
	serve func(w http.ResponseWriter, r *http.Request)
}

func startOidcServer(t *testing.T, key *rsa.PrivateKey, kid string) (*httptest.Server, *jwksHandler) {
	mux := http.NewServeMux()
	var issuer string
	handler := &jwksHandler{}
	handler.serve = func(w http.ResponseWriter, r *http.Request) {
		writeJWKS(w, key, kid)
	}

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":   issuer,
			"jwks_uri": issuer + "/jwks.json",
		})
	})
	mux.HandleFunc("/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		handler.serve(w, r)
	})

	srv := httptest.NewServer(mux)
	issuer = srv.URL
	return srv, handler
}

func writeJWKS(w http.ResponseWriter, key *rsa.PrivateKey, kid string) {
	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(bigIntBytes(key.PublicKey.E))
	json.NewEncoder(w).Encode(map[string]interface{}{
		"keys": []map[string]string{
			{"kid": kid, "kty": "RSA", "alg": "RS256", "n": n, "e": e},
		},
	})
}

func bigIntBytes(e int) []byte {
	// Standard RSA public exponent 65537 = 0x010001.
	if e == 65537 {
		return []byte{0x01, 0x00, 0x01}
	}
	return []byte{byte(e)}
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid, issuer, aud, sub string) string {
	claims := jwt.MapClaims{
		"sub":   sub,
		"iss":   issuer,
		"aud":   aud,
		"scope": "archive artifact",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"nbf":   time.Now().Add(-time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestOidcValidatorAcceptsValidToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv, _ := startOidcServer(t, key, "key-1")
	defer srv.Close()

	validator, err := NewOidcValidator(context.Background(), srv.URL, "vorpal-worker")
	require.NoError(t, err)

	token := signToken(t, key, "key-1", srv.URL, "vorpal-worker", "worker-1")
	claims, err := validator.Validate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	require.Equal(t, "worker-1", claims.Subject)
	require.True(t, claims.HasScope("archive"))
}

func TestOidcValidatorRejectsMissingHeader(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv, _ := startOidcServer(t, key, "key-1")
	defer srv.Close()

	validator, err := NewOidcValidator(context.Background(), srv.URL, "vorpal-worker")
	require.NoError(t, err)

	_, err = validator.Validate(context.Background(), "")
	require.Error(t, err)
}

func TestOidcValidatorRefreshesOnceForUnknownKid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv, handler := startOidcServer(t, key, "key-1")
	defer srv.Close()

	validator, err := NewOidcValidator(context.Background(), srv.URL, "vorpal-worker")
	require.NoError(t, err)

	// Rotate to a new key the validator hasn't seen yet; signing with it
	// simulates a token issued after a JWKS rotation. Swapping the
	// handler after construction models the registry observing the
	// rotation only on its single-shot refresh.
	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	handler.serve = func(w http.ResponseWriter, r *http.Request) {
		writeJWKS(w, newKey, "key-2")
	}

	token := signToken(t, newKey, "key-2", srv.URL, "vorpal-worker", "worker-2")
	claims, err := validator.Validate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	require.Equal(t, "worker-2", claims.Subject)
}
