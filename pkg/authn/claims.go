// Package authn validates bearer tokens against an OIDC issuer's JWKS
// and exposes the resulting claims to registry RPC handlers.
package authn

import "strings"

// Claims is the verified identity attached to a request once its
// bearer token has passed validation.
type Claims struct {
	Subject  string
	Issuer   string
	Audience []string
	Scope    string
}

// HasScope reports whether scope appears in the space-separated scope
// claim, matching the OAuth2 convention used by the token issuer.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range strings.Fields(c.Scope) {
		if s == scope {
			return true
		}
	}
	return false
}

// CanRead reports whether the claims carry scope, the single per-plane
// scope (archive, artifact) guarding that plane's RPCs. Claims hold no
// namespace, so the check does not depend on the namespace being
// accessed, and CanRead and CanWrite apply the same test: a token that
// carries the scope may read and write in every namespace.
func (c *Claims) CanRead(scope string) bool  { return c.HasScope(scope) }
func (c *Claims) CanWrite(scope string) bool { return c.HasScope(scope) }
