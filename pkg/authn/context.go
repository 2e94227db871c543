package authn

import "context"

type claimsKey struct{}

// ContextWithClaims attaches verified claims to ctx, set by the gRPC
// server's auth interceptor once a bearer token has been validated.
func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims attached by the auth
// interceptor, if any. Requests carrying no bearer token at all reach
// handlers with ok == false, which registry handlers treat as
// permitted per the namespace ACL model's unauthenticated default.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}
