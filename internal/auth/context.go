// ABOUTME: Request context helpers for the authenticated principal
// ABOUTME: Anonymous requests carry no principal

package auth

import "context"

type principalKey struct{}

// WithPrincipal returns a context carrying principalID.
func WithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, principalKey{}, principalID)
}

// PrincipalFromContext returns the principal ID, or "" for anonymous requests.
func PrincipalFromContext(ctx context.Context) string {
	id, _ := ctx.Value(principalKey{}).(string)
	return id
}
