package shared

import "context"

// Principal describes the authenticated actor resolved from a bearer token.
type Principal struct {
	UserID   string
	TenantID string
}

type principalContextKey struct{}

type previewContextKey struct{}

type requestIDContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

// ContextWithPreviewMode marks the request as preview-only.
func ContextWithPreviewMode(ctx context.Context, preview bool) context.Context {
	return context.WithValue(ctx, previewContextKey{}, preview)
}

// PreviewModeFromContext reports whether the request runs in preview mode.
// Preview requests must not produce durable side effects.
func PreviewModeFromContext(ctx context.Context) bool {
	preview, _ := ctx.Value(previewContextKey{}).(bool)
	return preview
}

// ContextWithRequestID stores the request correlation ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext extracts the request correlation ID, empty when unset.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
