package eventing

import (
	"context"

	"fieldops-cloud/internal/auth"
)

type envelopeKey struct{}

// WithEnvelope attaches envelope metadata to context.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, envelopeKey{}, env)
}

// EnvelopeFromContext returns envelope metadata if available.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	env, ok := ctx.Value(envelopeKey{}).(Envelope)
	return env, ok
}

// MetaFromContext builds metadata for an event published under ctx. The
// caller's tenant wins over the default; an envelope already in ctx (an event
// raised while handling another) lends its correlation id.
func MetaFromContext(ctx context.Context, defaultTenantID string) Meta {
	meta := Meta{TenantID: defaultTenantID}
	if tenantID := auth.TenantIDFromContext(ctx); tenantID != "" {
		meta.TenantID = tenantID
	}
	if parent, ok := EnvelopeFromContext(ctx); ok {
		meta.CorrelationID = parent.CorrelationID
		if meta.TenantID == "" {
			meta.TenantID = parent.TenantID
		}
	}
	return meta
}
