package authcore

import "context"

type clientInfoContextKey struct{}
type actorContextKey struct{}

// WithClientInfo attaches request metadata to ctx. The engine uses it for
// device fingerprinting and for the source-IP field of audit entries.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoContextKey{}, info)
}

// WithActor attaches the authenticated caller's identity to ctx. Audit
// entries written without an actor fall back to "SYSTEM".
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func clientInfoFromContext(ctx context.Context) ClientInfo {
	if ctx == nil {
		return ClientInfo{}
	}
	info, _ := ctx.Value(clientInfoContextKey{}).(ClientInfo)
	return info
}

// clientIPFromContext resolves the source IP for audit entries. Background
// jobs without request context audit as "UNKNOWN".
func clientIPFromContext(ctx context.Context) string {
	ip := clientInfoFromContext(ctx).IP
	if ip == "" {
		return "UNKNOWN"
	}
	return ip
}

func actorFromContext(ctx context.Context) string {
	if ctx == nil {
		return "SYSTEM"
	}
	actor, _ := ctx.Value(actorContextKey{}).(string)
	if actor == "" {
		return "SYSTEM"
	}
	return actor
}
