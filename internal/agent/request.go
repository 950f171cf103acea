package agent

import (
	"context"

	"github.com/google/uuid"
)

type requestKey struct{}

type requestInfo struct {
	platform string
	id       string
}

// NewRequestContext tags ctx with the originating platform and a fresh
// request ID used to correlate log lines
func NewRequestContext(ctx context.Context, platform string) context.Context {
	return context.WithValue(ctx, requestKey{}, requestInfo{
		platform: platform,
		id:       uuid.NewString()[:8],
	})
}

// PlatformFrom returns the platform stored by NewRequestContext
func PlatformFrom(ctx context.Context) string {
	if info, ok := ctx.Value(requestKey{}).(requestInfo); ok {
		return info.platform
	}
	return ""
}

// RequestIDFrom returns the request ID stored by NewRequestContext, or "-"
func RequestIDFrom(ctx context.Context) string {
	if info, ok := ctx.Value(requestKey{}).(requestInfo); ok {
		return info.id
	}
	return "-"
}
