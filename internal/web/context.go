package web

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/JonMunkholm/giisexport/internal/core"
)

// ActorHeader names the operator on whose behalf a request is made.
const ActorHeader = "X-Actor"

// WithRequestMetadata adds actor, IP and User-Agent to context for audit logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, clientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.Header.Get("User-Agent"))
	if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
		ctx = core.ContextWithActor(ctx, actor)
	}
	return ctx
}

// clientIP returns the host part of RemoteAddr, already rewritten by
// TrustedRealIP for requests from trusted proxies.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
