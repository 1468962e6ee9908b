package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/batchgate/internal/core"
)

// withRequestMetadata copies the client address and User-Agent into ctx
// for the service's download logs.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithClientIP(ctx, clientIP(r))
	return core.ContextWithUserAgent(ctx, r.UserAgent())
}

// clientIP returns the request's remote host without port. RemoteAddr has
// already been rewritten by TrustedRealIP when behind a trusted proxy.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
