package core

import "context"

type flowCtxKey string

const (
	flowCtxKeyIPAddr    flowCtxKey = "phoneverify.ip_addr"
	flowCtxKeyUserAgent flowCtxKey = "phoneverify.user_agent"
)

// WithRequestOrigin annotates ctx so transitions triggered by the request
// carry the caller's address and user agent in their FlowEvents.
func WithRequestOrigin(ctx context.Context, ipAddr, userAgent string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if ipAddr != "" {
		ctx = context.WithValue(ctx, flowCtxKeyIPAddr, ipAddr)
	}
	if userAgent != "" {
		ctx = context.WithValue(ctx, flowCtxKeyUserAgent, userAgent)
	}
	return ctx
}

func originFromContext(ctx context.Context) (ip, ua *string) {
	if ctx == nil {
		return nil, nil
	}
	if s, ok := ctx.Value(flowCtxKeyIPAddr).(string); ok && s != "" {
		ip = &s
	}
	if s, ok := ctx.Value(flowCtxKeyUserAgent).(string); ok && s != "" {
		ua = &s
	}
	return ip, ua
}
