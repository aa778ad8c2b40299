package logical

import (
	"context"
	"net/http"
	"time"
)

// Identity headers set on outbound requests. Downstream services trust these
// only because the gateway strips client-supplied copies.
const (
	HeaderUserID         = "X-User-Id"
	HeaderUserUsername   = "X-User-Username"
	HeaderUserEmail      = "X-User-Email"
	HeaderUserFirstName  = "X-User-FirstName"
	HeaderUserLastName   = "X-User-LastName"
	HeaderUserRoles      = "X-User-Roles"
	HeaderGuestSessionID = "X-Guest-Session-Id"
	HeaderTraceID        = "X-Trace-Id"
)

// IdentityHeaders lists every header the gateway owns on outbound requests.
var IdentityHeaders = []string{
	HeaderUserID,
	HeaderUserUsername,
	HeaderUserEmail,
	HeaderUserFirstName,
	HeaderUserLastName,
	HeaderUserRoles,
	HeaderGuestSessionID,
}

// RequestContext is the per-request state built when the request enters the
// pipeline and mutated by each stage in order. It lives in the request
// context and is dropped once the response is sent.
type RequestContext struct {
	Method     string
	Path       string
	SourceAddr string
	TraceID    string

	// Principal is nil when no valid token was presented.
	Principal *Principal

	// BearerToken is the raw token from the Authorization header, if any.
	BearerToken string

	// Outbound is the header map forwarded downstream.
	Outbound http.Header

	// ResponseHeader collects headers added to the final response,
	// whether it comes from the gateway or from downstream.
	ResponseHeader http.Header

	// Bypass is set for infrastructure paths that skip rate limiting,
	// authentication and identity injection.
	Bypass bool

	StartedAt time.Time
}

// NewRequestContext builds a RequestContext from an inbound request. The
// outbound header map starts as a copy of the inbound one.
func NewRequestContext(r *http.Request, sourceAddr string, now time.Time) *RequestContext {
	return &RequestContext{
		Method:         r.Method,
		Path:           r.URL.Path,
		SourceAddr:     sourceAddr,
		Outbound:       r.Header.Clone(),
		ResponseHeader: make(http.Header),
		StartedAt:      now,
	}
}

type requestContextKey struct{}

// WithRequestContext returns ctx carrying rc.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the RequestContext carried by ctx.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok && rc != nil
}
