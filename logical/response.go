package logical

import "time"

// ErrorEnvelope is the body of every gateway-originated error.
type ErrorEnvelope struct {
	Success   bool   `json:"success"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	TraceID   string `json:"traceId"`
	Path      string `json:"path"`
	Method    string `json:"method"`
	Timestamp string `json:"timestamp"`
}

// NewErrorEnvelope builds the envelope for err. rc may be nil when the
// failure happened before the request context existed.
func NewErrorEnvelope(err *CodedError, rc *RequestContext, now time.Time) ErrorEnvelope {
	env := ErrorEnvelope{
		Success:   false,
		Code:      err.Code,
		Message:   err.Message,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if rc != nil {
		env.TraceID = rc.TraceID
		env.Path = rc.Path
		env.Method = rc.Method
	}
	return env
}

// GuestSessionResponse is returned when a guest session is allocated or its
// token refreshed.
type GuestSessionResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
	TokenType string    `json:"tokenType"`
}

// TokenValidationResponse reports the validity of a supplied token. Only
// Valid is set when the token is not valid.
type TokenValidationResponse struct {
	Valid     bool       `json:"valid"`
	SessionID string     `json:"sessionId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// GuestSessionInfo is the metadata snapshot of a guest session.
type GuestSessionInfo struct {
	SessionID      string    `json:"sessionId"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// RevokeResponse reports a successful token revocation.
type RevokeResponse struct {
	Revoked   bool      `json:"revoked"`
	TokenID   string    `json:"tokenId"`
	ExpiresAt time.Time `json:"expiresAt"`
}
