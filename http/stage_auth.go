package http

import (
	"net/http"

	"github.com/stephnangue/edgegate/auth/token"
	"github.com/stephnangue/edgegate/helper"
	"github.com/stephnangue/edgegate/logger"
	"github.com/stephnangue/edgegate/logical"
)

// authStage attaches the principal of a valid bearer token. An invalid,
// expired or revoked token never rejects the request: it continues without
// a principal and downstream services decide. A guest token also needs a
// live guest session, and using it counts as session activity.
func (g *gateway) authStage(_ *http.Request, rc *logical.RequestContext) stageResult {
	if rc.Bypass || rc.BearerToken == "" {
		return proceed()
	}

	_, principal, err := g.core.Codec().Authenticate(rc.BearerToken)
	if err != nil {
		g.rejectToken(rc, token.Reason(err), err)
		return proceed()
	}

	if principal.IsGuest() {
		if _, ok := g.core.Guests().Touch(principal.SessionID); !ok {
			g.rejectToken(rc, "guest_session", nil)
			return proceed()
		}
	}

	rc.Principal = principal
	return proceed()
}

func (g *gateway) rejectToken(rc *logical.RequestContext, reason string, err error) {
	g.metrics.TokenRejected(reason)

	fields := []logger.Field{
		logger.String("trace_id", rc.TraceID),
		logger.String("reason", reason),
		logger.String("token_fingerprint", helper.Get8BytesHash(rc.BearerToken)),
	}
	if err != nil {
		fields = append(fields, logger.Err(err))
	}
	g.logger.Debug("bearer token ignored", fields...)
}
