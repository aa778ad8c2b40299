package http

import (
	"net/http"

	"github.com/stephnangue/edgegate/logger"
	"github.com/stephnangue/edgegate/logical"
)

// metricsRole is the role required to read /gateway/metrics.
const metricsRole = "ADMIN"

// handleTokenRevoke revokes the presented token until it would expire. A
// revoked guest token also ends its guest session.
func (g *gateway) handleTokenRevoke(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)

	raw, err := tokenFromRequest(r, rc)
	if err != nil {
		g.respondError(w, rc, err)
		return
	}
	if raw == "" {
		g.respondError(w, rc, logical.ErrUnauthorized("bearer token required"))
		return
	}

	claims, err := g.core.Codec().Revoke(raw)
	if err != nil {
		g.respondError(w, rc, logical.ErrUnauthorized("invalid token").Wrap(err))
		return
	}
	if claims.IsGuest {
		sessionID := claims.SessionID
		if sessionID == "" {
			sessionID = claims.Subject
		}
		g.core.Guests().Remove(sessionID)
	}

	g.metrics.TokenRevoked()
	g.logger.Info("token revoked",
		logger.String("trace_id", rc.TraceID),
		logger.String("token_id", claims.ID),
		logger.Bool("guest", claims.IsGuest),
	)
	g.respondOk(w, rc, http.StatusOK, logical.RevokeResponse{
		Revoked:   true,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	})
}

// handleMetrics returns the in-memory metrics summary to administrators.
func (g *gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)

	switch {
	case rc.Principal == nil || rc.Principal.IsGuest():
		g.respondError(w, rc, logical.ErrUnauthorized("authentication required"))
		return
	case !rc.Principal.HasRole(metricsRole):
		g.respondError(w, rc, logical.ErrForbidden("insufficient role"))
		return
	}

	data, err := g.metrics.Display(w, r)
	if err != nil {
		g.respondError(w, rc, err)
		return
	}
	g.respondOk(w, rc, http.StatusOK, data)
}
