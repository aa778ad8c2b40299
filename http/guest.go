package http

import (
	"net/http"

	"github.com/stephnangue/edgegate/logger"
	"github.com/stephnangue/edgegate/logical"
)

const tokenTypeBearer = "Bearer"

// handleGuestSession allocates a guest session and returns its token.
func (g *gateway) handleGuestSession(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)

	sess, err := g.core.Guests().Create()
	if err != nil {
		g.respondError(w, rc, err)
		return
	}
	raw, claims, err := g.core.Codec().IssueGuest(sess.ID)
	if err != nil {
		g.core.Guests().Remove(sess.ID)
		g.respondError(w, rc, err)
		return
	}

	g.metrics.GuestSessionCreated()
	g.logger.Debug("guest session created",
		logger.String("trace_id", rc.TraceID),
		logger.String("session_id", sess.ID),
	)
	g.respondOk(w, rc, http.StatusCreated, logical.GuestSessionResponse{
		Token:     raw,
		SessionID: sess.ID,
		ExpiresAt: claims.ExpiresAt.Time,
		TokenType: tokenTypeBearer,
	})
}

// handleGuestRefresh exchanges a valid guest token, whose session is still
// alive, for a new token with a later expiry.
func (g *gateway) handleGuestRefresh(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)

	raw, err := tokenFromRequest(r, rc)
	if err != nil {
		g.respondError(w, rc, err)
		return
	}
	if raw == "" {
		g.respondError(w, rc, logical.ErrUnauthorized("guest token required"))
		return
	}

	_, principal, err := g.core.Codec().Authenticate(raw)
	if err != nil || !principal.IsGuest() {
		g.respondError(w, rc, logical.ErrUnauthorized("invalid guest token").Wrap(err))
		return
	}
	if _, ok := g.core.Guests().Touch(principal.SessionID); !ok {
		g.respondError(w, rc, logical.ErrUnauthorized("guest session expired"))
		return
	}

	refreshed, claims, err := g.core.Codec().RefreshGuest(raw)
	if err != nil {
		g.respondError(w, rc, logical.ErrUnauthorized("invalid guest token").Wrap(err))
		return
	}
	g.respondOk(w, rc, http.StatusOK, logical.GuestSessionResponse{
		Token:     refreshed,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
		TokenType: tokenTypeBearer,
	})
}

// handleGuestValidate reports whether a token is currently valid. A guest
// token is valid only while its session is; validating it counts as
// activity and the reported expiry is the extended session expiry.
func (g *gateway) handleGuestValidate(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)

	raw, err := tokenFromRequest(r, rc)
	if err != nil {
		g.respondError(w, rc, err)
		return
	}
	if raw == "" {
		g.respondError(w, rc, logical.ErrBadRequest("token is required"))
		return
	}

	claims, principal, err := g.core.Codec().Authenticate(raw)
	if err != nil {
		g.respondOk(w, rc, http.StatusOK, logical.TokenValidationResponse{Valid: false})
		return
	}

	expiresAt := claims.ExpiresAt.Time
	if principal.IsGuest() {
		sess, ok := g.core.Guests().Touch(principal.SessionID)
		if !ok {
			g.respondOk(w, rc, http.StatusOK, logical.TokenValidationResponse{Valid: false})
			return
		}
		expiresAt = sess.ExpiresAt
	}
	g.respondOk(w, rc, http.StatusOK, logical.TokenValidationResponse{
		Valid:     true,
		SessionID: principal.SessionID,
		ExpiresAt: &expiresAt,
	})
}

// handleGuestInfo returns the session metadata of the guest principal
// authenticated by the pipeline.
func (g *gateway) handleGuestInfo(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)

	if rc.Principal == nil || !rc.Principal.IsGuest() {
		g.respondError(w, rc, logical.ErrUnauthorized("valid guest token required"))
		return
	}
	sess, ok := g.core.Guests().Info(rc.Principal.SessionID)
	if !ok {
		g.respondError(w, rc, logical.ErrNotFound("guest session not found"))
		return
	}
	g.respondOk(w, rc, http.StatusOK, logical.GuestSessionInfo{
		SessionID:      sess.ID,
		CreatedAt:      sess.CreatedAt,
		LastActivityAt: sess.LastActivityAt,
		ExpiresAt:      sess.ExpiresAt,
	})
}
