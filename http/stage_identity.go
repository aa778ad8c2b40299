package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/stephnangue/edgegate/logical"
)

// identityStage rewrites the outbound identity headers. Client supplied
// copies are always removed; only a verified principal puts them back.
func (g *gateway) identityStage(_ *http.Request, rc *logical.RequestContext) stageResult {
	out := rc.Outbound
	for _, h := range logical.IdentityHeaders {
		out.Del(h)
	}
	out.Set(logical.HeaderTraceID, rc.TraceID)

	// Infrastructure paths are forwarded as they came, credentials included.
	if rc.Bypass {
		return proceed()
	}
	out.Del("Authorization")

	p := rc.Principal
	switch {
	case p == nil:
	case p.IsGuest():
		out.Set(logical.HeaderGuestSessionID, p.SessionID)
	default:
		out.Set(logical.HeaderUserID, strconv.FormatInt(*p.UserID, 10))
		out.Set(logical.HeaderUserUsername, p.Username)
		out.Set(logical.HeaderUserEmail, p.Email)
		out.Set(logical.HeaderUserFirstName, p.FirstName)
		out.Set(logical.HeaderUserLastName, p.LastName)
		out.Set(logical.HeaderUserRoles, strings.Join(p.Roles, ","))
	}
	return proceed()
}
