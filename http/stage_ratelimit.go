package http

import (
	"net/http"
	"strconv"

	"github.com/stephnangue/edgegate/auth/token"
	"github.com/stephnangue/edgegate/logger"
	"github.com/stephnangue/edgegate/logical"
	"github.com/stephnangue/edgegate/ratelimit"
)

const (
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// rateLimitStage consumes one token from the source address bucket and,
// when the bearer token names a user, from that user's bucket. It runs
// before authentication so a flooding address never reaches signature
// verification. The user id is read without verification and only picks a
// bucket.
func (g *gateway) rateLimitStage(_ *http.Request, rc *logical.RequestContext) stageResult {
	if rc.Bypass || !g.core.RateLimitEnabled() {
		return proceed()
	}

	d := g.core.IPLimiter().Consume(rc.SourceAddr, 1)
	remaining := d.Remaining
	if !d.Consumed {
		return g.refuse(rc, "ip", d, remaining)
	}

	if rc.BearerToken != "" {
		if uid, ok := token.PeekUserID(rc.BearerToken); ok {
			d = g.core.UserLimiter().Consume(strconv.FormatInt(uid, 10), 1)
			remaining = min(remaining, d.Remaining)
			if !d.Consumed {
				return g.refuse(rc, "user", d, remaining)
			}
		}
	}

	rc.ResponseHeader.Set(HeaderRateLimitRemaining, strconv.Itoa(remaining))
	return proceed()
}

func (g *gateway) refuse(rc *logical.RequestContext, scope string, d ratelimit.Decision, remaining int) stageResult {
	retryAfter := d.RetryAfter()
	reset := g.clock.Now().Add(retryAfter)

	rc.ResponseHeader.Set(HeaderRateLimitRemaining, strconv.Itoa(remaining))
	rc.ResponseHeader.Set(HeaderRetryAfter, strconv.Itoa(int(retryAfter.Seconds())))
	rc.ResponseHeader.Set(HeaderRateLimitReset, strconv.FormatInt(reset.Unix(), 10))

	g.metrics.RateLimited(scope)
	g.logger.Debug("rate limit exceeded",
		logger.String("trace_id", rc.TraceID),
		logger.String("scope", scope),
		logger.String("source", rc.SourceAddr),
		logger.Int64("wait_nanos", d.WaitNanos),
	)
	return rejectWith(logical.ErrRateLimited("rate limit exceeded"))
}
