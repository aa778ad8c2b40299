package http

import (
	"net"
	"net/http"
	"path"
	"runtime/debug"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stephnangue/edgegate/helper"
	"github.com/stephnangue/edgegate/logger"
	"github.com/stephnangue/edgegate/logical"
)

// maxTraceIDLength bounds a client supplied X-Trace-Id.
const maxTraceIDLength = 128

// stageResult is the outcome of one pipeline stage. The zero value lets the
// request continue; reject answers with a coded error; err aborts the
// request with INTERNAL_ERROR.
type stageResult struct {
	reject *logical.CodedError
	err    error
}

func proceed() stageResult { return stageResult{} }

func rejectWith(e *logical.CodedError) stageResult { return stageResult{reject: e} }

func fail(err error) stageResult { return stageResult{err: err} }

// stage inspects and mutates the request context. Stages never write to the
// response; the pipeline is the only place a rejection becomes a response.
type stage struct {
	name string
	run  func(r *http.Request, rc *logical.RequestContext) stageResult
}

// pipeline runs the rate limit, auth and identity stages in order and then
// hands the request, with the outbound headers in place, to next.
func (g *gateway) pipeline(next http.Handler) http.Handler {
	stages := []stage{
		{name: "ratelimit", run: g.rateLimitStage},
		{name: "auth", run: g.authStage},
		{name: "identity", run: g.identityStage},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = withCleanPath(r)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		rc := g.newRequestContext(r)

		defer func() {
			v := recover()
			if v != nil && v != http.ErrAbortHandler {
				g.logger.Error("panic in request pipeline",
					logger.String("trace_id", rc.TraceID),
					logger.String("path", rc.Path),
					logger.Any("panic", v),
					logger.String("stack", string(debug.Stack())),
				)
				if ww.Status() == 0 {
					g.respondError(ww, rc, logical.ErrInternal("internal error"))
				}
			}
			g.logAccess(rc, ww)
			if v == http.ErrAbortHandler {
				panic(v)
			}
		}()

		for _, s := range stages {
			res := s.run(r, rc)
			if res.reject != nil {
				g.respondError(ww, rc, res.reject)
				return
			}
			if res.err != nil {
				g.logger.Error("pipeline stage failed",
					logger.String("stage", s.name),
					logger.String("trace_id", rc.TraceID),
					logger.Err(res.err),
				)
				g.respondError(ww, rc, logical.ErrInternal("internal error").Wrap(res.err))
				return
			}
		}

		out := r.WithContext(logical.WithRequestContext(r.Context(), rc))
		out.Header = rc.Outbound
		applyResponseHeaders(ww, rc)
		next.ServeHTTP(ww, out)
	})
}

func (g *gateway) newRequestContext(r *http.Request) *logical.RequestContext {
	rc := logical.NewRequestContext(r, sourceAddr(r), g.clock.Now())
	rc.TraceID = r.Header.Get(logical.HeaderTraceID)
	if rc.TraceID == "" || len(rc.TraceID) > maxTraceIDLength {
		rc.TraceID = helper.GenerateTraceID()
	}
	rc.ResponseHeader.Set(logical.HeaderTraceID, rc.TraceID)
	rc.BearerToken = bearerToken(r.Header.Get("Authorization"))
	rc.Bypass = g.core.Allowlist().Contains(rc.Path)
	return rc
}

// withCleanPath returns r with dot segments and duplicate slashes removed
// from its path. Allowlist checks, route matching and forwarding all see the
// same canonical path, so "/svc/actuator/health/../../orders" is never taken
// for an infrastructure path.
func withCleanPath(r *http.Request) *http.Request {
	clean := cleanPath(r.URL.Path)
	if clean == r.URL.Path {
		return r
	}
	r2 := new(http.Request)
	*r2 = *r
	u := *r.URL
	u.Path = clean
	if u.RawPath != "" {
		// EscapedPath drops RawPath when it no longer encodes Path.
		u.RawPath = cleanPath(u.RawPath)
	}
	r2.URL = &u
	return r2
}

// cleanPath is path.Clean rooted at "/" that keeps a trailing slash.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	np := path.Clean(p)
	if strings.HasSuffix(p, "/") && np != "/" {
		np += "/"
	}
	return np
}

// sourceAddr returns the host part of the connection's remote address,
// which RealIP has already replaced when forwarded headers are trusted.
func sourceAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (g *gateway) logAccess(rc *logical.RequestContext, ww middleware.WrapResponseWriter) {
	fields := []logger.Field{
		logger.String("trace_id", rc.TraceID),
		logger.String("method", rc.Method),
		logger.String("path", rc.Path),
		logger.String("source", rc.SourceAddr),
		logger.Int("status", ww.Status()),
		logger.Int("bytes", ww.BytesWritten()),
		logger.Duration("duration", g.clock.Now().Sub(rc.StartedAt)),
	}
	if rc.Principal != nil {
		fields = append(fields, logger.Bool("guest", rc.Principal.IsGuest()))
	}
	g.logger.Info("request", fields...)
}
