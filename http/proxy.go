package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"github.com/stephnangue/edgegate/core"
	"github.com/stephnangue/edgegate/logger"
	"github.com/stephnangue/edgegate/logical"
)

// proxy forwards requests to the instance chosen for their route. It never
// retries: a failed connect is answered with BAD_GATEWAY.
type proxy struct {
	g  *gateway
	rp *httputil.ReverseProxy
}

type upstreamKey struct{}

// upstreamCall is the per-request state shared between ServeHTTP and the
// ReverseProxy callbacks.
type upstreamCall struct {
	target  *core.Target
	url     *url.URL
	started time.Time
}

func newProxy(g *gateway) *proxy {
	p := &proxy{g: g}

	p.rp = &httputil.ReverseProxy{
		Rewrite:        p.rewrite,
		Transport:      cleanhttp.DefaultPooledTransport(),
		FlushInterval:  -1,
		ModifyResponse: p.modifyResponse,
		ErrorHandler:   p.errorHandler,
		ErrorLog:       logger.NewStdLogger(g.logger.WithSubsystem("proxy"), logger.WarnLevel),
	}
	return p
}

func (p *proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)

	target, err := p.g.core.Lookup(r.Context(), r.URL.Path)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrNoRoute):
			if p.serveGatewayProbe(w, r, rc) {
				return
			}
			p.g.respondError(w, rc, logical.ErrNotFoundf("no route for %s", r.URL.Path).Wrap(err))
		default:
			service := ""
			if route, ok := p.g.core.Routes().Match(r.URL.Path); ok {
				service = route.Service
			}
			p.g.respondError(w, rc, serviceUnavailable(service, err))
		}
		return
	}

	u, err := url.Parse(target.Instance)
	if err != nil {
		p.g.respondError(w, rc, logical.ErrBadGateway("invalid upstream instance").Wrap(err))
		return
	}

	ctx := r.Context()
	if timeout := p.g.core.RequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	call := &upstreamCall{target: target, url: u, started: p.g.clock.Now()}
	ctx = context.WithValue(ctx, upstreamKey{}, call)

	p.rp.ServeHTTP(w, r.WithContext(ctx))
}

func callFromContext(ctx context.Context) *upstreamCall {
	call, _ := ctx.Value(upstreamKey{}).(*upstreamCall)
	return call
}

func (p *proxy) rewrite(pr *httputil.ProxyRequest) {
	call := callFromContext(pr.In.Context())
	pr.SetURL(call.url)
	pr.Out.URL.Path, pr.Out.URL.RawPath = forwardPath(call.target, pr.In.URL)
	pr.SetXForwarded()

	// RealIP leaves a bare address in RemoteAddr, which SetXForwarded
	// cannot parse; forward the chain the front proxy sent instead.
	if _, ok := pr.Out.Header["X-Forwarded-For"]; !ok {
		if prior := pr.In.Header.Values("X-Forwarded-For"); len(prior) > 0 {
			pr.Out.Header.Set("X-Forwarded-For", strings.Join(prior, ", "))
		} else {
			pr.Out.Header.Set("X-Forwarded-For", requestContext(pr.In).SourceAddr)
		}
	}
}

// modifyResponse keeps identity headers from leaking back to the client and
// leaves X-Trace-Id to the gateway.
func (p *proxy) modifyResponse(resp *http.Response) error {
	for _, h := range logical.IdentityHeaders {
		resp.Header.Del(h)
	}
	resp.Header.Del(logical.HeaderTraceID)

	if call := callFromContext(resp.Request.Context()); call != nil {
		p.g.metrics.UpstreamResponse(call.target.Route.Service, resp.StatusCode, call.started)
	}
	return nil
}

func (p *proxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	rc := requestContext(r)
	call := callFromContext(r.Context())

	fields := []logger.Field{
		logger.String("trace_id", rc.TraceID),
		logger.Err(err),
	}
	if call != nil {
		fields = append(fields,
			logger.String("service", call.target.Route.Service),
			logger.String("instance", call.target.Instance),
		)
	}

	var coded *logical.CodedError
	switch {
	case errors.Is(r.Context().Err(), context.Canceled):
		// The client went away; there is nobody to answer.
		p.g.logger.Debug("client disconnected before upstream responded", fields...)
		return
	case errors.Is(r.Context().Err(), context.DeadlineExceeded):
		coded = logical.ErrUpstreamTimeout("upstream request timed out")
	default:
		// Dial timeouts land here: they are connect failures.
		coded = logical.ErrBadGateway("upstream connection failed")
	}

	p.g.logger.Warn("upstream request failed", fields...)
	p.g.respondError(w, rc, coded.Wrap(err))
}

// forwardPath returns the rewritten path and, when the client sent an
// encoding net/url would not reproduce (such as %2F), its escaped form.
func forwardPath(target *core.Target, in *url.URL) (string, string) {
	if in.RawPath == "" {
		return target.Path, ""
	}
	escaped := target.Route.Rewrite.Apply(target.Route.Prefix, in.EscapedPath())
	if unescaped, err := url.PathUnescape(escaped); err != nil || unescaped != target.Path {
		return target.Path, ""
	}
	return target.Path, escaped
}

// serveGatewayProbe answers the gateway's own health and info probes when
// no route claims those paths.
func (p *proxy) serveGatewayProbe(w http.ResponseWriter, r *http.Request, rc *logical.RequestContext) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	switch r.URL.Path {
	case "/actuator/health":
		p.g.respondOk(w, rc, http.StatusOK, map[string]string{"status": "UP"})
	case "/actuator/info":
		p.g.respondOk(w, rc, http.StatusOK, map[string]any{
			"app": map[string]any{
				"name":   "edgegate",
				"routes": len(p.g.core.Routes().Routes()),
			},
		})
	default:
		return false
	}
	return true
}
