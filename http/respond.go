package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/stephnangue/edgegate/helper"
	"github.com/stephnangue/edgegate/logger"
	"github.com/stephnangue/edgegate/logical"
)

// maxRequestBody bounds the JSON bodies read by the gateway's own endpoints.
const maxRequestBody = 64 << 10

// applyResponseHeaders copies the headers collected by the stages onto w.
func applyResponseHeaders(w http.ResponseWriter, rc *logical.RequestContext) {
	if rc == nil {
		return
	}
	for k, v := range rc.ResponseHeader {
		w.Header()[k] = append([]string(nil), v...)
	}
}

// respondError writes the error envelope for err. Only the code and message
// of a CodedError reach the client; the cause is logged.
func (g *gateway) respondError(w http.ResponseWriter, rc *logical.RequestContext, err error) {
	coded := logical.AsCodedError(err)
	g.metrics.GatewayError(coded.Code)

	fields := []logger.Field{
		logger.String("code", coded.Code),
		logger.Int("status", coded.Status),
	}
	if rc != nil {
		fields = append(fields, logger.String("trace_id", rc.TraceID), logger.String("path", rc.Path))
	}
	if coded.Err != nil {
		fields = append(fields, logger.Err(coded.Err))
	}
	if coded.Status >= http.StatusInternalServerError {
		g.logger.Warn("gateway error", fields...)
	} else {
		g.logger.Debug("request rejected", fields...)
	}

	applyResponseHeaders(w, rc)
	helper.JSONResponse(w, coded.Status, logical.NewErrorEnvelope(coded, rc, g.clock.Now()))
}

// respondOk writes a JSON body with the collected response headers.
func (g *gateway) respondOk(w http.ResponseWriter, rc *logical.RequestContext, status int, data any) {
	applyResponseHeaders(w, rc)
	helper.JSONResponse(w, status, data)
}

// requestContext returns the RequestContext installed by the pipeline. A
// handler reached without one is a wiring bug.
func requestContext(r *http.Request) *logical.RequestContext {
	rc, ok := logical.FromContext(r.Context())
	if !ok {
		panic("request context missing from request")
	}
	return rc
}

type tokenRequest struct {
	Token string `json:"token"`
}

// tokenFromRequest returns the token from a {"token": "..."} body, falling
// back to the bearer token of the request. An empty body is not an error.
func tokenFromRequest(r *http.Request, rc *logical.RequestContext) (string, error) {
	if r.Body != nil && r.ContentLength != 0 {
		var body tokenRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return "", logical.ErrBadRequest("request body must be a JSON object").Wrap(err)
		}
		if t := strings.TrimSpace(body.Token); t != "" {
			return t, nil
		}
	}
	return rc.BearerToken, nil
}

// bearerToken extracts the credential of an "Authorization: Bearer" header.
func bearerToken(header string) string {
	scheme, credential, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(credential)
}

func serviceUnavailable(service string, cause error) *logical.CodedError {
	return logical.ErrServiceUnavailable(fmt.Sprintf("service %s is unavailable", service)).Wrap(cause)
}
