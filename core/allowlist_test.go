package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowlist_Contains(t *testing.T) {
	routes := []Route{
		{Prefix: "/api/v1/usersv", Service: "usersv"},
		{Prefix: "/api/v1/productsv", Service: "productsv"},
	}
	a := NewAllowlist(routes, "/api/v1/usersv/auth", []string{"/status/"})

	allowed := []string{
		"/actuator/health",
		"/actuator/health/liveness",
		"/swagger-ui/index.html",
		"/v3/api-docs",
		"/swagger-resources/configuration/ui",
		"/webjars/swagger-ui/bundle.js",
		"/api/v1/usersv/v3/api-docs",
		"/api/v1/productsv/actuator/health",
		"/api/v1/productsv/actuator/info",
		"/api/v1/usersv/auth/login",
		"/status",
	}
	for _, p := range allowed {
		assert.True(t, a.Contains(p), p)
	}

	denied := []string{
		"/api/v1/usersv/profile",
		"/actuator/healthz",
		"/api/v1/usersv/authx",
		"/api/v1/ordersv/actuator/health",
		"/",
	}
	for _, p := range denied {
		assert.False(t, a.Contains(p), p)
	}
}

func TestAllowlist_NilAndEntries(t *testing.T) {
	var a *Allowlist
	assert.False(t, a.Contains("/actuator/health"))

	a = NewAllowlist(nil, "", nil)
	entries := a.Entries()
	assert.Equal(t, []string{
		"/actuator/health",
		"/actuator/info",
		"/swagger-resources",
		"/swagger-ui",
		"/v3/api-docs",
		"/webjars",
	}, entries)
}
