package routes

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const routesConfig = `
auth_login_prefix = "/api/v1/usersv/auth"

token {
  signing_secret = "0123456789abcdef0123456789abcdef"
}

route "/api/v1/usersv" {
  service = "usersv"
}

route "/api/v1/ordersv" {
  service      = "ordersv"
  rewrite      = "replace"
  rewrite_from = "/api/v1/ordersv"
  rewrite_to   = "/orders-api"
}

route "/api/v1/usersv" {
  service = "legacy-usersv"
}

service_resolver "static" {
  service "usersv" {
    instances = ["http://127.0.0.1:9001"]
  }
  service "ordersv" {
    instances = ["http://127.0.0.1:9002"]
  }
  service "legacy-usersv" {
    instances = ["http://127.0.0.1:9003"]
  }
}
`

func TestRoutes_PrintsTableAndAllowlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edgegate.hcl")
	require.NoError(t, os.WriteFile(path, []byte(routesConfig), 0o600))

	var out bytes.Buffer
	RoutesCmd.SetOut(&out)
	RoutesCmd.SetArgs([]string{"--config", path})
	require.NoError(t, RoutesCmd.Execute())

	got := out.String()
	assert.Contains(t, got, "/api/v1/usersv")
	assert.Contains(t, got, "strip_prefix")
	assert.Contains(t, got, "replace(/api/v1/ordersv, /orders-api)")
	assert.Contains(t, got, "legacy-usersv", "shadowed route is listed")
	assert.Contains(t, got, "/api/v1/usersv/auth")
	assert.Contains(t, got, "/api/v1/ordersv/actuator/health")
	assert.Contains(t, got, "/swagger-ui")
}
