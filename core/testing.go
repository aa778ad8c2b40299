package core

import (
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stephnangue/edgegate/clock"
	"github.com/stephnangue/edgegate/config"
	"github.com/stephnangue/edgegate/logger"
	"github.com/stephnangue/edgegate/metrics"
	"github.com/stretchr/testify/require"
)

// TestSigningSecret is the signing secret of TestConfig.
const TestSigningSecret = "0123456789abcdef0123456789abcdef"

// TestConfig returns a finalized config routing /api/v1/<service> to each
// service of instances through a static resolver. extra is appended to the
// generated HCL and may override any block.
func TestConfig(tb testing.TB, instances map[string]string, extra string) *config.Config {
	tb.Helper()

	names := make([]string, 0, len(instances))
	for name := range instances {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "token {\n  signing_secret = %q\n}\n\n", TestSigningSecret)
	for _, name := range names {
		fmt.Fprintf(&b, "route %q {\n  service = %q\n}\n\n", "/api/v1/"+name, name)
	}
	b.WriteString("service_resolver \"static\" {\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  service %q {\n    instances = [%q]\n  }\n", name, instances[name])
	}
	b.WriteString("}\n\n")
	b.WriteString(extra)

	cfg, err := config.ParseConfig("test.hcl", []byte(b.String()))
	require.NoError(tb, err)
	return cfg
}

// TestCore builds a Core over cfg with a fake clock and an in-memory
// metrics registry. The core is shut down when the test ends.
func TestCore(tb testing.TB, cfg *config.Config, clk *clock.Fake) *Core {
	tb.Helper()
	if clk == nil {
		clk = clock.NewFake(time.Now())
	}

	reg, err := metrics.New("edgegate", 0, 0)
	require.NoError(tb, err)

	c, err := NewCore(&CoreConfig{
		RawConfig: cfg,
		Logger:    logger.NewNop(),
		Clock:     clk,
		Metrics:   reg,
	})
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = c.Shutdown() })
	return c
}
