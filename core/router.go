package core

import (
	"fmt"
	"strings"

	"github.com/armon/go-radix"
)

// RewriteKind selects how a matched path is rewritten before forwarding.
type RewriteKind int

const (
	RewriteStripPrefix RewriteKind = iota
	RewriteKeep
	RewriteReplace
)

func (k RewriteKind) String() string {
	switch k {
	case RewriteKeep:
		return "keep"
	case RewriteReplace:
		return "replace"
	default:
		return "strip_prefix"
	}
}

// Rewrite is the rewrite rule of a route.
type Rewrite struct {
	Kind RewriteKind
	From string
	To   string
}

// ParseRewrite builds a Rewrite from its config name. An empty name is
// strip_prefix.
func ParseRewrite(kind, from, to string) (Rewrite, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "strip_prefix":
		return Rewrite{Kind: RewriteStripPrefix}, nil
	case "keep":
		return Rewrite{Kind: RewriteKeep}, nil
	case "replace":
		if from == "" {
			return Rewrite{}, fmt.Errorf("replace rewrite requires a non-empty from")
		}
		return Rewrite{Kind: RewriteReplace, From: from, To: to}, nil
	default:
		return Rewrite{}, fmt.Errorf("unknown rewrite %q", kind)
	}
}

func (rw Rewrite) String() string {
	if rw.Kind == RewriteReplace {
		return fmt.Sprintf("replace(%s, %s)", rw.From, rw.To)
	}
	return rw.Kind.String()
}

// Apply rewrites path, which matched prefix.
func (rw Rewrite) Apply(prefix, path string) string {
	var out string
	switch rw.Kind {
	case RewriteKeep:
		return path
	case RewriteReplace:
		if !strings.HasPrefix(path, rw.From) {
			return path
		}
		out = rw.To + strings.TrimPrefix(path, rw.From)
	default:
		if prefix == "/" {
			return path
		}
		out = strings.TrimPrefix(path, prefix)
	}
	if !strings.HasPrefix(out, "/") {
		out = "/" + out
	}
	return out
}

// Route maps a path prefix to a logical service.
type Route struct {
	Prefix  string
	Service string
	Rewrite Rewrite
}

// RouteTable resolves request paths to routes by longest segment-aligned
// prefix. It is immutable once built.
type RouteTable struct {
	tree     *radix.Tree // prefix -> Route
	routes   []Route
	shadowed []Route
}

// NormalizePrefix trims trailing slashes and ensures a leading one.
func NormalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if trimmed := strings.TrimRight(prefix, "/"); trimmed != "" {
		return trimmed
	}
	return "/"
}

// NewRouteTable builds a table from routes in declaration order. When two
// routes declare the same prefix the first one wins; the others are
// reported by Shadowed.
func NewRouteTable(routes []Route) (*RouteTable, error) {
	t := &RouteTable{tree: radix.New()}
	for i, r := range routes {
		if r.Service == "" {
			return nil, fmt.Errorf("route %d (%s): service is required", i, r.Prefix)
		}
		r.Prefix = NormalizePrefix(r.Prefix)
		if _, exists := t.tree.Get(r.Prefix); exists {
			t.shadowed = append(t.shadowed, r)
			continue
		}
		t.tree.Insert(r.Prefix, r)
		t.routes = append(t.routes, r)
	}
	return t, nil
}

// Match returns the route for path.
func (t *RouteTable) Match(path string) (Route, bool) {
	_, v, ok := longestSegmentPrefix(t.tree, path)
	if !ok {
		return Route{}, false
	}
	return v.(Route), true
}

// Routes returns the effective routes in declaration order.
func (t *RouteTable) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

// Shadowed returns routes dropped because an earlier route declared the
// same prefix.
func (t *RouteTable) Shadowed() []Route {
	return append([]Route(nil), t.shadowed...)
}

// Services returns the distinct services referenced by the table.
func (t *RouteTable) Services() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range t.routes {
		if _, ok := seen[r.Service]; ok {
			continue
		}
		seen[r.Service] = struct{}{}
		out = append(out, r.Service)
	}
	return out
}

// longestSegmentPrefix finds the longest key in tree that is a prefix of
// path ending on a segment boundary, so /api/v1/users does not match
// /api/v1/usersv.
func longestSegmentPrefix(tree *radix.Tree, path string) (string, any, bool) {
	var (
		key   string
		value any
		found bool
	)
	tree.WalkPath(path, func(k string, v any) bool {
		if segmentAligned(k, path) {
			key, value, found = k, v, true
		}
		return false
	})
	return key, value, found
}

func segmentAligned(prefix, path string) bool {
	if len(prefix) == len(path) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}
