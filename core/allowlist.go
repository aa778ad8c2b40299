package core

import (
	"sort"

	"github.com/armon/go-radix"
)

// defaultAllowlist holds the infrastructure paths that skip rate limiting,
// authentication and identity injection.
var defaultAllowlist = []string{
	"/actuator/health",
	"/actuator/info",
	"/swagger-ui",
	"/v3/api-docs",
	"/swagger-resources",
	"/webjars",
}

// perServiceAllowlist is appended to every route prefix.
var perServiceAllowlist = []string{
	"/v3/api-docs",
	"/actuator/health",
	"/actuator/info",
}

// Allowlist matches infrastructure paths by segment-aligned prefix.
type Allowlist struct {
	tree *radix.Tree
}

// NewAllowlist builds the allowlist from the fixed entries, the
// per-service entries of every route, the login prefix and extra.
func NewAllowlist(routes []Route, loginPrefix string, extra []string) *Allowlist {
	a := &Allowlist{tree: radix.New()}
	for _, p := range defaultAllowlist {
		a.add(p)
	}
	for _, r := range routes {
		for _, suffix := range perServiceAllowlist {
			if r.Prefix == "/" {
				a.add(suffix)
				continue
			}
			a.add(r.Prefix + suffix)
		}
	}
	if loginPrefix != "" {
		a.add(loginPrefix)
	}
	for _, p := range extra {
		if p != "" {
			a.add(p)
		}
	}
	return a
}

func (a *Allowlist) add(p string) {
	a.tree.Insert(NormalizePrefix(p), struct{}{})
}

// Contains reports whether path is an infrastructure path.
func (a *Allowlist) Contains(path string) bool {
	if a == nil {
		return false
	}
	_, _, ok := longestSegmentPrefix(a.tree, path)
	return ok
}

// Entries returns the allowlisted prefixes, sorted.
func (a *Allowlist) Entries() []string {
	out := make([]string, 0, a.tree.Len())
	a.tree.Walk(func(k string, _ any) bool {
		out = append(out, k)
		return false
	})
	sort.Strings(out)
	return out
}
