package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// Headers set by the agent layer on every tool call.
const (
	HeaderUserRoles   = "X-User-Roles"
	HeaderSourcesOnly = "X-Sources-Only"
)

type contextKey int

const (
	rolesKey contextKey = iota
	sourcesOnlyKey
)

// WithRoles returns ctx carrying the caller's roles.
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, rolesKey, roles)
}

// Roles returns the caller's roles, or nil when none were supplied.
func Roles(ctx context.Context) []string {
	roles, _ := ctx.Value(rolesKey).([]string)
	return roles
}

// WithSourcesOnly returns ctx carrying the sources-only flag.
func WithSourcesOnly(ctx context.Context, sourcesOnly bool) context.Context {
	return context.WithValue(ctx, sourcesOnlyKey, sourcesOnly)
}

// SourcesOnly reports whether results should omit content.
func SourcesOnly(ctx context.Context) bool {
	v, _ := ctx.Value(sourcesOnlyKey).(bool)
	return v
}

// ParseRoles decodes a JSON array of role names. Anything else yields no
// roles, which hides every document.
func ParseRoles(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	var roles []string
	if err := json.Unmarshal([]byte(header), &roles); err != nil {
		return nil
	}
	out := roles[:0]
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// ParseSourcesOnly accepts true, 1 or yes in any case.
func ParseSourcesOnly(header string) bool {
	switch strings.ToLower(strings.TrimSpace(header)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// HTTPContext copies the caller identity headers of r into ctx. It has the
// shape the streamable HTTP transport expects for its context hook.
func HTTPContext(ctx context.Context, r *http.Request) context.Context {
	ctx = WithRoles(ctx, ParseRoles(r.Header.Get(HeaderUserRoles)))
	return WithSourcesOnly(ctx, ParseSourcesOnly(r.Header.Get(HeaderSourcesOnly)))
}
