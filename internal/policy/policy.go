// Package policy resolves which tools an agent turn may use, combining the
// session's autonomy level with routing-decision and runtime exclusions.
package policy

import "strings"

// Level is a session's autonomy level, controlling which tool categories
// are available without explicit approval.
type Level string

const (
	LevelReadonly   Level = "readonly"
	LevelSupervised Level = "supervised"
	LevelFull       Level = "full"
)

// Policy describes the tool restrictions in effect for one agent turn.
type Policy struct {
	// Level is the session's autonomy level.
	Level Level
	// Exclude lists additional tool names/patterns to exclude, typically
	// sourced from a routing decision's ToolExclude.
	Exclude []string
	// MeshEnabled controls whether the cross-agent "mesh" tool is available.
	MeshEnabled bool
}

// NormalizeTool lower-cases and trims a tool name for pattern comparison.
func NormalizeTool(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Resolver evaluates tool names against a Policy.
type Resolver struct{}

// NewResolver creates a policy resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// CanonicalName returns the comparison form of a tool name.
func (r *Resolver) CanonicalName(name string) string {
	return NormalizeTool(name)
}

// IsAllowed reports whether toolName may run under p. A nil policy allows
// everything.
func (r *Resolver) IsAllowed(p *Policy, toolName string) bool {
	if p == nil {
		return true
	}
	name := r.CanonicalName(toolName)
	for _, pattern := range BuildExclusions(p) {
		if matchToolPattern(NormalizeTool(pattern), name) {
			return false
		}
	}
	return true
}

// readonlyExcluded are tools unavailable once a session is downgraded to
// read-only autonomy.
var readonlyExcluded = []string{"bash", "file_write", "file_edit", "delegate", "browser"}

// alwaysExcluded are tools never granted directly to an agent turn,
// regardless of autonomy level.
var alwaysExcluded = []string{"delegate", "browser"}

// BuildExclusions computes the full set of excluded tool patterns for a
// policy: autonomy-level restrictions, always-excluded tools, the policy's
// own Exclude list, and the mesh tool when mesh is disabled.
func BuildExclusions(p *Policy) []string {
	if p == nil {
		return nil
	}
	excluded := make([]string, 0, len(readonlyExcluded)+len(alwaysExcluded)+len(p.Exclude)+1)
	if p.Level == LevelReadonly {
		excluded = append(excluded, readonlyExcluded...)
	}
	excluded = append(excluded, alwaysExcluded...)
	excluded = append(excluded, p.Exclude...)
	if !p.MeshEnabled {
		excluded = append(excluded, "mesh")
	}
	return dedupe(excluded)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func matchToolPattern(pattern, name string) bool {
	if pattern == "" || name == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if pattern == "mcp:*" {
		return strings.HasPrefix(name, "mcp:")
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(name, strings.TrimPrefix(pattern, "*"))
	}
	return pattern == name
}
