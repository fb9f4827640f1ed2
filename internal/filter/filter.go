// Package filter compiles CEL expressions that select features, for example
//
//	category == "auth" && priority < 10
//	status == "pending" && size(dependencies) == 0
//	name.startsWith("api") || "db" in steps
package filter

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/forgeq/internal/feature"
)

// Filter wraps a compiled CEL program. The zero Filter matches everything.
type Filter struct {
	expr    string
	prog    cel.Program
	enabled bool
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("id", cel.IntType),
		cel.Variable("priority", cel.IntType),
		cel.Variable("category", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("steps", cel.ListType(cel.StringType)),
		cel.Variable("passes", cel.BoolType),
		cel.Variable("in_progress", cel.BoolType),
		cel.Variable("dependencies", cel.ListType(cel.IntType)),
		// Derived state: done, blocked, in_progress or pending.
		cel.Variable("status", cel.StringType),
	)
}

// Compile parses and type-checks expr. An empty expression yields a Filter
// that matches every feature.
func Compile(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := newEnv()
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, feature.Errf("filter", 0, feature.ErrInvalidRequest, "invalid filter: %v", iss.Err())
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, feature.Errf("filter", 0, feature.ErrInvalidRequest, "invalid filter: %v", iss2.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return Filter{}, feature.Errf("filter", 0, feature.ErrInvalidRequest,
			"filter must be a boolean expression, got %s", checked.OutputType())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, fmt.Errorf("build filter program: %w", err)
	}
	return Filter{expr: expr, prog: prog, enabled: true}, nil
}

// Enabled reports whether the filter holds an expression.
func (f Filter) Enabled() bool { return f.enabled }

// String returns the source expression.
func (f Filter) String() string { return f.expr }

// Match evaluates the filter against f with its derived status. Evaluation
// errors (a missing list index, say) count as no match.
func (f Filter) Match(feat feature.Feature, status feature.Status) bool {
	if !f.enabled {
		return true
	}
	steps := feat.Steps
	if steps == nil {
		steps = []string{}
	}
	deps := feat.Dependencies
	if deps == nil {
		deps = []int64{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":           feat.ID,
		"priority":     feat.Priority,
		"category":     feat.Category,
		"name":         feat.Name,
		"description":  feat.Description,
		"steps":        steps,
		"passes":       feat.Passes,
		"in_progress":  feat.InProgress,
		"dependencies": deps,
		"status":       string(status),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// Apply returns the features of fs that match, preserving order. statusOf
// supplies each feature's derived status.
func (f Filter) Apply(fs []feature.Feature, statusOf func(feature.Feature) feature.Status) []feature.Feature {
	if !f.enabled {
		return fs
	}
	out := make([]feature.Feature, 0, len(fs))
	for _, feat := range fs {
		if f.Match(feat, statusOf(feat)) {
			out = append(out, feat)
		}
	}
	return out
}
