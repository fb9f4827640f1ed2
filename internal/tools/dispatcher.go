// Package tools exposes the feature service as named procedures that take a
// JSON object of arguments and return a JSON result. Agents call them through
// `forgeq call` or by embedding a Dispatcher. Every call yields a structured
// result; failures become {"error", "kind"[, "index"]}.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/service"
	logpkg "github.com/rzbill/forgeq/pkg/log"
)

// MaxArgsSize limits the argument document.
const MaxArgsSize = 1 << 20

// Handler runs one tool against decoded arguments.
type Handler func(ctx context.Context, svc *service.Service, args json.RawMessage) (any, error)

// Tool describes a registered procedure.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	handler     Handler
}

// ErrorResult is the result of a failed call.
type ErrorResult struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Index *int   `json:"index,omitempty"`
}

// Dispatcher routes tool calls to the service.
type Dispatcher struct {
	svc    *service.Service
	tools  map[string]Tool
	logger logpkg.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l logpkg.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher registers the built-in tools on svc.
func NewDispatcher(svc *service.Service, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{svc: svc, tools: make(map[string]Tool), logger: logpkg.NewNopLogger()}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(logpkg.Component("tools"))
	for _, t := range builtins() {
		d.tools[t.Name] = t
	}
	return d
}

// Tools returns the registered tools sorted by name.
func (d *Dispatcher) Tools() []Tool {
	out := make([]Tool, 0, len(d.tools))
	for _, t := range d.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke runs a tool and returns its typed result.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args json.RawMessage) (any, error) {
	t, ok := d.tools[name]
	if !ok {
		return nil, feature.Errf("call", 0, feature.ErrInvalidRequest, "unknown tool %q", name)
	}
	if len(args) > MaxArgsSize {
		return nil, feature.Errf(name, 0, feature.ErrInvalidRequest, "arguments exceed %d bytes", MaxArgsSize)
	}
	start := time.Now()
	res, err := t.handler(ctx, d.svc, args)
	d.logger.Debug("tool called", logpkg.Str("tool", name), logpkg.Duration("elapsed", time.Since(start)), logpkg.Bool("ok", err == nil))
	return res, err
}

// Call runs a tool and always returns a JSON document: the result, or an
// ErrorResult.
func (d *Dispatcher) Call(ctx context.Context, name string, args json.RawMessage) json.RawMessage {
	res, err := d.Invoke(ctx, name, args)
	if err != nil {
		res = ToErrorResult(err)
	}
	b, err := json.Marshal(res)
	if err != nil {
		b, _ = json.Marshal(ToErrorResult(feature.StoreFailure(name, fmt.Errorf("encode result: %w", err))))
	}
	return b
}

// ToErrorResult maps err to its structured form.
func ToErrorResult(err error) ErrorResult {
	out := ErrorResult{Error: err.Error(), Kind: feature.KindOf(err)}
	if i, ok := feature.IndexOf(err); ok {
		out.Index = &i
	}
	return out
}

// handle adapts a typed function into a Handler: arguments are decoded into A
// and checked against its validate tags first.
func handle[A any](fn func(ctx context.Context, svc *service.Service, args A) (any, error)) Handler {
	return func(ctx context.Context, svc *service.Service, raw json.RawMessage) (any, error) {
		var args A
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			if err := json.Unmarshal(trimmed, &args); err != nil {
				return nil, feature.Errf("arguments", 0, feature.ErrInvalidRequest, "invalid arguments: %v", err)
			}
		}
		if err := feature.Validator().Struct(args); err != nil {
			return nil, feature.Errf("arguments", 0, feature.ErrInvalidRequest, "%s", feature.DescribeValidation(err))
		}
		return fn(ctx, svc, args)
	}
}
