// Package tools implements the fixed tool catalog: named operations with
// JSON-schema validated inputs, tier-based visibility and a dispatcher
// shared by the MCP server and the CLI.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Tiers group tools by capability.
const (
	TierCore      = "core"
	TierSync      = "sync"
	TierMemory    = "memory"
	TierExpertise = "expertise"
)

// Toolsets select which tiers a caller sees.
const (
	ToolsetCore    = "core"
	ToolsetDefault = "default"
	ToolsetMemory  = "memory"
	ToolsetFull    = "full"
)

// toolsetTiers maps each toolset onto the tiers it exposes.
var toolsetTiers = map[string]map[string]bool{
	ToolsetCore:    {TierCore: true},
	ToolsetDefault: {TierCore: true, TierSync: true},
	ToolsetMemory:  {TierCore: true, TierSync: true, TierMemory: true},
	ToolsetFull:    {TierCore: true, TierSync: true, TierMemory: true, TierExpertise: true},
}

// Sentinel errors for the dispatch layer.
var (
	ErrInvalidParams  = errors.New("invalid params")
	ErrUnknownTool    = errors.New("unknown tool")
	ErrUnknownToolset = errors.New("unknown toolset")
)

// Handler executes one tool call against validated arguments.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool is one catalog entry.
type Tool struct {
	Name        string
	Description string
	Tier        string
	Schema      string

	compiled *gojsonschema.Schema
	handler  Handler
}

// Registry holds the catalog and dispatches calls.
type Registry struct {
	tools  map[string]*Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{tools: make(map[string]*Tool), logger: logger}
}

// Register compiles the tool's schema and adds it to the catalog.
func (r *Registry) Register(t *Tool, handler Handler) error {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(t.Schema))
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", t.Name, err)
	}

	t.compiled = compiled
	t.handler = handler

	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)

	return nil
}

// List returns the tools visible to a toolset, in registration order.
func (r *Registry) List(toolset string) ([]*Tool, error) {
	tiers, ok := toolsetTiers[toolset]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownToolset, toolset)
	}

	var out []*Tool

	for _, name := range r.order {
		t := r.tools[name]
		if tiers[t.Tier] {
			out = append(out, t)
		}
	}

	return out, nil
}

// Names returns the sorted names visible to a toolset.
func (r *Registry) Names(toolset string) ([]string, error) {
	list, err := r.List(toolset)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(list))
	for _, t := range list {
		names = append(names, t.Name)
	}

	sort.Strings(names)

	return names, nil
}

// Call validates args against the tool's schema and runs the handler. Tools
// hidden from the toolset are rejected as unknown.
func (r *Registry) Call(ctx context.Context, toolset, name string, args json.RawMessage) (any, error) {
	tiers, ok := toolsetTiers[toolset]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownToolset, toolset)
	}

	t, ok := r.tools[name]
	if !ok || !tiers[t.Tier] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	err := validateArgs(t, args)
	if err != nil {
		return nil, err
	}

	return t.handler(ctx, args)
}

// validateArgs runs the compiled schema and folds violations into one
// InvalidParams error with a message per rule.
func validateArgs(t *Tool, args json.RawMessage) error {
	result, err := t.compiled.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidParams, t.Name, err)
	}

	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		msgs = append(msgs, re.String())
	}

	return fmt.Errorf("%w: %s: %s", ErrInvalidParams, t.Name, strings.Join(msgs, "; "))
}

// decode unmarshals validated args into a typed input struct.
func decode[T any](args json.RawMessage) (T, error) {
	var in T

	err := json.Unmarshal(args, &in)
	if err != nil {
		var zero T

		return zero, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	return in, nil
}
