// Package mcp exposes the tool catalog as a Model Context Protocol server
// over stdio transport.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kotadb/kotadb/internal/observability"
	"github.com/kotadb/kotadb/internal/tools"
)

const (
	serverName = "kotadb"

	mcpSpanPrefix  = "mcp."
	traceIDMetaKey = "trace_id"
)

// ServerDeps holds injectable dependencies for the MCP server. Zero-value
// fields use production defaults.
type ServerDeps struct {
	// Registry is the tool catalog to expose.
	Registry *tools.Registry

	// Toolset selects which catalog tiers are visible.
	Toolset string

	// Version is the reported server version.
	Version string

	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Metrics is an optional RED metrics recorder. Nil disables per-tool
	// metrics.
	Metrics *observability.REDMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil
	// disables tracing.
	Tracer trace.Tracer
}

// Server wraps the MCP SDK server with the catalog registrations.
type Server struct {
	inner   *mcpsdk.Server
	logger  *slog.Logger
	metrics *observability.REDMetrics
	tracer  trace.Tracer

	mu    sync.RWMutex
	names []string
}

// NewServer creates an MCP server with the toolset's catalog registered.
func NewServer(deps ServerDeps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if deps.Toolset == "" {
		deps.Toolset = tools.ToolsetDefault
	}

	opts := &mcpsdk.ServerOptions{Logger: logger}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: deps.Version,
		},
		opts,
	)

	srv := &Server{
		inner:   inner,
		logger:  logger,
		metrics: deps.Metrics,
		tracer:  deps.Tracer,
	}

	err := srv.registerTools(deps.Registry, deps.Toolset)
	if err != nil {
		return nil, err
	}

	return srv, nil
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.names))
	copy(names, s.names)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	err := s.inner.Run(ctx, &mcpsdk.StdioTransport{})
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// RunWithTransport starts the MCP server on the given transport.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// registerTools adds every catalog tool visible to the toolset.
func (s *Server) registerTools(registry *tools.Registry, toolset string) error {
	list, err := registry.List(toolset)
	if err != nil {
		return err
	}

	for _, t := range list {
		var schema jsonschema.Schema

		err = json.Unmarshal([]byte(t.Schema), &schema)
		if err != nil {
			return fmt.Errorf("parse schema for %s: %w", t.Name, err)
		}

		name := t.Name

		handler := func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			result, callErr := registry.Call(ctx, toolset, name, req.Params.Arguments)
			if callErr != nil {
				return toolError(callErr), nil
			}

			return jsonResult(result)
		}

		s.inner.AddTool(&mcpsdk.Tool{
			Name:        name,
			Description: t.Description,
			InputSchema: &schema,
		}, mcpsdk.ToolHandler(withMetrics(s.metrics, name, withTracing(s.tracer, name, handler))))

		s.trackTool(name)
	}

	return nil
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.names = append(s.names, name)
}

// toolError converts an internal error into an MCP error result without
// leaking internals beyond the message.
func toolError(err error) *mcpsdk.CallToolResult {
	payload := map[string]any{"error": err.Error()}

	if errors.Is(err, tools.ErrInvalidParams) {
		payload["kind"] = "invalid_params"
	}

	data, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		data = []byte(`{"error":"internal error"}`)
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
		IsError: true,
	}
}

// jsonResult wraps a tool result as a single JSON text content block.
func jsonResult(value any) (*mcpsdk.CallToolResult, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return toolError(fmt.Errorf("encode result: %w", err)), nil
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil
}

// toolHandler is the raw SDK handler shape shared by the middleware.
type toolHandler func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error)

// withTracing wraps a tool handler to create an OTel span per invocation and
// include trace_id in the response content when sampled.
func withTracing(tracer trace.Tracer, toolName string, handler toolHandler) toolHandler {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, err := handler(ctx, req)

		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, err
	}
}

// withMetrics wraps a tool handler to record RED metrics per invocation.
func withMetrics(metrics *observability.REDMetrics, toolName string, handler toolHandler) toolHandler {
	if metrics == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		start := time.Now()

		decInflight := metrics.TrackInflight(ctx, mcpSpanPrefix+toolName)
		defer decInflight()

		result, err := handler(ctx, req)

		status := "ok"
		if err != nil || (result != nil && result.IsError) {
			status = "error"
		}

		metrics.RecordRequest(ctx, mcpSpanPrefix+toolName, status, time.Since(start))

		return result, err
	}
}
