package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/kotadb/kotadb/internal/observability"
)

func TestInit_DisabledProvidersAreNoops(t *testing.T) {
	p, err := observability.Init(observability.Config{ServiceName: "kotadb"})
	require.NoError(t, err)

	assert.NotNil(t, p.Tracer)
	assert.NotNil(t, p.Meter)
	assert.NotNil(t, p.Logger)
	assert.Nil(t, p.Registry, "no Prometheus registry without metrics")

	// Instruments still work against the noop meter.
	red, err := observability.NewREDMetrics(p.Meter)
	require.NoError(t, err)
	red.RecordRequest(context.Background(), "search_code", "ok", 5*time.Millisecond)

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_MetricsEnabled(t *testing.T) {
	p, err := observability.Init(observability.Config{
		ServiceName:    "kotadb",
		MetricsEnabled: true,
	})
	require.NoError(t, err)
	require.NotNil(t, p.Registry)

	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	red, err := observability.NewREDMetrics(p.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	red.RecordRequest(ctx, "search_code", "ok", 120*time.Millisecond)
	red.RecordRequest(ctx, "search_code", "error", 5*time.Millisecond)

	done := red.TrackInflight(ctx, "search_code")
	done()

	families, err := p.Registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	found := false

	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "kotadb_") {
			found = true
		}
	}

	assert.True(t, found, "RED instruments export under the kotadb_ prefix")
}

func spanContext(t *testing.T) context.Context {
	t.Helper()

	tid, err := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	sid, err := trace.SpanIDFromHex("0123456789abcdef")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
	})

	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestTracingHandler_InjectsTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(observability.NewTracingHandler(inner, "kotadb", "test"))

	logger.InfoContext(spanContext(t), "indexed", "files", 3)

	out := buf.String()
	assert.Contains(t, out, `"trace_id":"0123456789abcdef0123456789abcdef"`)
	assert.Contains(t, out, `"span_id":"0123456789abcdef"`)
	assert.Contains(t, out, `"service":"kotadb"`)
	assert.Contains(t, out, `"env":"test"`)
	assert.Contains(t, out, `"files":3`)
}

func TestTracingHandler_NoSpanNoTraceAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(observability.NewTracingHandler(inner, "kotadb", ""))

	logger.Info("plain record")

	out := buf.String()
	assert.NotContains(t, out, "trace_id")
	assert.NotContains(t, out, `"env"`)
	assert.Contains(t, out, `"service":"kotadb"`)
}

func TestTracingHandler_ServiceAttrsSurviveGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(observability.NewTracingHandler(inner, "kotadb", "")).WithGroup("tool")

	logger.Info("called", "name", "search_code")

	out := buf.String()
	assert.Contains(t, out, `"service":"kotadb"`, "service stays top-level")
	assert.Contains(t, out, `"tool":{"name":"search_code"}`)
}
