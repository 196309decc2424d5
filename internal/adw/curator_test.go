package adw

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotadb/kotadb/internal/agent"
	"github.com/kotadb/kotadb/internal/storage"
	"github.com/kotadb/kotadb/internal/wfcontext"
)

func newContexts(t *testing.T) *wfcontext.Store {
	t.Helper()

	s, err := storage.Open(storage.Options{Path: filepath.Join(t.TempDir(), "kota.db")})
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return wfcontext.New(s)
}

func TestCurate_StoresStructuredSummary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	contexts := newContexts(t)

	engine := agent.NewFakeEngine(agent.FakeResponse{
		Output:  `{"summary":"auth issue needs session expiry","relevantDecisions":["Use modular sessions"]}`,
		CostUSD: 0.01,
	})

	curator := NewCurator(engine, contexts, "", nil)

	cost, err := curator.Curate(ctx, "wf-1", PhaseAnalysis, "auth", "long analysis output")
	require.NoError(t, err)
	assert.InDelta(t, 0.01, cost, 1e-9)

	calls := engine.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, DefaultCuratorModel, calls[0].Model)
	assert.Contains(t, calls[0].AllowedTools, "search")
	assert.Contains(t, calls[0].AllowedTools, "search_dependencies")
	assert.Contains(t, calls[0].AllowedTools, "analyze_change_impact")
	assert.NotContains(t, calls[0].AllowedTools, "record_decision", "curator never writes memory")

	injection, err := curator.Injection(ctx, "wf-1", []string{PhaseAnalysis})
	require.NoError(t, err)
	assert.Contains(t, injection, "## Context from earlier phases")
	assert.Contains(t, injection, "auth issue needs session expiry")
	assert.Contains(t, injection, "- Use modular sessions")
}

func TestCurate_CodeFencedJSON(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	contexts := newContexts(t)

	engine := agent.NewFakeEngine(agent.FakeResponse{
		Output: "```json\n{\"summary\":\"fenced summary\"}\n```",
	})

	curator := NewCurator(engine, contexts, "", nil)

	_, err := curator.Curate(ctx, "wf-1", PhasePlan, "", "plan output")
	require.NoError(t, err)

	injection, err := curator.Injection(ctx, "wf-1", nil)
	require.NoError(t, err)
	assert.Contains(t, injection, "fenced summary")
	assert.NotContains(t, injection, "```")
}

func TestCurate_NonJSONFallsBackToRawSummary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	contexts := newContexts(t)

	engine := agent.NewFakeEngine(agent.FakeResponse{
		Output: "The analysis showed the login flow is the bottleneck.",
	})

	curator := NewCurator(engine, contexts, "", nil)

	_, err := curator.Curate(ctx, "wf-1", PhaseAnalysis, "", "output")
	require.NoError(t, err)

	injection, err := curator.Injection(ctx, "wf-1", nil)
	require.NoError(t, err)
	assert.Contains(t, injection, "login flow is the bottleneck")
}

func TestInjection_CappedAtMaxChars(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	contexts := newContexts(t)

	engine := agent.NewFakeEngine(agent.FakeResponse{
		Output: `{"summary":"` + strings.Repeat("x", 5000) + `"}`,
	})

	curator := NewCurator(engine, contexts, "", nil)

	_, err := curator.Curate(ctx, "wf-1", PhaseBuild, "", "output")
	require.NoError(t, err)

	injection, err := curator.Injection(ctx, "wf-1", nil)
	require.NoError(t, err)
	assert.Len(t, injection, MaxInjectionChars)
}

func TestInjection_EmptyWorkflow(t *testing.T) {
	t.Parallel()

	curator := NewCurator(agent.NewFakeEngine(), newContexts(t), "", nil)

	injection, err := curator.Injection(context.Background(), "wf-unknown", nil)
	require.NoError(t, err)
	assert.Empty(t, injection)
}
