package adw

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kotadb/kotadb/internal/agent"
	"github.com/kotadb/kotadb/internal/wfcontext"
)

// Curation limits.
const (
	// MaxInjectionChars caps the curated context injected into a phase
	// prompt.
	MaxInjectionChars = 2000

	// maxSummaryTokens is the budget the curator prompt asks for.
	maxSummaryTokens = 500

	defaultCuratorTimeout = 3 * time.Minute
)

// DefaultCuratorModel is the cheap model used for curation.
const DefaultCuratorModel = "claude-3-5-haiku-latest"

// curatorTools is the scoped tool set the curator may call: memory reads
// plus code intelligence, no writes.
var curatorTools = []string{
	"search",
	"search_dependencies",
	"analyze_change_impact",
	"get_recent_patterns",
	"get_domain_key_files",
	"generate_task_context",
}

// CuratedContext is the structured summary stored between phases.
type CuratedContext struct {
	Summary           string   `json:"summary"`
	RelevantFailures  []string `json:"relevantFailures,omitempty"`
	RelevantPatterns  []string `json:"relevantPatterns,omitempty"`
	RelevantDecisions []string `json:"relevantDecisions,omitempty"`
	CodeIntelligence  []string `json:"codeIntelligence,omitempty"`
}

// Curator distills a finished phase's output into compact context for the
// next phase.
type Curator struct {
	engine   agent.Engine
	contexts *wfcontext.Store
	model    string
	logger   *slog.Logger
}

// NewCurator creates a curator backed by the given engine and context store.
func NewCurator(engine agent.Engine, contexts *wfcontext.Store, model string, logger *slog.Logger) *Curator {
	if model == "" {
		model = DefaultCuratorModel
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Curator{engine: engine, contexts: contexts, model: model, logger: logger}
}

// Curate summarizes phaseOutput and stores the result under the workflow and
// phase. The raw agent cost is returned for run accounting.
func (c *Curator) Curate(ctx context.Context, workflowID, phase, domain, phaseOutput string) (float64, error) {
	prompt := c.buildPrompt(phase, domain, phaseOutput)

	result, err := c.engine.Run(ctx, agent.Request{
		Prompt:       prompt,
		AllowedTools: curatorTools,
		Model:        c.model,
		Timeout:      defaultCuratorTimeout,
	})
	if err != nil {
		return 0, fmt.Errorf("curate %s phase: %w", phase, err)
	}

	curated := parseCurated(result.Output)

	data, err := json.Marshal(curated)
	if err != nil {
		return result.CostUSD, fmt.Errorf("encode curated context: %w", err)
	}

	_, err = c.contexts.Save(ctx, workflowID, phase, string(data))
	if err != nil {
		return result.CostUSD, fmt.Errorf("store curated context: %w", err)
	}

	c.logger.Debug("stored curated context",
		"workflow", workflowID, "phase", phase, "bytes", len(data))

	return result.CostUSD, nil
}

// Injection renders stored context from earlier phases as a prompt block,
// hard-capped at MaxInjectionChars.
func (c *Curator) Injection(ctx context.Context, workflowID string, phases []string) (string, error) {
	records, err := c.contexts.Get(ctx, workflowID, phases)
	if err != nil {
		return "", err
	}

	if len(records) == 0 {
		return "", nil
	}

	var b strings.Builder

	b.WriteString("## Context from earlier phases\n\n")

	for _, rec := range records {
		var curated CuratedContext

		err = json.Unmarshal([]byte(rec.ContextData), &curated)
		if err != nil {
			// Stored raw text from a degraded curation still injects.
			curated = CuratedContext{Summary: rec.ContextData}
		}

		fmt.Fprintf(&b, "### %s\n%s\n", rec.Phase, curated.Summary)

		writeList(&b, "Relevant failures", curated.RelevantFailures)
		writeList(&b, "Relevant patterns", curated.RelevantPatterns)
		writeList(&b, "Relevant decisions", curated.RelevantDecisions)
		writeList(&b, "Code intelligence", curated.CodeIntelligence)

		b.WriteString("\n")
	}

	injection := b.String()
	if len(injection) > MaxInjectionChars {
		injection = injection[:MaxInjectionChars]
	}

	return injection, nil
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}

	fmt.Fprintf(b, "%s:\n", title)

	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func (c *Curator) buildPrompt(phase, domain, phaseOutput string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are curating context after the %s phase of an automated workflow", phase)

	if domain != "" {
		fmt.Fprintf(&b, " in the %q domain", domain)
	}

	b.WriteString(".\n\n")
	fmt.Fprintf(&b, "Summarize the phase output below in at most %d tokens, keeping only what the next phase needs. ", maxSummaryTokens)
	b.WriteString("Use the available search and memory tools to pull in relevant recorded failures, patterns and decisions.\n\n")
	b.WriteString("Respond with a single JSON object: " +
		`{"summary": "...", "relevantFailures": [], "relevantPatterns": [], "relevantDecisions": [], "codeIntelligence": []}` + "\n\n")
	b.WriteString("Phase output:\n\n")
	b.WriteString(phaseOutput)

	return b.String()
}

// parseCurated accepts either the requested JSON object (possibly wrapped in
// a code fence) or, failing that, treats the whole output as the summary.
func parseCurated(output string) CuratedContext {
	candidate := strings.TrimSpace(output)

	if fenced, ok := stripCodeFence(candidate); ok {
		candidate = fenced
	}

	var curated CuratedContext

	err := json.Unmarshal([]byte(candidate), &curated)
	if err == nil && curated.Summary != "" {
		return curated
	}

	return CuratedContext{Summary: strings.TrimSpace(output)}
}

func stripCodeFence(s string) (string, bool) {
	if !strings.HasPrefix(s, "```") {
		return "", false
	}

	_, rest, found := strings.Cut(s, "\n")
	if !found {
		return "", false
	}

	body, _, found := strings.Cut(rest, "```")
	if !found {
		return "", false
	}

	return strings.TrimSpace(body), true
}
