// Package agent abstracts LLM agent invocation behind an Engine so the
// orchestrator and curator can run against a real CLI-backed agent in
// production and a fake in tests.
package agent

import (
	"context"
	"time"
)

// Request is one agent invocation.
type Request struct {
	// Prompt is the full prompt text passed to the agent.
	Prompt string

	// AllowedTools restricts which tools the agent may call. Empty means
	// the engine default.
	AllowedTools []string

	// Model overrides the engine's default model.
	Model string

	// WorkDir is the working directory for the agent process.
	WorkDir string

	// Timeout bounds the invocation; zero disables it.
	Timeout time.Duration
}

// Result is the outcome of one invocation.
type Result struct {
	// Output is the agent's final textual output.
	Output string

	// CostUSD is the reported API cost, when the engine surfaces it.
	CostUSD float64

	// Duration is the wall-clock invocation time.
	Duration time.Duration
}

// Engine runs agent invocations.
type Engine interface {
	// Name identifies the engine in logs.
	Name() string

	// Run executes one invocation to completion.
	Run(ctx context.Context, req Request) (*Result, error)
}
