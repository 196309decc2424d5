package agent

import (
	"context"
	"sync"
)

// FakeEngine is a scripted Engine for tests: each call pops the next queued
// response or error.
type FakeEngine struct {
	mu        sync.Mutex
	responses []FakeResponse
	calls     []Request
}

// FakeResponse is one scripted invocation outcome.
type FakeResponse struct {
	Output  string
	CostUSD float64
	Err     error
}

// NewFakeEngine creates a fake with the given script.
func NewFakeEngine(responses ...FakeResponse) *FakeEngine {
	return &FakeEngine{responses: responses}
}

// Name identifies the engine.
func (e *FakeEngine) Name() string { return "fake" }

// Run pops the next scripted response. With an exhausted script it returns
// an empty successful result.
func (e *FakeEngine) Run(_ context.Context, req Request) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, req)

	if len(e.responses) == 0 {
		return &Result{}, nil
	}

	next := e.responses[0]
	e.responses = e.responses[1:]

	if next.Err != nil {
		return nil, next.Err
	}

	return &Result{Output: next.Output, CostUSD: next.CostUSD}, nil
}

// Calls returns the requests seen so far.
func (e *FakeEngine) Calls() []Request {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Request, len(e.calls))
	copy(out, e.calls)

	return out
}
