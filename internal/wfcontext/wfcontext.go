// Package wfcontext stores and retrieves curated per-phase context for
// autonomous workflow runs.
package wfcontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kotadb/kotadb/internal/storage"
)

// Workflow phases that may carry stored context.
const (
	PhaseAnalysis = "analysis"
	PhasePlan     = "plan"
	PhaseBuild    = "build"
	PhaseImprove  = "improve"
)

// ErrInvalidPhase rejects phases outside the known set.
var ErrInvalidPhase = errors.New("invalid workflow phase")

// ErrEmptyWorkflowID rejects blank workflow identifiers.
var ErrEmptyWorkflowID = errors.New("workflow_id must not be empty")

// ErrPhaseMismatch rejects payloads whose embedded phase contradicts the
// phase they are stored under.
var ErrPhaseMismatch = errors.New("payload phase does not match target phase")

var validPhases = map[string]bool{
	PhaseAnalysis: true,
	PhasePlan:     true,
	PhaseBuild:    true,
	PhaseImprove:  true,
}

// ValidPhase reports whether phase is one of the storable phases.
func ValidPhase(phase string) bool { return validPhases[phase] }

// Store persists workflow summaries.
type Store struct {
	store *storage.Store
}

// New creates a workflow context store.
func New(store *storage.Store) *Store {
	return &Store{store: store}
}

// Save upserts the curated summary for one phase of a workflow.
func (s *Store) Save(ctx context.Context, workflowID, phase, data string) (string, error) {
	workflowID = strings.TrimSpace(workflowID)
	if workflowID == "" {
		return "", ErrEmptyWorkflowID
	}

	if !ValidPhase(phase) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhase, phase)
	}

	// A JSON payload carrying its own phase must agree with the target.
	var payload struct {
		Phase string `json:"phase"`
	}

	if err := json.Unmarshal([]byte(data), &payload); err == nil &&
		payload.Phase != "" && payload.Phase != phase {
		return "", fmt.Errorf("%w: payload says %q, storing under %q",
			ErrPhaseMismatch, payload.Phase, phase)
	}

	return s.store.UpsertWorkflowContext(ctx, workflowID, phase, data)
}

// Get returns stored summaries for a workflow, optionally filtered to the
// given phases. Unknown phases in the filter are rejected.
func (s *Store) Get(ctx context.Context, workflowID string, phases []string) ([]storage.WorkflowContext, error) {
	workflowID = strings.TrimSpace(workflowID)
	if workflowID == "" {
		return nil, ErrEmptyWorkflowID
	}

	for _, p := range phases {
		if !ValidPhase(p) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPhase, p)
		}
	}

	return s.store.WorkflowContexts(ctx, workflowID, phases)
}

// Clear removes every stored summary for a workflow, returning the count.
func (s *Store) Clear(ctx context.Context, workflowID string) (int, error) {
	workflowID = strings.TrimSpace(workflowID)
	if workflowID == "" {
		return 0, ErrEmptyWorkflowID
	}

	return s.store.ClearWorkflowContexts(ctx, workflowID)
}
