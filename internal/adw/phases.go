package adw

import (
	"errors"
	"fmt"
	"strings"
)

// Workflow phases in execution order.
const (
	PhaseAnalysis = "analysis"
	PhasePlan     = "plan"
	PhaseBuild    = "build"
	PhaseImprove  = "improve"
	PhasePR       = "pr"
)

// PhaseOrder is the canonical phase sequence.
var PhaseOrder = []string{PhaseAnalysis, PhasePlan, PhaseBuild, PhaseImprove, PhasePR}

// Issue types the analysis phase may classify an issue as.
var validIssueTypes = map[string]bool{
	"feature":  true,
	"bug":      true,
	"chore":    true,
	"refactor": true,
}

// ErrParseFailed signals that an agent's output lacked a required labeled
// section.
var ErrParseFailed = errors.New("could not parse agent output")

// Analysis is the structured result of the analysis phase.
type Analysis struct {
	Domain       string `json:"domain"`
	IssueType    string `json:"issueType"`
	Requirements string `json:"requirements"`
}

// ParseAnalysis extracts the labeled sections the analysis prompt asks the
// agent to emit:
//
//	DOMAIN: <one token>
//	ISSUE_TYPE: feature|bug|chore|refactor
//	REQUIREMENTS:
//	<free text until end of output>
func ParseAnalysis(output string) (*Analysis, error) {
	domain := extractLabel(output, "DOMAIN")
	if domain == "" {
		return nil, fmt.Errorf("%w: missing DOMAIN section", ErrParseFailed)
	}

	issueType := strings.ToLower(extractLabel(output, "ISSUE_TYPE"))
	if !validIssueTypes[issueType] {
		return nil, fmt.Errorf("%w: unknown issue type %q", ErrParseFailed, issueType)
	}

	requirements := extractBlock(output, "REQUIREMENTS")
	if requirements == "" {
		return nil, fmt.Errorf("%w: missing REQUIREMENTS section", ErrParseFailed)
	}

	return &Analysis{Domain: domain, IssueType: issueType, Requirements: requirements}, nil
}

// ParseSpecPath extracts the plan phase's SPEC_PATH label.
func ParseSpecPath(output string) (string, error) {
	path := extractLabel(output, "SPEC_PATH")
	if path == "" {
		return "", fmt.Errorf("%w: missing SPEC_PATH section", ErrParseFailed)
	}

	return path, nil
}

// ParseModifiedFiles extracts the build phase's MODIFIED_FILES block, one
// path per line. An absent block is not an error; some builds touch nothing.
func ParseModifiedFiles(output string) []string {
	block := extractBlock(output, "MODIFIED_FILES")
	if block == "" {
		return nil
	}

	var files []string

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line != "" {
			files = append(files, line)
		}
	}

	return files
}

// extractLabel returns the single-line value after "LABEL:".
func extractLabel(output, label string) string {
	for _, line := range strings.Split(output, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), label+":")
		if ok {
			return strings.TrimSpace(rest)
		}
	}

	return ""
}

// extractBlock returns everything after the "LABEL:" line up to the next
// ALL-CAPS label line or end of output.
func extractBlock(output, label string) string {
	lines := strings.Split(output, "\n")

	start := -1

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if rest, ok := strings.CutPrefix(trimmed, label+":"); ok {
			// Inline value on the label line counts too.
			if inline := strings.TrimSpace(rest); inline != "" {
				return inline
			}

			start = i + 1

			break
		}
	}

	if start < 0 {
		return ""
	}

	var block []string

	for _, line := range lines[start:] {
		if isLabelLine(line) {
			break
		}

		block = append(block, line)
	}

	return strings.TrimSpace(strings.Join(block, "\n"))
}

func isLabelLine(line string) bool {
	trimmed := strings.TrimSpace(line)

	name, _, found := strings.Cut(trimmed, ":")
	if !found || name == "" {
		return false
	}

	for _, r := range name {
		if (r < 'A' || r > 'Z') && r != '_' {
			return false
		}
	}

	return true
}
