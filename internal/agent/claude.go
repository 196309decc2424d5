package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ClaudeEngine runs prompts through the Claude Code CLI in non-interactive
// print mode. The binary is spawned with explicit argv, captured output and
// an optional timeout; nothing is shell-interpolated.
type ClaudeEngine struct {
	// Binary is the CLI executable, "claude" by default.
	Binary string

	// DefaultModel is used when the request does not name one.
	DefaultModel string

	Logger *slog.Logger
}

// ErrAgentFailed wraps non-zero agent exits.
var ErrAgentFailed = errors.New("agent invocation failed")

// NewClaudeEngine creates a CLI-backed engine.
func NewClaudeEngine(binary, defaultModel string, logger *slog.Logger) *ClaudeEngine {
	if binary == "" {
		binary = "claude"
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &ClaudeEngine{Binary: binary, DefaultModel: defaultModel, Logger: logger}
}

// Name identifies the engine.
func (e *ClaudeEngine) Name() string { return "claude" }

// cliResult is the JSON envelope emitted by --output-format json.
type cliResult struct {
	Result       string  `json:"result"`
	IsError      bool    `json:"is_error"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	DurationMS   int64   `json:"duration_ms"`
}

// Run executes the CLI and parses its JSON result envelope. When the output
// is not valid JSON the raw text is returned as-is.
func (e *ClaudeEngine) Run(ctx context.Context, req Request) (*Result, error) {
	cancel := func() {}
	if req.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	args := []string{"--print", "--output-format", "json"}

	model := req.Model
	if model == "" {
		model = e.DefaultModel
	}

	if model != "" {
		args = append(args, "--model", model)
	}

	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowed-tools", strings.Join(req.AllowedTools, ","))
	}

	args = append(args, req.Prompt)

	cmd := exec.CommandContext(ctx, e.Binary, args...)
	cmd.Dir = req.WorkDir

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: timed out after %s", ErrAgentFailed, req.Timeout)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s exited with code %d: %s",
				ErrAgentFailed, e.Binary, exitErr.ExitCode(), firstLine(stderr.String()))
		}

		return nil, fmt.Errorf("%w: %v", ErrAgentFailed, err)
	}

	result := &Result{Output: stdout.String(), Duration: elapsed}

	var envelope cliResult

	decodeErr := json.Unmarshal(stdout.Bytes(), &envelope)
	if decodeErr == nil && envelope.Result != "" {
		if envelope.IsError {
			return nil, fmt.Errorf("%w: %s", ErrAgentFailed, firstLine(envelope.Result))
		}

		result.Output = envelope.Result
		result.CostUSD = envelope.TotalCostUSD
	}

	e.Logger.Debug("agent run complete",
		"engine", e.Name(),
		"duration", elapsed,
		"cost_usd", result.CostUSD)

	return result, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)

	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}

	return s
}
