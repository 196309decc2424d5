// Package pr validates, commits, pushes and opens the pull request that
// closes out a workflow run.
package pr

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CommandTimeout bounds each validation subprocess.
const CommandTimeout = 10 * time.Minute

// CheckResult is one validation command's outcome.
type CheckResult struct {
	Name    string `json:"name"`
	Command string `json:"command"`
	Passed  bool   `json:"passed"`
	Output  string `json:"output,omitempty"`
}

// ValidationReport aggregates blocking checks and advisory warnings.
type ValidationReport struct {
	Checks   []CheckResult `json:"checks"`
	Warnings []string      `json:"warnings"`
}

// Passed reports whether every blocking check succeeded.
func (r *ValidationReport) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}

	return true
}

// Validator runs the pre-PR validation suite.
type Validator struct {
	// TypeCheckCmd and TestCmd are argv slices; empty skips the check.
	TypeCheckCmd []string
	TestCmd      []string

	// AppRoot is the directory whose files are held to the import-depth
	// convention.
	AppRoot string
}

// maxRelativeImportDepth is the deepest allowed "../" chain inside AppRoot.
const maxRelativeImportDepth = 3

// Validate runs the type-check and test commands (blocking) and the
// convention scan (advisory) over the modified files.
func (v *Validator) Validate(ctx context.Context, workDir string, modifiedFiles []string) (*ValidationReport, error) {
	report := &ValidationReport{Checks: []CheckResult{}, Warnings: []string{}}

	if len(v.TypeCheckCmd) > 0 {
		report.Checks = append(report.Checks, runCheck(ctx, "type-check", workDir, v.TypeCheckCmd))
	}

	if len(v.TestCmd) > 0 {
		report.Checks = append(report.Checks, runCheck(ctx, "tests", workDir, v.TestCmd))
	}

	for _, file := range modifiedFiles {
		warnings, err := v.scanConventions(workDir, file)
		if err != nil {
			// A vanished file is not a convention problem.
			continue
		}

		report.Warnings = append(report.Warnings, warnings...)
	}

	return report, nil
}

func runCheck(ctx context.Context, name, workDir string, argv []string) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = workDir

	out, err := cmd.CombinedOutput()

	result := CheckResult{
		Name:    name,
		Command: strings.Join(argv, " "),
		Passed:  err == nil,
	}

	if err != nil {
		result.Output = tail(string(out), 2000)
	}

	return result
}

// scanConventions flags ad-hoc console prints outside comments and
// deeper-than-allowed relative imports inside the app root.
func (v *Validator) scanConventions(workDir, file string) ([]string, error) {
	f, err := os.Open(filepath.Join(workDir, filepath.FromSlash(file)))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	inAppRoot := v.AppRoot == "" || strings.HasPrefix(file, v.AppRoot)

	var warnings []string

	deepImport := strings.Repeat("../", maxRelativeImportDepth+1)

	scanner := bufio.NewScanner(f)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "//") || strings.HasPrefix(line, "*") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.Contains(line, "console.log(") || strings.Contains(line, "console.error(") {
			warnings = append(warnings,
				fmt.Sprintf("%s:%d: ad-hoc console output; use the project logger", file, lineNo))
		}

		if inAppRoot && strings.Contains(line, deepImport) {
			warnings = append(warnings,
				fmt.Sprintf("%s:%d: relative import deeper than %d levels; use a path alias", file, lineNo, maxRelativeImportDepth))
		}
	}

	return warnings, scanner.Err()
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[len(s)-n:]
}
