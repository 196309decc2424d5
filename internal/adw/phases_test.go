package adw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnalysis(t *testing.T) {
	t.Parallel()

	output := `Some preamble from the agent.

DOMAIN: auth
ISSUE_TYPE: Feature
REQUIREMENTS:
- add session expiry
- keep refresh tokens working
NOTES: ignored trailing section`

	a, err := ParseAnalysis(output)
	require.NoError(t, err)

	assert.Equal(t, "auth", a.Domain)
	assert.Equal(t, "feature", a.IssueType, "issue type is normalized to lower case")
	assert.Equal(t, "- add session expiry\n- keep refresh tokens working", a.Requirements)
}

func TestParseAnalysis_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		output string
	}{
		{"missing domain", "ISSUE_TYPE: bug\nREQUIREMENTS:\nfix it"},
		{"unknown issue type", "DOMAIN: auth\nISSUE_TYPE: epic\nREQUIREMENTS:\nfix it"},
		{"missing requirements", "DOMAIN: auth\nISSUE_TYPE: bug"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseAnalysis(tc.output)
			assert.ErrorIs(t, err, ErrParseFailed)
		})
	}
}

func TestParseSpecPath(t *testing.T) {
	t.Parallel()

	path, err := ParseSpecPath("plan written\nSPEC_PATH: specs/issue-42.md\n")
	require.NoError(t, err)
	assert.Equal(t, "specs/issue-42.md", path)

	_, err = ParseSpecPath("no labels here")
	assert.ErrorIs(t, err, ErrParseFailed)
}

func TestParseModifiedFiles(t *testing.T) {
	t.Parallel()

	output := `done building
MODIFIED_FILES:
- src/auth/login.ts
src/auth/session.ts

- src/auth/login.test.ts
SUMMARY: three files touched`

	files := ParseModifiedFiles(output)
	assert.Equal(t, []string{
		"src/auth/login.ts",
		"src/auth/session.ts",
		"src/auth/login.test.ts",
	}, files, "dash prefixes stripped, blank lines dropped, next label ends the block")

	assert.Nil(t, ParseModifiedFiles("nothing modified"), "absent block is not an error")
}

func TestExtractBlock_InlineValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "src/a.ts", extractBlock("MODIFIED_FILES: src/a.ts", "MODIFIED_FILES"))
}

func TestIsLabelLine(t *testing.T) {
	t.Parallel()

	assert.True(t, isLabelLine("SPEC_PATH: specs/x.md"))
	assert.True(t, isLabelLine("REQUIREMENTS:"))
	assert.False(t, isLabelLine("see notes: below"))
	assert.False(t, isLabelLine("const x = {a: 1}"))
	assert.False(t, isLabelLine("plain text"))
}
