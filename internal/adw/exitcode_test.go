package adw

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitAgentFailed, ExitCode(errors.New("unclassified")), "unknown errors count as execution failures")

	err := Exitf(ExitValidationFailed, errors.New("2 checks failed"))
	assert.Equal(t, ExitValidationFailed, ExitCode(err))

	wrapped := fmt.Errorf("pr phase: %w", Exitf(ExitGitFailed, errors.New("push rejected")))
	assert.Equal(t, ExitGitFailed, ExitCode(wrapped), "codes survive wrapping")
}

func TestExitf(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Exitf(ExitTimeout, nil), "nil stays nil")

	cause := errors.New("agent timed out")
	err := Exitf(ExitTimeout, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause.Error(), err.Error())
}
