package mcp_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotadb/kotadb/internal/mcp"
)

func TestValidate_OriginAllowList(t *testing.T) {
	t.Parallel()

	policy := mcp.NewHeaderPolicy("http://localhost:3000, https://app.example.com", "")

	cases := []struct {
		origin string
		err    error
	}{
		{"http://localhost:3000", nil},
		{"https://app.example.com", nil},
		{"http://localhost:9999", mcp.ErrOriginNotAllowed},
		{"https://evil.example.com", mcp.ErrOriginNotAllowed},
		{"not a url", mcp.ErrInvalidOriginSpec},
	}

	for _, tc := range cases {
		h := http.Header{}
		h.Set("Origin", tc.origin)

		_, _, err := policy.Validate(h)
		if tc.err == nil {
			assert.NoError(t, err, tc.origin)
		} else {
			assert.ErrorIs(t, err, tc.err, tc.origin)
		}
	}
}

func TestValidate_PortlessEntryMatchesAnyPort(t *testing.T) {
	t.Parallel()

	policy := mcp.NewHeaderPolicy("http://localhost", "")

	h := http.Header{}
	h.Set("Origin", "http://localhost:5173")

	_, _, err := policy.Validate(h)
	assert.NoError(t, err)

	h.Set("Origin", "https://localhost:5173")
	_, _, err = policy.Validate(h)
	assert.ErrorIs(t, err, mcp.ErrOriginNotAllowed, "scheme still has to match")
}

func TestValidate_MissingOriginAccepted(t *testing.T) {
	t.Parallel()

	policy := mcp.NewHeaderPolicy("http://localhost:3000", "")

	_, _, err := policy.Validate(http.Header{})
	assert.NoError(t, err, "non-browser clients send no Origin")
}

func TestValidate_ProtocolVersion(t *testing.T) {
	t.Parallel()

	policy := mcp.NewHeaderPolicy("", "2025-06-18")

	h := http.Header{}
	h.Set("MCP-Protocol-Version", "2025-06-18")
	_, _, err := policy.Validate(h)
	assert.NoError(t, err)

	h.Set("MCP-Protocol-Version", "2024-11-05")
	_, _, err = policy.Validate(h)
	assert.ErrorIs(t, err, mcp.ErrProtocolMismatch)
}

func TestValidate_SessionID(t *testing.T) {
	t.Parallel()

	policy := mcp.NewHeaderPolicy("", "")

	h := http.Header{}
	h.Set("Mcp-Session-Id", "session-123")

	_, id, err := policy.Validate(h)
	require.NoError(t, err)
	assert.Equal(t, "session-123", id)

	h.Set("Mcp-Session-Id", "")
	_, _, err = policy.Validate(h)
	assert.ErrorIs(t, err, mcp.ErrSessionIDEmpty)

	h.Set("Mcp-Session-Id", strings.Repeat("a", 257))
	_, _, err = policy.Validate(h)
	assert.ErrorIs(t, err, mcp.ErrSessionIDTooLong)
}

func TestValidate_AcceptFlags(t *testing.T) {
	t.Parallel()

	policy := mcp.NewHeaderPolicy("", "")

	cases := []struct {
		accept string
		json   bool
		sse    bool
	}{
		{"application/json", true, false},
		{"text/event-stream", false, true},
		{"application/json, text/event-stream", true, true},
		{"application/json;q=0.9, text/event-stream;q=0.8", true, true},
		{"*/*", true, true},
		{"text/html", false, false},
		{"", false, false},
	}

	for _, tc := range cases {
		h := http.Header{}
		if tc.accept != "" {
			h.Set("Accept", tc.accept)
		}

		flags, _, err := policy.Validate(h)
		require.NoError(t, err)
		assert.Equal(t, tc.json, flags.JSON, tc.accept)
		assert.Equal(t, tc.sse, flags.SSE, tc.accept)
	}
}
