package mcp

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Header validation for HTTP transports that front-end the stdio server.

const (
	headerOrigin          = "Origin"
	headerProtocolVersion = "MCP-Protocol-Version"
	headerAccept          = "Accept"
	headerSessionID       = "Mcp-Session-Id"

	maxSessionIDBytes = 256
)

// Header validation errors.
var (
	ErrOriginNotAllowed  = errors.New("origin not on allow-list")
	ErrProtocolMismatch  = errors.New("protocol version mismatch")
	ErrSessionIDEmpty    = errors.New("session id must not be empty when present")
	ErrSessionIDTooLong  = errors.New("session id exceeds maximum length")
	ErrInvalidOriginSpec = errors.New("invalid origin")
)

// AcceptFlags records which response encodings the client accepts.
type AcceptFlags struct {
	JSON bool
	SSE  bool
}

// HeaderPolicy validates the MCP transport headers.
type HeaderPolicy struct {
	allowedOrigins  []string
	protocolVersion string
}

// NewHeaderPolicy creates a policy from a comma-separated origin allow-list
// and the negotiated protocol version.
func NewHeaderPolicy(allowedOrigins, protocolVersion string) *HeaderPolicy {
	var origins []string

	for _, o := range strings.Split(allowedOrigins, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}

	return &HeaderPolicy{allowedOrigins: origins, protocolVersion: protocolVersion}
}

// Validate checks the request's headers, returning the parsed Accept flags
// and session ID.
func (p *HeaderPolicy) Validate(h http.Header) (AcceptFlags, string, error) {
	origin := h.Get(headerOrigin)
	if origin != "" {
		err := p.checkOrigin(origin)
		if err != nil {
			return AcceptFlags{}, "", err
		}
	}

	version := h.Get(headerProtocolVersion)
	if version != "" && p.protocolVersion != "" && version != p.protocolVersion {
		return AcceptFlags{}, "", fmt.Errorf("%w: got %q, negotiated %q",
			ErrProtocolMismatch, version, p.protocolVersion)
	}

	sessionID := h.Get(headerSessionID)
	if h.Values(headerSessionID) != nil && sessionID == "" {
		return AcceptFlags{}, "", ErrSessionIDEmpty
	}

	if len(sessionID) > maxSessionIDBytes {
		return AcceptFlags{}, "", fmt.Errorf("%w: %d bytes (max %d)",
			ErrSessionIDTooLong, len(sessionID), maxSessionIDBytes)
	}

	return parseAccept(h.Get(headerAccept)), sessionID, nil
}

// checkOrigin matches the origin against the allow-list: exact match, or
// same protocol and host when the allow-list entry omits the port.
func (p *HeaderPolicy) checkOrigin(origin string) error {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidOriginSpec, origin)
	}

	for _, allowed := range p.allowedOrigins {
		if origin == allowed {
			return nil
		}

		allowedURL, parseErr := url.Parse(allowed)
		if parseErr != nil {
			continue
		}

		if allowedURL.Port() == "" &&
			parsed.Scheme == allowedURL.Scheme && parsed.Hostname() == allowedURL.Hostname() {
			return nil
		}
	}

	return fmt.Errorf("%w: %q", ErrOriginNotAllowed, origin)
}

// parseAccept folds an Accept header into JSON/SSE capability flags.
func parseAccept(accept string) AcceptFlags {
	var flags AcceptFlags

	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])

		switch mediaType {
		case "application/json", "application/*", "*/*":
			flags.JSON = true
		}

		switch mediaType {
		case "text/event-stream", "text/*", "*/*":
			flags.SSE = true
		}
	}

	return flags
}
