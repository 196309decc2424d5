package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	httpReadHeaderTimeout = 10 * time.Second
	httpShutdownTimeout   = 5 * time.Second
)

// HTTPOptions configures the streamable HTTP transport.
type HTTPOptions struct {
	// Addr is the listen address, e.g. ":8787".
	Addr string

	// AllowedOrigins is the comma-separated Origin allow-list. Empty
	// rejects every cross-origin request.
	AllowedOrigins string

	// Registry, when non-nil, is exposed at /metrics.
	Registry *prometheus.Registry
}

// Middleware wraps an HTTP handler with header validation. Requests failing
// the policy are rejected before they reach the MCP transport.
func (p *HeaderPolicy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, err := p.Validate(r.Header)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, ErrOriginNotAllowed) {
				status = http.StatusForbidden
			}

			http.Error(w, err.Error(), status)

			return
		}

		next.ServeHTTP(w, r)
	})
}

// RunHTTP serves the MCP server over the streamable HTTP transport until the
// context is canceled. The MCP endpoint is mounted at / and, when a registry
// is given, Prometheus metrics at /metrics.
func (s *Server) RunHTTP(ctx context.Context, opts HTTPOptions) error {
	policy := NewHeaderPolicy(opts.AllowedOrigins, "")

	handler := mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s.inner
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/", policy.Middleware(handler))

	if opts.Registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("mcp http server listening", "addr", opts.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			return fmt.Errorf("mcp http shutdown: %w", err)
		}

		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("mcp http server: %w", err)
	}
}
