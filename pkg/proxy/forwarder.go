package proxy

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"mercator-hq/saturn/pkg/upstream"
)

// maxErrorBodyBytes bounds how much of a failed backend response is read
// for diagnostics before the connection is released.
const maxErrorBodyBytes = 4096

// hopHeaders are connection-level headers that must not be forwarded in
// either direction.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ForwardOptions controls a single forward attempt.
type ForwardOptions struct {
	// Timeout bounds the time from dispatch until the backend produces
	// response headers. It does not bound body streaming, so long-lived
	// SSE responses are unaffected once headers arrive.
	Timeout time.Duration

	// ServiceToken, when non-empty, replaces the caller's Authorization
	// header on the outbound request. When empty the caller's header is
	// forwarded unchanged.
	ServiceToken string
}

// Forwarder relays a single inbound request to one backend endpoint and
// streams the response back verbatim. Every attempt outcome is reported to
// the health registry before control returns to the caller.
type Forwarder struct {
	client *http.Client
	health *upstream.Registry
	logger *slog.Logger
}

// NewForwarder creates a forwarder that reports attempt outcomes to the
// given health registry. The underlying HTTP client pools connections per
// backend and survives configuration reloads.
func NewForwarder(health *upstream.Registry, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        256,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
		// Responses are relayed verbatim, so the transport must never
		// transparently decompress them.
		DisableCompression: true,
	}

	return &Forwarder{
		client: &http.Client{Transport: transport},
		health: health,
		logger: logger.With("component", "forwarder"),
	}
}

// Forward sends the buffered request body to the endpoint using the
// caller's original method, path, query, and headers (minus hop-by-hop
// ones). Responses with status 499 or below count as success and are
// streamed back as-is; server errors, transport failures, and per-attempt
// timeouts are reported as failures and produce a typed error with nothing
// written to the client, leaving the response writer free for a retry.
//
// On success the backend's status code is returned.
func (f *Forwarder) Forward(ctx context.Context, w http.ResponseWriter, r *http.Request, body []byte, ep *upstream.Endpoint, opts ForwardOptions) (int, error) {
	key := ep.Key()

	target := ep.URL(r.URL.Path)
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, r.Method, target, bytes.NewReader(body))
	if err != nil {
		f.health.ReportFailure(key)
		return 0, &BackendFailureError{Endpoint: key, Cause: err}
	}
	req.ContentLength = int64(len(body))

	copyHeaders(req.Header, r.Header)
	if opts.ServiceToken != "" {
		req.Header.Set("Authorization", "Bearer "+opts.ServiceToken)
	}

	// The timer only covers time-to-headers. Plain context.WithTimeout
	// would also cut off long streaming bodies.
	var timedOut atomic.Bool
	timer := time.AfterFunc(opts.Timeout, func() {
		timedOut.Store(true)
		cancel()
	})

	f.logger.Debug("forwarding request",
		"endpoint", key,
		"method", r.Method,
		"path", r.URL.Path,
	)

	resp, err := f.client.Do(req)
	timer.Stop()

	if err != nil {
		f.health.ReportFailure(key)
		if timedOut.Load() {
			return 0, &TimeoutError{Endpoint: key, Timeout: opts.Timeout}
		}
		return 0, &BackendFailureError{Endpoint: key, Cause: err}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		resp.Body.Close()
		f.health.ReportFailure(key)
		f.logger.Debug("backend returned server error",
			"endpoint", key,
			"status", resp.StatusCode,
			"body", string(snippet),
		)
		return 0, &BackendFailureError{Endpoint: key, StatusCode: resp.StatusCode}
	}

	// Anything up to 499 is the backend's own answer, client errors
	// included, and passes through verbatim.
	f.health.ReportSuccess(key)

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	written, copyErr := io.Copy(newFlushWriter(w), resp.Body)
	resp.Body.Close()
	if copyErr != nil {
		// Headers are already sent, so the attempt still counts as
		// success; the client sees a truncated body.
		f.logger.Debug("response stream interrupted",
			"endpoint", key,
			"bytes_written", written,
			"error", copyErr,
		)
	}

	return resp.StatusCode, nil
}

// copyHeaders copies all headers from src to dst except hop-by-hop ones.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
	for _, key := range hopHeaders {
		dst.Del(key)
	}
}

// flushWriter flushes after every write so streamed chunks reach the
// client immediately instead of sitting in the server's buffer.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newFlushWriter(w http.ResponseWriter) io.Writer {
	fw := &flushWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.f = f
	}
	return fw
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if n > 0 && fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}
