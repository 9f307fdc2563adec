// Package upstreamtest provides a scriptable stand-in for a vLLM
// serving instance, used by routing, forwarding, and server tests.
package upstreamtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Backend simulates one vLLM instance: it reports a single model on
// /v1/models and answers completion-style requests. Failures, delays,
// and streaming can be scripted per test.
type Backend struct {
	model   string
	created int64
	server  *httptest.Server

	mu         sync.Mutex
	failNext   int
	failStatus int
	delay      time.Duration
	requests   []Request
}

// Request is one recorded inbound request.
type Request struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	Header        http.Header
	Body          []byte
}

// NewBackend starts a backend serving the given model on a random
// loopback port. Call Close when done.
func NewBackend(model string) *Backend {
	b := &Backend{
		model:      model,
		created:    time.Now().Unix(),
		failStatus: http.StatusInternalServerError,
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.handler))
	return b
}

// Close shuts the backend down.
func (b *Backend) Close() {
	b.server.Close()
}

// URL returns the backend's base URL.
func (b *Backend) URL() string {
	return b.server.URL
}

// Host returns the backend's listen host.
func (b *Backend) Host() string {
	host, _, _ := net.SplitHostPort(b.addr())
	return host
}

// Port returns the backend's listen port.
func (b *Backend) Port() int {
	_, portStr, _ := net.SplitHostPort(b.addr())
	port, _ := strconv.Atoi(portStr)
	return port
}

// Key returns the backend's "host:port" endpoint identity.
func (b *Backend) Key() string {
	return b.addr()
}

// Model returns the model ID the backend reports.
func (b *Backend) Model() string {
	return b.model
}

// FailNext makes the next n non-listing requests fail with the given
// status before the backend recovers.
func (b *Backend) FailNext(n, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = n
	b.failStatus = status
}

// SetDelay adds artificial latency before each response, for timeout
// tests.
func (b *Backend) SetDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// Requests returns a copy of every recorded request.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// CompletionRequests returns the recorded requests that were not model
// listing probes.
func (b *Backend) CompletionRequests() []Request {
	var out []Request
	for _, req := range b.Requests() {
		if req.Path != "/v1/models" {
			out = append(out, req)
		}
	}
	return out
}

// CompletionCount returns how many non-listing requests arrived.
func (b *Backend) CompletionCount() int {
	return len(b.CompletionRequests())
}

func (b *Backend) addr() string {
	return b.server.Listener.Addr().String()
}

func (b *Backend) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	b.mu.Lock()
	b.requests = append(b.requests, Request{
		Method:        r.Method,
		Path:          r.URL.Path,
		Query:         r.URL.RawQuery,
		Authorization: r.Header.Get("Authorization"),
		Header:        r.Header.Clone(),
		Body:          body,
	})
	delay := b.delay
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if r.URL.Path == "/v1/models" {
		b.writeModelList(w)
		return
	}

	b.mu.Lock()
	fail := b.failNext > 0
	if fail {
		b.failNext--
	}
	status := b.failStatus
	b.mu.Unlock()

	if fail {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":{"message":"scripted failure","type":"server_error","code":%d}}`, status)
		return
	}

	if strings.Contains(string(body), `"stream": true`) || strings.Contains(string(body), `"stream":true`) {
		b.writeStream(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": b.created,
		"model":   b.model,
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "ok"},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     7,
			"completion_tokens": 3,
			"total_tokens":      10,
		},
	})
}

func (b *Backend) writeModelList(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data": []map[string]any{
			{
				"id":       b.model,
				"object":   "model",
				"created":  b.created,
				"owned_by": "vllm",
			},
		},
	})
}

func (b *Backend) writeStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	for _, delta := range []string{"he", "llo"} {
		chunk, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion.chunk",
			"created": b.created,
			"model":   b.model,
			"choices": []map[string]any{
				{"index": 0, "delta": map[string]any{"content": delta}},
			},
		})
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
