package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"mercator-hq/saturn/pkg/auth"
	"mercator-hq/saturn/pkg/proxy"
	"mercator-hq/saturn/pkg/proxy/middleware"
	"mercator-hq/saturn/pkg/proxy/types"
	"mercator-hq/saturn/pkg/usage"
)

// maxBodyBytes caps inbound request bodies. Completion prompts can be
// large, but a cap keeps a single caller from exhausting memory since the
// body is buffered once for retries.
const maxBodyBytes = 32 << 20

// CompletionsHandler forwards OpenAI-style POST endpoints (chat
// completions, completions, embeddings) to the backend fleet. The body is
// buffered once so failed attempts can be replayed against the next
// candidate.
type CompletionsHandler struct {
	runtime Runtime
}

// NewCompletionsHandler creates the handler for completion-style routes.
func NewCompletionsHandler(rt Runtime) *CompletionsHandler {
	return &CompletionsHandler{runtime: rt}
}

// ServeHTTP implements http.Handler.
func (h *CompletionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	startTime := time.Now()

	if r.Method != http.MethodPost {
		errResp := types.NewInvalidRequestError(
			fmt.Sprintf("Method %s not allowed. Use POST instead.", r.Method),
			"method",
			types.CodeMethodNotAllowed,
		)
		if err := proxy.WriteErrorResponse(w, errResp); err != nil {
			slog.ErrorContext(ctx, "failed to write error response", "error", err)
		}
		return
	}

	identity := middleware.GetIdentity(ctx)
	if identity == nil {
		errResp := types.NewAuthenticationError("missing bearer token")
		if err := proxy.WriteErrorResponse(w, errResp); err != nil {
			slog.ErrorContext(ctx, "failed to write error response", "error", err)
		}
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		errResp := types.NewInvalidRequestError(
			"Request body exceeds the size limit.",
			"",
			types.CodeRequestTooLarge,
		)
		if writeErr := proxy.WriteErrorResponse(w, errResp); writeErr != nil {
			slog.ErrorContext(ctx, "failed to write error response", "error", writeErr)
		}
		return
	}

	var preview types.RequestPreview
	if err := json.Unmarshal(body, &preview); err != nil {
		slog.WarnContext(ctx, "rejecting malformed request body",
			"request_id", requestID,
			"path", r.URL.Path,
			"error", err,
		)
		errResp := types.NewInvalidRequestError(
			"Request body is not valid JSON.",
			"",
			types.CodeInvalidJSON,
		)
		if writeErr := proxy.WriteErrorResponse(w, errResp); writeErr != nil {
			slog.ErrorContext(ctx, "failed to write error response", "error", writeErr)
		}
		return
	}

	ctx = context.WithValue(ctx, middleware.ModelKey, preview.Model)

	slog.InfoContext(ctx, "processing completion request",
		"request_id", requestID,
		"path", r.URL.Path,
		"model", preview.Model,
		"stream", preview.Stream,
		"token", identity.TokenDigest,
	)

	candidates, err := h.runtime.Selector().Candidates(h.runtime.Pool(), preview.Model, identity, time.Now())
	if err != nil {
		slog.WarnContext(ctx, "no candidate backend",
			"request_id", requestID,
			"model", preview.Model,
			"groups", identity.Groups,
			"error", err,
		)
		errResp := proxy.HandleError(err)
		h.record(r, identity, preview, requestID, "", errResp.Error.HTTPStatusCode(), 0, startTime)
		if writeErr := proxy.WriteErrorResponse(w, errResp); writeErr != nil {
			slog.ErrorContext(ctx, "failed to write error response", "error", writeErr)
		}
		return
	}

	settings := h.runtime.Settings()
	budget := settings.MaxFailures
	if budget > len(candidates) {
		budget = len(candidates)
	}

	opts := proxy.ForwardOptions{
		Timeout:      settings.RequestTimeout,
		ServiceToken: settings.ServiceToken,
	}

	var lastErr error
	for attempt := 0; attempt < budget; attempt++ {
		endpoint := candidates[attempt]

		status, err := h.runtime.Forwarder().Forward(ctx, w, r, body, endpoint, opts)
		if err == nil {
			slog.InfoContext(ctx, "completion request forwarded",
				"request_id", requestID,
				"endpoint", endpoint.Key(),
				"status", status,
				"attempts", attempt+1,
				"latency_ms", time.Since(startTime).Milliseconds(),
			)
			h.record(r, identity, preview, requestID, endpoint.Key(), status, attempt+1, startTime)
			return
		}

		lastErr = err
		slog.WarnContext(ctx, "forward attempt failed",
			"request_id", requestID,
			"endpoint", endpoint.Key(),
			"attempt", attempt+1,
			"error", err,
		)

		if ctx.Err() != nil {
			slog.WarnContext(ctx, "client disconnected during forwarding",
				"request_id", requestID,
				"attempts", attempt+1,
			)
			return
		}
	}

	slog.ErrorContext(ctx, "all forward attempts failed",
		"request_id", requestID,
		"model", preview.Model,
		"attempts", budget,
		"error", lastErr,
	)

	errResp := proxy.HandleError(lastErr)
	h.record(r, identity, preview, requestID, "", errResp.Error.HTTPStatusCode(), budget, startTime)
	if writeErr := proxy.WriteErrorResponse(w, errResp); writeErr != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", writeErr)
	}
}

// record writes a usage ledger entry for a finished request.
func (h *CompletionsHandler) record(r *http.Request, identity *auth.Identity, preview types.RequestPreview, requestID, endpoint string, status, attempts int, startTime time.Time) {
	h.runtime.Usage().Record(usage.Record{
		ID:          uuid.NewString(),
		Time:        startTime,
		RequestID:   requestID,
		TokenDigest: identity.TokenDigest,
		Groups:      identity.Groups,
		Model:       preview.Model,
		Endpoint:    endpoint,
		Route:       r.URL.Path,
		Status:      status,
		Attempts:    attempts,
		Stream:      preview.Stream,
		LatencyMS:   time.Since(startTime).Milliseconds(),
	})
}
