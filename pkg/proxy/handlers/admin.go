package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/saturn/pkg/auth"
	"mercator-hq/saturn/pkg/proxy"
	"mercator-hq/saturn/pkg/proxy/middleware"
	"mercator-hq/saturn/pkg/proxy/types"
	"mercator-hq/saturn/pkg/usage"
)

// defaultUsageLimit bounds /admin/usage responses unless a limit query
// parameter narrows or widens them.
const (
	defaultUsageLimit = 50
	maxUsageLimit     = 500
)

// AdminHandler serves the operator endpoints under /admin. Every route
// requires an authenticated caller whose groups intersect the configured
// admin groups.
type AdminHandler struct {
	runtime Runtime
}

// NewAdminHandler creates the admin route handler.
func NewAdminHandler(rt Runtime) *AdminHandler {
	return &AdminHandler{runtime: rt}
}

// endpointStatus is one row of the /admin/endpoints fleet view.
type endpointStatus struct {
	Endpoint      string    `json:"endpoint"`
	Group         string    `json:"group"`
	BaseURL       string    `json:"base_url"`
	Available     bool      `json:"available"`
	Failures      int64     `json:"failures"`
	CooldownUntil time.Time `json:"cooldown_until,omitzero"`
	Model         string    `json:"model,omitempty"`
}

// Endpoints serves GET /admin/endpoints: every configured endpoint with
// its owning group, circuit state, and discovered model.
func (h *AdminHandler) Endpoints(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r, http.MethodGet) == nil {
		return
	}

	now := time.Now()
	snapshot := h.runtime.Health().Snapshot(now)
	discovery := h.runtime.Discovery()

	endpoints := h.runtime.Pool().Endpoints()
	statuses := make([]endpointStatus, 0, len(endpoints))
	for _, endpoint := range endpoints {
		key := endpoint.Key()

		status := endpointStatus{
			Endpoint:  key,
			Group:     endpoint.Group.Name,
			BaseURL:   endpoint.BaseURL(),
			Available: true,
		}
		if health, ok := snapshot[key]; ok {
			status.Available = health.Available
			status.Failures = health.Failures
			status.CooldownUntil = health.CooldownUntil
		}
		if model, ok := discovery.ModelFor(key); ok {
			status.Model = model
		}

		statuses = append(statuses, status)
	}

	h.writeJSON(w, r, map[string]interface{}{
		"endpoints": statuses,
		"count":     len(statuses),
	})
}

// Health serves GET /admin/health: the raw circuit-breaker snapshot keyed
// by endpoint.
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r, http.MethodGet) == nil {
		return
	}

	h.writeJSON(w, r, map[string]interface{}{
		"endpoints": h.runtime.Health().Snapshot(time.Now()),
	})
}

// Models serves GET /admin/models: the discovery cache keyed by endpoint,
// with the raw owned_by each backend reported.
func (h *AdminHandler) Models(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r, http.MethodGet) == nil {
		return
	}

	h.writeJSON(w, r, map[string]interface{}{
		"endpoints": h.runtime.Discovery().Entries(),
	})
}

// Usage serves GET /admin/usage: the most recent usage ledger records,
// newest first. Query parameters narrow the view: limit adjusts the
// count, model and group filter by exact match, since (RFC 3339) drops
// older records.
func (h *AdminHandler) Usage(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r, http.MethodGet) == nil {
		return
	}

	query := usage.Query{
		Limit: defaultUsageLimit,
		Model: r.URL.Query().Get("model"),
		Group: r.URL.Query().Get("group"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			errResp := types.NewInvalidRequestError("limit must be a positive integer", "limit", types.CodeInvalidJSON)
			h.writeError(w, r, errResp)
			return
		}
		query.Limit = parsed
	}
	if query.Limit > maxUsageLimit {
		query.Limit = maxUsageLimit
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			errResp := types.NewInvalidRequestError("since must be an RFC 3339 timestamp", "since", types.CodeInvalidJSON)
			h.writeError(w, r, errResp)
			return
		}
		query.Since = since
	}

	records, err := h.runtime.Usage().Query(r.Context(), query)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to read usage records", "error", err)
		h.writeError(w, r, types.NewServerError("Failed to read usage records."))
		return
	}

	h.writeJSON(w, r, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// Reload serves POST /admin/reload: re-reads configuration and secrets
// from disk and swaps in the new snapshot.
func (h *AdminHandler) Reload(w http.ResponseWriter, r *http.Request) {
	identity := h.requireAdmin(w, r, http.MethodPost)
	if identity == nil {
		return
	}

	slog.InfoContext(r.Context(), "configuration reload requested",
		"request_id", middleware.GetRequestID(r.Context()),
		"token", identity.TokenDigest,
	)

	if err := h.runtime.Reload(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "configuration reload failed", "error", err)
		errResp := types.NewErrorResponse(
			fmt.Sprintf("Reload failed: %v", err),
			types.ErrorTypeServerError,
			"",
			types.CodeInternalError,
		)
		h.writeError(w, r, errResp)
		return
	}

	h.writeJSON(w, r, map[string]interface{}{
		"status":    "reloaded",
		"endpoints": h.runtime.Pool().Size(),
		"timestamp": time.Now().Unix(),
	})
}

// requireAdmin enforces the method and the admin gate. It returns the
// caller identity, or nil after writing the rejection response.
func (h *AdminHandler) requireAdmin(w http.ResponseWriter, r *http.Request, method string) *auth.Identity {
	if r.Method != method {
		errResp := types.NewInvalidRequestError(
			fmt.Sprintf("Method %s not allowed. Use %s instead.", r.Method, method),
			"method",
			types.CodeMethodNotAllowed,
		)
		h.writeError(w, r, errResp)
		return nil
	}

	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		h.writeError(w, r, types.NewAuthenticationError("missing bearer token"))
		return nil
	}

	if !identity.Admin {
		slog.WarnContext(r.Context(), "admin access denied",
			"request_id", middleware.GetRequestID(r.Context()),
			"token", identity.TokenDigest,
			"groups", identity.Groups,
			"path", r.URL.Path,
		)
		errResp := types.NewPermissionDeniedError(
			"Admin privileges are required for this endpoint.",
			types.CodeAdminRequired,
		)
		h.writeError(w, r, errResp)
		return nil
	}

	return identity
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, r *http.Request, data interface{}) {
	if err := proxy.WriteJSONResponse(w, http.StatusOK, data); err != nil {
		slog.ErrorContext(r.Context(), "failed to write response", "error", err)
	}
}

func (h *AdminHandler) writeError(w http.ResponseWriter, r *http.Request, errResp *types.ErrorResponse) {
	if err := proxy.WriteErrorResponse(w, errResp); err != nil {
		slog.ErrorContext(r.Context(), "failed to write error response", "error", err)
	}
}
