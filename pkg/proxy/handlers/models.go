package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"mercator-hq/saturn/pkg/proxy"
	"mercator-hq/saturn/pkg/proxy/middleware"
	"mercator-hq/saturn/pkg/proxy/types"
)

// ModelsHandler serves GET /v1/models: the union of models discovered on
// the endpoints the caller's groups may reach, deduplicated by model ID
// and attributed to the configured model owner.
type ModelsHandler struct {
	runtime Runtime
}

// NewModelsHandler creates the model listing handler.
func NewModelsHandler(rt Runtime) *ModelsHandler {
	return &ModelsHandler{runtime: rt}
}

// ServeHTTP implements http.Handler.
func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	if r.Method != http.MethodGet {
		errResp := types.NewInvalidRequestError(
			fmt.Sprintf("Method %s not allowed. Use GET instead.", r.Method),
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

	owner := h.runtime.Settings().ModelOwner
	eligible := h.runtime.Pool().EndpointsForGroups(identity.Groups, identity.Admin)

	// Dedupe by model ID, keeping the earliest creation time and the
	// order models were first seen across the fleet.
	seen := make(map[string]int)
	models := make([]types.Model, 0, len(eligible))
	for _, endpoint := range eligible {
		info, ok := h.runtime.Discovery().InfoFor(endpoint.Key())
		if !ok {
			continue
		}

		if idx, dup := seen[info.ID]; dup {
			if info.Created < models[idx].Created {
				models[idx].Created = info.Created
			}
			continue
		}

		seen[info.ID] = len(models)
		models = append(models, types.Model{
			ID:      info.ID,
			Object:  "model",
			Created: info.Created,
			OwnedBy: owner,
		})
	}

	slog.DebugContext(ctx, "model listing aggregated",
		"request_id", requestID,
		"endpoints", len(eligible),
		"models", len(models),
	)

	if err := proxy.WriteJSONResponse(w, http.StatusOK, types.NewModelList(models)); err != nil {
		slog.ErrorContext(ctx, "failed to write response",
			"request_id", requestID,
			"error", err,
		)
	}
}
