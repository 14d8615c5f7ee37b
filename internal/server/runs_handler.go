package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/R2-Decide/esci-evaluator/internal/evaluation"
	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
	"github.com/R2-Decide/esci-evaluator/internal/report"
)

// RunsHandler serves stored evaluation runs and the health endpoint.
type RunsHandler struct {
	history *report.History // nil disables the runs endpoints
	eval    *evaluation.Handler
	version string
}

// NewRunsHandler creates a run history handler.
func NewRunsHandler(history *report.History, eval *evaluation.Handler, version string) *RunsHandler {
	return &RunsHandler{history: history, eval: eval, version: version}
}

// RegisterRoutes registers run history and health routes.
func (h *RunsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/evaluation/runs", h.handleListRuns)
	mux.HandleFunc("GET /v1/evaluation/backends", h.handleListBackends)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

func (h *RunsHandler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		errors.WriteError(w, errors.New(errors.CodeUnavailable, "run history is not configured"))
		return
	}

	backendName := r.URL.Query().Get("backend")
	if backendName == "" {
		errors.WriteError(w, errors.InvalidRequestError("backend query parameter is required"))
		return
	}

	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			errors.WriteError(w, errors.InvalidRequestError("since must be RFC 3339"))
			return
		}
		since = parsed
	}

	runs, err := h.history.List(r.Context(), backendName, since)
	if err != nil {
		errors.WriteError(w, errors.InternalError("loading run history", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"runs": runs})
}

func (h *RunsHandler) handleListBackends(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		errors.WriteError(w, errors.New(errors.CodeUnavailable, "run history is not configured"))
		return
	}

	backends, err := h.history.Backends(r.Context())
	if err != nil {
		errors.WriteError(w, errors.InternalError("listing run history", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"backends": backends})
}

func (h *RunsHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"version": h.version,
	}
	if ds := h.eval.Dataset(); ds != nil {
		status["queries"] = ds.Len()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
