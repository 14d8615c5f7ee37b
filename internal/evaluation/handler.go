package evaluation

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/R2-Decide/esci-evaluator/internal/backend"
	"github.com/R2-Decide/esci-evaluator/internal/bus"
	"github.com/R2-Decide/esci-evaluator/internal/dataset"
	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
	"github.com/R2-Decide/esci-evaluator/internal/pkg/logger"
)

// AdapterResolver resolves a backend name to its adapter.
type AdapterResolver func(name string) (backend.Adapter, error)

// Handler provides HTTP handlers for evaluation runs.
type Handler struct {
	scorer    *Scorer
	driverCfg DriverConfig
	resolve   AdapterResolver
	bus       bus.Bus
	log       *logger.Logger

	mu sync.RWMutex
	ds *dataset.Dataset
}

// NewHandler creates a new evaluation handler. The scorer carries the
// default weights, cutoffs and relevance threshold.
func NewHandler(scorer *Scorer, driverCfg DriverConfig, resolve AdapterResolver, eventBus bus.Bus, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		scorer:    scorer,
		driverCfg: driverCfg,
		resolve:   resolve,
		bus:       eventBus,
		log:       log,
	}
}

// SetDataset replaces the loaded ground truth.
func (h *Handler) SetDataset(ds *dataset.Dataset) {
	h.mu.Lock()
	h.ds = ds
	h.mu.Unlock()
}

// Dataset returns the currently loaded ground truth, or nil.
func (h *Handler) Dataset() *dataset.Dataset {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ds
}

// RegisterRoutes registers evaluation routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/evaluation/judgments", h.handleLoadJudgments)
	mux.HandleFunc("GET /v1/evaluation/judgments", h.handleDatasetInfo)
	mux.HandleFunc("POST /v1/evaluation/evaluate", h.handleEvaluate)
}

// EvaluateRequest selects the backend and optionally overrides the
// configured scoring parameters.
type EvaluateRequest struct {
	Backend   string  `json:"backend"`
	Ks        []int   `json:"ks,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	MinLabels int     `json:"min_labels,omitempty"`
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.InvalidRequestError("request body is not valid JSON"))
		return
	}

	if req.Backend == "" {
		errors.WriteError(w, errors.InvalidRequestError("backend is required"))
		return
	}

	ds := h.Dataset()
	if ds == nil {
		errors.WriteError(w, errors.InvalidRequestError("no ground truth loaded"))
		return
	}
	if req.MinLabels > 0 {
		ds = ds.Filter(dataset.MinLabelFilter(req.MinLabels))
	}

	adapter, err := h.resolve(req.Backend)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	scorer := h.scorer
	if len(req.Ks) > 0 || req.Threshold > 0 {
		ks := req.Ks
		if len(ks) == 0 {
			ks = h.scorer.Ks()
		}
		threshold := req.Threshold
		if threshold == 0 {
			threshold = h.scorer.Threshold()
		}
		scorer, err = NewScorer(h.scorer.Weights(), ks, threshold)
		if err != nil {
			errors.WriteError(w, err)
			return
		}
	}

	driver, err := NewDriver(h.driverCfg, scorer, adapter, h.bus, h.log)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	report, err := driver.Run(r.Context(), ds)
	if err != nil {
		// The partial report still carries the failure detail; the
		// escalation error decides the status code.
		h.log.WithError(err).Error("evaluation aborted", "backend", req.Backend)
	}

	w.Header().Set("Content-Type", "application/json")
	if report.Status == StateFailed {
		w.WriteHeader(http.StatusBadGateway)
	}
	json.NewEncoder(w).Encode(report)
}

func (h *Handler) handleLoadJudgments(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		errors.WriteError(w, errors.InvalidRequestError("reading request body"))
		return
	}

	ds, err := dataset.Load(data, h.log)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	h.SetDataset(ds)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDatasetInfo(w http.ResponseWriter, r *http.Request) {
	ds := h.Dataset()
	if ds == nil {
		errors.WriteError(w, errors.NotFoundError("ground truth"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"query_count": ds.Len()})
}
