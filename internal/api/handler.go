package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/psantana5/docverify/internal/report"
	"github.com/psantana5/docverify/internal/store"
	"github.com/psantana5/docverify/pkg/logging"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// RunFunc performs one verification run, writing console output to out
type RunFunc func(ctx context.Context, out io.Writer) (*report.Run, error)

// VerifyResponse is the body returned by POST /api/v1/verify
type VerifyResponse struct {
	Run    *report.Run `json:"run"`
	Output string      `json:"output"`
	Error  string      `json:"error,omitempty"`
}

// Handler serves the verification API
type Handler struct {
	run      RunFunc
	history  store.Store
	failures *report.FailureLog
	logger   *logging.Logger

	// serialises pipeline runs
	mu sync.Mutex
}

// NewHandler creates a handler. history may be nil when no run history
// is configured.
func NewHandler(run RunFunc, history store.Store, failures *report.FailureLog, logger *logging.Logger) *Handler {
	if failures == nil {
		failures = report.NewFailureLog(100)
	}
	return &Handler{
		run:      run,
		history:  history,
		failures: failures,
		logger:   logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/verify", h.Verify).Methods("POST")
	r.HandleFunc("/api/v1/runs", h.ListRuns).Methods("GET")
	r.HandleFunc("/api/v1/runs/{id}", h.GetRun).Methods("GET")
	r.HandleFunc("/api/v1/failures", h.RecentFailures).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
}

// Verify runs the pipeline and returns the run record with its console output
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	var out bytes.Buffer
	run, err := h.run(r.Context(), &out)
	h.mu.Unlock()

	resp := VerifyResponse{Run: run, Output: out.String()}
	status := http.StatusOK
	if err != nil {
		h.logger.Error("Verification run failed", map[string]interface{}{"error": err.Error()})
		resp.Error = err.Error()
		status = http.StatusInternalServerError
	}
	if run != nil {
		h.failures.Record(run)
	}
	writeJSON(w, status, resp)
}

// ListRuns returns the most recent stored runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "Run history is not configured", http.StatusNotImplemented)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runs, err := h.history.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs", map[string]interface{}{"error": err.Error()})
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun returns one stored run by ID
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "Run history is not configured", http.StatusNotImplemented)
		return
	}
	id := mux.Vars(r)["id"]

	run, err := h.history.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to get run", map[string]interface{}{"run_id": id, "error": err.Error()})
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// RecentFailures returns failed runs seen by this server, newest first
func (h *Handler) RecentFailures(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	samples := h.failures.GetRecent(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"failures": samples,
		"count":    len(samples),
		"total":    h.failures.Count(),
	})
}

// Health reports server liveness and, when configured, history store health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "healthy"}
	code := http.StatusOK
	if h.history != nil {
		if err := h.history.HealthCheck(r.Context()); err != nil {
			status["status"] = "degraded"
			status["history"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			status["history"] = "ok"
		}
	}
	writeJSON(w, code, status)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
