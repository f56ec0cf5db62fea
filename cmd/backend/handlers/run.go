package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/iqap-dev/iqap-runner/coordinator"
	"github.com/iqap-dev/iqap-runner/logger"
	"github.com/iqap-dev/iqap-runner/testcase"
	"github.com/iqap-dev/iqap-runner/testrun"
)

// RunHandler handles test run requests.
type RunHandler struct {
	runStore    testrun.Store
	coordinator *coordinator.Coordinator
	logger      logger.Logger
}

// NewRunHandler creates a new run handler.
func NewRunHandler(runStore testrun.Store, coord *coordinator.Coordinator, log logger.Logger) *RunHandler {
	return &RunHandler{
		runStore:    runStore,
		coordinator: coord,
		logger:      log,
	}
}

// Start expands a test case into runs and dispatches them.
func (h *RunHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "test case")
	if !ok {
		return
	}

	runs, err := h.coordinator.StartRuns(r.Context(), id)
	if err != nil {
		if errors.Is(err, testcase.ErrTestCaseNotFound) {
			respondError(w, http.StatusNotFound, "test case not found")
			return
		}
		h.logger.Error(r.Context(), "failed to start runs", map[string]interface{}{
			"error":        err.Error(),
			"test_case_id": id.String(),
		})
		respondError(w, http.StatusInternalServerError, "failed to start runs")
		return
	}

	respondJSON(w, http.StatusAccepted, NewPaginatedResponse(runs, len(runs), len(runs), 0))
}

// List serves run results with status and time-window filters. since/until
// accept RFC 3339 timestamps.
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	filter := testrun.Filter{Limit: limit, Offset: offset}

	if status := r.URL.Query().Get("status"); status != "" {
		s := testrun.Status(status)
		if !s.IsValid() {
			respondError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		filter.Status = s
	}

	if since := r.URL.Query().Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid since timestamp, expected RFC 3339")
			return
		}
		filter.Since = ts
	}

	if until := r.URL.Query().Get("until"); until != "" {
		ts, err := time.Parse(time.RFC3339, until)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid until timestamp, expected RFC 3339")
			return
		}
		filter.Until = ts
	}

	runs, err := h.runStore.List(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	total, err := h.runStore.Count(r.Context(), testrun.Filter{
		Status: filter.Status,
		Since:  filter.Since,
		Until:  filter.Until,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count runs")
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(runs, total, limit, offset))
}

// GetByID serves one run with its step outcomes and artifacts.
func (h *RunHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "test run")
	if !ok {
		return
	}

	run, err := h.runStore.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, testrun.ErrTestRunNotFound) {
			respondError(w, http.StatusNotFound, "test run not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get test run")
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// Cancel stops a pending or running run.
func (h *RunHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "test run")
	if !ok {
		return
	}

	err := h.coordinator.Cancel(r.Context(), id)
	switch {
	case err == nil:
		respondSuccess(w, "test run canceled")
	case errors.Is(err, testrun.ErrTestRunNotFound):
		respondError(w, http.StatusNotFound, "test run not found")
	case errors.Is(err, coordinator.ErrAlreadyFinished):
		respondError(w, http.StatusConflict, "test run already finished")
	case errors.Is(err, coordinator.ErrNotCancelable):
		respondError(w, http.StatusConflict, "test run is executing elsewhere and cannot be canceled from here")
	default:
		h.logger.Error(r.Context(), "failed to cancel run", map[string]interface{}{
			"error":  err.Error(),
			"run_id": id.String(),
		})
		respondError(w, http.StatusInternalServerError, "failed to cancel run")
	}
}
