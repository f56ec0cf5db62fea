package handlers

import (
	"errors"
	"net/http"

	"github.com/iqap-dev/iqap-runner/authoring"
	"github.com/iqap-dev/iqap-runner/blueprint"
	"github.com/iqap-dev/iqap-runner/coordinator"
	"github.com/iqap-dev/iqap-runner/logger"
	"github.com/iqap-dev/iqap-runner/testcase"
	"github.com/iqap-dev/iqap-runner/testrun"
)

// GenerateHandler turns objectives into persisted, dispatched test cases.
type GenerateHandler struct {
	generator   authoring.Generator
	blueprints  blueprint.Provider
	store       testcase.Store
	coordinator *coordinator.Coordinator
	logger      logger.Logger
}

// NewGenerateHandler creates a new generation handler.
func NewGenerateHandler(gen authoring.Generator, provider blueprint.Provider, store testcase.Store, coord *coordinator.Coordinator, log logger.Logger) *GenerateHandler {
	return &GenerateHandler{
		generator:   gen,
		blueprints:  provider,
		store:       store,
		coordinator: coord,
		logger:      log,
	}
}

// GenerateRequest represents a test case generation request.
type GenerateRequest struct {
	Objective string `json:"objective"`
	TargetURL string `json:"target_url"`
}

// GenerateResponse carries the persisted test case together with its
// generated data sets and the runs dispatched for them.
type GenerateResponse struct {
	TestCase      *testcase.TestCase       `json:"test_case"`
	ParameterSets []*testcase.ParameterSet `json:"parameter_sets"`
	Runs          []*testrun.TestRun       `json:"runs"`
}

// Generate crawls the target page, asks the model for a step plan and data
// sets, persists the result, and dispatches one run per data set.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := parseJSON(r, &req, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TargetURL == "" {
		respondError(w, http.StatusBadRequest, "target_url is required")
		return
	}

	bp, err := h.blueprints.Get(r.Context(), req.TargetURL)
	if err != nil {
		if errors.Is(err, blueprint.ErrCrawlTimeout) {
			respondError(w, http.StatusGatewayTimeout, "target page crawl timed out")
			return
		}
		h.logger.Error(r.Context(), "failed to crawl target page", map[string]interface{}{
			"error":      err.Error(),
			"target_url": req.TargetURL,
		})
		respondError(w, http.StatusBadGateway, "failed to crawl target page")
		return
	}

	draft, err := h.generator.Generate(r.Context(), req.Objective, bp)
	if err != nil {
		switch {
		case errors.Is(err, authoring.ErrEmptyObjective),
			errors.Is(err, authoring.ErrObjectiveTooLong):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, authoring.ErrGenerationFailed),
			errors.Is(err, authoring.ErrUnknownTarget):
			h.logger.Error(r.Context(), "test case generation failed", map[string]interface{}{
				"error":      err.Error(),
				"target_url": req.TargetURL,
			})
			respondError(w, http.StatusUnprocessableEntity, "could not generate a valid test case for this objective")
		default:
			respondError(w, http.StatusInternalServerError, "generation failed")
		}
		return
	}

	tc := &testcase.TestCase{
		Name:      draft.Name,
		Objective: draft.Objective,
		TargetURL: draft.TargetURL,
		Steps:     draft.Steps,
	}
	if err := h.store.Create(r.Context(), tc); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to persist generated test case")
		return
	}

	sets := make([]*testcase.ParameterSet, 0, len(draft.ParameterSets))
	for i, dps := range draft.ParameterSets {
		ps := &testcase.ParameterSet{
			TestCaseID: tc.ID,
			Name:       dps.Name,
			Position:   uint(i),
			Values:     dps.Values,
		}
		if err := h.store.CreateParameterSet(r.Context(), ps); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to persist generated parameter set")
			return
		}
		sets = append(sets, ps)
	}

	runs, err := h.coordinator.StartRuns(r.Context(), tc.ID)
	if err != nil {
		h.logger.Error(r.Context(), "failed to start generated runs", map[string]interface{}{
			"error":        err.Error(),
			"test_case_id": tc.ID.String(),
		})
		respondError(w, http.StatusInternalServerError, "failed to dispatch runs for generated test case")
		return
	}

	respondJSON(w, http.StatusCreated, GenerateResponse{
		TestCase:      tc,
		ParameterSets: sets,
		Runs:          runs,
	})
}
