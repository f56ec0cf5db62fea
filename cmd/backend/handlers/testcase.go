package handlers

import (
	"errors"
	"net/http"

	"github.com/iqap-dev/iqap-runner/logger"
	"github.com/iqap-dev/iqap-runner/testcase"
)

// TestCaseHandler handles test case requests.
type TestCaseHandler struct {
	store  testcase.Store
	logger logger.Logger
}

// NewTestCaseHandler creates a new test case handler.
func NewTestCaseHandler(store testcase.Store, log logger.Logger) *TestCaseHandler {
	return &TestCaseHandler{store: store, logger: log}
}

// CreateTestCaseRequest represents a test case creation request.
type CreateTestCaseRequest struct {
	Name      string         `json:"name"`
	Objective string         `json:"objective"`
	TargetURL string         `json:"target_url"`
	Steps     testcase.Steps `json:"steps"`
}

// UpdateTestCaseRequest represents a test case update request.
type UpdateTestCaseRequest struct {
	Name      *string         `json:"name,omitempty"`
	Objective *string         `json:"objective,omitempty"`
	Steps     *testcase.Steps `json:"steps,omitempty"`
}

// CreateParameterSetRequest represents a parameter set creation request.
type CreateParameterSetRequest struct {
	Name     string          `json:"name"`
	Position uint            `json:"position"`
	Values   testcase.Params `json:"values"`
}

// Create handles creating a new test case.
func (h *TestCaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTestCaseRequest
	if err := parseJSON(r, &req, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tc := &testcase.TestCase{
		Name:      req.Name,
		Objective: req.Objective,
		TargetURL: req.TargetURL,
		Steps:     req.Steps,
	}

	if err := h.store.Create(r.Context(), tc); err != nil {
		if isValidationError(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create test case")
		return
	}

	respondJSON(w, http.StatusCreated, tc)
}

// GetByID handles retrieving a test case.
func (h *TestCaseHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "test case")
	if !ok {
		return
	}

	tc, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, testcase.ErrTestCaseNotFound) {
			respondError(w, http.StatusNotFound, "test case not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get test case")
		return
	}

	respondJSON(w, http.StatusOK, tc)
}

// List handles listing test cases.
func (h *TestCaseHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	cases, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list test cases")
		return
	}

	total, err := h.store.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count test cases")
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(cases, total, limit, offset))
}

// Update handles updating a test case.
func (h *TestCaseHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "test case")
	if !ok {
		return
	}

	var req UpdateTestCaseRequest
	if err := parseJSON(r, &req, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var setters []testcase.UpdateSetter
	if req.Name != nil {
		setters = append(setters, testcase.SetName(*req.Name))
	}
	if req.Objective != nil {
		setters = append(setters, testcase.SetObjective(*req.Objective))
	}
	if req.Steps != nil {
		setters = append(setters, testcase.SetSteps(*req.Steps))
	}
	if len(setters) == 0 {
		respondError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	if err := h.store.Update(r.Context(), id, setters...); err != nil {
		if errors.Is(err, testcase.ErrTestCaseNotFound) {
			respondError(w, http.StatusNotFound, "test case not found")
			return
		}
		if isValidationError(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update test case")
		return
	}

	respondSuccess(w, "test case updated")
}

// CreateParameterSet handles adding a parameter set to a test case.
func (h *TestCaseHandler) CreateParameterSet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "test case")
	if !ok {
		return
	}

	var req CreateParameterSetRequest
	if err := parseJSON(r, &req, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ps := &testcase.ParameterSet{
		TestCaseID: id,
		Name:       req.Name,
		Position:   req.Position,
		Values:     req.Values,
	}

	if err := h.store.CreateParameterSet(r.Context(), ps); err != nil {
		if isValidationError(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create parameter set")
		return
	}

	respondJSON(w, http.StatusCreated, ps)
}

// ListParameterSets handles listing a test case's parameter sets.
func (h *TestCaseHandler) ListParameterSets(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "test case")
	if !ok {
		return
	}

	sets, err := h.store.ListParameterSets(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list parameter sets")
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(sets, len(sets), len(sets), 0))
}

// isValidationError reports whether the error is a domain validation failure
// the client can fix.
func isValidationError(err error) bool {
	return errors.Is(err, testcase.ErrInvalidName) ||
		errors.Is(err, testcase.ErrInvalidTargetURL) ||
		errors.Is(err, testcase.ErrInvalidSteps) ||
		errors.Is(err, testcase.ErrInvalidAction) ||
		errors.Is(err, testcase.ErrMissingDataKey) ||
		errors.Is(err, testcase.ErrInvalidTestCaseID)
}
