package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iqap-dev/iqap-runner/authoring"
	"github.com/iqap-dev/iqap-runner/blueprint"
	"github.com/iqap-dev/iqap-runner/coordinator"
	"github.com/iqap-dev/iqap-runner/events"
	"github.com/iqap-dev/iqap-runner/logger"
	"github.com/iqap-dev/iqap-runner/queue"
	"github.com/iqap-dev/iqap-runner/testcase"
	"github.com/iqap-dev/iqap-runner/testrun"
	"github.com/iqap-dev/iqap-runner/testutil"
)

type fakeGenerator struct {
	draft *authoring.Draft
	err   error
}

func (g *fakeGenerator) Generate(ctx context.Context, objective string, bp *blueprint.UIBlueprint) (*authoring.Draft, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.draft, nil
}

type fakeProvider struct {
	bp  *blueprint.UIBlueprint
	err error
}

func (p *fakeProvider) Get(ctx context.Context, url string) (*blueprint.UIBlueprint, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.bp, nil
}

type testAPI struct {
	router    *mux.Router
	caseStore testcase.Store
	runStore  testrun.Store
	generator *fakeGenerator
	provider  *fakeProvider
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()

	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &testcase.TestCase{}, &testcase.ParameterSet{}, &testrun.TestRun{})

	log := logger.NewTestLogger()
	caseStore := testcase.NewMySQLStore(db, log)
	runStore := testrun.NewMySQLStore(db, log)

	q := queue.NewMemoryQueue(16)
	t.Cleanup(func() { q.Close() })

	coord := coordinator.New(coordinator.Config{
		Runs:    runStore,
		Cases:   caseStore,
		Emitter: events.NewMemoryEmitter(),
		Queue:   q,
		Logger:  log,
	})

	generator := &fakeGenerator{}
	provider := &fakeProvider{bp: &blueprint.UIBlueprint{URL: "https://www.saucedemo.com"}}

	router := mux.NewRouter()
	tcHandler := NewTestCaseHandler(caseStore, log)
	runHandler := NewRunHandler(runStore, coord, log)
	genHandler := NewGenerateHandler(generator, provider, caseStore, coord, log)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/test-cases", tcHandler.Create).Methods("POST")
	api.HandleFunc("/test-cases", tcHandler.List).Methods("GET")
	api.HandleFunc("/test-cases/generate", genHandler.Generate).Methods("POST")
	api.HandleFunc("/test-cases/{id}", tcHandler.GetByID).Methods("GET")
	api.HandleFunc("/test-cases/{id}/parameter-sets", tcHandler.CreateParameterSet).Methods("POST")
	api.HandleFunc("/test-cases/{id}/runs", runHandler.Start).Methods("POST")
	api.HandleFunc("/runs", runHandler.List).Methods("GET")
	api.HandleFunc("/runs/{id}", runHandler.GetByID).Methods("GET")
	api.HandleFunc("/runs/{id}/cancel", runHandler.Cancel).Methods("POST")

	return &testAPI{
		router:    router,
		caseStore: caseStore,
		runStore:  runStore,
		generator: generator,
		provider:  provider,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func validCreateRequest() CreateTestCaseRequest {
	return CreateTestCaseRequest{
		Name:      "Login flow",
		Objective: "Verify a standard user can log in",
		TargetURL: "https://www.saucedemo.com",
		Steps: testcase.Steps{
			{Index: 1, Action: testcase.ActionEnterText, TargetElement: "username-field", DataKey: "Username"},
			{Index: 2, Action: testcase.ActionClick, TargetElement: "login-button"},
			{Index: 3, Action: testcase.ActionVerifyVisible, TargetElement: "dashboard-header"},
		},
	}
}

func TestTestCaseHandler_Create(t *testing.T) {
	api := setupAPI(t)

	t.Run("valid request creates test case", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/v1/test-cases", validCreateRequest())
		require.Equal(t, http.StatusCreated, rec.Code)

		var created testcase.TestCase
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.NotEqual(t, uuid.Nil, created.ID)
		assert.Equal(t, "Login flow", created.Name)
	})

	t.Run("missing target url is a bad request", func(t *testing.T) {
		req := validCreateRequest()
		req.TargetURL = ""
		rec := api.do(t, http.MethodPost, "/api/v1/test-cases", req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("enter_text without data key is a bad request", func(t *testing.T) {
		req := validCreateRequest()
		req.Steps[0].DataKey = ""
		rec := api.do(t, http.MethodPost, "/api/v1/test-cases", req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTestCaseHandler_GetByID(t *testing.T) {
	api := setupAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/test-cases", validCreateRequest())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created testcase.TestCase
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	t.Run("existing test case", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/v1/test-cases/"+created.ID.String(), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/v1/test-cases/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id is a bad request", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/v1/test-cases/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRunHandler_StartAndList(t *testing.T) {
	api := setupAPI(t)
	ctx := context.Background()

	rec := api.do(t, http.MethodPost, "/api/v1/test-cases", validCreateRequest())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created testcase.TestCase
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = api.do(t, http.MethodPost, "/api/v1/test-cases/"+created.ID.String()+"/parameter-sets",
		CreateParameterSetRequest{Name: "standard user", Values: testcase.Params{"Username": "standard_user"}})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("start expands one run per parameter set", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/v1/test-cases/"+created.ID.String()+"/runs", nil)
		require.Equal(t, http.StatusAccepted, rec.Code)

		runs, err := api.runStore.List(ctx, testrun.Filter{})
		require.NoError(t, err)
		assert.Len(t, runs, 1)
	})

	t.Run("list filters by status", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/v1/runs?status=pending", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp PaginatedResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Total)
	})

	t.Run("invalid status filter is a bad request", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/v1/runs?status=bogus", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid since timestamp is a bad request", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/v1/runs?since=yesterday", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("start on unknown test case is not found", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/v1/test-cases/"+uuid.NewString()+"/runs", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGenerateHandler_Generate(t *testing.T) {
	api := setupAPI(t)

	draft := &authoring.Draft{
		Name:      "Verify a standard user can log in",
		Objective: "Verify a standard user can log in",
		TargetURL: "https://www.saucedemo.com",
		Steps: testcase.Steps{
			{Index: 1, Action: testcase.ActionEnterText, TargetElement: "username-field", DataKey: "Username"},
			{Index: 2, Action: testcase.ActionClick, TargetElement: "login-button"},
			{Index: 3, Action: testcase.ActionVerifyVisible, TargetElement: "dashboard-header"},
		},
		ParameterSets: []authoring.DraftParameterSet{
			{Name: "standard user", Values: testcase.Params{"Username": "standard_user"}},
			{Name: "problem user", Values: testcase.Params{"Username": "problem_user"}},
		},
	}

	t.Run("persists case and dispatches one run per set", func(t *testing.T) {
		api.generator.draft = draft
		rec := api.do(t, http.MethodPost, "/api/v1/test-cases/generate",
			GenerateRequest{Objective: draft.Objective, TargetURL: draft.TargetURL})
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp GenerateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEqual(t, uuid.Nil, resp.TestCase.ID)
		assert.Len(t, resp.ParameterSets, 2)
		require.Len(t, resp.Runs, 2)
		for _, run := range resp.Runs {
			assert.Equal(t, testrun.StatusPending, run.Status)
			assert.Equal(t, resp.TestCase.ID, run.TestCaseID)
		}
	})

	t.Run("missing target url is a bad request", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/v1/test-cases/generate",
			GenerateRequest{Objective: "anything"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("crawl timeout maps to gateway timeout", func(t *testing.T) {
		api.provider.err = blueprint.ErrCrawlTimeout
		defer func() { api.provider.err = nil }()
		rec := api.do(t, http.MethodPost, "/api/v1/test-cases/generate",
			GenerateRequest{Objective: "anything", TargetURL: "https://www.saucedemo.com"})
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})

	t.Run("generation failure is unprocessable", func(t *testing.T) {
		api.generator.err = authoring.ErrGenerationFailed
		defer func() { api.generator.err = nil }()
		rec := api.do(t, http.MethodPost, "/api/v1/test-cases/generate",
			GenerateRequest{Objective: "anything", TargetURL: "https://www.saucedemo.com"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestRunHandler_Cancel(t *testing.T) {
	api := setupAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/test-cases", validCreateRequest())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created testcase.TestCase
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = api.do(t, http.MethodPost, "/api/v1/test-cases/"+created.ID.String()+"/runs", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	runs, err := api.runStore.List(context.Background(), testrun.Filter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	runID := runs[0].ID.String()

	t.Run("pending run cancels", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/v1/runs/"+runID+"/cancel", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("canceling again conflicts", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/v1/runs/"+runID+"/cancel", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown run is not found", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/api/v1/runs/"+uuid.NewString()+"/cancel", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
