package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/recap/internal/config"
	"github.com/timmy/recap/internal/lock"
	"github.com/timmy/recap/internal/metrics"
	"github.com/timmy/recap/internal/notify"
	"github.com/timmy/recap/internal/qa"
	"github.com/timmy/recap/internal/repository"
	"github.com/timmy/recap/internal/service"
	"github.com/timmy/recap/internal/storage"
)

var testReport = func() string {
	var b strings.Builder
	for _, h := range []string{"Summary", "Decisions", "Action Items", "Next Steps"} {
		b.WriteString("## " + h + "\n\nThe team agreed on the plan.\n\n")
	}
	b.WriteString(strings.TrimSpace(strings.Repeat("detail ", 560)))
	b.WriteString("\n\nPrepared by Recap")
	return b.String()
}()

type stubOracle struct{}

func (stubOracle) Submit(ctx context.Context, prompt string, schema *service.Schema) (string, error) {
	if schema != nil {
		return `{"score": 1, "issues": []}`, nil
	}
	return testReport, nil
}

type stubChecker struct{}

func (stubChecker) Check(ctx context.Context, text string) ([]service.LanguageMatch, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	db, err := repository.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	reg := prometheus.NewRegistry()
	sink := metrics.NewPrometheusSink(reg)
	repos := repository.New(db)
	router := notify.NewRouter(sink).Register(notify.ChannelLog, notify.NewLogSender())
	quality := config.DefaultQualityConfig()

	deps := service.OrchestratorDeps{
		Repos:    repos,
		Storage:  storage.NewMemoryStorage("https://cdn.test"),
		Oracle:   stubOracle{},
		Notifier: router,
		Locker:   lock.NewMemoryLocker(),
		Metrics:  sink,
	}
	pipelineCfg := service.OrchestratorConfig{SignatureMarker: quality.SignatureMarker}
	orch := service.NewOrchestrator(deps, pipelineCfg)
	gate := service.NewQualityGate(repos, stubChecker{}, stubOracle{}, quality, sink)
	delivery := service.NewDeliveryService(repos, router)
	harness := qa.NewHarness(qa.Deps{
		Repos:          repos,
		Pipeline:       deps,
		PipelineConfig: pipelineCfg,
		Gate:           gate,
		Delivery:       delivery,
		Router:         router,
		Fixtures:       &qa.Fixtures{Transcript: "SPEAKER_01: hello", Manifest: qa.Manifest{Title: "QA"}},
		Metrics:        sink,
	}, config.DefaultQAConfig(), quality)

	cfg := &config.Config{
		Server:  config.ServerConfig{Mode: "test", CORS: config.CORSConfig{AllowedOrigins: []string{"https://review.example.com"}}},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	return SetupRouter(Services{
		DB:       db,
		Repos:    repos,
		Executor: orch,
		Gate:     gate,
		Retry:    service.NewRetryCoordinator(repos.Deliveries, orch, service.RetryPolicy{MaxAttempts: 5}),
		Delivery: delivery,
		Harness:  harness,
		Gatherer: reg,
	}, cfg)
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func createMeeting(t *testing.T, r http.Handler, id string) {
	t.Helper()
	w, _ := do(t, r, http.MethodPost, "/api/v1/meetings", map[string]interface{}{
		"id":           id,
		"title":        "Planning " + id,
		"transcript":   "SPEAKER_01: ship it\nSPEAKER_02: agreed",
		"participants": []string{"log:alice"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHealth(t *testing.T) {
	r := newTestServer(t)
	w, body := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMeetings(t *testing.T) {
	r := newTestServer(t)

	w, _ := do(t, r, http.MethodPost, "/api/v1/meetings", map[string]interface{}{"transcript": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "title is required")
	w, _ = do(t, r, http.MethodPost, "/api/v1/meetings", map[string]interface{}{"title": "Empty"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "transcript or audio is required")

	createMeeting(t, r, "m-1")
	w, body := do(t, r, http.MethodGet, "/api/v1/meetings/m-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "none", body["report_status"])

	w, _ = do(t, r, http.MethodGet, "/api/v1/meetings/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = do(t, r, http.MethodGet, "/api/v1/meetings?limit=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["meetings"], 1)
}

func TestExecuteEvaluateSend(t *testing.T) {
	r := newTestServer(t)
	createMeeting(t, r, "m-1")

	w, body := do(t, r, http.MethodPost, "/api/v1/meetings/m-1/execute", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "success", body["status"])
	progress := body["progress"].(map[string]interface{})
	for _, step := range service.StepOrder {
		assert.Equal(t, "success", progress[step], step)
	}
	runID := body["run_id"].(string)
	artifactID := body["artifact_id"].(string)

	w, body = do(t, r, http.MethodGet, "/api/v1/runs/"+runID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["progress"], len(service.StepOrder))

	w, body = do(t, r, http.MethodGet, "/api/v1/meetings/m-1/runs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["runs"], 1)

	w, _ = do(t, r, http.MethodPost, "/api/v1/deliveries/"+artifactID+"/send", nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code, "not evaluated yet")

	w, body = do(t, r, http.MethodPost, "/api/v1/deliveries/"+artifactID+"/evaluate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "READY_TO_SEND", body["verdict"])

	w, body = do(t, r, http.MethodGet, "/api/v1/deliveries/"+artifactID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["checkpoints"], 5)

	w, body = do(t, r, http.MethodPost, "/api/v1/deliveries/"+artifactID+"/send", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []interface{}{"log:alice"}, body["delivered"])

	w, _ = do(t, r, http.MethodPost, "/api/v1/deliveries/"+artifactID+"/send", map[string]bool{"force": true})
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = do(t, r, http.MethodPost, "/api/v1/deliveries/"+artifactID+"/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/deliveries/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExecute_FailedRunStillReturnsRecord(t *testing.T) {
	r := newTestServer(t)
	w, _ := do(t, r, http.MethodPost, "/api/v1/meetings", map[string]interface{}{
		"id": "m-quiet", "title": "Nobody invited", "transcript": "SPEAKER_01: hi",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w, body := do(t, r, http.MethodPost, "/api/v1/meetings/m-quiet/execute", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "failed", body["status"])
	assert.Contains(t, body["error"], "NOTIFY")
	assert.Equal(t, "failed", body["progress"].(map[string]interface{})["NOTIFY"])
}

func TestQARuns(t *testing.T) {
	r := newTestServer(t)

	w, _ := do(t, r, http.MethodPost, "/api/v1/qa/runs", map[string]string{"kind": "nightly"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := do(t, r, http.MethodPost, "/api/v1/qa/runs", map[string]string{"kind": "smoke"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	run := body["run"].(map[string]interface{})
	runID := run["run_id"].(string)
	assert.Equal(t, "SMOKE", run["run_kind"])
	assert.NotEqual(t, "RUNNING", run["status"])

	w, body = do(t, r, http.MethodGet, "/api/v1/qa/runs?kind=smoke", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["runs"], 1)

	w, body = do(t, r, http.MethodGet, "/api/v1/qa/runs/"+runID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["checks"], 9)

	w, _ = do(t, r, http.MethodGet, "/api/v1/qa/runs/QA-SMOKE-nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestServer(t)
	createMeeting(t, r, "m-1")
	do(t, r, http.MethodPost, "/api/v1/meetings/m-1/execute", nil)

	w, _ := do(t, r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "recap_")
}

func TestCORS(t *testing.T) {
	r := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/meetings", nil)
	req.Header.Set("Origin", "https://review.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://review.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/meetings", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
