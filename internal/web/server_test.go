package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/oeewatch/internal/metrics"
	"github.com/rewired-gh/oeewatch/internal/models"
	"github.com/rewired-gh/oeewatch/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *storage.Storage, *metrics.Recorder) {
	t.Helper()
	store, err := storage.New(10, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)
	return NewServer(":0", store, registry, 3), store, recorder
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, recorder := newTestServer(t)
	recorder.ObserveParetoReport(&models.ParetoReport{
		Scope:   "line:1",
		Entries: []models.ParetoEntry{{Label: "AL-1", Value: 1, CumulativePercent: 100}},
	})

	w := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `oeewatch_pareto_top_share_percent{scope="line:1"} 100`)
}

func TestGetParetoReport(t *testing.T) {
	s, store, _ := newTestServer(t)
	report := &models.ParetoReport{
		ID:        "r-1",
		Scope:     "line:3",
		Period:    "2025-03-01",
		Metric:    models.MetricCount,
		TopN:      3,
		Entries:   []models.ParetoEntry{{Label: "AL-1", Value: 4, CumulativePercent: 100}},
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.AddParetoReport(report))

	w := do(t, s, http.MethodGet, "/api/reports/pareto/line:3", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got models.ParetoReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "r-1", got.ID)
	assert.Equal(t, []string{"AL-1"}, got.Labels())
}

func TestGetReport_NotFound(t *testing.T) {
	s, _, _ := newTestServer(t)

	for _, path := range []string{"/api/reports/pareto/line:404", "/api/reports/downtime/machine:404"} {
		w := do(t, s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, ErrCodeNotFound, decodeError(t, w).Code, path)
	}
}

func TestGetReport_EmptyScope(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/api/reports/pareto/", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDowntimeReport(t *testing.T) {
	s, store, _ := newTestServer(t)
	report := &models.DowntimeReport{
		ID:        "d-1",
		Scope:     "machine:31",
		Period:    "2025-03",
		Buckets:   []models.NormalizedBucket{{Label: "1", Shares: []models.CategoryShare{{Category: models.CategoryOperation, Percent: 100}}}},
		Totals:    models.NormalizedBucket{Label: "2025-03", Shares: []models.CategoryShare{{Category: models.CategoryOperation, Percent: 100}}},
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.AddDowntimeReport(report))

	w := do(t, s, http.MethodGet, "/api/reports/downtime/machine:31", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got models.DowntimeReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 100, got.Totals.Percent(models.CategoryOperation))
}

func TestListScopes(t *testing.T) {
	s, store, _ := newTestServer(t)
	for _, scope := range []string{"line:2", "line:1"} {
		require.NoError(t, store.AddParetoReport(&models.ParetoReport{
			ID: "r-" + scope, Scope: scope, Period: "2025-03-01", Metric: models.MetricCount, TopN: 1,
			Entries: []models.ParetoEntry{}, CreatedAt: time.Now(),
		}))
	}

	w := do(t, s, http.MethodGet, "/api/scopes/pareto", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["line:1","line:2"]`, w.Body.String())

	w = do(t, s, http.MethodGet, "/api/scopes/downtime", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, s, http.MethodGet, "/api/scopes/oee", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNormalize(t *testing.T) {
	s, _, _ := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
		wantCode   string
	}{
		{name: "thirds", body: `{"values":[1,1,1]}`, wantStatus: http.StatusOK, wantBody: `{"percents":[34,33,33]}`},
		{name: "zero total", body: `{"values":[0,0]}`, wantStatus: http.StatusOK, wantBody: `{"percents":[0,0]}`},
		{name: "empty", body: `{"values":[]}`, wantStatus: http.StatusOK, wantBody: `{"percents":[]}`},
		{name: "negative", body: `{"values":[1,-1]}`, wantStatus: http.StatusBadRequest, wantCode: ErrCodeInvalidArgument},
		{name: "missing values", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: ErrCodeBadRequest},
		{name: "malformed", body: `{"values":`, wantStatus: http.StatusBadRequest, wantCode: ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/api/normalize", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, w.Body.String())
			}
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
			}
		})
	}
}

func TestPareto(t *testing.T) {
	s, _, _ := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "default top n",
			body:       `{"items":[{"label":"A","value":1},{"label":"B","value":5},{"label":"C","value":3},{"label":"D","value":1}]}`,
			wantStatus: http.StatusOK,
			wantBody: `[
				{"label":"B","value":5,"cumulative_percent":55.6},
				{"label":"C","value":3,"cumulative_percent":88.9},
				{"label":"A","value":1,"cumulative_percent":100}
			]`,
		},
		{
			name:       "recovery hours",
			body:       `{"items":[{"label":"A","value":5400},{"label":"B","value":1800}],"top_n":5,"metric":"recovery"}`,
			wantStatus: http.StatusOK,
			wantBody:   `[{"label":"A","value":1.5,"cumulative_percent":75},{"label":"B","value":0.5,"cumulative_percent":100}]`,
		},
		{
			name:       "zero subtotal",
			body:       `{"items":[{"label":"A","value":0}],"top_n":1}`,
			wantStatus: http.StatusOK,
			wantBody:   `[]`,
		},
		{
			name:       "zero top n",
			body:       `{"items":[{"label":"A","value":1}],"top_n":0}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "negative value",
			body:       `{"items":[{"label":"A","value":-1}],"top_n":1}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown metric",
			body:       `{"items":[],"metric":"oee"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/api/pareto", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodOptions, "/api/normalize", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNoRoute(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrCodeNotFound, decodeError(t, w).Code)
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
