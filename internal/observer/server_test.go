package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coglabtools/pmback/internal/metrics"
	"github.com/coglabtools/pmback/internal/session"
	"github.com/coglabtools/pmback/internal/trials"
)

func setupTestServer(t *testing.T) (*Server, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	srv, err := NewServer(m, nil, Config{Host: "localhost", Port: 9187})
	require.NoError(t, err)
	return srv, m
}

func TestNewServer_RequiresMetrics(t *testing.T) {
	_, err := NewServer(nil, nil, Config{})
	assert.Error(t, err)
}

func TestServer_Health(t *testing.T) {
	srv, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestServer_Metrics(t *testing.T) {
	srv, m := setupTestServer(t)
	m.TrialPresented("neutral")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pmback_trials_presented_total")
}

func TestServer_SessionSnapshot(t *testing.T) {
	srv, _ := setupTestServer(t)

	srv.Update(session.Snapshot{
		Phase:      session.PhaseTrialImage,
		Category:   trials.CategoryNeutral,
		Block:      1,
		BlockCount: 3,
		TrialIndex: 12,
		TrialCount: 70,
		Presented:  13,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var view map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "trialImage", view["phase"])
	assert.Equal(t, "neutral", view["category"])
	assert.Equal(t, float64(12), view["trialIndex"])
	_, hasSummary := view["summary"]
	assert.False(t, hasSummary, "summary is omitted until finalization")
}

func TestServer_SessionBeforeAnyUpdate(t *testing.T) {
	srv, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phase":"idle"`)
}
