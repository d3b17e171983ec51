package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_counters(t *testing.T) {
	m := New()

	m.IncResolutions()
	m.IncResolutionFailures()
	m.IncClockFetches(false)
	m.IncClockFetches(true)
	m.IncXLinkRound(3)
	m.AddWarnings(2)
	m.SetManifestsTracked(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutionsTotal), "resolutions")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutionFailuresTotal), "resolution failures")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.clockFetchesTotal), "clock fetches")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.clockFetchFailuresTotal), "clock failures")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.xlinkRoundsTotal), "xlink rounds")
	assert.Equal(t, 3.0, testutil.ToFloat64(m.xlinkFetchesTotal), "xlink fetches")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.warningsTotal), "warnings")
	assert.Equal(t, 4.0, testutil.ToFloat64(m.manifestsTracked), "tracked")
}

func TestRequestMiddleware(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(RequestMiddleware(m))
	r.Get("/manifests/{manifest_id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "manifest_id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	for _, path := range []string{"/manifests/a", "/manifests/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.requestDuration), "expected one route series")
}

func TestHandler_updatesGauges(t *testing.T) {
	m := New()
	called := false
	srv := httptest.NewServer(m.Handler(func() {
		called = true
		m.SetManifestsTracked(7)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, called, "updateGauges was not called")
	assert.Contains(t, string(body), "dash_manifests_tracked 7")
}
