package orchestrator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dash-resolver/internal/platform/metrics"
)

func newTestRouter(t *testing.T, f Fetcher) (*chi.Mux, *Service) {
	t.Helper()
	svc := newTestService(t, f)
	h := NewHandler(svc, discardLogger(), metrics.New())
	r := chi.NewRouter()
	h.Routes(r)
	return r, svc
}

func postManifest(t *testing.T, r http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/manifests", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func serve(r http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandler_CreateManifest(t *testing.T) {
	r, svc := newTestRouter(t, newFakeFetcher(map[string]string{staticURL: staticMPD}))

	rec := postManifest(t, r, `{"url":"`+staticURL+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, NewManifestID(staticURL), got.ID)
	assert.Equal(t, staticURL, got.URL)
	assert.False(t, got.Dynamic)
	require.Len(t, got.Periods, 1)
	assert.Equal(t, "p0", got.Periods[0].ID)
	assert.Equal(t, 1, got.Periods[0].AdaptationSets)
	assert.Nil(t, got.LifetimeSeconds, "static manifest should have no lifetime")
	assert.False(t, svc.Watching(got.ID), "static manifest should not be watched")
}

func TestHandler_CreateManifest_dynamicIsTracked(t *testing.T) {
	r, svc := newTestRouter(t, newFakeFetcher(map[string]string{
		liveURL:  liveMPD,
		clockURL: "2024-01-01T00:01:00Z",
	}))

	rec := postManifest(t, r, `{"url":"`+liveURL+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var got Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Dynamic)
	assert.True(t, got.Live)
	require.NotNil(t, got.LivePosition)
	assert.EqualValues(t, 60, *got.LivePosition)
	assert.NotNil(t, got.ClockOffsetMS, "expected clock offset in summary")
	assert.True(t, svc.Watching(got.ID), "dynamic manifest should be watched")
}

func TestHandler_CreateManifest_errors(t *testing.T) {
	r, _ := newTestRouter(t, newFakeFetcher(map[string]string{staticURL: xlinkMPD}))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", "not json", http.StatusBadRequest},
		{"missing url", `{}`, http.StatusBadRequest},
		{"unsupported scheme", `{"url":"ftp://example.com/a.mpd"}`, http.StatusBadRequest},
		{"upstream 404", `{"url":"` + liveURL + `"}`, http.StatusBadGateway},
		{"xlink failure", `{"url":"` + staticURL + `"}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, postManifest(t, r, tt.body).Code)
		})
	}
}

func TestHandler_GetListDelete(t *testing.T) {
	r, _ := newTestRouter(t, newFakeFetcher(map[string]string{staticURL: staticMPD}))
	require.Equal(t, http.StatusCreated, postManifest(t, r, `{"url":"`+staticURL+`"}`).Code)
	id := string(NewManifestID(staticURL))

	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/manifests/"+id).Code)

	rec := serve(r, http.MethodGet, "/manifests")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, string(list[0].ID))

	require.Equal(t, http.StatusNoContent, serve(r, http.MethodDelete, "/manifests/"+id).Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/manifests/"+id).Code, "get after delete")
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodDelete, "/manifests/"+id).Code, "second delete")
}

func TestHandler_ListManifests_empty(t *testing.T) {
	r, _ := newTestRouter(t, newFakeFetcher(nil))

	rec := serve(r, http.MethodGet, "/manifests")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())
}
