package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dashboardMux mirrors the server's route shapes: a catch-all page, the
// analysis pages and a nested API mux.
func dashboardMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "NODATA" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /export", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Write([]byte("date,open\n"))
	})

	v1 := http.NewServeMux()
	v1.HandleFunc("GET /api/v1/analysis", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.Handle("GET /api/v1/", v1)
	return mux
}

func get(t *testing.T, h http.Handler, target string) int {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w.Code
}

func TestHTTPMiddleware_LabelsRoutesWithStatus(t *testing.T) {
	reg := NewRegistry()
	h := HTTPMiddleware(reg)(dashboardMux())

	require.Equal(t, http.StatusOK, get(t, h, "/analyze?symbol=AAPL"))
	require.Equal(t, http.StatusNotFound, get(t, h, "/analyze?symbol=NODATA"))
	require.Equal(t, http.StatusOK, get(t, h, "/export?symbol=AAPL"))
	require.Equal(t, http.StatusBadGateway, get(t, h, "/api/v1/analysis?symbol=AAPL"))

	tests := []struct {
		path, status string
		want         float64
	}{
		{"/analyze", "2xx", 1},
		{"/analyze", "4xx", 1},
		{"/export", "2xx", 1},
		{"/api/v1/analysis", "5xx", 1},
	}
	for _, tt := range tests {
		got := counterValue(t, reg, "http_requests_total", map[string]string{
			"method": "GET", "path": tt.path, "status": tt.status,
		})
		assert.Equal(t, tt.want, got, "%s %s", tt.path, tt.status)
	}
}

func TestHTTPMiddleware_UnknownPathsShareOneSeries(t *testing.T) {
	reg := NewRegistry()
	h := HTTPMiddleware(reg)(dashboardMux())

	for _, p := range []string{"/wp-admin", "/a/b/c", "/favicon.ico"} {
		require.Equal(t, http.StatusNotFound, get(t, h, p))
	}

	assert.Equal(t, 3.0, counterValue(t, reg, "http_requests_total",
		map[string]string{"path": "/", "status": "4xx"}))
	assert.Zero(t, counterValue(t, reg, "http_requests_total",
		map[string]string{"path": "/wp-admin"}))
}

func TestHTTPMiddleware_MethodMismatchIsUnmatched(t *testing.T) {
	reg := NewRegistry()
	h := HTTPMiddleware(reg)(dashboardMux())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/analyze", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)

	assert.Equal(t, 1.0, counterValue(t, reg, "http_requests_total",
		map[string]string{"method": "POST", "path": "unmatched", "status": "4xx"}))
}

func TestHTTPMiddleware_RecordsDurationPerRoute(t *testing.T) {
	reg := NewRegistry()
	h := HTTPMiddleware(reg)(dashboardMux())
	get(t, h, "/export")

	mf := family(t, reg, "http_request_duration_seconds")
	require.NotNil(t, mf)
	var found bool
	for _, m := range mf.GetMetric() {
		if hasLabels(m, map[string]string{"path": "/export"}) {
			found = true
			assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found)
}

func TestHTTPMiddleware_TracksInFlight(t *testing.T) {
	reg := NewRegistry()

	var during float64
	h := HTTPMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = family(t, reg, "http_requests_in_flight").GetMetric()[0].GetGauge().GetValue()
	}))
	get(t, h, "/analyze")

	assert.Equal(t, 1.0, during)
	assert.Equal(t, 0.0, family(t, reg, "http_requests_in_flight").GetMetric()[0].GetGauge().GetValue())
}
