// internal/api/handler/web/pages_test.go
package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/newthinker/tadash/internal/analysis"
	"github.com/newthinker/tadash/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCollector struct {
	bars []core.Bar
	err  error
}

func (s *stubCollector) Name() string { return "stub" }

func (s *stubCollector) FetchHistory(context.Context, core.Query) ([]core.Bar, error) {
	return s.bars, s.err
}

func risingBars(n int) []core.Bar {
	bars := make([]core.Bar, n)
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := 10 + float64(i)
		bars[i] = core.Bar{Time: t0.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 100}
	}
	return bars
}

func newTestHandler(t *testing.T, src *stubCollector) *Handler {
	t.Helper()
	h, err := NewHandler(analysis.NewService(src, zap.NewNop()), "", zap.NewNop())
	require.NoError(t, err)
	return h
}

func TestNewHandler_EmbeddedTemplates(t *testing.T) {
	h := newTestHandler(t, &stubCollector{})
	for _, page := range pages {
		assert.Contains(t, h.pageTemplates, page)
	}
}

func TestNewHandlerWithFS_MissingPage(t *testing.T) {
	fsys := fstest.MapFS{
		"layout.html": {Data: []byte(`{{template "content" .}}`)},
		"index.html":  {Data: []byte(`{{define "content"}}hi{{end}}`)},
	}
	_, err := NewHandlerWithFS(nil, fsys, nil)
	assert.Error(t, err)
}

func TestHandler_Index(t *testing.T) {
	h := newTestHandler(t, &stubCollector{})

	w := httptest.NewRecorder()
	h.Index(w, httptest.NewRequest("GET", "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, InfoIdle)
	assert.Contains(t, body, `value="AAPL"`)
	assert.Contains(t, body, `<option value="3mo" selected>`)
	assert.Contains(t, body, `<option value="1d" selected>`)
	assert.Contains(t, body, "Examples: AAPL, TSLA, BTC-USD, ^VNINDEX")
}

func TestHandler_Index_UnknownPath(t *testing.T) {
	h := newTestHandler(t, &stubCollector{})

	w := httptest.NewRecorder()
	h.Index(w, httptest.NewRequest("GET", "/favicon.ico", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Analyze(t *testing.T) {
	h := newTestHandler(t, &stubCollector{bars: risingBars(20)})

	w := httptest.NewRecorder()
	h.Analyze(w, httptest.NewRequest("GET", "/analyze?ticker=aapl&period=6mo&interval=1d", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	assert.Contains(t, body, SuccessAnalysis)
	assert.Contains(t, body, "AAPL — Candlestick Chart with SMA &amp; EMA")
	assert.Contains(t, body, "RSI (Relative Strength Index)")
	assert.Contains(t, body, "$29.00", "summary close")
	assert.Contains(t, body, "100.00", "summary RSI")
	assert.Contains(t, body, `<option value="6mo" selected>`)
	assert.Contains(t, body, `href="/export?interval=1d&amp;period=6mo&amp;symbol=AAPL"`)
	assert.Equal(t, 10, strings.Count(body, "<tr><td>2024-"), "table shows the last 10 rows")
	assert.Contains(t, body, "<tr><td>2024-01-21</td><td>29.00</td>")
	assert.NotContains(t, body, InfoIdle)
}

func TestHandler_Analyze_ShortSeriesShowsMissing(t *testing.T) {
	h := newTestHandler(t, &stubCollector{bars: risingBars(3)})

	w := httptest.NewRecorder()
	h.Analyze(w, httptest.NewRequest("GET", "/analyze?ticker=TSLA", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), analysis.Missing)
}

func TestHandler_Analyze_Warnings(t *testing.T) {
	tests := []struct {
		name    string
		src     *stubCollector
		url     string
		status  int
		warning string
	}{
		{"no data", &stubCollector{bars: []core.Bar{}}, "/analyze?ticker=ZZZZ", http.StatusNotFound, WarningNoData},
		{"provider failure", &stubCollector{err: core.WrapError(core.ErrCollectorFailed, errors.New("503"))},
			"/analyze?ticker=AAPL", http.StatusBadGateway, WarningProvider},
		{"invalid interval", &stubCollector{}, "/analyze?ticker=AAPL&interval=5m", http.StatusBadRequest,
			"Invalid input: unsupported interval: 5m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.src)

			w := httptest.NewRecorder()
			h.Analyze(w, httptest.NewRequest("GET", tt.url, nil))

			assert.Equal(t, tt.status, w.Code)
			body := w.Body.String()
			assert.Contains(t, body, tt.warning)
			assert.NotContains(t, body, "price-chart", "nothing else is rendered")
			assert.NotContains(t, body, "Download CSV")
			assert.NotContains(t, body, SuccessAnalysis)
		})
	}
}

func TestHandler_Export(t *testing.T) {
	h := newTestHandler(t, &stubCollector{bars: risingBars(15)})

	w := httptest.NewRecorder()
	h.Export(w, httptest.NewRequest("GET", "/export?symbol=tsla", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="TSLA_technical_analysis.csv"`, w.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "date,open,high,low,close,volume,SMA_14,EMA_14,RSI_14\n"))
}

func TestHandler_Export_NoData(t *testing.T) {
	h := newTestHandler(t, &stubCollector{bars: []core.Bar{}})

	w := httptest.NewRecorder()
	h.Export(w, httptest.NewRequest("GET", "/export?symbol=ZZZZ", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), WarningNoData)
	assert.Empty(t, w.Header().Get("Content-Disposition"))
}
