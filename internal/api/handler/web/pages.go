// internal/api/handler/web/pages.go
package web

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/newthinker/tadash/internal/analysis"
	"github.com/newthinker/tadash/internal/api/handler/api"
	"github.com/newthinker/tadash/internal/api/response"
	"github.com/newthinker/tadash/internal/chart"
	"github.com/newthinker/tadash/internal/core"
	"go.uber.org/zap"
)

// Notices shown above the results
const (
	InfoIdle        = "Enter a ticker and click Fetch & Analyze to start."
	WarningNoData   = "No data found. Try another ticker or period."
	WarningProvider = "Could not fetch market data right now. Please try again."
	SuccessAnalysis = "Analysis complete"
)

// FormView holds the input form state
type FormView struct {
	Symbol    string
	Period    string
	Interval  string
	Periods   []core.Period
	Intervals []core.Interval
}

// Metric is one summary tile
type Metric struct {
	Label string
	Value string
}

// PageData holds data for both page templates
type PageData struct {
	Title   string
	Form    FormView
	Info    string
	Warning string
	Success string

	Symbol    string
	Metrics   []Metric
	Table     []analysis.TableRow
	Chart     *chart.Chart
	ExportURL string
}

// Index renders the input form
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := PageData{
		Title: "Technical Analysis Dashboard",
		Form:  formFrom(analysis.Request{}),
		Info:  InfoIdle,
	}
	h.render(w, http.StatusOK, "index.html", data)
}

// Analyze fetches, enriches and renders a series
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	req := analysis.RequestFromValues(r.URL.Query())
	data := PageData{
		Title: "Technical Analysis Dashboard",
		Form:  formFrom(req),
	}

	result, err := h.svc.Analyze(r.Context(), req)
	if err != nil {
		h.renderFailure(w, data, err)
		return
	}

	data.Form = formFrom(analysis.Request{
		Symbol:   result.Query.Symbol,
		Period:   string(result.Query.Period),
		Interval: string(result.Query.Interval),
	})
	data.Title = result.Query.Symbol + " Technical Analysis"
	data.Success = SuccessAnalysis
	data.Symbol = result.Query.Symbol
	data.Metrics = metricsFrom(result.Summary)
	data.Table = analysis.FormatRows(result.Tail, result.Query.Interval)
	data.Chart = &result.Chart
	data.ExportURL = exportURL(result.Query)

	h.render(w, http.StatusOK, "analyze.html", data)
}

// Export serves the full enriched series as a CSV download
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	req := analysis.RequestFromValues(r.URL.Query())

	out, err := h.svc.Export(r.Context(), req)
	if err != nil {
		h.renderFailure(w, PageData{Title: "Technical Analysis Dashboard", Form: formFrom(req)}, err)
		return
	}
	api.WriteAttachment(w, out)
}

// renderFailure shows the form with a warning and nothing else
func (h *Handler) renderFailure(w http.ResponseWriter, data PageData, err error) {
	status := response.StatusFor(err)
	data.Warning = warningFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("analysis failed", zap.Error(err))
	}
	h.render(w, status, "analyze.html", data)
}

func warningFor(err error) string {
	switch {
	case errors.Is(err, core.ErrNoData):
		return WarningNoData
	case errors.Is(err, core.ErrInvalidRequest):
		var coreErr *core.Error
		if errors.As(err, &coreErr) && coreErr.Cause != nil {
			return "Invalid input: " + coreErr.Cause.Error()
		}
		return "Invalid input."
	default:
		return WarningProvider
	}
}

func formFrom(req analysis.Request) FormView {
	f := FormView{
		Symbol:    req.Symbol,
		Period:    req.Period,
		Interval:  req.Interval,
		Periods:   core.Periods,
		Intervals: core.Intervals,
	}
	if f.Symbol == "" {
		f.Symbol = core.DefaultSymbol
	}
	if f.Period == "" {
		f.Period = string(core.DefaultPeriod)
	}
	if f.Interval == "" {
		f.Interval = string(core.DefaultInterval)
	}
	return f
}

func metricsFrom(s analysis.Summary) []Metric {
	return []Metric{
		{Label: "Close", Value: analysis.FormatPrice(s.Close)},
		{Label: "RSI (14)", Value: analysis.FormatValue(s.RSI)},
		{Label: "SMA (14)", Value: analysis.FormatValue(s.SMA)},
		{Label: "EMA (14)", Value: analysis.FormatValue(s.EMA)},
	}
}

func exportURL(q core.Query) string {
	v := url.Values{}
	v.Set("symbol", q.Symbol)
	v.Set("period", string(q.Period))
	v.Set("interval", string(q.Interval))
	return "/export?" + v.Encode()
}
