// internal/api/handler/api/analysis.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/newthinker/tadash/internal/analysis"
	"github.com/newthinker/tadash/internal/api/response"
	"github.com/newthinker/tadash/internal/chart"
	"github.com/newthinker/tadash/internal/core"
	"go.uber.org/zap"
)

// Analyzer defines the interface needed from analysis.Service.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error)
	Export(ctx context.Context, req analysis.Request) (*analysis.Export, error)
	History(ctx context.Context, symbol string) ([]string, error)
}

// AnalysisView is the JSON body of a successful analysis.
type AnalysisView struct {
	Query   core.Query       `json:"query"`
	Summary analysis.Summary `json:"summary"`
	Tail    []core.Row       `json:"tail"`
	Rows    []core.Row       `json:"rows,omitempty"`
	Chart   *chart.Chart     `json:"chart,omitempty"`
	Count   int              `json:"count"`
}

// AnalysisHandler handles analysis and export API requests.
type AnalysisHandler struct {
	svc    Analyzer
	logger *zap.Logger
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(svc Analyzer, logger *zap.Logger) *AnalysisHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisHandler{svc: svc, logger: logger}
}

// Get returns the summary and last rows for a query.
// Query params: symbol (or ticker), period, interval, full=true for every row,
// chart=true for chart series.
func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	full, err := boolParam(q.Get("full"))
	if err != nil {
		response.FromError(w, err)
		return
	}
	withChart, err := boolParam(q.Get("chart"))
	if err != nil {
		response.FromError(w, err)
		return
	}

	result, err := h.svc.Analyze(r.Context(), analysis.RequestFromValues(q))
	if err != nil {
		h.fail(w, "analysis failed", err)
		return
	}

	view := AnalysisView{
		Query:   result.Query,
		Summary: result.Summary,
		Tail:    result.Tail,
		Count:   len(result.Rows),
	}
	if full {
		view.Rows = result.Rows
	}
	if withChart {
		view.Chart = &result.Chart
	}

	response.JSON(w, http.StatusOK, view)
}

// Export streams the full enriched series as a CSV attachment.
func (h *AnalysisHandler) Export(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Export(r.Context(), analysis.RequestFromValues(r.URL.Query()))
	if err != nil {
		h.fail(w, "export failed", err)
		return
	}
	WriteAttachment(w, out)
}

// History lists archived exports for a symbol.
func (h *AnalysisHandler) History(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		response.FromError(w, core.WrapError(core.ErrInvalidRequest, errors.New("symbol is required")))
		return
	}

	paths, err := h.svc.History(r.Context(), symbol)
	if err != nil {
		h.fail(w, "listing exports failed", err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"symbol":  symbol,
		"exports": paths,
		"count":   len(paths),
	})
}

func (h *AnalysisHandler) fail(w http.ResponseWriter, msg string, err error) {
	status := response.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	}
	response.Error(w, status, err)
}

// WriteAttachment writes a rendered export as a file download.
func WriteAttachment(w http.ResponseWriter, out *analysis.Export) {
	w.Header().Set("Content-Type", out.ContentType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(out.Data)
}

func boolParam(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, core.WrapError(core.ErrInvalidRequest, fmt.Errorf("invalid boolean %q", s))
	}
	return b, nil
}
