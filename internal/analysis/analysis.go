// Package analysis runs one dashboard action: fetch a series, enrich it with
// indicators and shape it for the chart, table, summary and CSV export.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/guregu/null/v6"
	"github.com/newthinker/tadash/internal/chart"
	"github.com/newthinker/tadash/internal/collector"
	"github.com/newthinker/tadash/internal/core"
	"github.com/newthinker/tadash/internal/export"
	"github.com/newthinker/tadash/internal/indicator"
	"github.com/newthinker/tadash/internal/storage/archive"
	"go.uber.org/zap"
)

// TailSize is the number of most recent rows shown in the table view.
const TailSize = 10

// Request is the raw user input; empty fields take the dashboard defaults.
type Request struct {
	Symbol   string `json:"symbol"`
	Period   string `json:"period"`
	Interval string `json:"interval"`
}

// RequestFromValues reads symbol, period and interval from URL query values.
// "ticker" is accepted as an alias for "symbol".
func RequestFromValues(v url.Values) Request {
	symbol := v.Get("symbol")
	if symbol == "" {
		symbol = v.Get("ticker")
	}
	return Request{
		Symbol:   symbol,
		Period:   v.Get("period"),
		Interval: v.Get("interval"),
	}
}

// Summary holds the most recent bar's metrics.
type Summary struct {
	Time  time.Time  `json:"time"`
	Close null.Float `json:"close"`
	RSI   null.Float `json:"rsi_14"`
	SMA   null.Float `json:"sma_14"`
	EMA   null.Float `json:"ema_14"`
}

// Result is everything the dashboard renders for one query.
type Result struct {
	Query   core.Query  `json:"query"`
	Rows    []core.Row  `json:"rows"`
	Tail    []core.Row  `json:"tail"`
	Summary Summary     `json:"summary"`
	Chart   chart.Chart `json:"chart"`
}

// Export is a rendered CSV file.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
	// ArchivePath is set when the file was also archived.
	ArchivePath string
}

// Recorder receives analysis and export outcomes, typically the metrics registry.
type Recorder interface {
	RecordAnalysis(interval, outcome string, bars int, duration float64)
	RecordExport(destination string, err error)
}

// Option configures a Service.
type Option func(*Service)

// WithArchiver stores a copy of every export.
func WithArchiver(a *archive.Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithRecorder reports outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// Service handles one request/response cycle per user action.
type Service struct {
	source   collector.Collector
	archiver *archive.Archiver
	recorder Recorder
	logger   *zap.Logger
}

// NewService creates a service reading bars from source.
func NewService(source collector.Collector, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		source: source,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze fetches and enriches the requested series.
// An empty provider result is reported as core.ErrNoData.
func (s *Service) Analyze(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	q, err := core.NewQuery(req.Symbol, req.Period, req.Interval)
	if err != nil {
		s.record(req.Interval, outcomeOf(err), 0, start)
		return nil, err
	}

	bars, err := s.source.FetchHistory(ctx, q)
	if err != nil {
		s.logger.Warn("fetch failed", zap.String("query", q.String()), zap.Error(err))
		s.record(string(q.Interval), outcomeOf(err), 0, start)
		return nil, err
	}
	if len(bars) == 0 {
		s.logger.Info("no data", zap.String("query", q.String()))
		s.record(string(q.Interval), outcomeOf(core.ErrNoData), 0, start)
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no bars for %s", q))
	}

	rows := indicator.Enrich(bars)
	result := &Result{
		Query:   q,
		Rows:    rows,
		Tail:    Tail(rows, TailSize),
		Summary: Summarize(rows),
		Chart:   chart.Build(q.Symbol, rows),
	}

	s.record(string(q.Interval), "ok", len(rows), start)
	s.logger.Debug("analysis complete",
		zap.String("query", q.String()),
		zap.Int("bars", len(rows)),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}

// Export analyzes the request and renders the full series as CSV.
// Archival is best effort: a failed archive write is logged and the
// download still succeeds.
func (s *Service) Export(ctx context.Context, req Request) (*Export, error) {
	result, err := s.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}

	data, err := export.Bytes(result.Rows, result.Query.Interval)
	s.recordExport("download", err)
	if err != nil {
		return nil, err
	}

	out := &Export{
		Filename:    export.Filename(result.Query.Symbol),
		ContentType: export.ContentType,
		Data:        data,
	}

	if s.archiver != nil {
		p, err := s.archiver.Save(ctx, result.Query, data)
		s.recordExport("archive", err)
		if err != nil {
			s.logger.Warn("archiving export failed", zap.String("query", result.Query.String()), zap.Error(err))
		} else {
			out.ArchivePath = p
		}
	}

	return out, nil
}

// History lists archived exports for a symbol. Without an archive it is empty.
func (s *Service) History(ctx context.Context, symbol string) ([]string, error) {
	if s.archiver == nil {
		return []string{}, nil
	}
	sym, err := core.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return s.archiver.History(ctx, sym)
}

// Tail returns the last n rows, or all rows when there are fewer.
func Tail(rows []core.Row, n int) []core.Row {
	if n <= 0 {
		return []core.Row{}
	}
	if len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	out := make([]core.Row, len(rows))
	copy(out, rows)
	return out
}

// Summarize reports the last row's close and indicators.
func Summarize(rows []core.Row) Summary {
	if len(rows) == 0 {
		return Summary{}
	}
	last := rows[len(rows)-1]
	lastClose := null.Float{}
	if last.HasClose() {
		lastClose = null.FloatFrom(last.Close)
	}
	return Summary{
		Time:  last.Time,
		Close: lastClose,
		RSI:   last.RSI,
		SMA:   last.SMA,
		EMA:   last.EMA,
	}
}

func (s *Service) record(interval, outcome string, bars int, start time.Time) {
	if s.recorder != nil {
		s.recorder.RecordAnalysis(interval, outcome, bars, time.Since(start).Seconds())
	}
}

func (s *Service) recordExport(destination string, err error) {
	if s.recorder != nil {
		s.recorder.RecordExport(destination, err)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrNoData):
		return "no_data"
	case errors.Is(err, core.ErrInvalidRequest):
		return "invalid"
	default:
		return "failed"
	}
}
