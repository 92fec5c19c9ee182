package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/newthinker/tadash/internal/analysis"
	"github.com/newthinker/tadash/internal/core"
	"github.com/newthinker/tadash/internal/export"
	"github.com/spf13/cobra"
)

var (
	analyzePeriod   string
	analyzeInterval string
	analyzeOut      string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze SYMBOL",
	Short: "Analyze a ticker and write its CSV export",
	Long: `Fetches the ticker's history, prints the latest close, RSI, SMA and EMA
and the last 10 rows, then writes <SYMBOL>_technical_analysis.csv.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&analyzePeriod, "period", "p", string(core.DefaultPeriod), "history period (1mo, 3mo, 6mo, 1y, 2y)")
	analyzeCmd.Flags().StringVarP(&analyzeInterval, "interval", "i", string(core.DefaultInterval), "bar interval (1d, 1wk, 1h)")
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", ".", "directory for the CSV file; empty skips writing")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := build(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer a.Close()

	req := analysis.Request{Symbol: args[0], Period: analyzePeriod, Interval: analyzeInterval}
	return analyzeTo(ctx, a.service, req, analyzeOut, cmd.OutOrStdout())
}

// analyzeTo prints the summary and recent rows to w and writes the CSV to outDir
func analyzeTo(ctx context.Context, svc *analysis.Service, req analysis.Request, outDir string, w io.Writer) error {
	result, err := svc.Analyze(ctx, req)
	if errors.Is(err, core.ErrNoData) {
		fmt.Fprintln(w, "No data found. Try another ticker or period.")
		return err
	}
	if err != nil {
		return err
	}

	q := result.Query
	fmt.Fprintf(w, "Symbol:   %s\n", q.Symbol)
	fmt.Fprintf(w, "Period:   %s\n", q.Period)
	fmt.Fprintf(w, "Interval: %s\n", q.Interval)
	fmt.Fprintf(w, "Bars:     %d\n\n", len(result.Rows))

	s := result.Summary
	fmt.Fprintf(w, "Close:    %s\n", analysis.FormatPrice(s.Close))
	fmt.Fprintf(w, "RSI (14): %s\n", analysis.FormatValue(s.RSI))
	fmt.Fprintf(w, "SMA (14): %s\n", analysis.FormatValue(s.SMA))
	fmt.Fprintf(w, "EMA (14): %s\n\n", analysis.FormatValue(s.EMA))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Date\tClose\tSMA_14\tEMA_14\tRSI_14\t")
	for _, row := range analysis.FormatRows(result.Tail, q.Interval) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", row.Date, row.Close, row.SMA, row.EMA, row.RSI)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if outDir == "" {
		return nil
	}

	data, err := export.Bytes(result.Rows, q.Interval)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	path := filepath.Join(outDir, export.Filename(q.Symbol))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return core.WrapError(core.ErrExportFailed, err)
	}
	fmt.Fprintf(w, "\nWrote %s\n", path)
	return nil
}
