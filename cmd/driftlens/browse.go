package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"driftlens/engine"
	"driftlens/frame"
	"driftlens/metric"
	"driftlens/tui"
)

func browseCmd() *cobra.Command {
	var (
		csvPath        string
		dateColumn     string
		dateType       string
		dimensions     string
		metricColumn   string
		aggregation    string
		baselineFrom   string
		baselineTo     string
		comparisonFrom string
		comparisonTo   string
		maxDimensions  int
		expectedValue  float64
	)

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "run one analysis against a local CSV and explore the result in an interactive terminal UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			dims := strings.Split(dimensions, ",")
			for i, d := range dims {
				dims[i] = strings.TrimSpace(d)
			}

			dbPath := filepath.Join(os.TempDir(), "driftlens-cli-"+filepath.Base(csvPath)+".db")
			defer os.Remove(dbPath)

			f, err := frame.Open(cmd.Context(), csvPath, dbPath)
			if err != nil {
				return fmt.Errorf("failed to load csv: %w", err)
			}
			defer f.Close()

			req, err := engine.NewAnalysisRequest(engine.AnalysisRequest{
				DateColumn:      dateColumn,
				DateColumnType:  frame.DateColumnType(dateType),
				BaselineRange:   engine.DateRange{From: baselineFrom, To: baselineTo},
				ComparisonRange: engine.DateRange{From: comparisonFrom, To: comparisonTo},
				Dimensions:      dims,
				Metric:          metric.Single{Column: metricColumn, Agg: metric.AggregateMethod(aggregation)},
				MaxDimensions:   maxDimensions,
				ExpectedChange:  expectedValue,
			})
			if err != nil {
				return err
			}

			out, err := engine.Analyze(context.Background(), f, req, defaultEngineConfig(), nil)
			if err != nil {
				return err
			}

			return tui.Run(out[req.Metric.ID()])
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "path to the input CSV file (required)")
	cmd.Flags().StringVar(&dateColumn, "date-column", "date", "name of the date column")
	cmd.Flags().StringVar(&dateType, "date-type", "date", "date column type: date|timestamp-ms|timestamp-s|epoch-int")
	cmd.Flags().StringVar(&dimensions, "dimensions", "", "comma-separated dimension columns (required)")
	cmd.Flags().StringVar(&metricColumn, "metric-column", "", "column to aggregate (required)")
	cmd.Flags().StringVar(&aggregation, "agg", "sum", "aggregation method: sum|count|distinct")
	cmd.Flags().StringVar(&baselineFrom, "baseline-from", "", "baseline range start, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&baselineTo, "baseline-to", "", "baseline range end, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&comparisonFrom, "comparison-from", "", "comparison range start, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&comparisonTo, "comparison-to", "", "comparison range end, YYYY-MM-DD (required)")
	cmd.Flags().IntVar(&maxDimensions, "max-dimensions", 3, "maximum segment cardinality")
	cmd.Flags().Float64Var(&expectedValue, "expected-value", 0, "expected relative change, subtracted before scoring")

	cmd.MarkFlagRequired("csv")
	cmd.MarkFlagRequired("dimensions")
	cmd.MarkFlagRequired("metric-column")
	cmd.MarkFlagRequired("baseline-from")
	cmd.MarkFlagRequired("baseline-to")
	cmd.MarkFlagRequired("comparison-from")
	cmd.MarkFlagRequired("comparison-to")

	return cmd
}
