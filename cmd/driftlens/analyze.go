package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"driftlens/engine"
	"driftlens/frame"
	"driftlens/metric"
)

func analyzeCmd() *cobra.Command {
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
		top            int
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "run one analysis against a local CSV and print the ranked segment table",
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

			insight := out[req.Metric.ID()]
			printInsightSummary(insight)
			printSegmentTable(insight, top)
			return nil
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
	cmd.Flags().IntVar(&top, "top", 15, "number of segments to print")

	cmd.MarkFlagRequired("csv")
	cmd.MarkFlagRequired("dimensions")
	cmd.MarkFlagRequired("metric-column")
	cmd.MarkFlagRequired("baseline-from")
	cmd.MarkFlagRequired("baseline-to")
	cmd.MarkFlagRequired("comparison-from")
	cmd.MarkFlagRequired("comparison-to")

	return cmd
}

func defaultEngineConfig() engine.EngineConfig {
	return engine.EngineConfig{
		MaxDimensions:         3,
		MaxSegments:           20000,
		MaxTopDrivers:         1000,
		MinSegmentCoverage:    0.01,
		KeyDimensionThreshold: 0.02,
	}
}

func printInsightSummary(insight *engine.MetricInsight) {
	fmt.Printf("metric %s: baseline=%.4f comparison=%.4f\n", insight.Name, insight.BaselineValue, insight.ComparisonValue)
	if len(insight.KeyDimensions) > 0 {
		fmt.Printf("key dimensions: %s\n", strings.Join(insight.KeyDimensions, ", "))
	} else {
		fmt.Println("key dimensions: none")
	}
	fmt.Println()
}

func printSegmentTable(insight *engine.MetricInsight, limit int) {
	type row struct {
		key        string
		isDriver   bool
		info       *engine.SegmentInfo
	}
	drivers := map[string]bool{}
	for _, k := range insight.TopDriverSliceKeys {
		drivers[k] = true
	}

	rows := make([]row, 0, len(insight.DimensionSliceInfo))
	for k, info := range insight.DimensionSliceInfo {
		rows = append(rows, row{key: k, isDriver: drivers[k], info: info})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].isDriver != rows[j].isDriver {
			return rows[i].isDriver
		}
		return math.Abs(rows[i].info.Change) > math.Abs(rows[j].info.Change)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	headerStyle := lipgloss.NewStyle().Bold(true)
	driverStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212"))

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-40s %12s %12s %10s %14s %3s",
		"segment", "baseline", "comparison", "change", "contribution", "drv")))

	for _, r := range rows {
		marker := ""
		if r.isDriver {
			marker = "*"
		}
		line := fmt.Sprintf("%-40s %12.2f %12.2f %9.2f%% %14.4f %3s",
			r.key, r.info.Baseline.Value, r.info.Comparison.Value, r.info.Change*100, r.info.AbsoluteContribution, marker)
		if r.isDriver {
			fmt.Println(driverStyle.Render(line))
		} else {
			fmt.Println(line)
		}
	}
}
