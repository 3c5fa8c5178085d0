package api

import (
	"context"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"driftlens/engine"
	"driftlens/frame"
	"driftlens/ingest"
	"driftlens/metric"
	"driftlens/store"
)

// uploadResponse is returned by POST /api/v1/uploads.
type uploadResponse struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	RowCount int    `json:"row_count"`
	Dedup    bool   `json:"deduplicated"`
}

// uploadFile implements §6 Ingest: the uploaded CSV is hashed, stored
// under the content hash in the configured Blobstore, opened once into a
// frame to learn its row count and column set, and registered so a
// re-upload of identical bytes returns the existing id.
func (s *Server) uploadFile(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		HandleValidationError(c, err)
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		HandleEngineError(c, s.logger, engine.ErrInternal(err.Error()))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		HandleEngineError(c, s.logger, engine.ErrInternal(err.Error()))
		return
	}

	hash := ingest.ContentHash(data)
	ctx := c.Request.Context()

	if existing, err := s.registry.FindByHash(ctx, hash); err == nil && existing != nil {
		SendSuccess(c, http.StatusOK, uploadResponse{
			FileID:   existing.ID,
			Filename: existing.Filename,
			RowCount: existing.RowCount,
			Dedup:    true,
		}, "file already staged")
		return
	}

	if err := s.blobs.Put(ctx, hash, data); err != nil {
		HandleEngineError(c, s.logger, engine.ErrInternal(err.Error()))
		return
	}

	fr, err := s.openFrameForHash(ctx, hash, data)
	if err != nil {
		HandleEngineError(c, s.logger, engine.ErrInternal(err.Error()))
		return
	}
	defer fr.Close()

	columns := fr.Columns()
	columnNames := make([]string, len(columns))
	for i, col := range columns {
		columnNames[i] = col.Name
	}

	upload := store.Upload{
		ID:          hash,
		ContentHash: hash,
		Filename:    fileHeader.Filename,
		RowCount:    fr.RowCount(),
		ColumnsJSON: encodeColumns(columnNames),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.registry.Register(ctx, upload); err != nil {
		HandleEngineError(c, s.logger, engine.ErrInternal(err.Error()))
		return
	}

	s.logger.Info("file staged", map[string]interface{}{"file_id": hash, "rows": upload.RowCount})
	SendSuccess(c, http.StatusCreated, uploadResponse{
		FileID:   hash,
		Filename: upload.Filename,
		RowCount: upload.RowCount,
	}, "file staged")
}

// analysisRequestBody is the wire shape of spec.md §6's analysis request.
type analysisRequestBody struct {
	FileID              string            `json:"fileId" binding:"required"`
	BaseDateRange       dateRangeBody     `json:"baseDateRange" binding:"required"`
	ComparisonDateRange dateRangeBody     `json:"comparisonDateRange" binding:"required"`
	DateColumn          string            `json:"dateColumn" binding:"required"`
	DateColumnType      string            `json:"dateColumnType"`
	GroupByColumns      []string          `json:"groupByColumns" binding:"required,min=1"`
	MaxNumDimensions    int               `json:"maxNumDimensions"`
	MetricColumn        metricColumnBody  `json:"metricColumn" binding:"required"`
	Filters             []filterBody      `json:"filters"`
	ExpectedValue       float64           `json:"expectedValue"`
}

type dateRangeBody struct {
	From string `json:"from" binding:"required,iso_date"`
	To   string `json:"to" binding:"required,iso_date"`
}

type metricColumnBody struct {
	AggregationOption string             `json:"aggregationOption" binding:"required,agg_method"`
	SingularMetric    *singularMetricBody `json:"singularMetric"`
	RatioMetric       *ratioMetricBody    `json:"ratioMetric"`
}

type singularMetricBody struct {
	ColumnName string       `json:"columnName" binding:"required"`
	Filter     []filterBody `json:"filter"`
}

type ratioMetricBody struct {
	MetricName  string           `json:"metricName" binding:"required"`
	Numerator   subMetricBody    `json:"numerator" binding:"required"`
	Denominator subMetricBody    `json:"denominator" binding:"required"`
}

type subMetricBody struct {
	ColumnName        string       `json:"columnName" binding:"required"`
	AggregationMethod string       `json:"aggregationMethod" binding:"required,agg_method"`
	Filters           []filterBody `json:"filters"`
}

type filterBody struct {
	Column   string   `json:"column" binding:"required"`
	Operator string   `json:"operator" binding:"required,filter_operator"`
	Values   []string `json:"values"`
}

func (b filterBody) toMetricFilter() metric.Filter {
	return metric.Filter{Column: b.Column, Operator: metric.FilterOperator(b.Operator), Values: b.Values}
}

func (b singularMetricBody) toSingle(agg string) metric.Single {
	filters := make([]metric.Filter, len(b.Filter))
	for i, f := range b.Filter {
		filters[i] = f.toMetricFilter()
	}
	return metric.Single{Column: b.ColumnName, Agg: metric.AggregateMethod(agg), Filter: filters}
}

func (b subMetricBody) toSingle() metric.Single {
	filters := make([]metric.Filter, len(b.Filters))
	for i, f := range b.Filters {
		filters[i] = f.toMetricFilter()
	}
	return metric.Single{Column: b.ColumnName, Agg: metric.AggregateMethod(b.AggregationMethod), Filter: filters}
}

func (b metricColumnBody) toMetric() (metric.Metric, error) {
	if b.AggregationOption == "ratio" {
		if b.RatioMetric == nil {
			return nil, engine.ErrInvalidRequest("metricColumn.ratioMetric is required when aggregationOption is ratio")
		}
		return metric.Dual{
			Name:        b.RatioMetric.MetricName,
			Numerator:   b.RatioMetric.Numerator.toSingle(),
			Denominator: b.RatioMetric.Denominator.toSingle(),
		}, nil
	}
	if b.SingularMetric == nil {
		return nil, engine.ErrInvalidRequest("metricColumn.singularMetric is required")
	}
	return b.SingularMetric.toSingle(b.AggregationOption), nil
}

func (b analysisRequestBody) toAnalysisRequest() (*engine.AnalysisRequest, error) {
	m, err := b.MetricColumn.toMetric()
	if err != nil {
		return nil, err
	}
	filters := make([]metric.Filter, len(b.Filters))
	for i, f := range b.Filters {
		filters[i] = f.toMetricFilter()
	}
	dateType := frame.DateColumnType(b.DateColumnType)
	if dateType == "" {
		dateType = frame.DateTypeDate
	}
	return &engine.AnalysisRequest{
		DateColumn:      b.DateColumn,
		DateColumnType:  dateType,
		BaselineRange:   engine.DateRange{From: b.BaseDateRange.From, To: b.BaseDateRange.To},
		ComparisonRange: engine.DateRange{From: b.ComparisonDateRange.From, To: b.ComparisonDateRange.To},
		Dimensions:      b.GroupByColumns,
		Metric:          m,
		Filters:         filters,
		MaxDimensions:   b.MaxNumDimensions,
		ExpectedChange:  b.ExpectedValue,
	}, nil
}

// analyze handles POST /api/v1/analyze: spec.md §6's analysis request.
func (s *Server) analyze(c *gin.Context) {
	var body analysisRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		HandleValidationError(c, err)
		return
	}

	req, err := body.toAnalysisRequest()
	if err != nil {
		HandleEngineError(c, s.logger, err)
		return
	}

	validated, err := engine.NewAnalysisRequest(*req)
	if err != nil {
		HandleEngineError(c, s.logger, err)
		return
	}

	fr, err := s.openStagedFrame(c.Request.Context(), body.FileID)
	if err != nil {
		HandleEngineError(c, s.logger, err)
		return
	}
	defer fr.Close()

	timer := s.perf.StartTimer("analyze")
	result, err := engine.Analyze(c.Request.Context(), fr, validated, s.engineCfg, nil)
	timer.Stop()
	if err != nil {
		HandleEngineError(c, s.logger, err)
		return
	}

	c.JSON(http.StatusOK, sanitizeNumbers(result))
}

// startAnalysis handles POST /api/v1/analyze/async: identical to analyze,
// but returns a job_id immediately and runs the computation in the
// background, reporting progress over /ws/analyze/:job_id.
func (s *Server) startAnalysis(c *gin.Context) {
	var body analysisRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		HandleValidationError(c, err)
		return
	}
	req, err := body.toAnalysisRequest()
	if err != nil {
		HandleEngineError(c, s.logger, err)
		return
	}
	validated, err := engine.NewAnalysisRequest(*req)
	if err != nil {
		HandleEngineError(c, s.logger, err)
		return
	}

	fileID := body.FileID
	job := s.jobs.create()
	job.fileID = fileID

	go func() {
		ctx := context.Background()
		fr, err := s.openStagedFrame(ctx, fileID)
		if err != nil {
			s.jobs.fail(job.id, err)
			return
		}
		defer fr.Close()

		progress := make(chan engine.ProgressEvent, 16)
		go func() {
			for ev := range progress {
				s.jobs.publish(job.id, ev)
			}
		}()

		result, err := engine.Analyze(ctx, fr, validated, s.engineCfg, progress)
		if err != nil {
			s.jobs.fail(job.id, err)
			return
		}
		s.jobs.complete(job.id, result)
	}()

	SendSuccess(c, http.StatusAccepted, gin.H{"job_id": job.id}, "analysis started")
}

// relatedSegments handles GET /segments/related: the segments of the
// file's most recent result for metric whose dimension set equals the
// repeated dimension query parameters (all segments when none are given).
func (s *Server) relatedSegments(c *gin.Context) {
	fileID := c.Query("file_id")
	parentID, err := s.resultForJob(c, fileID)
	if err != nil {
		return
	}
	metricID := c.Query("metric")
	dimensionSet := c.QueryArray("dimension")

	insight, ok := parentID[metricID]
	if !ok {
		HandleNotFoundError(c, "metric", metricID)
		return
	}

	out := map[string]*engine.SegmentInfo{}
	wanted := map[string]bool{}
	for _, d := range dimensionSet {
		wanted[d] = true
	}
	for key, info := range insight.DimensionSliceInfo {
		if len(dimensionSet) > 0 && !sameDimensionSet(info.Key, wanted) {
			continue
		}
		out[key] = info
	}
	SendSuccess(c, http.StatusOK, out, "")
}

func sameDimensionSet(key engine.SegmentKey, wanted map[string]bool) bool {
	if len(key) != len(wanted) {
		return false
	}
	for _, p := range key {
		if !wanted[p.Dimension] {
			return false
		}
	}
	return true
}

// segmentTimeSeries handles GET /segments/timeseries: restricts the
// metric's baseline/comparison value series to one segment's rows.
func (s *Server) segmentTimeSeries(c *gin.Context) {
	fileID := c.Query("file_id")
	metricID := c.Query("metric")
	segmentKey := c.Query("segment_key")

	result, err := s.resultForJob(c, fileID)
	if err != nil {
		return
	}
	insight, ok := result[metricID]
	if !ok {
		HandleNotFoundError(c, "metric", metricID)
		return
	}
	info, ok := insight.DimensionSliceInfo[segmentKey]
	if !ok {
		HandleNotFoundError(c, "segment", segmentKey)
		return
	}
	SendSuccess(c, http.StatusOK, gin.H{
		"segment_key": segmentKey,
		"baseline":    info.Baseline,
		"comparison":  info.Comparison,
	}, "")
}

// waterfallRequest is the body for POST /waterfall.
type waterfallRequest struct {
	FileID      string   `json:"file_id" binding:"required"`
	MetricID    string   `json:"metric" binding:"required"`
	SegmentKeys []string `json:"segment_keys" binding:"required,min=1"`
}

type waterfallStep struct {
	SegmentKey           string  `json:"segment_key"`
	AbsoluteContribution float64 `json:"absolute_contribution"`
	Cumulative           float64 `json:"cumulative"`
}

// waterfall handles POST /waterfall: a contribution waterfall over the
// requested segment keys, reusing each segment's absolute_contribution.
func (s *Server) waterfall(c *gin.Context) {
	var body waterfallRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		HandleValidationError(c, err)
		return
	}
	result, err := s.resultForJob(c, body.FileID)
	if err != nil {
		return
	}
	insight, ok := result[body.MetricID]
	if !ok {
		HandleNotFoundError(c, "metric", body.MetricID)
		return
	}

	var cumulative float64
	steps := make([]waterfallStep, 0, len(body.SegmentKeys))
	for _, key := range body.SegmentKeys {
		info, ok := insight.DimensionSliceInfo[key]
		if !ok {
			HandleNotFoundError(c, "segment", key)
			return
		}
		cumulative += info.AbsoluteContribution
		steps = append(steps, waterfallStep{SegmentKey: key, AbsoluteContribution: info.AbsoluteContribution, Cumulative: cumulative})
	}
	SendSuccess(c, http.StatusOK, steps, "")
}

// resultForJob resolves a completed job's result set by file id, writing
// an error response and returning a non-nil error if none is found. The
// current process keeps the most recent completed analysis per file id so
// the secondary endpoints can serve it without recomputation.
func (s *Server) resultForJob(c *gin.Context, fileID string) (map[string]*engine.MetricInsight, error) {
	result, ok := s.jobs.resultForFile(fileID)
	if !ok {
		HandleNotFoundError(c, "analysis result for file", fileID)
		return nil, engine.ErrInvalidRequest("no completed analysis for file")
	}
	return result, nil
}

// healthz reports process health: status, uptime and version. Recent log
// entries are served by debugLogs.
func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).String(),
		"version": version,
	})
}

// debugLogs exposes the logger's in-memory ring buffer.
func (s *Server) debugLogs(c *gin.Context) {
	limit := 200
	entries := s.logger.RecentEntries(limit)
	c.JSON(http.StatusOK, entries)
}

func encodeColumns(names []string) string {
	out := "["
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += `"` + n + `"`
	}
	return out + "]"
}

// sanitizeNumbers walks the response replacing NaN/Inf values with 0
// before JSON encoding, per spec.md §6's "disallows NaN/Infinity".
func sanitizeNumbers(insights map[string]*engine.MetricInsight) map[string]*engine.MetricInsight {
	for _, insight := range insights {
		insight.BaselineValue = cleanFloat(insight.BaselineValue)
		insight.ComparisonValue = cleanFloat(insight.ComparisonValue)
		for _, v := range insight.DimensionSliceInfo {
			v.Baseline.Value = cleanFloat(v.Baseline.Value)
			v.Comparison.Value = cleanFloat(v.Comparison.Value)
			v.Impact = cleanFloat(v.Impact)
			v.Change = cleanFloat(v.Change)
			v.AbsoluteContribution = cleanFloat(v.AbsoluteContribution)
			v.ChangeDev = cleanFloat(v.ChangeDev)
		}
	}
	return insights
}

func cleanFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
