// Package api exposes the segment insight engine over HTTP: the analysis
// request of spec.md §6, file upload and staging, the related-segments/
// segment-timeseries/waterfall secondary endpoints, and a websocket
// progress stream over the cube analyzer's worker pool.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"driftlens/cache"
	"driftlens/config"
	"driftlens/engine"
	"driftlens/frame"
	"driftlens/ingest"
	"driftlens/logging"
	"driftlens/store"
)

const version = "0.1.0"

// Server wires the engine, frame store, staging blobstore, upload
// registry, cache, and logger behind a gin.Engine HTTP surface.
type Server struct {
	router    *gin.Engine
	cfg       *config.Config
	logger    *logging.Logger
	perf      *logging.PerformanceMonitor
	cache     *cache.Cache
	registry  *store.Registry
	blobs     ingest.Blobstore
	jobs      *jobRegistry
	engineCfg engine.EngineConfig
	tmpDir    string
	startTime time.Time
}

// NewServer builds a Server from cfg, opening the upload registry and
// constructing the configured staging blobstore.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	SetupGinValidator()

	reg, err := store.Open(cfg.Registry.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload registry: %w", err)
	}

	blobs, err := newBlobstore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize staging blobstore: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "driftlens-frames-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create frame staging dir: %w", err)
	}

	s := &Server{
		router:   gin.New(),
		cfg:      cfg,
		logger:   logger,
		perf:     logging.NewPerformanceMonitor(logger),
		cache:    cache.New(10*time.Minute, time.Minute),
		registry: reg,
		blobs:    blobs,
		jobs:     newJobRegistry(func() string { return uuid.New().String() }),
		engineCfg: engine.EngineConfig{
			WorkerPoolSize:        cfg.Engine.WorkerPoolSize,
			MaxDimensions:         cfg.Engine.MaxDimensions,
			MaxSegments:           cfg.Engine.MaxSegments,
			MaxTopDrivers:         cfg.Engine.MaxTopDrivers,
			MinSegmentCoverage:    cfg.Engine.MinSegmentCoverage,
			KeyDimensionThreshold: cfg.Engine.KeyDimensionThreshold,
		},
		tmpDir:    tmpDir,
		startTime: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func newBlobstore(cfg config.StorageConfig) (ingest.Blobstore, error) {
	switch cfg.Backend {
	case config.StorageS3:
		return ingest.NewS3Blobstore(context.Background(), cfg.Bucket, cfg.Prefix, cfg.Region)
	case config.StorageAzure:
		return ingest.NewAzureBlobstore(os.Getenv("AZURE_STORAGE_CONNECTION_STRING"), cfg.Bucket, cfg.Prefix)
	case config.StorageGCS:
		return ingest.NewGCSBlobstore(context.Background(), cfg.Bucket, cfg.Prefix)
	default:
		return ingest.NewLocalBlobstore(cfg.LocalDir)
	}
}

func (s *Server) setupMiddleware() {
	if s.cfg.Server.EnableCORS {
		s.router.Use(corsMiddleware())
	}
	s.router.Use(securityHeadersMiddleware())
	s.router.Use(RequestIDMiddleware())
	s.router.Use(recoveryMiddleware(s.logger))
	s.router.Use(loggingMiddleware(s.logger))
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthz)
	s.router.GET("/debug/logs", s.debugLogs)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/uploads", s.uploadFile)
		v1.POST("/analyze", s.analyze)
		v1.POST("/analyze/async", s.startAnalysis)
		v1.GET("/ws/analyze/:job_id", s.streamProgress)

		segments := v1.Group("/segments")
		{
			segments.GET("/related", s.relatedSegments)
			segments.GET("/timeseries", s.segmentTimeSeries)
		}
		v1.POST("/waterfall", s.waterfall)
	}
}

// openStagedFrame materializes the uploaded CSV behind fileID (a content
// hash) into a frame, looking up its content hash in the registry first.
func (s *Server) openStagedFrame(ctx context.Context, fileID string) (*frame.Frame, error) {
	upload, err := s.registry.FindByID(ctx, fileID)
	if err != nil {
		return nil, engine.ErrInternal(err.Error())
	}
	if upload == nil {
		return nil, &engine.Error{Kind: engine.KindInvalidSource, Message: "unknown file_id: " + fileID}
	}

	data, err := s.blobs.Get(ctx, upload.ContentHash)
	if err != nil {
		return nil, engine.ErrInternal(err.Error())
	}

	return s.openFrameForHash(ctx, upload.ContentHash, data)
}

// openFrameForHash materializes data (the blob stored under hash) into a
// frame, re-using the scratch CSV already staged under s.tmpDir if present.
// It does not consult the upload registry, so it can be called before a
// file has been registered (i.e. from uploadFile, on first ingest).
func (s *Server) openFrameForHash(ctx context.Context, hash string, data []byte) (*frame.Frame, error) {
	csvPath := filepath.Join(s.tmpDir, hash+".csv")
	if _, err := os.Stat(csvPath); os.IsNotExist(err) {
		if err := os.WriteFile(csvPath, data, 0644); err != nil {
			return nil, engine.ErrInternal(err.Error())
		}
	}

	dbPath := filepath.Join(s.tmpDir, hash+".db")
	fr, err := frame.Open(ctx, csvPath, dbPath)
	if err != nil {
		return nil, engine.ErrInternal(err.Error())
	}
	return fr, nil
}

// Router returns the underlying gin.Engine, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start runs the HTTP server until the process is stopped.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.Info("starting driftlens API server", map[string]interface{}{"addr": addr})
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	return srv.ListenAndServe()
}

// Shutdown releases the server's resources.
func (s *Server) Shutdown() {
	s.cache.Close()
	s.registry.Close()
	s.logger.Close()
	os.RemoveAll(s.tmpDir)
}
