package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", ve.Field, ve.Message)
}

// setDefaults fills in zero-valued fields with the service's defaults.
func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageLocal
	}
	if cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = "./data/staging"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "driftlens"
	}

	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "./data/registry.db"
	}

	if cfg.Engine.WorkerPoolSize <= 0 {
		cfg.Engine.WorkerPoolSize = 0 // engine resolves 0 to runtime.NumCPU()
	}
	if cfg.Engine.MaxDimensions <= 0 {
		cfg.Engine.MaxDimensions = 3
	}
	if cfg.Engine.MaxSegments <= 0 {
		cfg.Engine.MaxSegments = 20000
	}
	if cfg.Engine.MaxTopDrivers <= 0 {
		cfg.Engine.MaxTopDrivers = 1000
	}
	if cfg.Engine.MinSegmentCoverage <= 0 {
		cfg.Engine.MinSegmentCoverage = 0.01
	}
	if cfg.Engine.KeyDimensionThreshold <= 0 {
		cfg.Engine.KeyDimensionThreshold = 0.02
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 10
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.BufferSize <= 0 {
		cfg.Logging.BufferSize = 100
	}
}

// ValidateServerConfig validates the HTTP server section.
func ValidateServerConfig(cfg *ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return ValidationError{"server.port", "must be between 1 and 65535"}
	}
	if cfg.ReadTimeout <= 0 {
		return ValidationError{"server.read_timeout", "must be positive"}
	}
	if cfg.WriteTimeout <= 0 {
		return ValidationError{"server.write_timeout", "must be positive"}
	}
	return nil
}

// ValidateStorageConfig validates the blobstore section.
func ValidateStorageConfig(cfg *StorageConfig) error {
	switch cfg.Backend {
	case StorageLocal:
		if cfg.LocalDir == "" {
			return ValidationError{"storage.local_dir", "required when backend is local"}
		}
	case StorageS3, StorageAzure, StorageGCS:
		if cfg.Bucket == "" {
			return ValidationError{"storage.bucket", fmt.Sprintf("required when backend is %s", cfg.Backend)}
		}
	default:
		return ValidationError{"storage.backend", "must be one of: local, s3, azblob, gcs"}
	}
	return nil
}

// ValidateEngineConfig validates the engine resource-limit section.
func ValidateEngineConfig(cfg *EngineConfig) error {
	if cfg.MaxDimensions < 1 || cfg.MaxDimensions > 4 {
		return ValidationError{"engine.max_dimensions", "must be between 1 and 4"}
	}
	if cfg.MaxSegments < 1 {
		return ValidationError{"engine.max_segments", "must be positive"}
	}
	if cfg.MaxTopDrivers < 1 {
		return ValidationError{"engine.max_top_drivers", "must be positive"}
	}
	if cfg.MinSegmentCoverage < 0 || cfg.MinSegmentCoverage >= 1 {
		return ValidationError{"engine.min_segment_coverage", "must be in [0, 1)"}
	}
	if cfg.WorkerPoolSize < 0 {
		return ValidationError{"engine.worker_pool_size", "must be non-negative"}
	}
	return nil
}

// ValidateLoggingConfig validates the logging section.
func ValidateLoggingConfig(cfg *LoggingConfig) error {
	if !contains([]string{"debug", "info", "warn", "error"}, cfg.Level) {
		return ValidationError{"logging.level", "must be one of: debug, info, warn, error"}
	}
	if !contains([]string{"json", "text"}, cfg.Format) {
		return ValidationError{"logging.format", "must be one of: json, text"}
	}
	if !contains([]string{"stdout", "stderr", "file"}, cfg.Output) {
		return ValidationError{"logging.output", "must be one of: stdout, stderr, file"}
	}
	if cfg.Output == "file" && cfg.FilePath == "" {
		return ValidationError{"logging.file_path", "required when output is file"}
	}
	return nil
}

// Validate applies defaults and validates every section of cfg.
func Validate(cfg *Config) error {
	setDefaults(cfg)

	if err := ValidateServerConfig(&cfg.Server); err != nil {
		return err
	}
	if err := ValidateStorageConfig(&cfg.Storage); err != nil {
		return err
	}
	if err := ValidateEngineConfig(&cfg.Engine); err != nil {
		return err
	}
	if err := ValidateLoggingConfig(&cfg.Logging); err != nil {
		return err
	}
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}
