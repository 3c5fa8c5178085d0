// Package config holds the typed configuration for the driftlens service,
// loaded via viper from driftlens.yaml with DRIFTLENS_* environment overrides.
package config

import "time"

// Config is the root configuration for the driftlens server and CLI.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Registry RegistryConfig `mapstructure:"registry"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	EnableCORS      bool          `mapstructure:"enable_cors"`
}

// StorageBackend selects which blobstore implementation backs the upload
// staging directory (§6 Ingest).
type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageS3    StorageBackend = "s3"
	StorageAzure StorageBackend = "azblob"
	StorageGCS   StorageBackend = "gcs"
)

// StorageConfig configures the content-addressed staging blobstore.
type StorageConfig struct {
	Backend StorageBackend `mapstructure:"backend"`
	// LocalDir is used when Backend == StorageLocal.
	LocalDir string `mapstructure:"local_dir"`
	// Bucket/Prefix are used by the cloud backends.
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	Region string `mapstructure:"region"`
}

// RegistryConfig configures the sqlite-backed upload registry.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig tunes the segment insight engine's resource limits.
type EngineConfig struct {
	// WorkerPoolSize bounds the number of goroutines enumerating dimension
	// subsets concurrently (§5). 0 means runtime.NumCPU().
	WorkerPoolSize int `mapstructure:"worker_pool_size"`
	// MaxDimensions is validated to 1..4 and copied into engine.EngineConfig;
	// the engine does not read it. A request's max_dimensions is checked
	// against the fixed cap of 4 in engine.NewAnalysisRequest.
	MaxDimensions int `mapstructure:"max_dimensions"`
	// MaxSegments caps the scored segment frame (spec.md §4.4 step 7, default 20000).
	MaxSegments int `mapstructure:"max_segments"`
	// MaxTopDrivers caps the top-driver slice (spec.md §4.6, default 1000).
	MaxTopDrivers int `mapstructure:"max_top_drivers"`
	// MinSegmentCoverage is the pruning threshold of spec.md §4.4 step 5 (default 0.01).
	MinSegmentCoverage float64 `mapstructure:"min_segment_coverage"`
	// KeyDimensionThreshold is the score floor of spec.md §4.5 (default 0.02,
	// resolving the Open Question in favor of a single fixed threshold).
	KeyDimensionThreshold float64 `mapstructure:"key_dimension_threshold"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	BufferSize int    `mapstructure:"buffer_size"`
}

// Default returns the configuration used when no file or env override is present.
func Default() Config {
	cfg := Config{}
	setDefaults(&cfg)
	return cfg
}
