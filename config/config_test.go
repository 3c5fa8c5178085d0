package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(&cfg))
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StorageLocal, cfg.Storage.Backend)
	assert.Equal(t, 3, cfg.Engine.MaxDimensions)
	assert.Equal(t, 20000, cfg.Engine.MaxSegments)
	assert.Equal(t, 1000, cfg.Engine.MaxTopDrivers)
	assert.Equal(t, 0.01, cfg.Engine.MinSegmentCoverage)
}

func TestValidateServerConfigRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 70000
	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateStorageConfigRequiresBucketForCloudBackends(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = StorageS3
	cfg.Storage.Bucket = ""
	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.bucket")
}

func TestValidateEngineConfigRejectsMaxDimensionsOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Engine.MaxDimensions = 5
	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.max_dimensions")
}
