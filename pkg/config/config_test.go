package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsForMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 1024\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.BatchSizeBytes)
	assert.Equal(t, Default().WitnessDataRatio, cfg.WitnessDataRatio)
}

func TestLoadParsesAllFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
batch_size: 2048
batch_delay: 250ms
witness_data_ratio: 0.5
deploys_data_ratio: 0.75
inline_disk_value_threshold: 8000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.BatchSizeBytes)
	assert.Equal(t, 250*time.Millisecond, cfg.BatchDelay)
	assert.Equal(t, 0.5, cfg.WitnessDataRatio)
	assert.Equal(t, 0.75, cfg.DeploysDataRatio)
	assert.Equal(t, 8000, cfg.InlineDiskValueThreshold)
}

func TestValidateRejectsOutOfRangeRatio(t *testing.T) {
	cfg := Default()
	cfg.WitnessDataRatio = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveBatchSize(t *testing.T) {
	cfg := Default()
	cfg.BatchSizeBytes = 0
	assert.Error(t, cfg.Validate())
}
