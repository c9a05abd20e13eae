package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 512, cfg.BatchSize)
	assert.Equal(t, 10, cfg.Epochs)
	assert.Equal(t, 5500, cfg.TrainSize)
	assert.Equal(t, 1000, cfg.ValidationSize)
	assert.Equal(t, 500, cfg.EvalSize)
	assert.Equal(t, 20, cfg.Examples)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_mode: synthetic
epochs: 3
batch_size: 64
learning_rate: 0.01
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DataSynthetic, cfg.DataMode)
	assert.Equal(t, 3, cfg.Epochs)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.InDelta(t, 0.01, cfg.LearningRate, 1e-12)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5500, cfg.TrainSize)
	require.NoError(t, cfg.Validate())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "epochs: 2\nlayers: 4\n"},
		{"wrong type", "epochs: many\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			require.Error(t, err)
		})
	}

	cfg, err := Parse(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyOverrides(Overrides{
		Synthetic: true,
		Epochs:    2,
		OutDir:    "/tmp/x",
		Seed:      7,
		Quiet:     true,
	})
	assert.Equal(t, DataSynthetic, cfg.DataMode)
	assert.Equal(t, 2, cfg.Epochs)
	assert.Equal(t, "/tmp/x", cfg.OutDir)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.True(t, cfg.Quiet)
	assert.Equal(t, 512, cfg.BatchSize, "zero override keeps value")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.DataMode = "s3" }},
		{"no data dir", func(c *Config) { c.DataDir = "" }},
		{"download without url", func(c *Config) { c.Download = true; c.BaseURL = "" }},
		{"no out dir", func(c *Config) { c.OutDir = "" }},
		{"zero epochs", func(c *Config) { c.Epochs = 0 }},
		{"negative batch", func(c *Config) { c.BatchSize = -1 }},
		{"zero eval", func(c *Config) { c.EvalSize = 0 }},
		{"negative examples", func(c *Config) { c.Examples = -1 }},
		{"zero lr", func(c *Config) { c.LearningRate = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	var nilCfg *Config
	require.ErrorIs(t, nilCfg.Validate(), ErrInvalid)

	synthetic := Default()
	synthetic.DataMode = DataSynthetic
	synthetic.DataDir = ""
	require.NoError(t, synthetic.Validate())
}
