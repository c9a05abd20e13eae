// Package config holds the knobs of a tutorial run: built-in defaults, an optional
// YAML file, and command-line overrides on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/mnist-tutorial/internal/dataset"
)

// Data modes.
const (
	DataIDX       = "idx"
	DataSynthetic = "synthetic"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config captures the runtime knobs for a tutorial run.
type Config struct {
	DataMode       string  `yaml:"data_mode"`
	DataDir        string  `yaml:"data_dir"`
	Download       bool    `yaml:"download"`
	BaseURL        string  `yaml:"base_url"`
	OutDir         string  `yaml:"out_dir"`
	Epochs         int     `yaml:"epochs"`
	BatchSize      int     `yaml:"batch_size"`
	TrainSize      int     `yaml:"train_size"`
	ValidationSize int     `yaml:"validation_size"`
	EvalSize       int     `yaml:"eval_size"`
	Examples       int     `yaml:"examples"`
	LearningRate   float64 `yaml:"learning_rate"`
	Seed           int64   `yaml:"seed"`
	Quiet          bool    `yaml:"quiet"`
}

// Default returns the tutorial settings.
func Default() *Config {
	return &Config{
		DataMode:       DataIDX,
		DataDir:        "data/mnist",
		BaseURL:        dataset.DefaultBaseURL,
		OutDir:         "out",
		Epochs:         10,
		BatchSize:      512,
		TrainSize:      5500,
		ValidationSize: 1000,
		EvalSize:       500,
		Examples:       20,
		LearningRate:   0.001,
		Seed:           42,
	}
}

// Overrides captures CLI supplied values. Zero values leave the config untouched.
type Overrides struct {
	DataDir        string
	Download       bool
	Synthetic      bool
	OutDir         string
	Epochs         int
	BatchSize      int
	TrainSize      int
	ValidationSize int
	EvalSize       int
	Examples       int
	LearningRate   float64
	Seed           int64
	Quiet          bool
}

// Load reads a YAML file on top of Default. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r on top of Default.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.Download {
		c.Download = true
	}
	if o.Synthetic {
		c.DataMode = DataSynthetic
	}
	if o.OutDir != "" {
		c.OutDir = o.OutDir
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.TrainSize > 0 {
		c.TrainSize = o.TrainSize
	}
	if o.ValidationSize > 0 {
		c.ValidationSize = o.ValidationSize
	}
	if o.EvalSize > 0 {
		c.EvalSize = o.EvalSize
	}
	if o.Examples > 0 {
		c.Examples = o.Examples
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.Quiet {
		c.Quiet = true
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	switch c.DataMode {
	case DataIDX:
		if c.DataDir == "" {
			return fmt.Errorf("%w: data_dir must be set for data_mode %q", ErrInvalid, DataIDX)
		}
		if c.Download && c.BaseURL == "" {
			return fmt.Errorf("%w: base_url must be set when download is enabled", ErrInvalid)
		}
	case DataSynthetic:
	default:
		return fmt.Errorf("%w: data_mode must be %q or %q (got %q)", ErrInvalid, DataIDX, DataSynthetic, c.DataMode)
	}
	if c.OutDir == "" {
		return fmt.Errorf("%w: out_dir must be set", ErrInvalid)
	}

	for _, f := range []struct {
		name string
		v    int
	}{
		{"epochs", c.Epochs},
		{"batch_size", c.BatchSize},
		{"train_size", c.TrainSize},
		{"validation_size", c.ValidationSize},
		{"eval_size", c.EvalSize},
	} {
		if f.v <= 0 {
			return fmt.Errorf("%w: %s must be > 0 (got %d)", ErrInvalid, f.name, f.v)
		}
	}
	if c.Examples < 0 {
		return fmt.Errorf("%w: examples must be >= 0 (got %d)", ErrInvalid, c.Examples)
	}
	if !(c.LearningRate > 0) {
		return fmt.Errorf("%w: learning_rate must be > 0 (got %v)", ErrInvalid, c.LearningRate)
	}
	return nil
}
