package tutorial

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mnist-tutorial/internal/config"
	"github.com/born-ml/mnist-tutorial/internal/trainer"
)

func syntheticConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataMode = config.DataSynthetic
	cfg.OutDir = t.TempDir()
	cfg.TrainSize = 96
	cfg.ValidationSize = 32
	cfg.EvalSize = 50
	cfg.Examples = 20
	cfg.Epochs = 2
	cfg.BatchSize = 32
	cfg.LearningRate = 0.005
	cfg.Seed = 3
	return cfg
}

func TestRun_Synthetic(t *testing.T) {
	cfg := syntheticConfig(t)

	report, err := Run(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, 5994, report.Summary.TotalParams)
	assert.Contains(t, report.Summary.Optimizer, "lr=0.005")
	require.NotNil(t, report.History)
	assert.Len(t, report.History.Values(trainer.MetricAcc), cfg.Epochs)
	assert.True(t, report.Accuracy >= 0 && report.Accuracy <= 1)
	assert.Len(t, report.PerClass, 10)

	require.Len(t, report.Confusion, 10)
	assert.Equal(t, cfg.EvalSize, report.Confusion.Total())

	for _, rel := range []string{
		"index.html",
		"model/model-architecture/summary.txt",
		"model/model-training/history.csv",
		"model/model-training/loss.svg",
		"model/model-training/accuracy.svg",
		"evaluation/accuracy/per_class_accuracy.csv",
		"evaluation/confusion-matrix/confusion_matrix.png",
	} {
		assert.FileExists(t, filepath.Join(cfg.OutDir, rel))
	}
	assert.Equal(t, filepath.Join(cfg.OutDir, "index.html"), report.IndexPath)

	thumbs, err := filepath.Glob(filepath.Join(cfg.OutDir, "input-data", "input-data-examples", "example_*.png"))
	require.NoError(t, err)
	assert.Len(t, thumbs, cfg.Examples)
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := syntheticConfig(t)
	cfg.BatchSize = 0

	_, err := Run(context.Background(), cfg, nil)
	require.ErrorIs(t, err, ErrConfig)
	require.ErrorIs(t, err, config.ErrInvalid)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "config", se.Stage)
}

func TestRun_MissingDataset(t *testing.T) {
	cfg := syntheticConfig(t)
	cfg.DataMode = config.DataIDX
	cfg.DataDir = filepath.Join(t.TempDir(), "empty")
	cfg.Download = false

	_, err := Run(context.Background(), cfg, nil)
	require.ErrorIs(t, err, ErrDataLoad)
	require.ErrorIs(t, err, os.ErrNotExist)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "load", se.Stage)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, syntheticConfig(t), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrDataLoad) || errors.Is(err, ErrConfig) || errors.Is(err, ErrNumeric))
}

func TestStage(t *testing.T) {
	err := stage("train", nil, ErrNumeric, func() error { panic("index out of range") })
	require.ErrorIs(t, err, ErrNumeric)
	assert.Contains(t, err.Error(), "panic: index out of range")

	err = stage("train", nil, ErrNumeric, func() error {
		return fmt.Errorf("epoch 1: %w", trainer.ErrNumericInstability)
	})
	require.ErrorIs(t, err, ErrNumeric)
	require.ErrorIs(t, err, trainer.ErrNumericInstability)

	plain := errors.New("disk full")
	err = stage("index", nil, ErrConfig, func() error { return plain })
	require.ErrorIs(t, err, plain)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Nil(t, se.Kind)
	assert.Equal(t, "index: disk full", err.Error())

	require.NoError(t, stage("ok", nil, nil, func() error { return nil }))
}
