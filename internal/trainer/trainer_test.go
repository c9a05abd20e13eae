package trainer

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mnist-tutorial/internal/dataset"
	"github.com/born-ml/mnist-tutorial/internal/model"
)

func syntheticBatches(t *testing.T, trainSize, valSize int) (train, val *dataset.Batch) {
	t.Helper()
	d := dataset.New(&dataset.SyntheticSource{TrainSize: trainSize, TestSize: valSize, Seed: 11}, 11)
	require.NoError(t, d.Load(context.Background()))

	train, err := d.NextTrainBatch(trainSize)
	require.NoError(t, err)
	val, err = d.NextTestBatch(valSize)
	require.NoError(t, err)
	return train, val
}

func newModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.Build(model.DefaultArchitecture(), model.NewBackend(), rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	return m
}

func smallOptions(epochs int) Options {
	opts := DefaultOptions()
	opts.BatchSize = 32
	opts.Epochs = epochs
	opts.LearningRate = 0.01
	return opts
}

func TestFit_ReportsEveryEpoch(t *testing.T) {
	train, val := syntheticBatches(t, 100, 40)
	m := newModel(t)

	var epochs []EpochLogs
	batches := 0
	cb := CallbackFuncs{
		BatchEnd: func(_ context.Context, logs BatchLogs) error {
			batches++
			assert.Positive(t, logs.Size)
			return nil
		},
		EpochEnd: func(_ context.Context, logs EpochLogs) error {
			epochs = append(epochs, logs)
			return nil
		},
	}

	history, err := Fit(context.Background(), m, train, val, smallOptions(10), cb)
	require.NoError(t, err)

	require.Len(t, history.Epochs, 10)
	assert.Equal(t, history.Epochs, epochs)
	assert.Len(t, history.Values(MetricAcc), 10)
	assert.Len(t, history.Values(MetricValAcc), 10)
	// 100 examples in batches of 32: 4 steps per epoch.
	assert.Equal(t, 40, batches)

	for i, e := range history.Epochs {
		assert.Equal(t, i+1, e.Epoch)
		for _, v := range []float64{e.Loss, e.Acc, e.ValLoss, e.ValAcc} {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
		assert.True(t, e.Acc >= 0 && e.Acc <= 1)
		assert.True(t, e.ValAcc >= 0 && e.ValAcc <= 1)
	}

	losses := history.Values(MetricLoss)
	assert.Less(t, losses[len(losses)-1], losses[0], "training loss should drop")

	assert.False(t, m.Backend().Tape().IsRecording())
	assert.Zero(t, m.Backend().Tape().NumOps())
}

func TestFit_NonFiniteLoss(t *testing.T) {
	train, val := syntheticBatches(t, 32, 8)
	m := newModel(t)

	// Poison the output bias so every logit is NaN.
	params := m.Parameters()
	bias := params[len(params)-1].Tensor().Raw().AsFloat32()
	for i := range bias {
		bias[i] = float32(math.NaN())
	}

	history, err := Fit(context.Background(), m, train, val, smallOptions(3), nil)
	require.ErrorIs(t, err, ErrNumericInstability)
	assert.Empty(t, history.Epochs)
}

func TestFit_StopsOnCancel(t *testing.T) {
	train, val := syntheticBatches(t, 32, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Fit(ctx, newModel(t), train, val, smallOptions(2), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFit_CallbackErrorStops(t *testing.T) {
	train, val := syntheticBatches(t, 32, 8)
	stop := errors.New("stop")

	calls := 0
	cb := Callbacks{
		CallbackFuncs{EpochEnd: func(context.Context, EpochLogs) error {
			calls++
			return stop
		}},
		CallbackFuncs{EpochEnd: func(context.Context, EpochLogs) error {
			t.Fatal("second callback must not run after the first fails")
			return nil
		}},
	}

	history, err := Fit(context.Background(), newModel(t), train, val, smallOptions(5), cb)
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
	assert.Len(t, history.Epochs, 1)
}

func TestFit_InvalidOptions(t *testing.T) {
	train, val := syntheticBatches(t, 8, 8)
	m := newModel(t)

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero batch", func(o *Options) { o.BatchSize = 0 }},
		{"zero epochs", func(o *Options) { o.Epochs = 0 }},
		{"negative lr", func(o *Options) { o.LearningRate = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			_, err := Fit(context.Background(), m, train, val, opts, nil)
			require.ErrorIs(t, err, ErrInvalidOptions)
		})
	}

	_, err := Fit(context.Background(), m, &dataset.Batch{}, val, DefaultOptions(), nil)
	require.ErrorIs(t, err, ErrInvalidOptions)
}

func TestEpochLogs_Metric(t *testing.T) {
	logs := EpochLogs{Loss: 1, Acc: 2, ValLoss: 3, ValAcc: 4}
	for name, want := range map[string]float64{MetricLoss: 1, MetricAcc: 2, MetricValLoss: 3, MetricValAcc: 4} {
		got, ok := logs.Metric(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := logs.Metric("f1")
	assert.False(t, ok)
}

func TestCountCorrect(t *testing.T) {
	logits := []float32{
		0.1, 0.9, 0,
		3, 1, 2,
		0, 0, 5,
	}
	assert.Equal(t, 2, countCorrect(logits, []int{1, 0, 1}, 3))
}

func TestFit_RestoresRecordingState(t *testing.T) {
	train, val := syntheticBatches(t, 32, 8)

	for _, recording := range []bool{false, true} {
		m := newModel(t)
		tape := m.Backend().Tape()
		if recording {
			tape.StartRecording()
		}

		_, err := Fit(context.Background(), m, train, val, smallOptions(1), nil)
		require.NoError(t, err)
		assert.Equal(t, recording, tape.IsRecording())
		assert.Zero(t, tape.NumOps())
		tape.StopRecording()
	}
}
