package trainer

import "context"

// Metric names reported in EpochLogs.
const (
	MetricLoss    = "loss"
	MetricAcc     = "acc"
	MetricValLoss = "val_loss"
	MetricValAcc  = "val_acc"
)

// BatchLogs are reported after every optimisation step.
type BatchLogs struct {
	Epoch int // 1-based
	Batch int // 0-based within the epoch
	Size  int
	Loss  float64
	Acc   float64
}

// EpochLogs are reported after every epoch.
type EpochLogs struct {
	Epoch   int // 1-based
	Loss    float64
	Acc     float64
	ValLoss float64
	ValAcc  float64
}

// Metric looks a value up by its name (loss, acc, val_loss, val_acc).
func (l EpochLogs) Metric(name string) (float64, bool) {
	switch name {
	case MetricLoss:
		return l.Loss, true
	case MetricAcc:
		return l.Acc, true
	case MetricValLoss:
		return l.ValLoss, true
	case MetricValAcc:
		return l.ValAcc, true
	default:
		return 0, false
	}
}

// Callback observes training progress. Returning an error stops training.
type Callback interface {
	OnBatchEnd(ctx context.Context, logs BatchLogs) error
	OnEpochEnd(ctx context.Context, logs EpochLogs) error
}

// CallbackFuncs adapts plain functions to Callback. Nil fields are skipped.
type CallbackFuncs struct {
	BatchEnd func(ctx context.Context, logs BatchLogs) error
	EpochEnd func(ctx context.Context, logs EpochLogs) error
}

// OnBatchEnd implements Callback.
func (f CallbackFuncs) OnBatchEnd(ctx context.Context, logs BatchLogs) error {
	if f.BatchEnd == nil {
		return nil
	}
	return f.BatchEnd(ctx, logs)
}

// OnEpochEnd implements Callback.
func (f CallbackFuncs) OnEpochEnd(ctx context.Context, logs EpochLogs) error {
	if f.EpochEnd == nil {
		return nil
	}
	return f.EpochEnd(ctx, logs)
}

// Callbacks fans events out to several callbacks in order, stopping at the first error.
type Callbacks []Callback

// OnBatchEnd implements Callback.
func (cs Callbacks) OnBatchEnd(ctx context.Context, logs BatchLogs) error {
	for _, c := range cs {
		if err := c.OnBatchEnd(ctx, logs); err != nil {
			return err
		}
	}
	return nil
}

// OnEpochEnd implements Callback.
func (cs Callbacks) OnEpochEnd(ctx context.Context, logs EpochLogs) error {
	for _, c := range cs {
		if err := c.OnEpochEnd(ctx, logs); err != nil {
			return err
		}
	}
	return nil
}
