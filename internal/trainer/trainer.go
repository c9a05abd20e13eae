// Package trainer runs the epoch loop: shuffled mini-batches, forward pass, backward
// pass through the gradient tape, Adam step, validation at the end of every epoch.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"

	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/mnist-tutorial/internal/dataset"
	"github.com/born-ml/mnist-tutorial/internal/model"
)

var (
	// ErrNumericInstability is returned when the loss stops being a finite number.
	ErrNumericInstability = errors.New("numeric instability")
	// ErrInvalidOptions is returned for unusable training options.
	ErrInvalidOptions = errors.New("invalid training options")
)

// Options controls a training run.
type Options struct {
	BatchSize    int
	Epochs       int
	Shuffle      bool
	LearningRate float32
	Seed         int64
	Logger       *log.Logger // nil disables progress lines
}

// DefaultOptions returns the tutorial settings: batch 512, 10 epochs, shuffled,
// Adam at its default learning rate.
func DefaultOptions() Options {
	return Options{
		BatchSize:    512,
		Epochs:       10,
		Shuffle:      true,
		LearningRate: model.DefaultLearningRate,
		Seed:         1,
	}
}

func (o Options) validate() error {
	if o.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be > 0, got %d", ErrInvalidOptions, o.BatchSize)
	}
	if o.Epochs <= 0 {
		return fmt.Errorf("%w: epochs must be > 0, got %d", ErrInvalidOptions, o.Epochs)
	}
	if !(o.LearningRate > 0) {
		return fmt.Errorf("%w: learning rate must be > 0, got %v", ErrInvalidOptions, o.LearningRate)
	}
	return nil
}

// History holds the logs of every completed epoch.
type History struct {
	Epochs []EpochLogs
}

// Values returns one metric across all epochs.
func (h *History) Values(metric string) []float64 {
	out := make([]float64, 0, len(h.Epochs))
	for _, e := range h.Epochs {
		if v, ok := e.Metric(metric); ok {
			out = append(out, v)
		}
	}
	return out
}

// Fit trains m on train for opts.Epochs epochs, evaluating on validation after each
// epoch. The validation batch is fixed for the whole run. cb may be nil.
//
// A non-finite loss stops the run with ErrNumericInstability; there is no retry.
func Fit(ctx context.Context, m *model.Model, train, validation *dataset.Batch, opts Options, cb Callback) (*History, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if train == nil || train.Size == 0 {
		return nil, fmt.Errorf("%w: empty training set", ErrInvalidOptions)
	}
	if cb == nil {
		cb = Callbacks(nil)
	}

	t := &run{
		model:     m,
		optimizer: m.NewOptimizer(opts.LearningRate),
		opts:      opts,
		rng:       rand.New(rand.NewSource(opts.Seed)), //nolint:gosec // shuffling, not security
	}

	tape := m.Backend().Tape()
	wasRecording := tape.IsRecording()
	tape.StartRecording()
	defer func() {
		if !wasRecording {
			tape.StopRecording()
		}
	}()

	history := &History{}
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		logs, err := t.epoch(ctx, epoch, train, cb)
		if err != nil {
			return history, err
		}

		if validation != nil && validation.Size > 0 {
			logs.ValLoss, logs.ValAcc, err = t.evaluate(validation)
			if err != nil {
				return history, fmt.Errorf("epoch %d validation: %w", epoch, err)
			}
		}

		history.Epochs = append(history.Epochs, logs)
		if opts.Logger != nil {
			opts.Logger.Printf("epoch=%d/%d loss=%.4f acc=%.4f val_loss=%.4f val_acc=%.4f",
				epoch, opts.Epochs, logs.Loss, logs.Acc, logs.ValLoss, logs.ValAcc)
		}
		if err := cb.OnEpochEnd(ctx, logs); err != nil {
			return history, fmt.Errorf("epoch %d callback: %w", epoch, err)
		}
	}
	return history, nil
}

type run struct {
	model     *model.Model
	optimizer optim.Optimizer
	opts      Options
	rng       *rand.Rand
}

type stepResult struct {
	loss    float32
	correct int
}

// epoch runs one pass over train in mini-batches.
func (t *run) epoch(ctx context.Context, epoch int, train *dataset.Batch, cb Callback) (EpochLogs, error) {
	order := make([]int, train.Size)
	for i := range order {
		order[i] = i
	}
	if t.opts.Shuffle {
		t.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	var totalLoss float64
	totalCorrect := 0
	for start, batchIdx := 0, 0; start < train.Size; start, batchIdx = start+t.opts.BatchSize, batchIdx+1 {
		if err := ctx.Err(); err != nil {
			return EpochLogs{}, err
		}

		end := min(start+t.opts.BatchSize, train.Size)
		batch := train.Gather(order[start:end])

		res, err := t.step(batch)
		if err != nil {
			return EpochLogs{}, fmt.Errorf("epoch %d batch %d: %w", epoch, batchIdx, err)
		}
		totalLoss += float64(res.loss) * float64(batch.Size)
		totalCorrect += res.correct

		if err := cb.OnBatchEnd(ctx, BatchLogs{
			Epoch: epoch,
			Batch: batchIdx,
			Size:  batch.Size,
			Loss:  float64(res.loss),
			Acc:   float64(res.correct) / float64(batch.Size),
		}); err != nil {
			return EpochLogs{}, fmt.Errorf("epoch %d batch %d callback: %w", epoch, batchIdx, err)
		}
	}

	return EpochLogs{
		Epoch: epoch,
		Loss:  totalLoss / float64(train.Size),
		Acc:   float64(totalCorrect) / float64(train.Size),
	}, nil
}

// step performs one forward/backward/update cycle. Every tensor it creates is
// released before it returns and the tape is cleared.
func (t *run) step(batch *dataset.Batch) (stepResult, error) {
	m := t.model
	tape := m.Backend().Tape()

	return model.Tidy(func(s *model.Scope) (stepResult, error) {
		defer tape.Clear()

		t.optimizer.ZeroGrad()

		x, err := m.Input(s, batch)
		if err != nil {
			return stepResult{}, err
		}
		targets, err := m.Targets(s, batch)
		if err != nil {
			return stepResult{}, err
		}

		logits := m.Forward(s, x)
		lossRaw, loss := m.Loss(s, logits, targets)
		if !isFinite(loss) {
			return stepResult{}, fmt.Errorf("%w: loss is %v", ErrNumericInstability, loss)
		}

		outputGrad, err := s.NewRaw(lossRaw.Shape(), tensor.Float32)
		if err != nil {
			return stepResult{}, err
		}
		outputGrad.AsFloat32()[0] = 1.0

		grads := tape.Backward(outputGrad, m.Backend())
		t.optimizer.Step(grads)

		return stepResult{
			loss:    loss,
			correct: countCorrect(logits.Raw().AsFloat32(), batch.Classes(), m.NumClasses()),
		}, nil
	})
}

// evaluate computes mean loss and accuracy on b without recording gradients.
func (t *run) evaluate(b *dataset.Batch) (loss, acc float64, err error) {
	m := t.model
	tape := m.Backend().Tape()
	tape.StopRecording()
	defer tape.StartRecording()

	var totalLoss float64
	totalCorrect := 0
	for start := 0; start < b.Size; start += t.opts.BatchSize {
		end := min(start+t.opts.BatchSize, b.Size)
		chunk := b.Gather(indexRange(start, end))

		res, err := model.Tidy(func(s *model.Scope) (stepResult, error) {
			x, err := m.Input(s, chunk)
			if err != nil {
				return stepResult{}, err
			}
			targets, err := m.Targets(s, chunk)
			if err != nil {
				return stepResult{}, err
			}
			logits := m.Forward(s, x)
			_, l := m.Loss(s, logits, targets)
			return stepResult{
				loss:    l,
				correct: countCorrect(logits.Raw().AsFloat32(), chunk.Classes(), m.NumClasses()),
			}, nil
		})
		if err != nil {
			return 0, 0, err
		}
		if !isFinite(res.loss) {
			return 0, 0, fmt.Errorf("%w: validation loss is %v", ErrNumericInstability, res.loss)
		}
		totalLoss += float64(res.loss) * float64(chunk.Size)
		totalCorrect += res.correct
	}
	return totalLoss / float64(b.Size), float64(totalCorrect) / float64(b.Size), nil
}

func countCorrect(logits []float32, classes []int, numClasses int) int {
	correct := 0
	for i, want := range classes {
		if dataset.Argmax(logits[i*numClasses:(i+1)*numClasses]) == want {
			correct++
		}
	}
	return correct
}

func indexRange(start, end int) []int {
	idx := make([]int, end-start)
	for i := range idx {
		idx[i] = start + i
	}
	return idx
}

func isFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
