// Package evaluate turns model outputs into argmax predictions and the bookkeeping
// built on them: overall accuracy, per-class accuracy and the confusion matrix.
package evaluate

import (
	"errors"
	"fmt"

	"github.com/born-ml/mnist-tutorial/internal/dataset"
	"github.com/born-ml/mnist-tutorial/internal/model"
)

// DefaultSize is the number of held-out examples drawn per evaluation.
const DefaultSize = 500

// ErrMismatch is returned when predicted and actual labels cannot be paired.
var ErrMismatch = errors.New("prediction length mismatch")

// TestBatches supplies held-out batches. *dataset.Data implements it.
type TestBatches interface {
	NextTestBatch(n int) (*dataset.Batch, error)
}

// Prediction pairs predicted classes with true classes, index by index.
type Prediction struct {
	Predicted []int
	Actual    []int
}

// Len returns the number of evaluated examples.
func (p *Prediction) Len() int { return len(p.Actual) }

func (p *Prediction) validate(numClasses int) error {
	if len(p.Predicted) != len(p.Actual) {
		return fmt.Errorf("%w: %d predicted, %d actual", ErrMismatch, len(p.Predicted), len(p.Actual))
	}
	for i := range p.Actual {
		if p.Actual[i] < 0 || p.Actual[i] >= numClasses || p.Predicted[i] < 0 || p.Predicted[i] >= numClasses {
			return fmt.Errorf("%w: example %d has class outside [0,%d)", ErrMismatch, i, numClasses)
		}
	}
	return nil
}

// DoPrediction draws one fresh test batch of n examples, runs m on it, and returns
// the argmax of the model output next to the argmax of the one-hot labels.
func DoPrediction(m *model.Model, data TestBatches, n int) (*Prediction, error) {
	batch, err := data.NextTestBatch(n)
	if err != nil {
		return nil, fmt.Errorf("draw test batch: %w", err)
	}
	probs, err := m.Predict(batch)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return &Prediction{
		Predicted: probs.Argmax(),
		Actual:    batch.Classes(),
	}, nil
}

// Accuracy returns the fraction of examples classified correctly. It is 0 for an
// empty prediction.
func Accuracy(p *Prediction) (float64, error) {
	if len(p.Predicted) != len(p.Actual) {
		return 0, fmt.Errorf("%w: %d predicted, %d actual", ErrMismatch, len(p.Predicted), len(p.Actual))
	}
	if p.Len() == 0 {
		return 0, nil
	}
	correct := 0
	for i, want := range p.Actual {
		if p.Predicted[i] == want {
			correct++
		}
	}
	return float64(correct) / float64(p.Len()), nil
}

// ClassAccuracy is the accuracy over the examples of one true class.
type ClassAccuracy struct {
	Class    int
	Accuracy float64 // 0 when Count is 0
	Count    int
}

// PerClassAccuracy groups examples by true class and reports the fraction of each
// group predicted correctly. The result always has numClasses entries.
func PerClassAccuracy(p *Prediction, numClasses int) ([]ClassAccuracy, error) {
	if err := p.validate(numClasses); err != nil {
		return nil, err
	}
	out := make([]ClassAccuracy, numClasses)
	correct := make([]int, numClasses)
	for i := range out {
		out[i].Class = i
	}
	for i, want := range p.Actual {
		out[want].Count++
		if p.Predicted[i] == want {
			correct[want]++
		}
	}
	for i := range out {
		if out[i].Count > 0 {
			out[i].Accuracy = float64(correct[i]) / float64(out[i].Count)
		}
	}
	return out, nil
}

// ConfusionMatrix counts predictions per (true, predicted) class pair. Rows are true
// classes, columns predicted classes.
type ConfusionMatrix [][]int

// NewConfusionMatrix builds the numClasses x numClasses matrix for p.
func NewConfusionMatrix(p *Prediction, numClasses int) (ConfusionMatrix, error) {
	if err := p.validate(numClasses); err != nil {
		return nil, err
	}
	cm := make(ConfusionMatrix, numClasses)
	for i := range cm {
		cm[i] = make([]int, numClasses)
	}
	for i, want := range p.Actual {
		cm[want][p.Predicted[i]]++
	}
	return cm, nil
}

// RowSums returns the number of examples of each true class.
func (cm ConfusionMatrix) RowSums() []int {
	sums := make([]int, len(cm))
	for i, row := range cm {
		for _, v := range row {
			sums[i] += v
		}
	}
	return sums
}

// Max returns the largest cell count.
func (cm ConfusionMatrix) Max() int {
	m := 0
	for _, row := range cm {
		for _, v := range row {
			m = max(m, v)
		}
	}
	return m
}

// Total returns the sum of all cells.
func (cm ConfusionMatrix) Total() int {
	total := 0
	for _, s := range cm.RowSums() {
		total += s
	}
	return total
}
