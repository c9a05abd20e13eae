// Package model builds the tutorial's convolutional network on top of the Born
// framework from an Architecture description.
//
// The package only describes the network as data and hands it to Born: layer kernels,
// automatic differentiation and the Adam update all live in the framework.
package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/mnist-tutorial/internal/dataset"
)

// Backend is the compute backend models run on: Born's CPU kernels wrapped with
// gradient recording.
type Backend = autodiff.Backend[*cpu.Backend]

// Tensor is a float32 tensor on Backend.
type Tensor = tensor.Tensor[float32, *Backend]

// Parameter is a trainable tensor on Backend.
type Parameter = nn.Parameter[*Backend]

// NewBackend creates a CPU backend with autodiff.
func NewBackend() *Backend {
	return autodiff.New(cpu.New())
}

// Adam defaults.
const (
	DefaultLearningRate = 0.001
	DefaultBeta1        = 0.9
	DefaultBeta2        = 0.999
	DefaultEpsilon      = 1e-7
)

// layer is one runtime stage of the network. forward tracks every tensor it creates
// in s except its output, which Model.Forward tracks.
type layer interface {
	forward(s *Scope, x *Tensor) *Tensor
	parameters() []*Parameter
}

type convLayer struct {
	conv *nn.Conv2D[*Backend]
	relu *nn.ReLU[*Backend] // nil for a linear activation
}

func (l *convLayer) forward(s *Scope, x *Tensor) *Tensor {
	y := l.conv.Forward(x)
	if l.relu != nil {
		s.Track(y.Raw())
		y = l.relu.Forward(y)
	}
	return y
}

func (l *convLayer) parameters() []*Parameter { return l.conv.Parameters() }

type poolLayer struct {
	pool *nn.MaxPool2D[*Backend]
}

func (l *poolLayer) forward(_ *Scope, x *Tensor) *Tensor { return l.pool.Forward(x) }
func (l *poolLayer) parameters() []*Parameter { return nil }

type flattenLayer struct {
	features int
}

func (l *flattenLayer) forward(_ *Scope, x *Tensor) *Tensor {
	return x.Reshape(x.Shape()[0], l.features)
}

func (l *flattenLayer) parameters() []*Parameter { return nil }

type denseLayer struct {
	linear *nn.Linear[*Backend]
	relu   *nn.ReLU[*Backend]
}

func (l *denseLayer) forward(s *Scope, x *Tensor) *Tensor {
	y := l.linear.Forward(x)
	if l.relu != nil {
		s.Track(y.Raw())
		y = l.relu.Forward(y)
	}
	return y
}

func (l *denseLayer) parameters() []*Parameter { return l.linear.Parameters() }

// Model is a sequential network built from an Architecture.
//
// The output layer's softmax is not part of Forward: Forward returns logits, the loss
// fuses softmax with cross-entropy, and Predict applies softmax explicitly.
type Model struct {
	arch       Architecture
	shapes     []LayerShape
	layers     []layer
	numClasses int
	backend    *Backend
}

// Build instantiates arch on backend. Kernels are initialised with variance scaling
// (scale 1, fan-in, truncated normal) drawn from rng; biases start at zero.
func Build(arch Architecture, backend *Backend, rng *rand.Rand) (*Model, error) {
	shapes, err := arch.Shapes()
	if err != nil {
		return nil, err
	}

	m := &Model{
		arch:    arch,
		shapes:  shapes,
		layers:  make([]layer, 0, len(shapes)),
		backend: backend,
	}

	for _, ls := range shapes {
		spec := ls.Spec
		var relu *nn.ReLU[*Backend]
		if spec.Activation == ReLU {
			relu = nn.NewReLU[*Backend]()
		}

		switch spec.Kind {
		case Conv2D:
			conv := nn.NewConv2D(ls.In[2], spec.Filters, spec.KernelSize, spec.KernelSize, spec.Strides, 0, true, backend)
			m.layers = append(m.layers, &convLayer{conv: conv, relu: relu})
		case MaxPool2D:
			m.layers = append(m.layers, &poolLayer{pool: nn.NewMaxPool2D(spec.PoolSize, spec.Strides, backend)})
		case Flatten:
			m.layers = append(m.layers, &flattenLayer{features: ls.Out[0]})
		case Dense:
			m.layers = append(m.layers, &denseLayer{linear: nn.NewLinear(ls.In[0], spec.Units, backend), relu: relu})
		}
	}

	for i, l := range m.layers {
		params := l.parameters()
		if len(params) == 0 {
			continue
		}
		varianceScaling(params[0].Tensor().Raw().AsFloat32(), shapes[i].FanIn, 1.0, rng)
		for _, bias := range params[1:] {
			clear(bias.Tensor().Raw().AsFloat32())
		}
	}

	m.numClasses = shapes[len(shapes)-1].Out[0]
	return m, nil
}

// Backend returns the backend the model was built on.
func (m *Model) Backend() *Backend {
	return m.backend
}

// Architecture returns the description the model was built from.
func (m *Model) Architecture() Architecture {
	return m.arch
}

// NumClasses returns the width of the model output.
func (m *Model) NumClasses() int {
	return m.numClasses
}

// Parameters returns all trainable parameters in layer order.
func (m *Model) Parameters() []*Parameter {
	var params []*Parameter
	for _, l := range m.layers {
		params = append(params, l.parameters()...)
	}
	return params
}

// NumParameters counts trainable scalars.
func (m *Model) NumParameters() int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Tensor().NumElements()
	}
	return total
}

// NewOptimizer creates an Adam optimizer over the model parameters.
func (m *Model) NewOptimizer(lr float32) optim.Optimizer {
	return optim.NewAdam(
		m.Parameters(),
		optim.AdamConfig{
			LR:    lr,
			Betas: [2]float32{DefaultBeta1, DefaultBeta2},
			Eps:   DefaultEpsilon,
		},
		m.backend,
	)
}

// Input converts a batch to the framework layout [batch, channels, height, width].
// The tensor is tracked by s.
func (m *Model) Input(s *Scope, b *dataset.Batch) (*Tensor, error) {
	h, w, c := m.arch.InputShape[0], m.arch.InputShape[1], m.arch.InputShape[2]
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShape, err)
	}
	if h != dataset.ImageHeight || w != dataset.ImageWidth || c != dataset.ImageChannels {
		return nil, fmt.Errorf("%w: batch images are %v, model expects %v", ErrShape, b.Shape()[1:], m.arch.InputShape)
	}

	raw, err := s.NewRaw(tensor.Shape{b.Size, c, h, w}, tensor.Float32)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShape, err)
	}
	nchw := raw.AsFloat32()
	// NHWC -> NCHW.
	for n := 0; n < b.Size; n++ {
		img := b.Image(n)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				for ch := 0; ch < c; ch++ {
					nchw[((n*c+ch)*h+y)*w+x] = img[(y*w+x)*c+ch]
				}
			}
		}
	}
	return tensor.New[float32](raw, m.backend), nil
}

// Targets converts one-hot labels to class indices [batch] for the loss.
// The tensor is tracked by s.
func (m *Model) Targets(s *Scope, b *dataset.Batch) (*tensor.RawTensor, error) {
	raw, err := s.NewRaw(tensor.Shape{b.Size}, tensor.Int32)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShape, err)
	}
	targets := raw.AsInt32()
	for i, class := range b.Classes() {
		targets[i] = int32(class)
	}
	return raw, nil
}

// Forward runs the network on x and returns logits [batch, classes]. Every
// activation, the logits included, is tracked by s.
func (m *Model) Forward(s *Scope, x *Tensor) *Tensor {
	for _, l := range m.layers {
		x = l.forward(s, x)
		s.Track(x.Raw())
	}
	return x
}

// Loss computes mean categorical cross-entropy of logits against targets. The result
// is recorded on the tape when recording is on and is tracked by s.
func (m *Model) Loss(s *Scope, logits *Tensor, targets *tensor.RawTensor) (*tensor.RawTensor, float32) {
	loss := s.Track(m.backend.CrossEntropy(logits.Raw(), targets))
	return loss, loss.AsFloat32()[0]
}

// Probabilities is a row-major [Rows, Classes] block of softmax outputs.
type Probabilities struct {
	Values  []float32
	Rows    int
	Classes int
}

// Row returns the probabilities of example i.
func (p *Probabilities) Row(i int) []float32 {
	return p.Values[i*p.Classes : (i+1)*p.Classes]
}

// Argmax returns the most probable class of every row.
func (p *Probabilities) Argmax() []int {
	out := make([]int, p.Rows)
	for i := range out {
		out[i] = dataset.Argmax(p.Row(i))
	}
	return out
}

// Predict runs inference on b without recording gradients and returns softmax
// probabilities. All temporary tensors are released before returning.
func (m *Model) Predict(b *dataset.Batch) (*Probabilities, error) {
	tape := m.backend.Tape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if wasRecording {
			tape.StartRecording()
		}
	}()

	return Tidy(func(s *Scope) (*Probabilities, error) {
		x, err := m.Input(s, b)
		if err != nil {
			return nil, err
		}
		logits := m.Forward(s, x)

		probs := &Probabilities{
			Values:  make([]float32, b.Size*m.numClasses),
			Rows:    b.Size,
			Classes: m.numClasses,
		}
		src := logits.Raw().AsFloat32()
		for i := 0; i < b.Size; i++ {
			softmaxInto(probs.Row(i), src[i*m.numClasses:(i+1)*m.numClasses])
		}
		return probs, nil
	})
}

// softmaxInto writes softmax(z) to dst using the max-subtraction trick.
func softmaxInto(dst, z []float32) {
	maxVal := z[0]
	for _, v := range z[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for i, v := range z {
		e := math.Exp(float64(v - maxVal))
		dst[i] = float32(e)
		sum += e
	}
	for i := range dst {
		dst[i] = float32(float64(dst[i]) / sum)
	}
}
