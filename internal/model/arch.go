package model

import (
	"errors"
	"fmt"
)

// ErrShape is returned for architectures or inputs whose shapes do not line up.
var ErrShape = errors.New("shape mismatch")

// LayerKind identifies a layer type in an Architecture.
type LayerKind int

// Supported layer kinds.
const (
	Conv2D LayerKind = iota
	MaxPool2D
	Flatten
	Dense
)

func (k LayerKind) String() string {
	switch k {
	case Conv2D:
		return "conv2d"
	case MaxPool2D:
		return "max_pooling2d"
	case Flatten:
		return "flatten"
	case Dense:
		return "dense"
	default:
		return fmt.Sprintf("LayerKind(%d)", int(k))
	}
}

// Activation is applied to a layer's output.
type Activation string

// Supported activations.
const (
	Linear  Activation = ""
	ReLU    Activation = "relu"
	Softmax Activation = "softmax"
)

// LayerSpec describes one layer. Only the fields relevant to Kind are read.
type LayerSpec struct {
	Kind       LayerKind
	Filters    int // Conv2D
	KernelSize int // Conv2D
	PoolSize   int // MaxPool2D
	Strides    int // Conv2D, MaxPool2D
	Units      int // Dense
	Activation Activation
}

// Architecture is an ordered stack of layers applied to inputs of InputShape
// (height, width, channels).
type Architecture struct {
	InputShape [3]int
	Layers     []LayerSpec
}

// DefaultArchitecture returns the tutorial network:
//
//	Input:   [batch, 28, 28, 1]
//	Conv2D:  8 filters, 5x5, stride 1, ReLU -> [batch, 24, 24, 8]
//	MaxPool: 2x2, stride 2                  -> [batch, 12, 12, 8]
//	Conv2D:  16 filters, 5x5, stride 1, ReLU -> [batch, 8, 8, 16]
//	MaxPool: 2x2, stride 2                  -> [batch, 4, 4, 16]
//	Flatten                                  -> [batch, 256]
//	Dense:   10 units, softmax              -> [batch, 10]
func DefaultArchitecture() Architecture {
	return Architecture{
		InputShape: [3]int{28, 28, 1},
		Layers: []LayerSpec{
			{Kind: Conv2D, Filters: 8, KernelSize: 5, Strides: 1, Activation: ReLU},
			{Kind: MaxPool2D, PoolSize: 2, Strides: 2},
			{Kind: Conv2D, Filters: 16, KernelSize: 5, Strides: 1, Activation: ReLU},
			{Kind: MaxPool2D, PoolSize: 2, Strides: 2},
			{Kind: Flatten},
			{Kind: Dense, Units: 10, Activation: Softmax},
		},
	}
}

// LayerShape is the inferred geometry of one layer.
type LayerShape struct {
	Spec   LayerSpec
	Name   string
	In     []int // without the batch dimension
	Out    []int // without the batch dimension
	FanIn  int   // inputs feeding one output unit (Conv2D, Dense)
	Params int
}

// Shapes infers every layer's input/output shape and parameter count.
//
// Spatial shapes are reported as (height, width, channels); Flatten and Dense produce
// (units). Returns ErrShape for geometry that cannot be built.
func (a Architecture) Shapes() ([]LayerShape, error) {
	h, w, c := a.InputShape[0], a.InputShape[1], a.InputShape[2]
	if h <= 0 || w <= 0 || c <= 0 {
		return nil, fmt.Errorf("%w: invalid input shape %v", ErrShape, a.InputShape)
	}
	if len(a.Layers) == 0 {
		return nil, fmt.Errorf("%w: architecture has no layers", ErrShape)
	}

	shape := []int{h, w, c}
	counts := make(map[LayerKind]int)
	out := make([]LayerShape, 0, len(a.Layers))

	for i, spec := range a.Layers {
		counts[spec.Kind]++
		ls := LayerShape{
			Spec: spec,
			Name: fmt.Sprintf("%s_%d", spec.Kind, counts[spec.Kind]),
			In:   append([]int(nil), shape...),
		}
		if spec.Activation == Softmax && i != len(a.Layers)-1 {
			return nil, fmt.Errorf("%w: layer %s: softmax is only supported on the output layer", ErrShape, ls.Name)
		}

		switch spec.Kind {
		case Conv2D:
			if len(shape) != 3 {
				return nil, fmt.Errorf("%w: layer %s needs a spatial input, got %v", ErrShape, ls.Name, shape)
			}
			if spec.Filters <= 0 || spec.KernelSize <= 0 || spec.Strides <= 0 {
				return nil, fmt.Errorf("%w: layer %s: filters, kernel size and strides must be > 0", ErrShape, ls.Name)
			}
			oh := (shape[0]-spec.KernelSize)/spec.Strides + 1
			ow := (shape[1]-spec.KernelSize)/spec.Strides + 1
			if shape[0] < spec.KernelSize || shape[1] < spec.KernelSize {
				return nil, fmt.Errorf("%w: layer %s: kernel %d larger than input %v", ErrShape, ls.Name, spec.KernelSize, shape)
			}
			ls.FanIn = spec.KernelSize * spec.KernelSize * shape[2]
			ls.Params = ls.FanIn*spec.Filters + spec.Filters
			shape = []int{oh, ow, spec.Filters}

		case MaxPool2D:
			if len(shape) != 3 {
				return nil, fmt.Errorf("%w: layer %s needs a spatial input, got %v", ErrShape, ls.Name, shape)
			}
			if spec.PoolSize <= 0 || spec.Strides <= 0 {
				return nil, fmt.Errorf("%w: layer %s: pool size and strides must be > 0", ErrShape, ls.Name)
			}
			if shape[0] < spec.PoolSize || shape[1] < spec.PoolSize {
				return nil, fmt.Errorf("%w: layer %s: pool %d larger than input %v", ErrShape, ls.Name, spec.PoolSize, shape)
			}
			shape = []int{
				(shape[0]-spec.PoolSize)/spec.Strides + 1,
				(shape[1]-spec.PoolSize)/spec.Strides + 1,
				shape[2],
			}

		case Flatten:
			shape = []int{product(shape)}

		case Dense:
			if len(shape) != 1 {
				return nil, fmt.Errorf("%w: layer %s needs a flat input, got %v (add a Flatten layer)", ErrShape, ls.Name, shape)
			}
			if spec.Units <= 0 {
				return nil, fmt.Errorf("%w: layer %s: units must be > 0", ErrShape, ls.Name)
			}
			ls.FanIn = shape[0]
			ls.Params = shape[0]*spec.Units + spec.Units
			shape = []int{spec.Units}

		default:
			return nil, fmt.Errorf("%w: unknown layer kind %v", ErrShape, spec.Kind)
		}

		ls.Out = append([]int(nil), shape...)
		out = append(out, ls)
	}

	if len(shape) != 1 {
		return nil, fmt.Errorf("%w: network output %v is not flat", ErrShape, shape)
	}
	return out, nil
}

// NumClasses returns the width of the network output.
func (a Architecture) NumClasses() (int, error) {
	shapes, err := a.Shapes()
	if err != nil {
		return 0, err
	}
	return shapes[len(shapes)-1].Out[0], nil
}

func product(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}
