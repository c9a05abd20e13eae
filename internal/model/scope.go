package model

import (
	"github.com/born-ml/born/tensor"
)

// Scope collects temporary tensors created for a single operation so they can be
// released together. The numeric runtime keeps buffers alive until their reference
// count drops to zero, so every temporary must be released explicitly.
type Scope struct {
	raws []*tensor.RawTensor
}

// Track registers raw for release when the scope ends and returns it.
func (s *Scope) Track(raw *tensor.RawTensor) *tensor.RawTensor {
	if raw != nil {
		s.raws = append(s.raws, raw)
	}
	return raw
}

// NewRaw allocates a tracked raw tensor on the CPU.
func (s *Scope) NewRaw(shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error) {
	raw, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		return nil, err
	}
	return s.Track(raw), nil
}

// Len returns the number of tensors the scope currently owns.
func (s *Scope) Len() int {
	return len(s.raws)
}

// release frees tracked tensors in reverse order of creation.
func (s *Scope) release() {
	for i := len(s.raws) - 1; i >= 0; i-- {
		s.raws[i].Release()
	}
	s.raws = nil
}

// Tidy runs fn with a fresh Scope and releases everything tracked in it when fn
// returns, whether it succeeded, failed or panicked. Results returned by fn must not
// alias tracked tensors.
func Tidy[T any](fn func(s *Scope) (T, error)) (T, error) {
	s := &Scope{}
	defer s.release()
	return fn(s)
}
