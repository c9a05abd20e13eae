// Package dataset loads the MNIST handwritten-digit dataset and serves it as
// normalised, one-hot labelled batches.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

// MNIST geometry.
const (
	ImageHeight   = 28
	ImageWidth    = 28
	ImageChannels = 1
	ImageSize     = ImageHeight * ImageWidth * ImageChannels
	NumClasses    = 10
)

var (
	// ErrNotLoaded is returned when batches are requested before Load succeeded.
	ErrNotLoaded = errors.New("dataset not loaded")
	// ErrBatchSize is returned for non-positive batch sizes.
	ErrBatchSize = errors.New("batch size must be > 0")
)

// Set is one split of the dataset kept as raw bytes.
type Set struct {
	Images [][]byte // [num_samples][ImageSize], 0-255
	Labels []uint8  // [num_samples], 0-9
}

// Len returns the number of examples in the split.
func (s *Set) Len() int {
	return len(s.Labels)
}

func (s *Set) validate(name string) error {
	if len(s.Images) != len(s.Labels) {
		return fmt.Errorf("%s split: image count (%d) != label count (%d)", name, len(s.Images), len(s.Labels))
	}
	if len(s.Labels) == 0 {
		return fmt.Errorf("%s split is empty", name)
	}
	for i, img := range s.Images {
		if len(img) != ImageSize {
			return fmt.Errorf("%s split: image %d has %d pixels, want %d", name, i, len(img), ImageSize)
		}
	}
	for i, l := range s.Labels {
		if int(l) >= NumClasses {
			return fmt.Errorf("%s split: label %d at index %d is outside [0, %d)", name, l, i, NumClasses)
		}
	}
	return nil
}

// Source produces the train and test splits.
type Source interface {
	Load(ctx context.Context) (train, test *Set, err error)
}

// cursor walks a shuffled permutation of a split, wrapping at the end.
type cursor struct {
	set     *Set
	indices []int
	pos     int
}

func newCursor(set *Set, rng *rand.Rand) *cursor {
	return &cursor{set: set, indices: rng.Perm(set.Len())}
}

func (c *cursor) next(n int) *Batch {
	b := newBatch(n)
	for i := 0; i < n; i++ {
		idx := c.indices[c.pos]
		c.pos = (c.pos + 1) % len(c.indices)
		b.put(i, c.set.Images[idx], c.set.Labels[idx])
	}
	return b
}

// Data holds both splits in memory and hands out batches.
//
// Batches are drawn from a per-split shuffled permutation at a moving offset, so
// consecutive calls return different examples until the split wraps around.
type Data struct {
	src  Source
	seed int64

	once    sync.Once
	loadErr error

	train *cursor
	test  *cursor
}

// New creates a Data backed by src. seed drives the shuffling of both splits.
func New(src Source, seed int64) *Data {
	return &Data{src: src, seed: seed}
}

// Load fetches and decodes the dataset. Only the first call does any work; later
// calls return the first call's result.
func (d *Data) Load(ctx context.Context) error {
	d.once.Do(func() {
		train, test, err := d.src.Load(ctx)
		if err != nil {
			d.loadErr = err
			return
		}
		if err := train.validate("train"); err != nil {
			d.loadErr = err
			return
		}
		if err := test.validate("test"); err != nil {
			d.loadErr = err
			return
		}
		rng := rand.New(rand.NewSource(d.seed)) //nolint:gosec // shuffling, not security
		d.train = newCursor(train, rng)
		d.test = newCursor(test, rng)
	})
	return d.loadErr
}

// TrainLen returns the size of the training split (0 before Load).
func (d *Data) TrainLen() int {
	if d.train == nil {
		return 0
	}
	return d.train.set.Len()
}

// TestLen returns the size of the test split (0 before Load).
func (d *Data) TestLen() int {
	if d.test == nil {
		return 0
	}
	return d.test.set.Len()
}

// NextTrainBatch returns n fresh examples from the training split.
func (d *Data) NextTrainBatch(n int) (*Batch, error) {
	return d.nextBatch(d.train, n)
}

// NextTestBatch returns n fresh examples from the test split.
func (d *Data) NextTestBatch(n int) (*Batch, error) {
	return d.nextBatch(d.test, n)
}

func (d *Data) nextBatch(c *cursor, n int) (*Batch, error) {
	if c == nil {
		return nil, ErrNotLoaded
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrBatchSize, n)
	}
	return c.next(n), nil
}
