package dataset

import "fmt"

// Batch is a rectangular block of examples.
//
//	Images: [size, 28, 28, 1] row-major, pixels scaled to [0, 1]
//	Labels: [size, 10] one-hot
type Batch struct {
	Images []float32
	Labels []float32
	Size   int
}

func newBatch(n int) *Batch {
	return &Batch{
		Images: make([]float32, n*ImageSize),
		Labels: make([]float32, n*NumClasses),
		Size:   n,
	}
}

// put writes example i from raw pixels and a class label.
func (b *Batch) put(i int, pixels []byte, label uint8) {
	img := b.Images[i*ImageSize : (i+1)*ImageSize]
	for j, p := range pixels {
		img[j] = float32(p) / 255.0
	}
	b.Labels[i*NumClasses+int(label)] = 1
}

// Shape returns the image array shape [size, 28, 28, 1].
func (b *Batch) Shape() []int {
	return []int{b.Size, ImageHeight, ImageWidth, ImageChannels}
}

// Image returns the pixels of example i (a view, not a copy).
func (b *Batch) Image(i int) []float32 {
	return b.Images[i*ImageSize : (i+1)*ImageSize]
}

// Label returns the one-hot label row of example i (a view, not a copy).
func (b *Batch) Label(i int) []float32 {
	return b.Labels[i*NumClasses : (i+1)*NumClasses]
}

// Classes returns the class index of every example.
func (b *Batch) Classes() []int {
	classes := make([]int, b.Size)
	for i := range classes {
		classes[i] = Argmax(b.Label(i))
	}
	return classes
}

// Gather copies the examples at the given indices into a new batch.
func (b *Batch) Gather(indices []int) *Batch {
	out := newBatch(len(indices))
	for i, idx := range indices {
		copy(out.Image(i), b.Image(idx))
		copy(out.Label(i), b.Label(idx))
	}
	return out
}

// Validate checks the array lengths against Size and that every label row is one-hot.
func (b *Batch) Validate() error {
	if len(b.Images) != b.Size*ImageSize {
		return fmt.Errorf("batch of %d: images length %d, want %d", b.Size, len(b.Images), b.Size*ImageSize)
	}
	if len(b.Labels) != b.Size*NumClasses {
		return fmt.Errorf("batch of %d: labels length %d, want %d", b.Size, len(b.Labels), b.Size*NumClasses)
	}
	for i := 0; i < b.Size; i++ {
		var sum float32
		for _, v := range b.Label(i) {
			sum += v
		}
		if sum != 1 {
			return fmt.Errorf("batch label %d sums to %v, want 1", i, sum)
		}
	}
	return nil
}

// Argmax returns the index of the largest value. Ties resolve to the lowest index.
func Argmax(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
