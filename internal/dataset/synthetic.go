package dataset

import (
	"context"
	"math/rand"
)

// SyntheticSource generates digit-like glyphs instead of reading MNIST.
//
// Each class is drawn as a seven-segment style figure, shifted by up to two pixels and
// sprinkled with noise. The same seed always yields the same splits, which makes it
// useful for offline runs and tests. This is NOT realistic MNIST data.
type SyntheticSource struct {
	TrainSize int
	TestSize  int
	Seed      int64
}

// Segment layout on a 28x28 grid.
//
//	 -a-
//	f   b
//	 -g-
//	e   c
//	 -d-
var segments = [7][4]int{ // row0, col0, rows, cols
	{4, 9, 2, 10},  // a
	{5, 18, 9, 2},  // b
	{14, 18, 9, 2}, // c
	{22, 9, 2, 10}, // d
	{14, 8, 9, 2},  // e
	{5, 8, 9, 2},   // f
	{13, 9, 2, 10}, // g
}

// digitSegments lists the lit segments (a..g) for each digit.
var digitSegments = [NumClasses]string{
	"abcdef", "bc", "abged", "abgcd", "fgbc", "afgcd", "afgedc", "abc", "abcdefg", "abcdfg",
}

// Load implements Source.
func (s *SyntheticSource) Load(_ context.Context) (train, test *Set, err error) {
	rng := rand.New(rand.NewSource(s.Seed)) //nolint:gosec // synthetic data
	return s.generate(rng, s.TrainSize), s.generate(rng, s.TestSize), nil
}

func (s *SyntheticSource) generate(rng *rand.Rand, n int) *Set {
	set := &Set{
		Images: make([][]byte, n),
		Labels: make([]uint8, n),
	}
	for i := 0; i < n; i++ {
		label := uint8(i % NumClasses)
		set.Images[i] = drawDigit(rng, label)
		set.Labels[i] = label
	}
	return set
}

func drawDigit(rng *rand.Rand, digit uint8) []byte {
	img := make([]byte, ImageSize)
	dy, dx := rng.Intn(5)-2, rng.Intn(5)-2

	for _, seg := range digitSegments[digit] {
		box := segments[seg-'a']
		for r := box[0]; r < box[0]+box[2]; r++ {
			for c := box[1]; c < box[1]+box[3]; c++ {
				y, x := r+dy, c+dx
				if y < 0 || y >= ImageHeight || x < 0 || x >= ImageWidth {
					continue
				}
				img[y*ImageWidth+x] = byte(200 + rng.Intn(56))
			}
		}
	}

	// Salt noise.
	for k := 0; k < 20; k++ {
		img[rng.Intn(ImageSize)] = byte(rng.Intn(128))
	}
	return img
}
