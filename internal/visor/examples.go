package visor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/born-ml/mnist-tutorial/internal/dataset"
)

// ShowExamples writes one grayscale PNG per example in b and returns their paths.
// File names carry the example index and its label, so they are always distinct.
func (v *Visor) ShowExamples(s Surface, b *dataset.Batch) ([]string, error) {
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("show examples: %w", err)
	}

	classes := b.Classes()
	paths := make([]string, 0, b.Size)
	for i := 0; i < b.Size; i++ {
		var buf bytes.Buffer
		if err := png.Encode(&buf, thumbnail(b.Image(i))); err != nil {
			return nil, fmt.Errorf("encode example %d: %w", i, err)
		}
		path, err := v.writeFile(s, fmt.Sprintf("example_%03d_label_%d.png", i, classes[i]), buf.Bytes())
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	v.logger.Printf("surface=%q tab=%q examples=%d", s.Name, s.Tab, len(paths))
	return paths, nil
}

// thumbnail converts normalised pixels back to an 8-bit 28x28 image.
func thumbnail(pixels []float32) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, dataset.ImageWidth, dataset.ImageHeight))
	for y := 0; y < dataset.ImageHeight; y++ {
		for x := 0; x < dataset.ImageWidth; x++ {
			p := pixels[y*dataset.ImageWidth+x]
			img.SetGray(x, y, color.Gray{Y: uint8(min(max(p, 0), 1)*255 + 0.5)})
		}
	}
	return img
}
