package visor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/born-ml/mnist-tutorial/internal/evaluate"
)

// Heatmap geometry in pixels.
const (
	cellSize   = 36
	axisMargin = 48
)

var (
	heatLow  = color.RGBA{R: 0xf7, G: 0xfb, B: 0xff, A: 0xff}
	heatHigh = color.RGBA{R: 0x08, G: 0x30, B: 0x6b, A: 0xff}
)

// RenderConfusionMatrix draws cm as a heatmap with per-cell counts and also writes it
// as a text table. Rows are true classes, columns predicted classes.
func (v *Visor) RenderConfusionMatrix(s Surface, cm evaluate.ConfusionMatrix, classNames []string) error {
	n := len(cm)
	if len(classNames) != n {
		return fmt.Errorf("confusion matrix: %d classes, %d names", n, len(classNames))
	}
	for i, row := range cm {
		if len(row) != n {
			return fmt.Errorf("confusion matrix: row %d has %d columns, want %d", i, len(row), n)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, heatmap(cm, classNames)); err != nil {
		return fmt.Errorf("encode confusion matrix: %w", err)
	}
	if _, err := v.writeFile(s, "confusion_matrix.png", buf.Bytes()); err != nil {
		return err
	}

	table, err := confusionTable(cm, classNames)
	if err != nil {
		return fmt.Errorf("confusion matrix: %w", err)
	}
	if _, err := v.writeFile(s, "confusion_matrix.txt", table); err != nil {
		return err
	}
	v.logger.Printf("surface=%q tab=%q examples=%d", s.Name, s.Tab, cm.Total())
	return nil
}

func heatmap(cm evaluate.ConfusionMatrix, classNames []string) *image.RGBA {
	n := len(cm)
	side := axisMargin + n*cellSize
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	d := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13}
	d.Dot = fixed.P(4, 14)
	d.DrawString("true\\pred")

	peak := cm.Max()
	for i := 0; i < n; i++ {
		// Axis labels: predicted across the top, true down the left.
		drawCentered(d, classNames[i], axisMargin+i*cellSize+cellSize/2, axisMargin/2+10, image.Black)
		drawCentered(d, classNames[i], axisMargin/2, axisMargin+i*cellSize+cellSize/2+4, image.Black)

		for j := 0; j < n; j++ {
			t := 0.0
			if peak > 0 {
				t = float64(cm[i][j]) / float64(peak)
			}
			fill := lerp(heatLow, heatHigh, t)
			cell := image.Rect(axisMargin+j*cellSize, axisMargin+i*cellSize, axisMargin+(j+1)*cellSize, axisMargin+(i+1)*cellSize)
			draw.Draw(img, cell.Inset(1), &image.Uniform{C: fill}, image.Point{}, draw.Src)

			ink := image.Black
			if t > 0.5 {
				ink = image.White
			}
			drawCentered(d, strconv.Itoa(cm[i][j]), cell.Min.X+cellSize/2, cell.Min.Y+cellSize/2+4, ink)
		}
	}
	return img
}

func drawCentered(d *font.Drawer, text string, cx, baseline int, ink *image.Uniform) {
	d.Src = ink
	width := d.MeasureString(text).Round()
	d.Dot = fixed.P(cx-width/2, baseline)
	d.DrawString(text)
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5) }
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 0xff}
}
