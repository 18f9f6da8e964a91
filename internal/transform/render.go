package transform

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Render draws src the way the cropping widget displays it: the canvas is
// pre-rotated by quadrant quarter turns (clockwise), then the pixel transform
// is applied as flip, fine rotation and finally scale. Applying the quadrant
// through t.Rotate as well would rotate the image twice.
func Render(src image.Image, quadrant int, t ImageTransform) *image.NRGBA {
	var out *image.NRGBA
	switch ((quadrant % 4) + 4) % 4 {
	case 1:
		out = imaging.Rotate270(src)
	case 2:
		out = imaging.Rotate180(src)
	case 3:
		out = imaging.Rotate90(src)
	default:
		out = imaging.Clone(src)
	}

	if t.FlipH {
		out = imaging.FlipH(out)
	}
	if t.FlipV {
		out = imaging.FlipV(out)
	}

	if t.Rotate != 0 && !math.IsNaN(t.Rotate) {
		// imaging rotates counter-clockwise; the widget uses CSS (clockwise) degrees.
		out = imaging.Rotate(out, -t.Rotate, color.Transparent)
	}

	if t.Scale > 0 && t.Scale != 1 {
		b := out.Bounds()
		w := max(1, int(math.Round(float64(b.Dx())*t.Scale)))
		h := max(1, int(math.Round(float64(b.Dy())*t.Scale)))
		out = imaging.Resize(out, w, h, imaging.Lanczos)
	}

	return out
}

// Render applies the current state to src.
func (s *State) Render(src image.Image) *image.NRGBA {
	return Render(src, s.Quadrant(), s.Transform())
}
