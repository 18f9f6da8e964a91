package transform

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	return img
}

func TestRenderQuadrantSwapsDimensions(t *testing.T) {
	src := testImage(40, 20)

	for q, want := range map[int]image.Point{
		0:  {40, 20},
		1:  {20, 40},
		2:  {40, 20},
		3:  {20, 40},
		-1: {20, 40},
	} {
		out := Render(src, q, ImageTransform{Scale: 1})
		assert.Equal(t, want, out.Bounds().Size(), "quadrant %d", q)
	}
}

func TestRenderRotateRightMovesTopLeftToTopRight(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{B: 255, A: 255})

	out := Render(src, 1, ImageTransform{Scale: 1})

	assert.Equal(t, image.Pt(1, 2), out.Bounds().Size())
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, out.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, out.NRGBAAt(0, 1))
}

func TestRenderFlipHorizontal(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})

	out := Render(src, 0, ImageTransform{Scale: 1, FlipH: true})

	assert.Equal(t, color.NRGBA{R: 255, A: 255}, out.NRGBAAt(1, 0))
}

func TestRenderScale(t *testing.T) {
	out := Render(testImage(40, 20), 0, ImageTransform{Scale: 0.5})
	assert.Equal(t, image.Pt(20, 10), out.Bounds().Size())
}

func TestStateRenderUsesQuadrant(t *testing.T) {
	s := New(DefaultLimits())
	s.RotateLeft()

	out := s.Render(testImage(30, 10))
	assert.Equal(t, image.Pt(10, 30), out.Bounds().Size())
}
