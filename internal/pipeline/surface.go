package pipeline

import (
	"image"
	"sync"

	xdraw "golang.org/x/image/draw"
)

// Buffers above this size are not kept between calls.
const maxRetainedSurfaceBytes = 64 << 20

// surface is a reusable RGBA render target. Drawing and reading the pixels
// back (encoding) happen under one lock, so concurrent calls serialize here.
type surface struct {
	mu  sync.Mutex
	pix []uint8
}

func (s *surface) render(src image.Image, width, height int, encode func(image.Image) ([]byte, error)) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := width * height * 4
	pix := s.pix
	if cap(pix) < n {
		pix = make([]uint8, n)
	}
	dst := &image.RGBA{
		Pix:    pix[:n],
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}

	// JPEG carries no alpha; transparent regions come out white.
	xdraw.Draw(dst, dst.Rect, image.White, image.Point{}, xdraw.Src)

	sb := src.Bounds()
	if sb.Dx() == width && sb.Dy() == height {
		xdraw.Draw(dst, dst.Rect, src, sb.Min, xdraw.Over)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Rect, src, sb, xdraw.Over, nil)
	}

	out, err := encode(dst)

	if n <= maxRetainedSurfaceBytes {
		s.pix = pix
	} else {
		s.pix = nil
	}
	return out, err
}
