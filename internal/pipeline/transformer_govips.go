//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
)

type govipsTransformer struct{}

func (t govipsTransformer) Transform(ctx context.Context, input []byte, opts Options) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	if len(input) == 0 {
		return Result{}, fmt.Errorf("%w: empty input", ErrDecode)
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer img.Close()

	if err := img.AutoRotate(); err != nil {
		return Result{}, fmt.Errorf("%w: auto-rotate: %w", ErrDecode, err)
	}
	if img.Width() <= 0 || img.Height() <= 0 {
		return Result{}, fmt.Errorf("%w: source image has invalid dimensions", ErrDecode)
	}

	width, height := BoundedSize(img.Width(), img.Height(), opts.MaxWidth)
	if width != img.Width() {
		hScale := float64(width) / float64(img.Width())
		vScale := float64(height) / float64(img.Height())
		if err := img.ResizeWithVScale(hScale, vScale, vips.KernelLanczos3); err != nil {
			return Result{}, fmt.Errorf("%w: resize image: %w", ErrEncode, err)
		}
	}
	if err := fitExactly(img, width, height); err != nil {
		return Result{}, err
	}

	format := opts.format()
	if format == "jpeg" && img.HasAlpha() {
		if err := img.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
			return Result{}, fmt.Errorf("%w: flatten alpha: %w", ErrEncode, err)
		}
	}

	data, err := exportGovipsImage(img, format, jpegQuality(opts.Quality))
	if err != nil {
		return Result{}, err
	}

	return Result{
		Data:   data,
		Format: format,
		Width:  width,
		Height: height,
	}, nil
}

// fitExactly trims or pads by the pixel libvips rounding can leave over, so
// the output always matches BoundedSize.
func fitExactly(img *vips.ImageRef, width, height int) error {
	if img.Width() == width && img.Height() == height {
		return nil
	}
	if err := img.Embed(0, 0, width, height, vips.ExtendCopy); err != nil {
		return fmt.Errorf("%w: fit %dx%d: %w", ErrEncode, width, height, err)
	}
	if img.Width() != width || img.Height() != height {
		return fmt.Errorf("%w: resized to %dx%d, want %dx%d", ErrEncode, img.Width(), img.Height(), width, height)
	}
	return nil
}

func exportGovipsImage(img *vips.ImageRef, format string, quality int) ([]byte, error) {
	switch format {
	case "jpeg":
		params := vips.NewJpegExportParams()
		params.Quality = quality
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("%w: jpeg: %w", ErrEncode, err)
		}
		return data, nil
	case "png":
		data, _, err := img.ExportPng(vips.NewPngExportParams())
		if err != nil {
			return nil, fmt.Errorf("%w: png: %w", ErrEncode, err)
		}
		return data, nil
	case "webp":
		params := vips.NewWebpExportParams()
		params.Quality = quality
		data, _, err := img.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("%w: webp: %w", ErrEncode, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unsupported output format: %q", ErrEncode, format)
	}
}
