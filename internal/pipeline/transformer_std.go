package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

type stdlibTransformer struct {
	surface *surface
}

func newStdlibTransformer() *stdlibTransformer {
	return &stdlibTransformer{surface: &surface{}}
}

func (t *stdlibTransformer) Transform(ctx context.Context, input []byte, opts Options) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	src, err := decodeImage(input)
	if err != nil {
		return Result{}, err
	}

	bounds := src.Bounds()
	width, height := BoundedSize(bounds.Dx(), bounds.Dy(), opts.MaxWidth)
	format := opts.format()

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	data, err := t.surface.render(src, width, height, func(img image.Image) ([]byte, error) {
		return encodeImage(img, format, opts.Quality)
	})
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

func decodeImage(input []byte) (image.Image, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	img, err := imaging.Decode(bytes.NewReader(input), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: source image has invalid dimensions %dx%d", ErrDecode, b.Dx(), b.Dy())
	}
	return img, nil
}

func encodeImage(img image.Image, format string, quality float64) ([]byte, error) {
	var (
		buf bytes.Buffer
		err error
	)

	switch format {
	case "jpeg":
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality(quality)))
	case "png":
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression))
	case "webp":
		err = errors.New("webp export requires govips build tag")
	default:
		err = fmt.Errorf("unsupported output format: %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	return buf.Bytes(), nil
}
