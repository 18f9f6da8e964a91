package pipeline

import (
	"context"
	"math"
)

type Transformer interface {
	Transform(ctx context.Context, input []byte, opts Options) (Result, error)
}

// BoundedSize returns the output dimensions for a source of srcW x srcH under
// maxWidth. Sources no wider than maxWidth pass through; wider ones are scaled
// to maxWidth with the height rounded half away from zero.
func BoundedSize(srcW, srcH, maxWidth int) (int, int) {
	if maxWidth <= 0 || srcW <= maxWidth {
		return srcW, srcH
	}
	height := int(math.Round(float64(srcH) * float64(maxWidth) / float64(srcW)))
	if height < 1 {
		height = 1
	}
	return maxWidth, height
}

func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}

func normalizeOutputFormat(format string) string {
	switch format {
	case "jpg":
		return "jpeg"
	default:
		return format
	}
}
