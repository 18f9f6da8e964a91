//go:build govips && cgo

package pipeline

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGovipsOutputMatchesBoundedSize(t *testing.T) {
	require.NoError(t, Startup())
	t.Cleanup(Shutdown)

	sizes := []image.Point{{1600, 1200}, {1000, 333}, {1001, 667}, {50, 900}, {2399, 1}}
	for _, sz := range sizes {
		result, err := govipsTransformer{}.Transform(context.Background(), buildTestPNG(t, sz.X, sz.Y), DefaultOptions())
		require.NoError(t, err, "%v", sz)

		wantW, wantH := BoundedSize(sz.X, sz.Y, DefaultMaxWidth)
		assert.Equal(t, wantW, result.Width, "%v", sz)
		assert.Equal(t, wantH, result.Height, "%v", sz)

		_, got := decodeSize(t, result.Data)
		assert.Equal(t, image.Pt(wantW, wantH), got, "%v", sz)
	}
}
