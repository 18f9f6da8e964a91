package pipeline

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()

	n, err := NewNormalizer(zaptest.NewLogger(t))
	require.NoError(t, err)
	return n
}

func TestNormalizeBoundsWideSource(t *testing.T) {
	n := newTestNormalizer(t)

	pending, err := n.Normalize(context.Background(), buildTestPNG(t, 1600, 1200), DefaultOptions())
	require.NoError(t, err)

	result, err := pending.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 800, result.Width)
	assert.Equal(t, 600, result.Height)
	assert.Equal(t, "jpeg", result.Format)

	format, size := decodeSize(t, result.Data)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, image.Pt(800, 600), size)
}

func TestNormalizeDoesNotUpscale(t *testing.T) {
	n := newTestNormalizer(t)

	result, err := n.Process(context.Background(), buildTestPNG(t, 600, 400), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 600, result.Width)
	assert.Equal(t, 400, result.Height)
	_, size := decodeSize(t, result.Data)
	assert.Equal(t, image.Pt(600, 400), size)
}

func TestNormalizeReencodesWhenWithinBound(t *testing.T) {
	n := newTestNormalizer(t)
	src := buildTestPNG(t, 120, 90)

	result, err := n.Process(context.Background(), src, Options{MaxWidth: 120, Quality: 0.5})
	require.NoError(t, err)

	format, _ := decodeSize(t, result.Data)
	assert.Equal(t, "jpeg", format, "quality is applied even without a resize")
}

func TestNormalizeRoundsHeight(t *testing.T) {
	n := newTestNormalizer(t)

	// 333 * 100 / 301 = 110.63 -> 111
	result, err := n.Process(context.Background(), buildTestPNG(t, 301, 333), Options{MaxWidth: 100, Quality: 0.85})
	require.NoError(t, err)

	assert.Equal(t, 100, result.Width)
	assert.Equal(t, 111, result.Height)
	_, size := decodeSize(t, result.Data)
	assert.Equal(t, image.Pt(100, 111), size)
}

func TestNormalizeMalformedInput(t *testing.T) {
	n := newTestNormalizer(t)

	pending, err := n.Normalize(context.Background(), []byte("definitely not an image"), DefaultOptions())
	require.NoError(t, err)

	result, err := pending.Wait(context.Background())
	assert.ErrorIs(t, err, ErrDecode)
	assert.Empty(t, result.Data)
	assert.Zero(t, result.Width)
}

func TestNormalizeEmptyInput(t *testing.T) {
	n := newTestNormalizer(t)

	_, err := n.Process(context.Background(), nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrDecode)
}

func TestNormalizeRejectsInvalidConfigurationBeforeDecode(t *testing.T) {
	n := NewNormalizerWithTransformer(nil, panicTransformer{})

	cases := []Options{
		{MaxWidth: 0, Quality: 0.85},
		{MaxWidth: -5, Quality: 0.85},
		{MaxWidth: 800, Quality: 0},
		{MaxWidth: 800, Quality: 1.01},
	}
	for _, opts := range cases {
		pending, err := n.Normalize(context.Background(), []byte("x"), opts)
		assert.ErrorIs(t, err, ErrInvalidConfiguration, "%+v", opts)
		assert.Nil(t, pending)
	}
}

func TestNormalizeUnsupportedFormat(t *testing.T) {
	n := NewNormalizerWithTransformer(nil, newStdlibTransformer())

	_, err := n.Process(context.Background(), buildTestPNG(t, 10, 10), Options{MaxWidth: 800, Quality: 0.8, Format: "gif"})
	assert.ErrorIs(t, err, ErrEncode)
}

func TestNormalizeSetsEstimatedSize(t *testing.T) {
	n := newTestNormalizer(t)

	result, err := n.Process(context.Background(), buildTestPNG(t, 300, 200), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, EstimateSizeKB(len(result.Base64())), result.EstimatedSizeKB)
}

func TestNormalizeCopiesInput(t *testing.T) {
	gate := make(chan struct{})
	spy := &captureTransformer{gate: gate}
	n := NewNormalizerWithTransformer(nil, spy)

	src := []byte("abc")
	pending, err := n.Normalize(context.Background(), src, DefaultOptions())
	require.NoError(t, err)

	src[0] = 'z'
	close(gate)

	_, err = pending.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", string(spy.input))
}

func TestPendingWaitHonorsContext(t *testing.T) {
	pending, resolve := NewPending()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := pending.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	resolve(Result{Width: 3}, nil)
	<-pending.Done()
	result, err := pending.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Width)
}

func TestNormalizeCanceledContext(t *testing.T) {
	n := newTestNormalizer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := n.Process(ctx, buildTestPNG(t, 10, 10), DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBoundedSize(t *testing.T) {
	cases := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{1600, 1200, 800, 800, 600},
		{600, 400, 800, 600, 400},
		{800, 10, 800, 800, 10},
		{801, 1, 800, 800, 1},
		{3000, 1, 800, 800, 1},
		{1000, 333, 500, 500, 167},
	}
	for _, tc := range cases {
		w, h := BoundedSize(tc.w, tc.h, tc.max)
		assert.Equal(t, tc.wantW, w, "%dx%d max=%d", tc.w, tc.h, tc.max)
		assert.Equal(t, tc.wantH, h, "%dx%d max=%d", tc.w, tc.h, tc.max)
	}
}

type panicTransformer struct{}

func (panicTransformer) Transform(context.Context, []byte, Options) (Result, error) {
	panic("transform must not run")
}

type captureTransformer struct {
	gate  chan struct{}
	input []byte
}

func (c *captureTransformer) Transform(_ context.Context, input []byte, _ Options) (Result, error) {
	<-c.gate
	c.input = input
	return Result{Data: []byte{1}, Format: "jpeg", Width: 1, Height: 1}, nil
}

func TestPendingPollReportsResolution(t *testing.T) {
	pending, resolve := NewPending()

	_, _, ok := pending.Poll()
	assert.False(t, ok, "unresolved pending must not report a result")

	resolve(Result{Width: 3, Height: 2, Format: "jpeg"}, nil)

	result, err, ok := pending.Poll()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Width)
	assert.Equal(t, 2, result.Height)
}

func TestPendingPollAfterNormalize(t *testing.T) {
	n := newTestNormalizer(t)

	pending, err := n.Normalize(context.Background(), buildTestPNG(t, 40, 30), DefaultOptions())
	require.NoError(t, err)

	select {
	case <-pending.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("normalize did not resolve")
	}
	result, err, ok := pending.Poll()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 40, result.Width)
}

func TestNormalizeConcurrentCallsShareSurface(t *testing.T) {
	n := newTestNormalizer(t)

	sizes := []image.Point{{1600, 1200}, {300, 200}, {1000, 333}, {50, 900}}
	sources := make([][]byte, len(sizes))
	for i, sz := range sizes {
		sources[i] = buildTestPNG(t, sz.X, sz.Y)
	}

	const calls = 16
	pendings := make([]*Pending, calls)
	for i := range calls {
		p, err := n.Normalize(context.Background(), sources[i%len(sizes)], DefaultOptions())
		require.NoError(t, err)
		pendings[i] = p
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	for i, p := range pendings {
		result, err := p.Wait(ctx)
		require.NoError(t, err)

		src := sizes[i%len(sizes)]
		wantW, wantH := BoundedSize(src.X, src.Y, DefaultMaxWidth)
		assert.Equal(t, wantW, result.Width, "call %d", i)
		assert.Equal(t, wantH, result.Height, "call %d", i)

		_, got := decodeSize(t, result.Data)
		assert.Equal(t, image.Pt(wantW, wantH), got, "call %d", i)
	}
}
