package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateSizeKB(t *testing.T) {
	// ceil(133340*3/4) = 100005 bytes, round(100005/1024) = 98
	assert.Equal(t, 98, EstimateSizeKB(133340))
	assert.Equal(t, 0, EstimateSizeKB(0))
	assert.Equal(t, 0, EstimateSizeKB(-10))
	assert.Equal(t, 0, EstimateSizeKB(4))
	assert.Equal(t, 1, EstimateSizeKB(1366))
}

func TestEstimateSizeKBIsMonotonic(t *testing.T) {
	prev := 0
	for l := 0; l <= 50_000; l += 7 {
		got := EstimateSizeKB(l)
		assert.GreaterOrEqual(t, got, prev, "length %d", l)
		prev = got
	}
}

func TestStripDataURLPrefix(t *testing.T) {
	assert.Equal(t, "QUJD", StripDataURLPrefix("data:image/jpeg;base64,QUJD"))
	assert.Equal(t, "QUJD", StripDataURLPrefix("data:image/png;base64,QUJD"))
	assert.Equal(t, "QUJD", StripDataURLPrefix("QUJD"))
}

func TestEstimateDataURLSizeKBIgnoresHeader(t *testing.T) {
	payload := strings.Repeat("A", 133340)
	assert.Equal(t, 98, EstimateDataURLSizeKB("data:image/jpeg;base64,"+payload))
	assert.Equal(t, 98, EstimateDataURLSizeKB(payload))
}

func TestDecodeDataURL(t *testing.T) {
	data, err := DecodeDataURL("data:image/jpeg;base64,QUJD")
	require.NoError(t, err)
	assert.Equal(t, []byte("ABC"), data)

	_, err = DecodeDataURL("data:image/jpeg;base64,***")
	assert.ErrorIs(t, err, ErrDecode)
}

func TestResultDataURL(t *testing.T) {
	r := Result{Data: []byte("ABC"), Format: "jpeg"}
	assert.Equal(t, "QUJD", r.Base64())
	assert.Equal(t, "data:image/jpeg;base64,QUJD", r.DataURL())
}
