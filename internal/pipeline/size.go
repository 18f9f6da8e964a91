package pipeline

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const dataURLMarker = "base64,"

// EstimateSizeKB approximates the payload size behind a base64 string of
// encodedLen characters as ceil(L*3/4) bytes, rounded to the nearest KB.
// Padding is not subtracted, so this is an estimate, not a byte count.
func EstimateSizeKB(encodedLen int) int {
	if encodedLen <= 0 {
		return 0
	}
	bytes := (encodedLen*3 + 3) / 4
	return (bytes + 512) / 1024
}

// EstimateDataURLSizeKB is EstimateSizeKB over the payload of a data URL (or a
// bare base64 string).
func EstimateDataURLSizeKB(s string) int {
	return EstimateSizeKB(len(StripDataURLPrefix(s)))
}

// StripDataURLPrefix drops a leading "data:<type>;base64," header if present.
func StripDataURLPrefix(s string) string {
	if i := strings.Index(s, dataURLMarker); i >= 0 {
		return s[i+len(dataURLMarker):]
	}
	return s
}

// DecodeDataURL returns the raw bytes behind a data URL or bare base64 string.
func DecodeDataURL(s string) ([]byte, error) {
	payload := strings.TrimSpace(StripDataURLPrefix(s))
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 payload: %w", ErrDecode, err)
	}
	return data, nil
}

func base64EncodedLen(n int) int {
	return base64.StdEncoding.EncodedLen(n)
}

func (r Result) Base64() string {
	return base64.StdEncoding.EncodeToString(r.Data)
}

func (r Result) DataURL() string {
	return "data:" + contentTypeForFormat(r.Format) + ";base64," + r.Base64()
}

func contentTypeForFormat(format string) string {
	switch normalizeOutputFormat(strings.ToLower(strings.TrimSpace(format))) {
	case "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
