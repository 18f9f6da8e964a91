package pipeline

import "errors"

var (
	ErrDecode               = errors.New("decode source image")
	ErrEncode               = errors.New("encode output image")
	ErrInvalidConfiguration = errors.New("invalid normalize configuration")
)
