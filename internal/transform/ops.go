package transform

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownOp = errors.New("unknown transform op")

type Op string

const (
	OpRotateLeft     Op = "rotate_left"
	OpRotateRight    Op = "rotate_right"
	OpFlipHorizontal Op = "flip_horizontal"
	OpFlipVertical   Op = "flip_vertical"
	OpZoomInput      Op = "zoom_input"
	OpApplyZoom      Op = "apply_zoom"
	OpZoom           Op = "zoom"
	OpRotate         Op = "rotate"
	OpReset          Op = "reset"
)

func ParseOp(raw string) (Op, error) {
	op := Op(strings.ToLower(strings.TrimSpace(raw)))
	switch op {
	case OpRotateLeft, OpRotateRight, OpFlipHorizontal, OpFlipVertical,
		OpZoomInput, OpApplyZoom, OpZoom, OpRotate, OpReset:
		return op, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOp, raw)
	}
}

// Apply runs op against s. value is read by zoom_input, zoom and rotate only.
func (s *State) Apply(op Op, value float64) error {
	switch op {
	case OpRotateLeft:
		s.RotateLeft()
	case OpRotateRight:
		s.RotateRight()
	case OpFlipHorizontal:
		s.FlipHorizontal()
	case OpFlipVertical:
		s.FlipVertical()
	case OpZoomInput:
		s.SetZoomInput(value)
	case OpApplyZoom:
		s.ApplyZoom()
	case OpZoom:
		s.SetZoom(value)
	case OpRotate:
		s.SetRotation(value)
	case OpReset:
		s.Reset()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, op)
	}
	return nil
}
