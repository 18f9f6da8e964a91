// Package transform tracks the geometric edits a user applies to the image shown
// in the cropping widget.
package transform

import "math"

const (
	DefaultMinZoom = 0.5
	DefaultMaxZoom = 3.0
)

// Limits bounds the zoom factor a State may hold.
type Limits struct {
	Min float64
	Max float64
}

func DefaultLimits() Limits {
	return Limits{Min: DefaultMinZoom, Max: DefaultMaxZoom}
}

func (l Limits) normalized() Limits {
	if l.Min <= 0 || math.IsNaN(l.Min) {
		l.Min = DefaultMinZoom
	}
	if l.Max < l.Min || math.IsNaN(l.Max) {
		l.Max = math.Max(DefaultMaxZoom, l.Min)
	}
	return l
}

// Clamp forces v into [Min, Max]. NaN maps to 1 before clamping.
func (l Limits) Clamp(v float64) float64 {
	l = l.normalized()
	if math.IsNaN(v) {
		v = 1
	}
	return math.Min(l.Max, math.Max(l.Min, v))
}

// ImageTransform is the pixel-level transform handed to the rendering surface.
// Quadrant rotation is not part of it: the surface pre-rotates the canvas by
// State.Quadrant() and applies this transform on top.
type ImageTransform struct {
	Scale  float64 `json:"scale"`
	Rotate float64 `json:"rotate"`
	FlipH  bool    `json:"flip_h"`
	FlipV  bool    `json:"flip_v"`
}

// Snapshot is a point-in-time copy of a State.
type Snapshot struct {
	RotationSteps int            `json:"rotation_steps"`
	Quadrant      int            `json:"quadrant"`
	ZoomInput     float64        `json:"zoom_input"`
	Transform     ImageTransform `json:"transform"`
}

// State is owned by exactly one editing session and is not safe for
// concurrent use.
type State struct {
	RotationSteps int
	Rotation      float64
	Scale         float64
	FlipH         bool
	FlipV         bool
	ZoomInput     float64

	limits Limits
}

func New(limits Limits) *State {
	s := &State{limits: limits.normalized()}
	s.Reset()
	return s
}

func (s *State) Limits() Limits {
	return s.limits
}

func (s *State) RotateLeft() {
	s.RotationSteps--
	s.swapFlips()
}

func (s *State) RotateRight() {
	s.RotationSteps++
	s.swapFlips()
}

// A quarter turn exchanges the horizontal and vertical axes, so a mirror
// across one becomes a mirror across the other.
func (s *State) swapFlips() {
	s.FlipH, s.FlipV = s.FlipV, s.FlipH
}

// Quadrant reports RotationSteps modulo 4 in [0, 3].
func (s *State) Quadrant() int {
	q := s.RotationSteps % 4
	if q < 0 {
		q += 4
	}
	return q
}

func (s *State) FlipHorizontal() {
	s.FlipH = !s.FlipH
}

func (s *State) FlipVertical() {
	s.FlipV = !s.FlipV
}

// SetRotation sets the fine rotation in degrees.
func (s *State) SetRotation(degrees float64) {
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) {
		degrees = 0
	}
	s.Rotation = degrees
}

// SetZoomInput records the slider value, clamped to the configured limits.
func (s *State) SetZoomInput(v float64) {
	s.ZoomInput = s.limits.Clamp(v)
}

// ApplyZoom copies ZoomInput into Scale. ZoomInput is already clamped.
func (s *State) ApplyZoom() {
	s.Scale = s.ZoomInput
}

func (s *State) SetZoom(v float64) {
	s.SetZoomInput(v)
	s.ApplyZoom()
}

func (s *State) Reset() {
	if s.limits == (Limits{}) {
		s.limits = DefaultLimits()
	}
	s.RotationSteps = 0
	s.Rotation = 0
	s.ZoomInput = s.limits.Clamp(1)
	s.Scale = s.ZoomInput
	s.FlipH = false
	s.FlipV = false
}

func (s *State) Transform() ImageTransform {
	return ImageTransform{
		Scale:  s.Scale,
		Rotate: s.Rotation,
		FlipH:  s.FlipH,
		FlipV:  s.FlipV,
	}
}

func (s *State) Snapshot() Snapshot {
	return Snapshot{
		RotationSteps: s.RotationSteps,
		Quadrant:      s.Quadrant(),
		ZoomInput:     s.ZoomInput,
		Transform:     s.Transform(),
	}
}
