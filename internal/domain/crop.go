package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/cropper/internal/pipeline"
)

const (
	EventCropCompleted = "crop.completed"
	EventCropFailed    = "crop.failed"

	ErrorKindDecode               = "decode_error"
	ErrorKindEncode               = "encode_error"
	ErrorKindInvalidConfiguration = "invalid_configuration"
	ErrorKindCanceled             = "canceled"
	ErrorKindInternal             = "internal_error"

	SessionStatusOpen        = "open"
	SessionStatusNormalizing = "normalizing"
)

// CropEvent is what the core reports back to the host after a crop commit.
type CropEvent struct {
	Event           string    `json:"event"`
	SessionID       string    `json:"session_id"`
	FileName        string    `json:"file_name,omitempty"`
	EncodedData     string    `json:"encoded_data,omitempty"`
	Width           int       `json:"width,omitempty"`
	Height          int       `json:"height,omitempty"`
	EstimatedSizeKB int       `json:"estimated_size_kb"`
	ErrorKind       string    `json:"error_kind,omitempty"`
	Message         string    `json:"message,omitempty"`
	At              time.Time `json:"at"`
}

func (e CropEvent) Succeeded() bool {
	return e.Event == EventCropCompleted
}

func NewCompletedEvent(sessionID, fileName string, result pipeline.Result, at time.Time) CropEvent {
	return CropEvent{
		Event:           EventCropCompleted,
		SessionID:       sessionID,
		FileName:        fileName,
		EncodedData:     result.DataURL(),
		Width:           result.Width,
		Height:          result.Height,
		EstimatedSizeKB: result.EstimatedSizeKB,
		At:              at,
	}
}

func NewFailedEvent(sessionID, fileName string, err error, at time.Time) CropEvent {
	kind := KindOf(err)
	return CropEvent{
		Event:     EventCropFailed,
		SessionID: sessionID,
		FileName:  fileName,
		ErrorKind: kind,
		Message:   MessageFor(kind),
		At:        at,
	}
}

func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, pipeline.ErrDecode):
		return ErrorKindDecode
	case errors.Is(err, pipeline.ErrEncode):
		return ErrorKindEncode
	case errors.Is(err, pipeline.ErrInvalidConfiguration):
		return ErrorKindInvalidConfiguration
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindCanceled
	default:
		return ErrorKindInternal
	}
}

func MessageFor(kind string) string {
	switch kind {
	case ErrorKindDecode:
		return "The image could not be loaded. Please select another file."
	case ErrorKindEncode:
		return "The cropped image could not be processed. Please try again."
	case ErrorKindInvalidConfiguration:
		return "The crop settings are invalid."
	case ErrorKindCanceled:
		return "The crop was canceled."
	default:
		return "Something went wrong while processing the image."
	}
}

type TransformRequest struct {
	Op    string   `json:"op"`
	Value *float64 `json:"value,omitempty"`
}

func (r TransformRequest) Validate() error {
	op := strings.ToLower(strings.TrimSpace(r.Op))
	if op == "" {
		return errors.New("op is required")
	}
	switch op {
	case "zoom_input", "zoom", "rotate":
		if r.Value == nil {
			return fmt.Errorf("value is required for op=%s", op)
		}
	}
	return nil
}

func (r TransformRequest) ValueOrZero() float64 {
	if r.Value == nil {
		return 0
	}
	return *r.Value
}
