package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Result is a normalized image. EstimatedSizeKB is derived from the base64
// length of Data (see EstimateSizeKB) and is not an exact byte count.
type Result struct {
	Data            []byte
	Format          string
	Width           int
	Height          int
	EstimatedSizeKB int
}

type Normalizer struct {
	transformer Transformer
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewNormalizer(logger *zap.Logger) (*Normalizer, error) {
	transformer, err := newTransformer()
	if err != nil {
		return nil, fmt.Errorf("build transformer: %w", err)
	}
	return NewNormalizerWithTransformer(logger, transformer), nil
}

func NewNormalizerWithTransformer(logger *zap.Logger, transformer Transformer) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		transformer: transformer,
		logger:      logger,
		tracer:      otel.Tracer("cropper/pipeline"),
	}
}

// Normalize validates opts and starts decode, resize and encode on a new
// goroutine. Invalid options fail here, before any decoding.
func (n *Normalizer) Normalize(ctx context.Context, src []byte, opts Options) (*Pending, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	input := bytes.Clone(src)
	pending, resolve := NewPending()
	go func() {
		resolve(n.process(ctx, input, opts))
	}()
	return pending, nil
}

// Process is the synchronous form of Normalize.
func (n *Normalizer) Process(ctx context.Context, src []byte, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	return n.process(ctx, src, opts)
}

func (n *Normalizer) process(ctx context.Context, src []byte, opts Options) (Result, error) {
	startedAt := time.Now()

	ctx, span := n.tracer.Start(ctx, "pipeline.normalize")
	span.SetAttributes(
		attribute.Int("image.source_bytes", len(src)),
		attribute.Int("image.max_width", opts.MaxWidth),
		attribute.Float64("image.quality", opts.Quality),
	)
	defer span.End()

	result, err := n.transformer.Transform(ctx, src, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "normalize failed")
		n.logger.Debug("normalize failed",
			zap.Int("source_bytes", len(src)),
			zap.Error(err),
		)
		return Result{}, err
	}

	result.EstimatedSizeKB = EstimateSizeKB(base64EncodedLen(len(result.Data)))

	span.SetAttributes(
		attribute.Int("image.width", result.Width),
		attribute.Int("image.height", result.Height),
		attribute.Int("image.output_bytes", len(result.Data)),
	)
	span.SetStatus(codes.Ok, "normalized")
	n.logger.Debug("normalized image",
		zap.Int("width", result.Width),
		zap.Int("height", result.Height),
		zap.Int("estimated_kb", result.EstimatedSizeKB),
		zap.Duration("took", time.Since(startedAt)),
	)
	return result, nil
}
