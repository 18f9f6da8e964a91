// Package api exposes cropping sessions over HTTP for the host page.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/cropper/internal/domain"
	"github.com/dunamismax/cropper/internal/pipeline"
	"github.com/dunamismax/cropper/internal/ratelimit"
	"github.com/dunamismax/cropper/internal/session"
	"github.com/dunamismax/cropper/internal/transform"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	HeaderFileName        = "X-File-Name"
	defaultMaxUploadBytes = 20 << 20
	previewQuality        = 85
)

type sessionService interface {
	Defaults() pipeline.Options
	Open(fileName string, raw []byte) (session.Snapshot, error)
	Select(sessionID, fileName string, raw []byte) (session.Snapshot, error)
	Get(sessionID string) (session.Snapshot, error)
	Apply(sessionID string, op transform.Op, value float64) (session.Snapshot, error)
	Preview(sessionID string) (*image.NRGBA, error)
	Commit(sessionID string, cropped []byte, opts pipeline.Options) (*session.Completion, error)
	Cancel(sessionID string) error
	Len() int
}

// WidgetConfig is what the UI needs to lay out the cropping dialog.
type WidgetConfig struct {
	AspectRatio      string  `json:"aspect_ratio"`
	AspectRatioValue float64 `json:"aspect_ratio_value"`
	Width            int     `json:"cropper_width"`
	Height           int     `json:"cropper_height"`
	MinZoom          float64 `json:"min_zoom"`
	MaxZoom          float64 `json:"max_zoom"`
}

type Config struct {
	MaxUploadBytes        int64
	Widget                WidgetConfig
	Registry              *prometheus.Registry
	Tracer                trace.Tracer
	RateLimiter           ratelimit.Limiter
	RateLimitUserIDHeader string
}

type Server struct {
	logger                *zap.Logger
	sessions              sessionService
	widget                WidgetConfig
	maxUploadBytes        int64
	metrics               *metrics
	tracer                trace.Tracer
	rateLimiter           ratelimit.Limiter
	rateLimitUserIDHeader string
	mux                   *http.ServeMux
}

func NewServer(logger *zap.Logger, sessions sessionService, cfg Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	userHeader := strings.TrimSpace(cfg.RateLimitUserIDHeader)
	if userHeader == "" {
		userHeader = "X-User-ID"
	}

	s := &Server{
		logger:                logger,
		sessions:              sessions,
		widget:                cfg.Widget,
		maxUploadBytes:        maxUpload,
		metrics:               newMetrics(cfg.Registry),
		tracer:                cfg.Tracer,
		rateLimiter:           cfg.RateLimiter,
		rateLimitUserIDHeader: userHeader,
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler wraps the routes with tracing, metrics and rate limiting.
func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("GET /v1/config", s.handleConfig)
	s.mux.HandleFunc("POST /v1/sessions", s.handleOpenSession)
	s.mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleCancelSession)
	s.mux.HandleFunc("PUT /v1/sessions/{id}/file", s.handleSelectFile)
	s.mux.HandleFunc("POST /v1/sessions/{id}/transform", s.handleTransform)
	s.mux.HandleFunc("GET /v1/sessions/{id}/preview", s.handlePreview)
	s.mux.HandleFunc("POST /v1/sessions/{id}/crop", s.handleCrop)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"backend":       pipeline.Backend(),
		"open_sessions": s.sessions.Len(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cropper":    s.widget,
		"normalizer": s.sessions.Defaults(),
		"backend":    pipeline.Backend(),
	})
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}

	snap, err := s.sessions.Open(fileNameFrom(r), raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.sessionsOpened.Inc()
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleSelectFile(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}

	snap, err := s.sessions.Select(r.PathValue("id"), fileNameFrom(r), raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Cancel(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	var req domain.TransformRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	op, err := transform.ParseOp(req.Op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	snap, err := s.sessions.Apply(r.PathValue("id"), op, req.ValueOrZero())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	img, err := s.sessions.Preview(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Areas uncovered by a fine rotation are transparent; JPEG has no alpha.
	b := img.Bounds()
	flat := imaging.Overlay(imaging.New(b.Dx(), b.Dy(), color.White), img, image.Point{}, 1)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(previewQuality)); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", pipeline.ErrEncode, err))
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleCrop accepts the cropped raster either as raw image bytes or as a
// data URL, then blocks until normalization resolves.
func (s *Server) handleCrop(w http.ResponseWriter, r *http.Request) {
	opts, err := optionsFromQuery(s.sessions.Defaults(), r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}
	if bytes.HasPrefix(raw, []byte("data:")) {
		raw, err = pipeline.DecodeDataURL(string(raw))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	completion, err := s.sessions.Commit(r.PathValue("id"), raw, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	event, err := completion.Wait(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, event)
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// Client went away; the completion still resolves and notifies the host.
		s.logger.Debug("crop request abandoned", zap.String("session_id", r.PathValue("id")))
	case event.Event == domain.EventCropFailed:
		writeJSON(w, statusFor(err), event)
	default:
		s.writeError(w, r, err)
	}
}

func optionsFromQuery(defaults pipeline.Options, r *http.Request) (pipeline.Options, error) {
	opts := defaults
	q := r.URL.Query()

	if raw := strings.TrimSpace(q.Get("max_width")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return opts, fmt.Errorf("%w: max_width must be an integer", pipeline.ErrInvalidConfiguration)
		}
		opts.MaxWidth = v
	}
	if raw := strings.TrimSpace(q.Get("quality")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return opts, fmt.Errorf("%w: quality must be a number", pipeline.ErrInvalidConfiguration)
		}
		opts.Quality = v
	}
	if raw := strings.TrimSpace(q.Get("format")); raw != "" {
		opts.Format = raw
	}
	return opts, opts.Validate()
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit),
			})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return nil, false
	}
	return body, true
}

func fileNameFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderFileName))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionClosed), errors.Is(err, session.ErrCommitInFlight):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrInvalidConfiguration), errors.Is(err, transform.ErrUnknownOp):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrDecode):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := map[string]string{"error": err.Error()}
	switch kind := domain.KindOf(err); kind {
	case domain.ErrorKindDecode, domain.ErrorKindEncode, domain.ErrorKindInvalidConfiguration:
		body["error_kind"] = kind
		body["message"] = domain.MessageFor(kind)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
