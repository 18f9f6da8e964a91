// Package session scopes transform state and crop normalization to one
// file-selection-to-commit interaction.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/cropper/internal/domain"
	"github.com/dunamismax/cropper/internal/future"
	"github.com/dunamismax/cropper/internal/id"
	"github.com/dunamismax/cropper/internal/pipeline"
	"github.com/dunamismax/cropper/internal/transform"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed before the crop completed")
	ErrCommitInFlight  = errors.New("a crop is already being normalized for this session")
)

const defaultNotifyTimeout = 30 * time.Second

type Normalizer interface {
	Normalize(ctx context.Context, src []byte, opts pipeline.Options) (*pipeline.Pending, error)
}

type Config struct {
	Limits        transform.Limits
	Defaults      pipeline.Options
	NotifyTimeout time.Duration
	Registerer    prometheus.Registerer
}

type Snapshot struct {
	ID           string             `json:"id"`
	FileName     string             `json:"file_name,omitempty"`
	SourceWidth  int                `json:"source_width"`
	SourceHeight int                `json:"source_height"`
	Status       string             `json:"status"`
	Transform    transform.Snapshot `json:"transform"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

type session struct {
	id           string
	fileName     string
	source       []byte
	sourceWidth  int
	sourceHeight int
	state        *transform.State
	generation   uint64
	inFlight     bool
	ctx          context.Context
	cancel       context.CancelFunc
	createdAt    time.Time
	updatedAt    time.Time
}

func (s *session) snapshot() Snapshot {
	status := domain.SessionStatusOpen
	if s.inFlight {
		status = domain.SessionStatusNormalizing
	}
	return Snapshot{
		ID:           s.id,
		FileName:     s.fileName,
		SourceWidth:  s.sourceWidth,
		SourceHeight: s.sourceHeight,
		Status:       status,
		Transform:    s.state.Snapshot(),
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
}

type Manager struct {
	mu            sync.Mutex
	sessions      map[string]*session
	normalizer    Normalizer
	notifier      Notifier
	logger        *zap.Logger
	metrics       *metrics
	limits        transform.Limits
	defaults      pipeline.Options
	notifyTimeout time.Duration
	now           func() time.Time
	newID         func() string
}

func NewManager(logger *zap.Logger, normalizer Normalizer, notifier Notifier, cfg Config) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	defaults := cfg.Defaults
	if defaults == (pipeline.Options{}) {
		defaults = pipeline.DefaultOptions()
	}
	notifyTimeout := cfg.NotifyTimeout
	if notifyTimeout <= 0 {
		notifyTimeout = defaultNotifyTimeout
	}

	return &Manager{
		sessions:      make(map[string]*session),
		normalizer:    normalizer,
		notifier:      notifier,
		logger:        logger,
		metrics:       newMetrics(cfg.Registerer),
		limits:        cfg.Limits,
		defaults:      defaults,
		notifyTimeout: notifyTimeout,
		now:           time.Now,
		newID:         id.New,
	}
}

func (m *Manager) Defaults() pipeline.Options {
	return m.defaults
}

// Open starts a new session for a freshly selected file.
func (m *Manager) Open(fileName string, raw []byte) (Snapshot, error) {
	width, height, err := probe(raw)
	if err != nil {
		return Snapshot{}, err
	}

	now := m.now().UTC()
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:           m.newID(),
		fileName:     fileName,
		source:       bytes.Clone(raw),
		sourceWidth:  width,
		sourceHeight: height,
		state:        transform.New(m.limits),
		ctx:          ctx,
		cancel:       cancel,
		createdAt:    now,
		updatedAt:    now,
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	snap := s.snapshot()
	m.mu.Unlock()

	m.metrics.sessionsOpen.Inc()
	m.logger.Info("session opened",
		zap.String("session_id", s.id),
		zap.String("file_name", fileName),
		zap.Int("source_width", width),
		zap.Int("source_height", height),
	)
	return snap, nil
}

// Select loads a new file into an open session. The transform is reset and
// any crop still being normalized for the previous file is discarded.
func (m *Manager) Select(sessionID, fileName string, raw []byte) (Snapshot, error) {
	width, height, err := probe(raw)
	if err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}

	s.cancel()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.generation++
	if s.inFlight {
		s.inFlight = false
		m.metrics.normalizeInFlight.Dec()
	}
	s.fileName = fileName
	s.source = bytes.Clone(raw)
	s.sourceWidth, s.sourceHeight = width, height
	s.state.Reset()
	s.updatedAt = m.now().UTC()

	m.logger.Info("session file selected",
		zap.String("session_id", s.id),
		zap.String("file_name", fileName),
		zap.Uint64("generation", s.generation),
	)
	return s.snapshot(), nil
}

func (m *Manager) Get(sessionID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	return s.snapshot(), nil
}

// Apply runs a transform edit against the session's state.
func (m *Manager) Apply(sessionID string, op transform.Op, value float64) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	if err := s.state.Apply(op, value); err != nil {
		return Snapshot{}, err
	}
	s.updatedAt = m.now().UTC()
	m.metrics.transformOps.WithLabelValues(string(op)).Inc()
	return s.snapshot(), nil
}

// Preview renders the session's source image with the current transform.
func (m *Manager) Preview(sessionID string) (*image.NRGBA, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	source := s.source
	quadrant := s.state.Quadrant()
	t := s.state.Transform()
	m.mu.Unlock()

	img, err := imaging.Decode(bytes.NewReader(source), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pipeline.ErrDecode, err)
	}
	return transform.Render(img, quadrant, t), nil
}

// Commit hands a cropped raster to the normalizer. Invalid options fail
// immediately. The returned Completion resolves with the event sent to the
// host, or with ErrSessionClosed if the session was canceled or reloaded
// before normalization finished.
func (m *Manager) Commit(sessionID string, cropped []byte, opts pipeline.Options) (*Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.inFlight {
		return nil, ErrCommitInFlight
	}

	pending, err := m.normalizer.Normalize(s.ctx, cropped, opts)
	if err != nil {
		m.metrics.normalizeTotal.WithLabelValues(domain.KindOf(err)).Inc()
		return nil, err
	}

	s.inFlight = true
	s.updatedAt = m.now().UTC()
	m.metrics.normalizeInFlight.Inc()

	completion, resolve := future.New[domain.CropEvent]()
	go m.complete(s.id, s.generation, s.fileName, pending, resolve, m.now())

	m.logger.Info("crop committed",
		zap.String("session_id", s.id),
		zap.Uint64("generation", s.generation),
		zap.Int("cropped_bytes", len(cropped)),
		zap.Int("max_width", opts.MaxWidth),
		zap.Float64("quality", opts.Quality),
	)
	return completion, nil
}

func (m *Manager) complete(sessionID string, generation uint64, fileName string, pending *pipeline.Pending, resolve func(domain.CropEvent, error), startedAt time.Time) {
	<-pending.Done()
	result, err := pending.Wait(context.Background())

	outcome := "succeeded"
	if err != nil {
		outcome = domain.KindOf(err)
	}
	m.metrics.normalizeDuration.WithLabelValues(outcome).Observe(m.now().Sub(startedAt).Seconds())

	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok || s.generation != generation {
		m.mu.Unlock()
		m.metrics.lateCompletions.Inc()
		m.logger.Debug("discarding late completion",
			zap.String("session_id", sessionID),
			zap.Uint64("generation", generation),
			zap.String("outcome", outcome),
		)
		resolve(domain.CropEvent{}, ErrSessionClosed)
		return
	}

	s.inFlight = false
	m.metrics.normalizeInFlight.Dec()
	m.metrics.normalizeTotal.WithLabelValues(outcome).Inc()

	now := m.now().UTC()
	var event domain.CropEvent
	if err != nil {
		event = domain.NewFailedEvent(sessionID, fileName, err, now)
		s.updatedAt = now
	} else {
		event = domain.NewCompletedEvent(sessionID, fileName, result, now)
		m.closeLocked(s, "committed")
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("crop normalization failed",
			zap.String("session_id", sessionID),
			zap.String("error_kind", event.ErrorKind),
			zap.Error(err),
		)
	} else {
		m.logger.Info("crop normalized",
			zap.String("session_id", sessionID),
			zap.Int("width", result.Width),
			zap.Int("height", result.Height),
			zap.Int("estimated_kb", result.EstimatedSizeKB),
		)
	}

	resolve(event, err)
	m.notify(event)
}

func (m *Manager) notify(event domain.CropEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), m.notifyTimeout)
	defer cancel()

	if err := m.notifier.Notify(ctx, event); err != nil {
		m.metrics.notifyFailures.Inc()
		m.logger.Warn("host notification failed",
			zap.String("session_id", event.SessionID),
			zap.String("event", event.Event),
			zap.Error(err),
		)
	}
}

// Cancel ends a session without a commit. Work in flight is canceled and its
// completion, if it still arrives, is discarded.
func (m *Manager) Cancel(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	m.closeLocked(s, "canceled")
	m.logger.Info("session canceled", zap.String("session_id", sessionID))
	return nil
}

// ExpireIdle cancels sessions untouched for longer than ttl and reports how
// many were removed.
func (m *Manager) ExpireIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().UTC().Add(-ttl)
	expired := 0
	for _, s := range m.sessions {
		// A crop being normalized is still in use however long it takes.
		if !s.inFlight && s.updatedAt.Before(cutoff) {
			m.closeLocked(s, "expired")
			expired++
		}
	}
	if expired > 0 {
		m.logger.Info("expired idle sessions", zap.Int("count", expired))
	}
	return expired
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close cancels every open session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		m.closeLocked(s, "shutdown")
	}
}

func (m *Manager) closeLocked(s *session, outcome string) {
	s.cancel()
	if s.inFlight {
		s.inFlight = false
		m.metrics.normalizeInFlight.Dec()
	}
	delete(m.sessions, s.id)
	m.metrics.sessionsOpen.Dec()
	m.metrics.sessionsTotal.WithLabelValues(outcome).Inc()
}

// probe decodes raw the way Preview and the normalizer do, so the reported
// dimensions already account for EXIF orientation.
func probe(raw []byte) (int, int, error) {
	if len(raw) == 0 {
		return 0, 0, fmt.Errorf("%w: empty file", pipeline.ErrDecode)
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", pipeline.ErrDecode, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return 0, 0, fmt.Errorf("%w: invalid dimensions %dx%d", pipeline.ErrDecode, b.Dx(), b.Dy())
	}
	return b.Dx(), b.Dy(), nil
}
