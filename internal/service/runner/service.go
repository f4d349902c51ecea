package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/internal/service/history"
	"github.com/Temutjin2k/hust-run/pkg/backoff"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

const (
	DefaultCallTimeout    = 5 * time.Second
	DefaultProbeInterval  = 10 * time.Second
	DefaultLoginTimeout   = 60 * time.Second
	DefaultWorkoutTimeout = 30 * time.Second

	geocodeTimeout = 3 * time.Second
	cleanupTimeout = 10 * time.Second
)

type Config struct {
	CallTimeout    time.Duration
	LoginTimeout   time.Duration
	WorkoutTimeout time.Duration // bounds each app start or finish flow
	ProbeInterval  time.Duration
	Retry          backoff.Policy
	FinalFix       bool
	AutoResume     bool
	Recorder       history.RecorderConfig
}

func (c Config) withDefaults() Config {
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = DefaultLoginTimeout
	}
	if c.WorkoutTimeout <= 0 {
		c.WorkoutTimeout = DefaultWorkoutTimeout
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.Retry.Validate() != nil {
		c.Retry = backoff.DefaultPolicy()
	}
	return c
}

/*
Service owns run sessions and exposes the command surface used by the CLI
and the control API. Each started session is driven by its own goroutine.
*/
type Service struct {
	bridge  DeviceBridge
	store   HistoryStore
	auth    Authenticator
	workout Workout
	lease   Lease
	events  EventSink
	geo     GeoCoder
	cfg     Config
	l       logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	loggedIn map[string]bool
}

type Option func(*Service)

func WithAuthenticator(a Authenticator) Option { return func(s *Service) { s.auth = a } }
func WithWorkout(w Workout) Option             { return func(s *Service) { s.workout = w } }
func WithLease(l Lease) Option                 { return func(s *Service) { s.lease = l } }
func WithEvents(e EventSink) Option            { return func(s *Service) { s.events = e } }
func WithGeoCoder(g GeoCoder) Option           { return func(s *Service) { s.geo = g } }

// New returns a new runner service. Optional collaborators are wired with options.
func New(bridge DeviceBridge, store HistoryStore, cfg Config, l logger.Logger, opts ...Option) *Service {
	s := &Service{
		bridge:   bridge,
		store:    store,
		cfg:      cfg.withDefaults(),
		l:        l,
		sessions: make(map[string]*Session),
		loggedIn: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens a device and returns its handle.
func (s *Service) Connect(ctx context.Context, deviceID string) (models.DeviceHandle, error) {
	const op = "Service.Connect"
	ctx = wrap.WithDeviceID(wrap.WithAction(ctx, types.ActionDeviceConnect), deviceID)

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	h, err := s.bridge.Connect(callCtx, deviceID)
	if err != nil {
		if !errors.Is(err, types.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err)
		}
		return models.DeviceHandle{}, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	s.l.Info(ctx, "device connected", "serial", h.Serial)
	return h, nil
}

// Disconnect releases a handle that never got bound to a session, e.g. after a
// failed login.
func (s *Service) Disconnect(ctx context.Context, h models.DeviceHandle) error {
	const op = "Service.Disconnect"
	ctx = wrap.WithDeviceID(wrap.WithAction(ctx, types.ActionDeviceDisconnect), h.DeviceID)

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CallTimeout)
	defer cancel()

	if err := s.bridge.Disconnect(callCtx, h); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	s.l.Info(ctx, "device disconnected")
	return nil
}

// Login replays credentials through the app. Sessions on a device can only be
// created after a successful login when an authenticator is configured.
func (s *Service) Login(ctx context.Context, h models.DeviceHandle, creds models.Credentials) error {
	const op = "Service.Login"
	ctx = wrap.WithDeviceID(wrap.WithAction(ctx, types.ActionLogin), h.DeviceID)

	if s.auth == nil {
		return nil
	}
	if creds.IsZero() {
		return wrap.Error(ctx, fmt.Errorf("%s: %w: empty credentials", op, types.ErrAuth))
	}

	loginCtx, cancel := context.WithTimeout(ctx, s.cfg.LoginTimeout)
	defer cancel()

	if err := s.auth.Login(loginCtx, h, creds); err != nil {
		if !errors.Is(err, types.ErrAuth) {
			err = fmt.Errorf("%w: %w", types.ErrAuth, err)
		}
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	s.mu.Lock()
	s.loggedIn[h.DeviceID] = true
	s.mu.Unlock()

	s.l.Info(ctx, "logged in")
	return nil
}

// CreateSession binds a validated route to a device handle. The session is
// PENDING until Start.
func (s *Service) CreateSession(ctx context.Context, route models.Route, h models.DeviceHandle) (string, error) {
	const op = "Service.CreateSession"
	ctx = wrap.WithRouteID(wrap.WithAction(ctx, types.ActionSessionCreate), route.ID)

	if err := route.Validate(); err != nil {
		return "", wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if h.IsZero() {
		return "", wrap.Error(ctx, fmt.Errorf("%s: %w: empty device handle", op, types.ErrDeviceUnavailable))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.auth != nil && !s.loggedIn[h.DeviceID] {
		return "", wrap.Error(ctx, fmt.Errorf("%s: %w: device %s is not logged in", op, types.ErrAuth, h.DeviceID))
	}

	id := uuid.NewString()
	sess := newSession(id, route, h, s)
	s.sessions[id] = sess

	ctx = wrap.WithSessionID(ctx, id)
	s.l.Info(ctx, "session created", "waypoints", route.Len(), "duration", route.TotalDuration.String())
	s.notify(sess.event(types.EventSessionCreated))

	return id, nil
}

// Start begins execution. The session keeps running until it reaches a
// terminal state, Stop is called or ctx is cancelled.
func (s *Service) Start(ctx context.Context, id string) error {
	sess, err := s.get(id)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("Service.Start: %w", err))
	}
	return sess.start(ctx)
}

func (s *Service) Pause(ctx context.Context, id string) error {
	sess, err := s.get(id)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("Service.Pause: %w", err))
	}
	return sess.command(ctx, cmdPause)
}

func (s *Service) Resume(ctx context.Context, id string) error {
	sess, err := s.get(id)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("Service.Resume: %w", err))
	}
	return sess.command(ctx, cmdResume)
}

// Stop aborts the session. A running session observes it within one call timeout.
func (s *Service) Stop(ctx context.Context, id string) error {
	sess, err := s.get(id)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("Service.Stop: %w", err))
	}
	return sess.stop(ctx)
}

func (s *Service) Status(id string) (models.SessionStatus, error) {
	sess, err := s.get(id)
	if err != nil {
		return models.SessionStatus{}, err
	}
	return sess.Status(), nil
}

// Sessions returns snapshots of all known sessions.
func (s *Service) Sessions() []models.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SessionStatus, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Status())
	}
	return out
}

// Wait blocks until the session is terminal and returns its final record.
func (s *Service) Wait(ctx context.Context, id string) (models.HistoryRecord, error) {
	sess, err := s.get(id)
	if err != nil {
		return models.HistoryRecord{}, err
	}

	select {
	case <-sess.done:
		return sess.result()
	case <-ctx.Done():
		return models.HistoryRecord{}, ctx.Err()
	}
}

// StopAll aborts every live session and waits for them to finish.
func (s *Service) StopAll(ctx context.Context) {
	s.mu.RLock()
	live := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.RUnlock()

	for _, sess := range live {
		_ = sess.stop(ctx)
	}
	for _, sess := range live {
		select {
		case <-sess.done:
		case <-ctx.Done():
			return
		}
	}
}

// History returns finalized and open records matching the filter.
func (s *Service) History(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("Service.History: %w", err)
	}
	return s.store.Query(ctx, filter)
}

func (s *Service) Stats(ctx context.Context, filter models.HistoryFilter) (models.HistoryStats, error) {
	if err := filter.Validate(); err != nil {
		return models.HistoryStats{}, fmt.Errorf("Service.Stats: %w", err)
	}
	return s.store.Stats(ctx, filter)
}

// Ticks returns the recorded fixes of a session.
func (s *Service) Ticks(ctx context.Context, sessionID string) ([]models.Tick, error) {
	return s.store.Ticks(ctx, sessionID)
}

// Recover finalizes sessions left open by an unclean shutdown as ABORTED,
// using the ticks that reached storage.
func (s *Service) Recover(ctx context.Context) (int, error) {
	const op = "Service.Recover"
	ctx = wrap.WithAction(ctx, types.ActionSessionRecover)

	open, err := s.store.Unfinalized(ctx)
	if err != nil {
		return 0, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	recovered := 0
	for _, rec := range open {
		if s.isLive(rec.SessionID) {
			continue
		}
		rctx := wrap.WithSessionID(ctx, rec.SessionID)

		ticks, err := s.store.Ticks(rctx, rec.SessionID)
		if err != nil {
			return recovered, wrap.Error(rctx, fmt.Errorf("%s: load ticks: %w", op, err))
		}

		final := recoveredRecord(rec, ticks)
		if err := s.store.Finalize(rctx, final); err != nil {
			if errors.Is(err, types.ErrDuplicateFinalize) {
				continue
			}
			return recovered, wrap.Error(rctx, fmt.Errorf("%s: finalize: %w", op, err))
		}

		recovered++
		s.l.Warn(rctx, "orphaned session finalized", "waypoints_sent", final.WaypointsSent)
	}

	return recovered, nil
}

func recoveredRecord(rec models.HistoryRecord, ticks []models.Tick) models.HistoryRecord {
	rec.Status = types.StateAborted
	rec.Error = "session interrupted by unclean shutdown"
	rec.WaypointsSent = len(ticks)
	rec.DistanceCovered = 0
	rec.EndedAt = rec.StartedAt

	for i, t := range ticks {
		if i > 0 {
			prev := ticks[i-1]
			rec.DistanceCovered += models.Haversine(prev.Latitude, prev.Longitude, t.Latitude, t.Longitude)
		}
		if t.SentAt.After(rec.EndedAt) {
			rec.EndedAt = t.SentAt
		}
	}
	if n := len(ticks); n > 0 && rec.WaypointsTotal > 0 {
		rec.WaypointsSkipped = max(0, min(rec.WaypointsTotal, ticks[n-1].Index+1)-n)
	}
	rec.Finalized = true
	return rec
}

func (s *Service) get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	return sess, nil
}

func (s *Service) isLive(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

func (s *Service) notify(e models.SessionEvent) {
	if s.events != nil {
		s.events.Notify(e)
	}
}
