package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/internal/service/history"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
	"github.com/Temutjin2k/hust-run/pkg/metrics"
)

type cmdKind int

const (
	cmdPause cmdKind = iota
	cmdResume
)

type command struct {
	kind  cmdKind
	reply chan error
}

// Session is one execution of a route on a device. Only the loop goroutine
// changes its progress; other goroutines read the published status.
type Session struct {
	id     string
	route  models.Route
	handle models.DeviceHandle
	svc    *Service
	l      logger.Logger

	lifecycle     sync.Mutex // guards started and cancel
	started       bool
	cancel        context.CancelFunc
	stopRequested atomic.Bool

	mu        sync.RWMutex
	status    models.SessionStatus
	record    models.HistoryRecord
	recordErr error

	ctrl chan command
	done chan struct{}
}

func newSession(id string, route models.Route, h models.DeviceHandle, svc *Service) *Session {
	return &Session{
		id:     id,
		route:  route,
		handle: h,
		svc:    svc,
		l:      svc.l,
		status: models.SessionStatus{
			SessionID:      id,
			RouteID:        route.ID,
			DeviceID:       h.DeviceID,
			State:          types.StatePending,
			TotalWaypoints: route.Len(),
		},
		ctrl: make(chan command),
		done: make(chan struct{}),
	}
}

// Status returns a snapshot of the session.
func (s *Session) Status() models.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) result() (models.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record, s.recordErr
}

func (s *Session) publish(fn func(st *models.SessionStatus)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}

func (s *Session) logCtx(ctx context.Context, action string) context.Context {
	return wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:    action,
		SessionID: s.id,
		RouteID:   s.route.ID,
		DeviceID:  s.handle.DeviceID,
	})
}

func (s *Session) event(t types.SessionEvent) models.SessionEvent {
	st := s.Status()
	return models.SessionEvent{
		Type:      t,
		SessionID: s.id,
		RouteID:   s.route.ID,
		DeviceID:  s.handle.DeviceID,
		State:     st.State,
		Error:     st.Error,
		Timestamp: time.Now(),
	}
}

// call runs one device call bounded by the call timeout. A timeout of the call
// itself is reported as ErrDeviceCommand, cancellation of ctx is returned as is.
func (s *Session) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.svc.cfg.CallTimeout)
	defer cancel()

	started := time.Now()
	err := fn(callCtx)
	metrics.RecordDeviceCall(name, err, time.Since(started))

	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, types.ErrDeviceCommand) {
		err = fmt.Errorf("%w: %s timed out: %w", types.ErrDeviceCommand, name, err)
	}
	return err
}

func (s *Session) probe(ctx context.Context) (models.DeviceStatus, error) {
	var st models.DeviceStatus
	err := s.call(ctx, "probe", func(ctx context.Context) error {
		var err error
		st, err = s.svc.bridge.ProbeStatus(ctx, s.handle)
		return err
	})
	return st, err
}

// start moves a PENDING session to RUNNING. The loop lives until a terminal
// state or until ctx is cancelled, so ctx must outlive the run.
func (s *Session) start(ctx context.Context) error {
	const op = "Session.Start"
	ctx = s.logCtx(ctx, types.ActionSessionStart)

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if st := s.Status().State; st != types.StatePending {
		return wrap.Error(ctx, fmt.Errorf("%s: %w: session is %s", op, types.ErrInvalidTransition, st))
	}

	st, err := s.probe(ctx)
	if err != nil {
		if !errors.Is(err, types.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err)
		}
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if !st.Connected {
		return wrap.Error(ctx, fmt.Errorf("%s: %w: device not connected", op, types.ErrDeviceUnavailable))
	}

	if lease := s.svc.lease; lease != nil {
		ok, err := lease.Acquire(wrap.WithAction(ctx, types.ActionLeaseAcquire), s.handle.DeviceID, s.id)
		if err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: %w: lease: %w", op, types.ErrDeviceUnavailable, err))
		}
		if !ok {
			return wrap.Error(ctx, fmt.Errorf("%s: %w: %w", op, types.ErrDeviceUnavailable, types.ErrDeviceBusy))
		}
	}

	if err := s.startWorkout(ctx); err != nil {
		s.releaseLease(ctx)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	startedAt := time.Now()
	rec := models.HistoryRecord{
		SessionID:      s.id,
		RouteID:        s.route.ID,
		RouteName:      s.route.Name,
		DeviceID:       s.handle.DeviceID,
		StartedAt:      startedAt,
		Status:         types.StateRunning,
		WaypointsTotal: s.route.Len(),
		StartAddress:   s.startAddress(ctx),
	}

	if err := s.svc.store.Begin(ctx, rec); err != nil {
		s.finishWorkout(ctx)
		s.releaseLease(ctx)
		return wrap.Error(ctx, fmt.Errorf("%s: history begin: %w", op, err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	s.publish(func(st *models.SessionStatus) {
		st.State = types.StateRunning
		st.StartedAt = startedAt
	})

	metrics.ActiveSessionsGauge.Inc()
	s.l.Info(ctx, "session started", "waypoints", s.route.Len(), "start_address", rec.StartAddress)
	s.svc.notify(s.event(types.EventSessionStarted))

	exec := &execution{
		s:         s,
		ctx:       runCtx,
		startedAt: startedAt,
		rec:       rec,
		recorder:  history.NewRecorder(runCtx, s.svc.store, s.id, s.svc.cfg.Recorder, s.l),
	}
	go exec.run()

	return nil
}

// stop aborts the session. A PENDING session is finalized right away.
func (s *Session) stop(ctx context.Context) error {
	const op = "Session.Stop"
	ctx = s.logCtx(ctx, types.ActionSessionStop)

	s.lifecycle.Lock()
	if !s.started {
		defer s.lifecycle.Unlock()
		if st := s.Status().State; st != types.StatePending {
			return wrap.Error(ctx, fmt.Errorf("%s: %w: session is %s", op, types.ErrInvalidTransition, st))
		}
		s.abortPending(ctx)
		return nil
	}
	cancel := s.cancel
	s.lifecycle.Unlock()

	if st := s.Status().State; st.IsTerminal() {
		return wrap.Error(ctx, fmt.Errorf("%s: %w: session is %s", op, types.ErrInvalidTransition, st))
	}

	s.stopRequested.Store(true)
	cancel()
	s.l.Info(ctx, "stop requested")
	return nil
}

func (s *Session) abortPending(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	now := time.Now()
	rec := models.HistoryRecord{
		SessionID:      s.id,
		RouteID:        s.route.ID,
		RouteName:      s.route.Name,
		DeviceID:       s.handle.DeviceID,
		StartedAt:      now,
		Status:         types.StateRunning,
		WaypointsTotal: s.route.Len(),
	}

	var err error
	if err = s.svc.store.Begin(ctx, rec); err == nil {
		rec.Status = types.StateAborted
		rec.EndedAt = now
		rec.Error = "stopped before start"
		rec.Finalized = true
		err = s.svc.store.Finalize(ctx, rec)
	}
	if err != nil {
		s.l.Error(ctx, "failed to record aborted session", err)
	}
	s.disconnect(ctx)

	s.publish(func(st *models.SessionStatus) {
		st.State = types.StateAborted
		st.EndedAt = now
		st.Error = rec.Error
	})

	s.mu.Lock()
	s.record, s.recordErr = rec, err
	s.mu.Unlock()

	metrics.SessionsTotal.WithLabelValues(types.StateAborted.String()).Inc()
	s.svc.notify(s.event(types.EventSessionAborted))
	close(s.done)
}

// command delivers pause or resume to the loop and waits for its answer.
func (s *Session) command(ctx context.Context, kind cmdKind) error {
	const op = "Session.Command"
	action := types.ActionSessionPause
	if kind == cmdResume {
		action = types.ActionSessionResume
	}
	ctx = s.logCtx(ctx, action)

	st := s.Status().State
	if (kind == cmdPause && st != types.StateRunning) || (kind == cmdResume && st != types.StatePaused) {
		return wrap.Error(ctx, fmt.Errorf("%s: %w: session is %s", op, types.ErrInvalidTransition, st))
	}

	c := command{kind: kind, reply: make(chan error, 1)}
	select {
	case s.ctrl <- c:
	case <-s.done:
		return wrap.Error(ctx, fmt.Errorf("%s: %w: session finished", op, types.ErrInvalidTransition))
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-c.reply:
		if err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) startAddress(ctx context.Context) string {
	if s.svc.geo == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()

	start := s.route.Start()
	addr, err := s.svc.geo.GetAddress(ctx, start.Longitude, start.Latitude)
	if err != nil {
		s.l.Warn(wrap.ErrorCtx(ctx, err), "failed to resolve start address", "error", err.Error())
		return ""
	}
	return addr
}

func (s *Session) startWorkout(ctx context.Context) error {
	if s.svc.workout == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.svc.cfg.WorkoutTimeout)
	defer cancel()

	started := time.Now()
	err := s.svc.workout.Start(ctx, s.handle)
	metrics.RecordDeviceCall("workout_start", err, time.Since(started))
	if err != nil && !errors.Is(err, types.ErrDeviceCommand) {
		err = fmt.Errorf("%w: %w", types.ErrDeviceCommand, err)
	}
	if err != nil {
		return fmt.Errorf("start workout: %w", err)
	}
	return nil
}

// finishWorkout closes the exercise in the app. Failures are logged only.
func (s *Session) finishWorkout(ctx context.Context) {
	if s.svc.workout == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.svc.cfg.WorkoutTimeout)
	defer cancel()

	started := time.Now()
	err := s.svc.workout.Finish(ctx, s.handle)
	metrics.RecordDeviceCall("workout_finish", err, time.Since(started))
	if err != nil {
		s.l.Warn(wrap.ErrorCtx(ctx, err), "failed to finish exercise in app", "error", err.Error())
	}
}

// disconnect hands the device back. Failures are logged only.
func (s *Session) disconnect(ctx context.Context) {
	if err := s.call(ctx, "disconnect", func(ctx context.Context) error {
		return s.svc.bridge.Disconnect(ctx, s.handle)
	}); err != nil {
		s.l.Warn(wrap.WithAction(ctx, types.ActionDeviceDisconnect), "device disconnect failed", "error", err.Error())
	}
}

func (s *Session) releaseLease(ctx context.Context) {
	if s.svc.lease == nil {
		return
	}
	if err := s.svc.lease.Release(ctx, s.handle.DeviceID, s.id); err != nil {
		s.l.Error(ctx, "failed to release device lease", err)
	}
}
