package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/internal/service/history"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
	"github.com/Temutjin2k/hust-run/pkg/metrics"
)

var errStopped = errors.New("stopped by request")

// execution is the state owned by the session loop goroutine.
type execution struct {
	s         *Session
	ctx       context.Context
	startedAt time.Time
	rec       models.HistoryRecord
	recorder  *history.Recorder
	probe     *time.Ticker

	index      int
	sent       int
	skipped    int
	errors     int
	distance   float64
	paused     bool
	autoPaused bool
	last       *models.Waypoint
}

func (e *execution) run() {
	e.probe = time.NewTicker(e.s.svc.cfg.ProbeInterval)
	defer e.probe.Stop()

	state, err := e.loop()
	e.finish(state, err)
}

func (e *execution) loop() (types.SessionState, error) {
	n := e.s.route.Len()

	for e.index < n {
		if e.paused {
			if err := e.waitWhilePaused(); err != nil {
				return e.terminal(err)
			}
			e.fastForward()
			continue
		}

		wp := e.s.route.At(e.index)
		if err := e.wait(e.startedAt.Add(wp.Offset)); err != nil {
			return e.terminal(err)
		}
		if e.paused {
			continue
		}

		if err := e.send(wp); err != nil {
			return e.terminal(err)
		}
	}

	if e.s.svc.cfg.FinalFix {
		e.finalFix()
	}

	return types.StateCompleted, nil
}

func (e *execution) terminal(err error) (types.SessionState, error) {
	if e.ctx.Err() != nil {
		if e.s.stopRequested.Load() {
			return types.StateAborted, errStopped
		}
		return types.StateAborted, context.Cause(e.ctx)
	}
	return types.StateFailed, err
}

// send transmits one waypoint, retrying command failures with backoff.
// A pause during backoff abandons the waypoint; it is reconsidered on resume.
func (e *execution) send(wp models.Waypoint) error {
	policy := e.s.svc.cfg.Retry
	ctx := e.s.logCtx(e.ctx, types.ActionMockLocation)

	for attempt := 1; ; attempt++ {
		err := e.s.call(e.ctx, "set_mock_location", func(ctx context.Context) error {
			return e.s.svc.bridge.SetMockLocation(ctx, e.s.handle, wp.Latitude, wp.Longitude)
		})
		if err == nil {
			e.markSent(wp)
			return nil
		}
		if e.ctx.Err() != nil {
			return e.ctx.Err()
		}

		e.errors++
		e.s.publish(func(st *models.SessionStatus) { st.ErrorCount = e.errors })

		if errors.Is(err, types.ErrDeviceUnavailable) {
			return err
		}

		if !policy.ShouldRetry(attempt) {
			return fmt.Errorf("%w: waypoint %d after %d attempts: %w", types.ErrRetriesExhausted, e.index, attempt, err)
		}

		delay := policy.Delay(attempt)
		e.s.l.Warn(ctx, "mock location failed, retrying",
			"index", e.index,
			"attempt", attempt,
			"delay", delay.String(),
			"error", err.Error(),
		)

		if err := e.wait(time.Now().Add(delay)); err != nil {
			return err
		}
		if e.paused {
			return nil
		}
	}
}

func (e *execution) markSent(wp models.Waypoint) {
	now := time.Now()
	if e.last != nil {
		e.distance += models.Haversine(e.last.Latitude, e.last.Longitude, wp.Latitude, wp.Longitude)
	}
	e.last = &wp
	idx := e.index
	e.index++
	e.sent++

	e.s.publish(func(st *models.SessionStatus) {
		st.CurrentIndex = e.index
		st.WaypointsSent = e.sent
		st.DistanceCovered = e.distance
		st.LastSentAt = now
	})

	e.recorder.Append(models.Tick{
		SessionID: e.s.id,
		Index:     idx,
		Latitude:  wp.Latitude,
		Longitude: wp.Longitude,
		Offset:    wp.Offset,
		SentAt:    now,
	})
	metrics.WaypointsSent.WithLabelValues("sent").Inc()

	ev := e.s.event(types.EventWaypointSent)
	ev.Index, ev.Latitude, ev.Longitude = idx, wp.Latitude, wp.Longitude
	e.s.svc.notify(ev)
}

// finalFix repeats the last fix once so the app registers the finish point.
func (e *execution) finalFix() {
	last := e.s.route.Finish()
	err := e.s.call(e.ctx, "set_mock_location", func(ctx context.Context) error {
		return e.s.svc.bridge.SetMockLocation(ctx, e.s.handle, last.Latitude, last.Longitude)
	})
	if err != nil {
		e.s.l.Warn(e.s.logCtx(e.ctx, types.ActionMockLocation), "final fix failed", "error", err.Error())
	}
}

// wait sleeps until the deadline. It serves commands and device probes in the
// meantime and returns early when the session gets paused.
func (e *execution) wait(until time.Time) error {
	for {
		d := time.Until(until)
		if d <= 0 {
			return nil
		}

		timer := time.NewTimer(d)
		select {
		case <-e.ctx.Done():
			timer.Stop()
			return e.ctx.Err()
		case <-timer.C:
			return nil
		case c := <-e.s.ctrl:
			timer.Stop()
			e.handle(c)
		case <-e.probe.C:
			timer.Stop()
			if err := e.checkDevice(); err != nil {
				return err
			}
		}

		if e.paused {
			return nil
		}
	}
}

func (e *execution) waitWhilePaused() error {
	for e.paused {
		select {
		case <-e.ctx.Done():
			return e.ctx.Err()
		case c := <-e.s.ctrl:
			e.handle(c)
		case <-e.probe.C:
			if err := e.checkDevice(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *execution) handle(c command) {
	switch c.kind {
	case cmdPause:
		if e.paused {
			c.reply <- fmt.Errorf("%w: session already paused", types.ErrInvalidTransition)
			return
		}
		e.setPaused(true, false)
	case cmdResume:
		if !e.paused {
			c.reply <- fmt.Errorf("%w: session is not paused", types.ErrInvalidTransition)
			return
		}
		e.setPaused(false, false)
	}
	c.reply <- nil
}

func (e *execution) setPaused(paused, auto bool) {
	e.paused = paused
	e.autoPaused = paused && auto

	state, ev, action := types.StateRunning, types.EventSessionResumed, types.ActionSessionResume
	if paused {
		state, ev, action = types.StatePaused, types.EventSessionPaused, types.ActionSessionPause
	}

	e.s.publish(func(st *models.SessionStatus) {
		st.State = state
		st.AutoPaused = e.autoPaused
	})
	e.s.l.Info(e.s.logCtx(e.ctx, action), "session "+state.String(), "auto", auto, "index", e.index)
	e.s.svc.notify(e.s.event(ev))
}

// checkDevice probes the device. Disconnection fails the session, a
// backgrounded app pauses it and its return resumes it when enabled.
func (e *execution) checkDevice() error {
	ctx := e.s.logCtx(e.ctx, types.ActionDeviceProbe)

	st, err := e.s.probe(e.ctx)
	if err != nil {
		if e.ctx.Err() != nil {
			return e.ctx.Err()
		}
		if errors.Is(err, types.ErrDeviceUnavailable) {
			return err
		}
		e.s.l.Warn(ctx, "device probe failed", "error", err.Error())
		return nil
	}

	if !st.Connected {
		return fmt.Errorf("%w: device disconnected", types.ErrDeviceUnavailable)
	}

	switch {
	case !st.AppForeground && !e.paused:
		e.setPaused(true, true)
	case st.AppForeground && e.paused && e.autoPaused && e.s.svc.cfg.AutoResume:
		e.setPaused(false, true)
	}
	return nil
}

// fastForward skips waypoints that became overdue while paused. The most
// recent overdue waypoint is kept and sent right away.
func (e *execution) fastForward() {
	n := e.s.route.Len()
	now := time.Now()

	skipped := 0
	for e.index+1 < n && !e.startedAt.Add(e.s.route.At(e.index+1).Offset).After(now) {
		e.index++
		skipped++
	}
	if skipped == 0 {
		return
	}

	e.skipped += skipped
	e.s.publish(func(st *models.SessionStatus) {
		st.CurrentIndex = e.index
		st.WaypointsSkipped = e.skipped
	})
	metrics.WaypointsSent.WithLabelValues("skipped").Add(float64(skipped))
	e.s.l.Info(e.s.logCtx(e.ctx, types.ActionSessionResume), "skipped overdue waypoints", "count", skipped, "index", e.index)
}

// finish persists the outcome and releases the device. It runs on every
// terminal path.
func (e *execution) finish(state types.SessionState, runErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(e.ctx), cleanupTimeout)
	defer cancel()
	ctx = e.s.logCtx(ctx, types.ActionSessionFinalize)

	endedAt := time.Now()
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}

	e.s.publish(func(st *models.SessionStatus) {
		st.State = state
		st.EndedAt = endedAt
		st.Error = errText
		st.AutoPaused = false
	})

	if err := e.recorder.Close(ctx); err != nil {
		e.s.l.Error(ctx, "history recorder did not drain", err)
	}

	rec := e.rec
	rec.EndedAt = endedAt
	rec.Status = state
	rec.WaypointsSent = e.sent
	rec.WaypointsSkipped = e.skipped
	rec.DistanceCovered = e.distance
	rec.ErrorCount = e.errors
	rec.Error = errText
	rec.Finalized = true

	finErr := e.s.svc.store.Finalize(ctx, rec)
	if finErr != nil {
		e.s.l.Error(ctx, "failed to finalize history record", finErr)
	}

	// a failed device cannot take taps
	if state != types.StateFailed {
		e.s.finishWorkout(ctx)
	}
	e.s.disconnect(ctx)
	e.s.releaseLease(ctx)

	metrics.ActiveSessionsGauge.Dec()
	metrics.SessionsTotal.WithLabelValues(state.String()).Inc()

	e.s.mu.Lock()
	e.s.record, e.s.recordErr = rec, finErr
	e.s.mu.Unlock()

	evType := types.EventSessionCompleted
	switch state {
	case types.StateAborted:
		evType = types.EventSessionAborted
	case types.StateFailed:
		evType = types.EventSessionFailed
	}
	e.s.svc.notify(e.s.event(evType))

	if runErr != nil && state == types.StateFailed {
		e.s.l.Error(wrap.ErrorCtx(ctx, runErr), "session failed", runErr, "waypoints_sent", e.sent)
	} else {
		e.s.l.Info(ctx, "session finished",
			"state", state.String(),
			"waypoints_sent", e.sent,
			"waypoints_skipped", e.skipped,
			"distance_m", e.distance,
		)
	}

	close(e.s.done)
}
