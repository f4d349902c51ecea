package runner

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/Temutjin2k/hust-run/internal/adapter/memory"
	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/internal/service/history"
	"github.com/Temutjin2k/hust-run/internal/service/route"
	"github.com/Temutjin2k/hust-run/pkg/backoff"
	"github.com/Temutjin2k/hust-run/pkg/logger"
)

func testConfig() Config {
	return Config{
		CallTimeout:   time.Second,
		ProbeInterval: time.Hour,
		Retry:         backoff.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2},
		FinalFix:      true,
		AutoResume:    true,
		Recorder:      history.RecorderConfig{FlushEvery: 2, FlushInterval: 10 * time.Millisecond},
	}
}

// testRoute returns n waypoints spaced step apart in time and ~11m in space.
func testRoute(t *testing.T, n int, step time.Duration) models.Route {
	t.Helper()
	wps := make([]models.Waypoint, n)
	for i := range wps {
		wps[i] = models.Waypoint{
			Latitude:  30.51 + float64(i)*0.0001,
			Longitude: 114.41,
			Offset:    time.Duration(i) * step,
		}
	}
	r, err := models.NewRoute("route-1", "test", wps)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	return r
}

type harness struct {
	svc    *Service
	bridge *fakeBridge
	store  *memory.HistoryStore
	events *eventLog
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		bridge: newFakeBridge(),
		store:  memory.NewHistoryStore(),
		events: &eventLog{},
	}
	opts = append([]Option{WithEvents(h.events)}, opts...)
	h.svc = New(h.bridge, h.store, cfg, logger.NewNop(), opts...)
	return h
}

func (h *harness) startSession(t *testing.T, rt models.Route) string {
	t.Helper()
	ctx := context.Background()

	handle, err := h.svc.Connect(ctx, "emulator-5554")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	id, err := h.svc.CreateSession(ctx, rt, handle)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := h.svc.Start(ctx, id); err != nil {
		t.Fatalf("start: %v", err)
	}
	return id
}

func (h *harness) wait(t *testing.T, id string, within time.Duration) models.HistoryRecord {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), within)
	defer cancel()

	rec, err := h.svc.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return rec
}

func waitFor(t *testing.T, within time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(within)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", within)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSession_CompletesInOrder(t *testing.T) {
	h := newHarness(t, testConfig())
	rt := testRoute(t, 5, 10*time.Millisecond)

	id := h.startSession(t, rt)
	rec := h.wait(t, id, 2*time.Second)

	if rec.Status != types.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", rec.Status, rec.Error)
	}
	if rec.WaypointsSent != 5 || rec.WaypointsSkipped != 0 {
		t.Fatalf("unexpected counts: %+v", rec)
	}

	sent := h.bridge.sent()
	if len(sent) != 6 {
		t.Fatalf("expected 5 fixes plus final fix, got %d", len(sent))
	}
	for i := range 5 {
		wp := rt.At(i)
		if sent[i].Lat != wp.Latitude || sent[i].Lon != wp.Longitude {
			t.Fatalf("fix %d out of order: %+v", i, sent[i])
		}
	}
	if sent[5] != sent[4] {
		t.Fatalf("final fix must repeat the last waypoint")
	}

	wantDist := rt.TotalDistance
	if d := rec.DistanceCovered - wantDist; d > 0.01 || d < -0.01 {
		t.Fatalf("distance %.2f, want %.2f", rec.DistanceCovered, wantDist)
	}

	ticks, _ := h.store.Ticks(context.Background(), id)
	if len(ticks) != 5 {
		t.Fatalf("expected 5 ticks persisted, got %d", len(ticks))
	}
	for i, tick := range ticks {
		if tick.Index != i {
			t.Fatalf("tick order broken: %+v", ticks)
		}
	}

	if h.bridge.disconnects.Load() != 1 {
		t.Fatalf("device must be released once")
	}

	evs := h.events.types()
	if evs[0] != types.EventSessionCreated || evs[1] != types.EventSessionStarted || evs[len(evs)-1] != types.EventSessionCompleted {
		t.Fatalf("unexpected event sequence: %v", evs)
	}
}

func TestSession_Timing(t *testing.T) {
	h := newHarness(t, testConfig())
	rt := testRoute(t, 3, 40*time.Millisecond)

	started := time.Now()
	id := h.startSession(t, rt)
	h.wait(t, id, 2*time.Second)

	if elapsed := time.Since(started); elapsed < 80*time.Millisecond {
		t.Fatalf("waypoints sent ahead of schedule: %s", elapsed)
	}
}

func TestSession_RetryWithinBudgetRecovers(t *testing.T) {
	h := newHarness(t, testConfig())
	h.bridge.failNext(1, 2)

	id := h.startSession(t, testRoute(t, 3, time.Millisecond))
	rec := h.wait(t, id, 2*time.Second)

	if rec.Status != types.StateCompleted {
		t.Fatalf("expected COMPLETED after 2 failures, got %s (%s)", rec.Status, rec.Error)
	}
	if rec.ErrorCount != 2 || rec.WaypointsSent != 3 {
		t.Fatalf("unexpected counts: %+v", rec)
	}
}

func TestSession_RetryBudgetExhaustedFails(t *testing.T) {
	h := newHarness(t, testConfig())
	h.bridge.failNext(2, 3)

	id := h.startSession(t, testRoute(t, 4, time.Millisecond))
	rec := h.wait(t, id, 2*time.Second)

	if rec.Status != types.StateFailed {
		t.Fatalf("expected FAILED, got %s", rec.Status)
	}
	if rec.WaypointsSent != 2 {
		t.Fatalf("expected partial progress of 2 waypoints, got %d", rec.WaypointsSent)
	}
	if !strings.Contains(rec.Error, types.ErrRetriesExhausted.Error()) {
		t.Fatalf("error text must be recorded, got %q", rec.Error)
	}

	ticks, _ := h.store.Ticks(context.Background(), id)
	if len(ticks) != 2 {
		t.Fatalf("partial progress must be flushed, got %d ticks", len(ticks))
	}

	recs, _ := h.store.Query(context.Background(), models.HistoryFilter{Status: types.StateFailed})
	if len(recs) != 1 || !recs[0].Finalized {
		t.Fatalf("failed session must be finalized: %+v", recs)
	}
}

func TestSession_StopAbortsWithinCallTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.CallTimeout = 2 * time.Second
	h := newHarness(t, cfg)

	id := h.startSession(t, testRoute(t, 5, time.Millisecond))
	waitFor(t, time.Second, func() bool {
		st, _ := h.svc.Status(id)
		return st.WaypointsSent >= 1
	})

	h.bridge.mu.Lock()
	h.bridge.hang = true
	h.bridge.mu.Unlock()
	time.Sleep(20 * time.Millisecond)

	stopped := time.Now()
	if err := h.svc.Stop(context.Background(), id); err != nil {
		t.Fatalf("stop: %v", err)
	}
	rec := h.wait(t, id, cfg.CallTimeout)

	if time.Since(stopped) > cfg.CallTimeout {
		t.Fatalf("stop not observed within call timeout")
	}
	if rec.Status != types.StateAborted {
		t.Fatalf("expected ABORTED, got %s", rec.Status)
	}

	ticks, _ := h.store.Ticks(context.Background(), id)
	if len(ticks) != rec.WaypointsSent {
		t.Fatalf("ticks beyond abort point: %d ticks, %d sent", len(ticks), rec.WaypointsSent)
	}

	if err := h.svc.Stop(context.Background(), id); !errors.Is(err, types.ErrInvalidTransition) {
		t.Fatalf("second stop must be rejected, got %v", err)
	}
}

func TestSession_ParentContextCancelAborts(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())

	handle, _ := h.svc.Connect(ctx, "emulator-5554")
	id, _ := h.svc.CreateSession(ctx, testRoute(t, 3, time.Hour), handle)
	if err := h.svc.Start(ctx, id); err != nil {
		t.Fatal(err)
	}

	cancel()
	rec := h.wait(t, id, time.Second)
	if rec.Status != types.StateAborted {
		t.Fatalf("expected ABORTED on parent cancel, got %s", rec.Status)
	}
}

func TestSession_PauseResumeFastForwards(t *testing.T) {
	h := newHarness(t, testConfig())
	rt := testRoute(t, 10, 20*time.Millisecond)
	ctx := context.Background()

	id := h.startSession(t, rt)
	waitFor(t, time.Second, func() bool {
		st, _ := h.svc.Status(id)
		return st.WaypointsSent >= 1
	})

	if err := h.svc.Pause(ctx, id); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if st, _ := h.svc.Status(id); st.State != types.StatePaused {
		t.Fatalf("expected PAUSED, got %s", st.State)
	}
	if err := h.svc.Pause(ctx, id); !errors.Is(err, types.ErrInvalidTransition) {
		t.Fatalf("double pause must fail, got %v", err)
	}

	time.Sleep(120 * time.Millisecond)
	if err := h.svc.Resume(ctx, id); err != nil {
		t.Fatalf("resume: %v", err)
	}

	rec := h.wait(t, id, 2*time.Second)
	if rec.Status != types.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", rec.Status, rec.Error)
	}
	if rec.WaypointsSkipped == 0 {
		t.Fatalf("expected overdue waypoints to be skipped")
	}
	if rec.WaypointsSent+rec.WaypointsSkipped != rt.Len() {
		t.Fatalf("every waypoint must be sent or skipped: %+v", rec)
	}

	evs := h.events.types()
	if !slices.Contains(evs, types.EventSessionPaused) || !slices.Contains(evs, types.EventSessionResumed) {
		t.Fatalf("pause/resume events missing: %v", evs)
	}
}

func TestSession_AutoPauseWhenAppBackgrounded(t *testing.T) {
	cfg := testConfig()
	cfg.ProbeInterval = 5 * time.Millisecond
	h := newHarness(t, cfg)

	id := h.startSession(t, testRoute(t, 20, 15*time.Millisecond))

	h.bridge.background.Store(true)
	waitFor(t, time.Second, func() bool {
		st, _ := h.svc.Status(id)
		return st.State == types.StatePaused && st.AutoPaused
	})

	h.bridge.background.Store(false)
	waitFor(t, time.Second, func() bool {
		st, _ := h.svc.Status(id)
		return st.State == types.StateRunning || st.State.IsTerminal()
	})

	rec := h.wait(t, id, 2*time.Second)
	if rec.Status != types.StateCompleted {
		t.Fatalf("expected COMPLETED after auto-resume, got %s (%s)", rec.Status, rec.Error)
	}
}

func TestSession_DisconnectFails(t *testing.T) {
	cfg := testConfig()
	cfg.ProbeInterval = 5 * time.Millisecond
	h := newHarness(t, cfg)

	id := h.startSession(t, testRoute(t, 5, 50*time.Millisecond))
	h.bridge.disconnected.Store(true)

	rec := h.wait(t, id, 2*time.Second)
	if rec.Status != types.StateFailed {
		t.Fatalf("expected FAILED on disconnect, got %s", rec.Status)
	}
	if !strings.Contains(rec.Error, types.ErrDeviceUnavailable.Error()) {
		t.Fatalf("unexpected error text %q", rec.Error)
	}
}

func TestStart_DeviceNotConnectedStaysPending(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	handle, _ := h.svc.Connect(ctx, "emulator-5554")
	id, _ := h.svc.CreateSession(ctx, testRoute(t, 3, time.Millisecond), handle)

	h.bridge.disconnected.Store(true)
	if err := h.svc.Start(ctx, id); !errors.Is(err, types.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if st, _ := h.svc.Status(id); st.State != types.StatePending {
		t.Fatalf("session must stay PENDING, got %s", st.State)
	}
	if len(h.bridge.sent()) != 0 {
		t.Fatalf("no fixes may be sent before start")
	}

	h.bridge.disconnected.Store(false)
	if err := h.svc.Start(ctx, id); err != nil {
		t.Fatalf("start after reconnect: %v", err)
	}
	h.wait(t, id, 2*time.Second)
}

func TestStart_LeaseHeld(t *testing.T) {
	lease := &fakeLease{holder: map[string]string{"emulator-5554": "other-process"}}
	h := newHarness(t, testConfig(), WithLease(lease))
	ctx := context.Background()

	handle, _ := h.svc.Connect(ctx, "emulator-5554")
	id, _ := h.svc.CreateSession(ctx, testRoute(t, 3, time.Millisecond), handle)

	err := h.svc.Start(ctx, id)
	if !errors.Is(err, types.ErrDeviceUnavailable) || !errors.Is(err, types.ErrDeviceBusy) {
		t.Fatalf("expected busy device, got %v", err)
	}

	delete(lease.holder, "emulator-5554")
	if err := h.svc.Start(ctx, id); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.wait(t, id, 2*time.Second)

	if _, held := lease.holder["emulator-5554"]; held {
		t.Fatalf("lease must be released on terminal state")
	}
}

func TestStop_PendingSessionIsFinalized(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	handle, _ := h.svc.Connect(ctx, "emulator-5554")
	id, _ := h.svc.CreateSession(ctx, testRoute(t, 3, time.Millisecond), handle)

	if err := h.svc.Stop(ctx, id); err != nil {
		t.Fatalf("stop: %v", err)
	}
	rec := h.wait(t, id, time.Second)
	if rec.Status != types.StateAborted || !rec.Finalized {
		t.Fatalf("expected finalized ABORTED record, got %+v", rec)
	}
	if n := h.bridge.disconnects.Load(); n != 1 {
		t.Fatalf("pending session must release the device once, got %d disconnects", n)
	}
	if err := h.svc.Start(ctx, id); !errors.Is(err, types.ErrInvalidTransition) {
		t.Fatalf("start after stop must fail, got %v", err)
	}
}

func TestStopAll_ReleasesDeviceAfterFailedStart(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	handle, _ := h.svc.Connect(ctx, "emulator-5554")
	id, _ := h.svc.CreateSession(ctx, testRoute(t, 3, time.Millisecond), handle)

	h.bridge.disconnected.Store(true)
	if err := h.svc.Start(ctx, id); !errors.Is(err, types.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}

	h.svc.StopAll(ctx)
	rec := h.wait(t, id, time.Second)
	if rec.Status != types.StateAborted {
		t.Fatalf("expected ABORTED, got %s", rec.Status)
	}
	if n := h.bridge.disconnects.Load(); n != 1 {
		t.Fatalf("expected one disconnect, got %d", n)
	}
}

func TestService_Disconnect(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	handle, _ := h.svc.Connect(ctx, "emulator-5554")
	if err := h.svc.Disconnect(ctx, handle); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if n := h.bridge.disconnects.Load(); n != 1 {
		t.Fatalf("expected one disconnect, got %d", n)
	}
}

func TestWorkout_WrapsCompletedRun(t *testing.T) {
	w := &fakeWorkout{}
	h := newHarness(t, testConfig(), WithWorkout(w))
	w.bridge = h.bridge

	id := h.startSession(t, testRoute(t, 3, 5*time.Millisecond))
	rec := h.wait(t, id, 2*time.Second)
	if rec.Status != types.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", rec.Status, rec.Error)
	}

	starts, finishes := w.counts()
	if starts != 1 || finishes != 1 {
		t.Fatalf("expected one start and one finish, got %d/%d", starts, finishes)
	}
	if w.fixesAtStart != 0 {
		t.Fatalf("exercise must open before the first fix, %d fixes were sent", w.fixesAtStart)
	}
	if w.disconnectsAtFinish != 0 {
		t.Fatalf("exercise must close before the device is released")
	}
}

func TestWorkout_SkippedWhenDeviceFails(t *testing.T) {
	cfg := testConfig()
	cfg.CallTimeout = 5 * time.Millisecond

	w := &fakeWorkout{}
	h := newHarness(t, cfg, WithWorkout(w))
	w.bridge = h.bridge
	h.bridge.hang = true

	id := h.startSession(t, testRoute(t, 3, time.Millisecond))
	rec := h.wait(t, id, 2*time.Second)
	if rec.Status != types.StateFailed {
		t.Fatalf("expected FAILED, got %s", rec.Status)
	}
	if _, finishes := w.counts(); finishes != 0 {
		t.Fatalf("no taps expected on a failed device")
	}
}

func TestWorkout_StartFailureKeepsPending(t *testing.T) {
	lease := &fakeLease{}
	w := &fakeWorkout{startErr: errors.New("tap failed")}
	h := newHarness(t, testConfig(), WithWorkout(w), WithLease(lease))
	w.bridge = h.bridge
	ctx := context.Background()

	handle, _ := h.svc.Connect(ctx, "emulator-5554")
	id, _ := h.svc.CreateSession(ctx, testRoute(t, 3, time.Millisecond), handle)

	if err := h.svc.Start(ctx, id); !errors.Is(err, types.ErrDeviceCommand) {
		t.Fatalf("expected ErrDeviceCommand, got %v", err)
	}
	if st, _ := h.svc.Status(id); st.State != types.StatePending {
		t.Fatalf("session must stay PENDING, got %s", st.State)
	}
	if len(h.bridge.sent()) != 0 {
		t.Fatalf("no fixes may be sent")
	}
	if _, held := lease.holder["emulator-5554"]; held {
		t.Fatalf("lease must be released when the exercise cannot start")
	}
}

func TestCreateSession_Validation(t *testing.T) {
	h := newHarness(t, testConfig(), WithAuthenticator(fakeAuth{}))
	ctx := context.Background()
	handle, _ := h.svc.Connect(ctx, "emulator-5554")

	if _, err := h.svc.CreateSession(ctx, models.Route{}, handle); !errors.Is(err, types.ErrInvalidRoute) {
		t.Fatalf("expected ErrInvalidRoute, got %v", err)
	}
	if _, err := h.svc.CreateSession(ctx, testRoute(t, 3, time.Second), models.DeviceHandle{}); !errors.Is(err, types.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable for empty handle, got %v", err)
	}
	if _, err := h.svc.CreateSession(ctx, testRoute(t, 3, time.Second), handle); !errors.Is(err, types.ErrAuth) {
		t.Fatalf("expected ErrAuth before login, got %v", err)
	}

	if err := h.svc.Login(ctx, handle, models.Credentials{Username: "u2021", Password: "secret"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := h.svc.CreateSession(ctx, testRoute(t, 3, time.Second), handle); err != nil {
		t.Fatalf("create after login: %v", err)
	}
}

func TestLogin_Failure(t *testing.T) {
	h := newHarness(t, testConfig(), WithAuthenticator(fakeAuth{err: errors.New("wrong password")}))
	ctx := context.Background()
	handle, _ := h.svc.Connect(ctx, "emulator-5554")

	if err := h.svc.Login(ctx, handle, models.Credentials{Username: "u", Password: "p"}); !errors.Is(err, types.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if err := h.svc.Login(ctx, handle, models.Credentials{}); !errors.Is(err, types.ErrAuth) {
		t.Fatalf("expected ErrAuth for empty credentials, got %v", err)
	}
}

func TestSession_StartAddress(t *testing.T) {
	h := newHarness(t, testConfig(), WithGeoCoder(fakeGeo{}))
	id := h.startSession(t, testRoute(t, 2, time.Millisecond))

	rec := h.wait(t, id, time.Second)
	if rec.StartAddress != "Luoyu Road 1037" {
		t.Fatalf("start address not recorded: %q", rec.StartAddress)
	}

	h2 := newHarness(t, testConfig(), WithGeoCoder(fakeGeo{fail: true}))
	id2 := h2.startSession(t, testRoute(t, 2, time.Millisecond))
	if rec := h2.wait(t, id2, time.Second); rec.Status != types.StateCompleted {
		t.Fatalf("geocoder failure must not block the run, got %s", rec.Status)
	}
}

func TestUnknownSession(t *testing.T) {
	h := newHarness(t, testConfig())
	if _, err := h.svc.Status("missing"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := h.svc.Pause(context.Background(), "missing"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRecover_FinalizesOrphans(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	start := time.Now().Add(-time.Hour)

	_ = h.store.Begin(ctx, models.HistoryRecord{SessionID: "orphan", RouteID: "r", StartedAt: start, Status: types.StateRunning, WaypointsTotal: 10})
	_ = h.store.AppendTicks(ctx, "orphan", []models.Tick{
		{SessionID: "orphan", Index: 0, Latitude: 30.51, Longitude: 114.41, SentAt: start},
		{SessionID: "orphan", Index: 3, Latitude: 30.52, Longitude: 114.41, SentAt: start.Add(time.Minute)},
	})

	n, err := h.svc.Recover(ctx)
	if err != nil || n != 1 {
		t.Fatalf("recover: n=%d err=%v", n, err)
	}

	recs, _ := h.store.Query(ctx, models.HistoryFilter{})
	rec := recs[0]
	if rec.Status != types.StateAborted || !rec.Finalized {
		t.Fatalf("orphan must be ABORTED: %+v", rec)
	}
	if rec.WaypointsSent != 2 || rec.WaypointsSkipped != 2 {
		t.Fatalf("counts must come from ticks: %+v", rec)
	}
	if rec.DistanceCovered < 1100 || rec.DistanceCovered > 1125 {
		t.Fatalf("distance must come from ticks: %.1f", rec.DistanceCovered)
	}
	if !rec.EndedAt.Equal(start.Add(time.Minute)) {
		t.Fatalf("ended at must be last tick time: %s", rec.EndedAt)
	}

	if n, _ := h.svc.Recover(ctx); n != 0 {
		t.Fatalf("second recover must be a no-op, got %d", n)
	}
}

func TestEndToEnd_GeneratedRoute(t *testing.T) {
	seed, err := models.NewRoute("seed", "campus", []models.Waypoint{
		{Latitude: 30.51, Longitude: 114.41},
		{Latitude: 30.52, Longitude: 114.42, Offset: 600 * time.Second},
	})
	if err != nil {
		t.Fatal(err)
	}

	// 300s compressed to 300ms, same waypoint layout
	gen := route.NewGenerator(route.Config{StepMeters: 10, CoordJitter: route.DefaultCoordJitter, TimeJitter: route.DefaultTimeJitter}, logger.NewNop())
	generated, err := gen.Generate(context.Background(), seed, 1000, 300*time.Millisecond, 42)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if generated.Len() != 101 {
		t.Fatalf("expected 101 waypoints, got %d", generated.Len())
	}

	h := newHarness(t, testConfig())
	id := h.startSession(t, generated)
	rec := h.wait(t, id, 5*time.Second)

	if rec.Status != types.StateCompleted || rec.WaypointsSent != generated.Len() {
		t.Fatalf("expected all %d waypoints sent, got %+v", generated.Len(), rec)
	}
	sent := h.bridge.sent()
	if sent[0] != (fix{30.51, 114.41}) || sent[len(sent)-1] != (fix{30.52, 114.42}) {
		t.Fatalf("endpoints changed: first %+v last %+v", sent[0], sent[len(sent)-1])
	}
}
