package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
)

type fix struct {
	Lat, Lon float64
}

// fakeBridge records fixes and fails or hangs on demand.
type fakeBridge struct {
	mu           sync.Mutex
	fixes        []fix
	failures     map[int]int // call number -> remaining failures
	calls        int
	hang         bool
	disconnected atomic.Bool
	background   atomic.Bool
	probeErr     error
	disconnects  atomic.Int32
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{failures: make(map[int]int)}
}

func (b *fakeBridge) Connect(_ context.Context, deviceID string) (models.DeviceHandle, error) {
	if deviceID == "" {
		return models.DeviceHandle{}, types.ErrDeviceUnavailable
	}
	return models.DeviceHandle{DeviceID: deviceID, Serial: deviceID, ConnectedAt: time.Now()}, nil
}

// failNext makes the fix with the given ordinal (0-based, counting only
// successful fixes) fail n times before it succeeds.
func (b *fakeBridge) failNext(ordinal, n int) {
	b.mu.Lock()
	b.failures[ordinal] = n
	b.mu.Unlock()
}

func (b *fakeBridge) SetMockLocation(ctx context.Context, _ models.DeviceHandle, lat, lon float64) error {
	b.mu.Lock()
	b.calls++
	hang := b.hang
	ordinal := len(b.fixes)
	if b.failures[ordinal] > 0 {
		b.failures[ordinal]--
		b.mu.Unlock()
		return types.ErrDeviceCommand
	}
	b.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}

	b.mu.Lock()
	b.fixes = append(b.fixes, fix{lat, lon})
	b.mu.Unlock()
	return nil
}

func (b *fakeBridge) ProbeStatus(context.Context, models.DeviceHandle) (models.DeviceStatus, error) {
	if b.probeErr != nil {
		return models.DeviceStatus{}, b.probeErr
	}
	return models.DeviceStatus{
		Connected:     !b.disconnected.Load(),
		AppForeground: !b.background.Load(),
	}, nil
}

func (b *fakeBridge) Disconnect(context.Context, models.DeviceHandle) error {
	b.disconnects.Add(1)
	return nil
}

func (b *fakeBridge) sent() []fix {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]fix, len(b.fixes))
	copy(out, b.fixes)
	return out
}

type fakeAuth struct {
	err error
}

func (a fakeAuth) Login(context.Context, models.DeviceHandle, models.Credentials) error {
	return a.err
}

type fakeLease struct {
	mu     sync.Mutex
	holder map[string]string
}

func (l *fakeLease) Acquire(_ context.Context, deviceID, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder == nil {
		l.holder = make(map[string]string)
	}
	if h, ok := l.holder[deviceID]; ok && h != owner {
		return false, nil
	}
	l.holder[deviceID] = owner
	return true, nil
}

func (l *fakeLease) Release(_ context.Context, deviceID, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder[deviceID] == owner {
		delete(l.holder, deviceID)
	}
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (e *eventLog) Notify(ev models.SessionEvent) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *eventLog) types() []types.SessionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.SessionEvent, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

var errGeo = errors.New("geocoder offline")

type fakeGeo struct{ fail bool }

func (g fakeGeo) GetAddress(context.Context, float64, float64) (string, error) {
	if g.fail {
		return "", errGeo
	}
	return "Luoyu Road 1037", nil
}

// fakeWorkout notes how far the run was when the app flows ran.
type fakeWorkout struct {
	bridge   *fakeBridge
	startErr error

	mu                  sync.Mutex
	starts, finishes    int
	fixesAtStart        int
	disconnectsAtFinish int32
}

func (w *fakeWorkout) Start(context.Context, models.DeviceHandle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.startErr != nil {
		return w.startErr
	}
	w.starts++
	w.fixesAtStart = len(w.bridge.sent())
	return nil
}

func (w *fakeWorkout) Finish(context.Context, models.DeviceHandle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finishes++
	w.disconnectsAtFinish = w.bridge.disconnects.Load()
	return nil
}

func (w *fakeWorkout) counts() (starts, finishes int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.starts, w.finishes
}
