package dryrun

import (
	"context"
	"fmt"
	"sync"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

// Workout tracks which devices have an exercise open instead of tapping.
type Workout struct {
	l logger.Logger

	mu   sync.Mutex
	open map[string]bool
}

func NewWorkout(l logger.Logger) *Workout {
	return &Workout{l: l, open: make(map[string]bool)}
}

func (w *Workout) Start(ctx context.Context, h models.DeviceHandle) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.open[h.DeviceID] {
		return fmt.Errorf("%w: exercise already open on %s", types.ErrDeviceCommand, h.DeviceID)
	}
	w.open[h.DeviceID] = true
	w.l.Info(wrap.WithDeviceID(wrap.WithAction(ctx, types.ActionWorkoutStart), h.DeviceID), "dry-run exercise started")
	return nil
}

func (w *Workout) Finish(ctx context.Context, h models.DeviceHandle) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.open[h.DeviceID] {
		return fmt.Errorf("%w: no exercise open on %s", types.ErrDeviceCommand, h.DeviceID)
	}
	delete(w.open, h.DeviceID)
	w.l.Info(wrap.WithDeviceID(wrap.WithAction(ctx, types.ActionWorkoutFinish), h.DeviceID), "dry-run exercise finished")
	return nil
}

// Open reports whether an exercise is in progress on the device.
func (w *Workout) Open(deviceID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open[deviceID]
}
