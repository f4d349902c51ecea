package adb

import (
	"context"
	"fmt"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

// WorkoutLayout holds the exercise screen coordinates of the app.
type WorkoutLayout struct {
	StartButton   Point
	ActivityType  Point
	ConfirmStart  Point
	FinishButton  Point
	ConfirmFinish Point
	CloseResults  Point
}

func DefaultWorkoutLayout() WorkoutLayout {
	return WorkoutLayout{
		StartButton:   Point{521, 950},
		ActivityType:  Point{550, 1860},
		ConfirmStart:  Point{500, 371},
		FinishButton:  Point{824, 1607},
		ConfirmFinish: Point{548, 1455},
		CloseResults:  Point{540, 1800},
	}
}

type WorkoutConfig struct {
	Package      string
	MainActivity string // launched before the exercise screen when set
	Layout       WorkoutLayout
	StepDelay    time.Duration
	SettleDelay  time.Duration // wait for the app to upload the finished record
}

// Workout opens and closes the exercise record in the app.
type Workout struct {
	adb Runner
	cfg WorkoutConfig
	l   logger.Logger
}

func NewWorkout(adb Runner, cfg WorkoutConfig, l logger.Logger) *Workout {
	if cfg.Layout == (WorkoutLayout{}) {
		cfg.Layout = DefaultWorkoutLayout()
	}
	if cfg.StepDelay <= 0 {
		cfg.StepDelay = 2 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 5 * time.Second
	}
	return &Workout{adb: adb, cfg: cfg, l: l}
}

// Start brings the app to the front and starts an outdoor run. The confirm
// dialog is tapped twice: the first tap may only dismiss a location notice.
func (w *Workout) Start(ctx context.Context, h models.DeviceHandle) error {
	const op = "Workout.Start"
	ctx = wrap.WithDeviceID(wrap.WithAction(ctx, types.ActionWorkoutStart), h.DeviceID)

	var steps []step
	if w.cfg.MainActivity != "" {
		steps = append(steps, step{
			name: "launch app",
			args: []string{"am", "start", "-n", w.cfg.Package + "/" + w.cfg.MainActivity},
		})
	}
	steps = append(steps,
		step{name: "open exercise", args: tap(w.cfg.Layout.StartButton)},
		step{name: "choose activity", args: tap(w.cfg.Layout.ActivityType)},
		step{name: "confirm start", args: tap(w.cfg.Layout.ConfirmStart)},
		step{name: "confirm start again", args: tap(w.cfg.Layout.ConfirmStart)},
	)

	if err := replay(ctx, w.adb, h.Serial, w.cfg.StepDelay, steps); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w: %w", op, types.ErrDeviceCommand, err))
	}

	w.l.Info(ctx, "exercise started in app")
	return nil
}

// Finish ends the exercise and closes the results page.
func (w *Workout) Finish(ctx context.Context, h models.DeviceHandle) error {
	const op = "Workout.Finish"
	ctx = wrap.WithDeviceID(wrap.WithAction(ctx, types.ActionWorkoutFinish), h.DeviceID)

	steps := []step{
		{name: "finish exercise", args: tap(w.cfg.Layout.FinishButton)},
		{name: "confirm finish", args: tap(w.cfg.Layout.ConfirmFinish), delay: w.cfg.SettleDelay},
		{name: "close results", args: tap(w.cfg.Layout.CloseResults)},
	}
	if err := replay(ctx, w.adb, h.Serial, w.cfg.StepDelay, steps); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w: %w", op, types.ErrDeviceCommand, err))
	}

	w.l.Info(ctx, "exercise finished in app")
	return nil
}
