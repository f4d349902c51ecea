package adb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Temutjin2k/hust-run/pkg/backoff"
)

// Point is a screen coordinate in pixels.
type Point struct {
	X, Y int
}

// ParsePoint reads "x,y".
func ParsePoint(s string) (Point, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return Point{}, fmt.Errorf("point %q: want x,y", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	if x < 0 || y < 0 {
		return Point{}, fmt.Errorf("point %q: negative coordinate", s)
	}
	return Point{X: x, Y: y}, nil
}

// step is one shell command of a UI script.
type step struct {
	name  string
	args  []string
	delay time.Duration // wait after the command; zero uses the script delay
}

// replay runs steps in order on the device shell, sleeping after each one.
// The returned error names the failing step.
func replay(ctx context.Context, adb Runner, serial string, delay time.Duration, steps []step) error {
	for _, st := range steps {
		if _, err := adb.Run(ctx, append([]string{"-s", serial, "shell"}, st.args...)...); err != nil {
			return fmt.Errorf("%s: %w", st.name, err)
		}
		wait := st.delay
		if wait == 0 {
			wait = delay
		}
		if err := backoff.Sleep(ctx, wait); err != nil {
			return err
		}
	}
	return nil
}

func tap(p Point) []string {
	return []string{"input", "tap", strconv.Itoa(p.X), strconv.Itoa(p.Y)}
}
