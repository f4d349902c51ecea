package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Temutjin2k/hust-run/pkg/logger"
)

// waitDelay bounds how long a call waits for pipes held open by children of
// adb, such as the server forked by start-server.
const waitDelay = time.Second

// Runner executes one adb invocation and returns its trimmed stdout.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// ExecRunner runs the adb binary. The process is killed when ctx is done.
type ExecRunner struct {
	path string
	l    logger.Logger
}

func NewExecRunner(path string, l logger.Logger) *ExecRunner {
	if path == "" {
		path = "adb"
	}
	return &ExecRunner{path: path, l: l}
}

func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, r.path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	r.l.Debug(ctx, "adb command", "args", strings.Join(args, " "))

	// ErrWaitDelay means adb itself exited cleanly
	if err := cmd.Run(); err != nil && !errors.Is(err, exec.ErrWaitDelay) {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("adb %s: %w: %s", args[0], err, msg)
	}

	return strings.TrimSpace(stdout.String()), nil
}
