package adb

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// scriptedRunner answers adb invocations by prefix and records every call.
type scriptedRunner struct {
	mu      sync.Mutex
	answers map[string]func() (string, error)
	calls   []string
}

func newScripted() *scriptedRunner {
	return &scriptedRunner{answers: make(map[string]func() (string, error))}
}

func (r *scriptedRunner) on(prefix, out string, err error) {
	r.onFunc(prefix, func() (string, error) { return out, err })
}

func (r *scriptedRunner) onFunc(prefix string, fn func() (string, error)) {
	r.mu.Lock()
	r.answers[prefix] = fn
	r.mu.Unlock()
}

func (r *scriptedRunner) Run(ctx context.Context, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line := strings.Join(args, " ")

	r.mu.Lock()
	r.calls = append(r.calls, line)
	best := ""
	for prefix := range r.answers {
		if strings.HasPrefix(line, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	fn := r.answers[best]
	r.mu.Unlock()

	if fn == nil {
		return "", nil
	}
	return fn()
}

func (r *scriptedRunner) called(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

var errExit = errors.New("exit status 1")
