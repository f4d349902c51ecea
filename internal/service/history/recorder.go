package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
	"github.com/Temutjin2k/hust-run/pkg/metrics"
)

const (
	DefaultFlushEvery    = 20
	DefaultFlushInterval = 5 * time.Second

	flushTimeout = 10 * time.Second
)

type TickWriter interface {
	AppendTicks(ctx context.Context, sessionID string, ticks []models.Tick) error
}

type RecorderConfig struct {
	FlushEvery    int
	FlushInterval time.Duration
}

// Recorder buffers ticks of one session and writes them in batches from its
// own goroutine, so the session loop never waits on storage.
type Recorder struct {
	w         TickWriter
	sessionID string
	every     int
	interval  time.Duration
	l         logger.Logger

	mu      sync.Mutex
	buf     []models.Tick
	lastErr error

	kick      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewRecorder starts the flush goroutine. ctx carries logging fields only;
// the recorder runs until Close.
func NewRecorder(ctx context.Context, w TickWriter, sessionID string, cfg RecorderConfig, l logger.Logger) *Recorder {
	r := &Recorder{
		w:         w,
		sessionID: sessionID,
		every:     cfg.FlushEvery,
		interval:  cfg.FlushInterval,
		l:         l,
		kick:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if r.every <= 0 {
		r.every = DefaultFlushEvery
	}
	if r.interval <= 0 {
		r.interval = DefaultFlushInterval
	}

	go r.run(wrap.WithAction(context.WithoutCancel(ctx), types.ActionHistoryFlush))

	return r
}

// Append buffers a tick. It never blocks on storage.
func (r *Recorder) Append(t models.Tick) {
	r.mu.Lock()
	r.buf = append(r.buf, t)
	full := len(r.buf) >= r.every
	r.mu.Unlock()

	if full {
		select {
		case r.kick <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of buffered, unwritten ticks.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Close stops the goroutine after a final flush and returns the error of the
// last failed write, if the buffer could not be drained.
func (r *Recorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() { close(r.stop) })

	select {
	case <-r.done:
	case <-ctx.Done():
		return fmt.Errorf("history recorder close: %w", ctx.Err())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) > 0 {
		return fmt.Errorf("history recorder: %d ticks not written: %w", len(r.buf), r.lastErr)
	}
	return nil
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.kick:
			r.flush(ctx)
		case <-ticker.C:
			r.flush(ctx)
		case <-r.stop:
			r.flush(ctx)
			return
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	r.mu.Lock()
	if len(r.buf) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.buf
	r.buf = nil
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	err := r.w.AppendTicks(ctx, r.sessionID, batch)
	metrics.RecordHistoryFlush(err)
	if err == nil {
		r.l.Debug(ctx, "ticks flushed", "count", len(batch))
		return
	}

	r.l.Error(ctx, "failed to flush ticks", err, "count", len(batch))

	// keep order: failed batch goes before anything appended meanwhile
	r.mu.Lock()
	r.buf = append(batch, r.buf...)
	r.lastErr = err
	r.mu.Unlock()
}
