package timeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/quotereel/internal/reel"
)

// FrameFunc renders and emits frame f. Returning more=false ends the loop
// early, e.g. when a video source reaches end of stream.
type FrameFunc func(ctx context.Context, f int) (more bool, err error)

// Loop is the paced generation loop.
type Loop struct {
	Total    int
	Interval time.Duration // defaults to reel.FrameInterval
	Clock    Clock
	Frame    FrameFunc
	Progress func(pct int)
	// Watchdog, when set, is kicked around every frame step.
	Watchdog *Watchdog
	Logger   zerolog.Logger
}

// Run emits frames 0..Total-1 strictly in order, sleeping Interval after each
// one. Cancellation is observed at every sleep; the context's cause is
// returned. It reports how many frames were emitted.
func (l Loop) Run(ctx context.Context) (int, error) {
	if l.Total <= 0 {
		return 0, fmt.Errorf("nothing to render: total frames %d", l.Total)
	}
	if l.Frame == nil {
		return 0, fmt.Errorf("no frame function")
	}
	clock := l.Clock
	if clock == nil {
		clock = RealClock{}
	}
	interval := l.Interval
	if interval <= 0 {
		interval = reel.FrameInterval
	}

	start := clock.Now()
	emitted := 0
	for f := 0; f < l.Total; f++ {
		if err := ctx.Err(); err != nil {
			return emitted, context.Cause(ctx)
		}

		l.Watchdog.Kick()
		more, err := l.Frame(ctx, f)
		l.Watchdog.Kick()
		if err != nil {
			if ctx.Err() != nil {
				return emitted, context.Cause(ctx)
			}
			return emitted, fmt.Errorf("frame %d: %w", f, err)
		}
		if !more {
			l.Logger.Debug().Int("frame", f).Msg("source ended early")
			break
		}
		emitted++

		if l.Progress != nil {
			l.Progress(f * 100 / l.Total)
		}

		if err := clock.Sleep(ctx, interval); err != nil {
			return emitted, err
		}
	}

	l.Logger.Debug().
		Int("frames", emitted).
		Dur("elapsed", clock.Now().Sub(start)).
		Msg("generation loop finished")
	return emitted, nil
}

// Preview cycles an index over count entries every interval, calling onIndex
// with each new value, until ctx is done.
func Preview(ctx context.Context, count int, interval time.Duration, clock Clock, onIndex func(int)) error {
	if count <= 0 || interval <= 0 {
		return fmt.Errorf("invalid preview: count %d, interval %v", count, interval)
	}
	if clock == nil {
		clock = RealClock{}
	}

	idx := 0
	for {
		if err := clock.Sleep(ctx, interval); err != nil {
			return nil
		}
		idx = (idx + 1) % count
		onIndex(idx)
	}
}

// Watchdog cancels a job when it is not kicked within its timeout.
type Watchdog struct {
	timeout time.Duration
	cancel  context.CancelCauseFunc

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewWatchdog arms a watchdog that calls cancel(reel.ErrStalled) after
// timeout without a Kick. A zero timeout disables it and returns nil.
func NewWatchdog(timeout time.Duration, cancel context.CancelCauseFunc) *Watchdog {
	if timeout <= 0 {
		return nil
	}
	w := &Watchdog{timeout: timeout, cancel: cancel}
	w.timer = time.AfterFunc(timeout, w.fire)
	return w
}

func (w *Watchdog) fire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.cancel(reel.ErrStalled)
}

// Kick postpones the deadline. Safe on a nil watchdog.
func (w *Watchdog) Kick() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.timer.Reset(w.timeout)
	}
}

// Stop disarms the watchdog. Safe on a nil watchdog.
func (w *Watchdog) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.timer.Stop()
}
