// Package watchdog implements the per-VM-instance preemption mechanism
// spec.md §4.6 describes: a background ticker that advances an epoch
// counter roughly every 17ms, and a per-call deadline armed before each
// upd/snd invocation. When the epoch passes the armed deadline before the
// call disarms it, the watchdog cancels that call's context; paired with
// wazero's wazero.NewRuntimeConfig().WithCloseOnContextDone(true) (set up
// by internal/sandbox), a cancelled context aborts the currently executing
// guest function the same way the original Rust implementation's
// wasmtime::Store::set_epoch_deadline traps it (see SPEC_FULL.md §3).
package watchdog

import (
	"context"
	"sync"
	"time"
)

// TickInterval is the epoch tick period spec.md §4.6 and §5 both specify.
const TickInterval = 17 * time.Millisecond

// Watchdog is a single background thread per VM instance: "running" while
// its ticker goroutine is alive, "stopped" once Stop fires. It holds at
// most one armed deadline at a time, matching the frame scheduler and
// audio engine's cooperative, non-reentrant call pattern (spec.md §4.4:
// "no re-entrancy into upd is possible").
type Watchdog struct {
	mu       sync.Mutex
	epoch    uint64
	deadline uint64 // 0 means disabled
	cancel   context.CancelFunc

	stop    chan struct{}
	stopped bool
}

// New starts a Watchdog's ticker goroutine and returns it running.
func New() *Watchdog {
	w := &Watchdog{stop: make(chan struct{})}
	go w.run()
	return w
}

func (w *Watchdog) run() {
	t := time.NewTicker(TickInterval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			w.tick()
		}
	}
}

func (w *Watchdog) tick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.epoch++
	if w.deadline != 0 && w.epoch >= w.deadline && w.cancel != nil {
		w.cancel()
		// Idempotent: the call site's own Disarm (or the next Arm) clears
		// this, but dropping the reference here means a second tick before
		// that happens can't double-cancel a reused context.
		w.cancel = nil
	}
}

// Arm derives a child of parent that the watchdog will cancel if
// timeoutTicks epochs pass before Disarm is called. timeoutTicks == 0
// disables the deadline (spec.md §4.6: "absence of a timeout means
// set_epoch_deadline(0)... the host passes deadline = u64::MAX" — here,
// simply never arming a cancellation).
func (w *Watchdog) Arm(parent context.Context, timeoutTicks uint64) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	w.mu.Lock()
	if timeoutTicks == 0 {
		w.deadline = 0
		w.cancel = nil
	} else {
		w.deadline = w.epoch + timeoutTicks
		w.cancel = cancel
	}
	w.mu.Unlock()
	return ctx, cancel
}

// Disarm clears any armed deadline, called after a guarded call returns
// normally so a slow-but-successful call doesn't get cancelled by a tick
// that lands just after it finished.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	w.deadline = 0
	w.cancel = nil
	w.mu.Unlock()
}

// Stop signals the ticker goroutine to exit. Safe to call more than once
// and safe to call while a call is in flight — ticking stops but any
// already-armed deadline simply never fires, since the instance is being
// torn down anyway (spec.md §5: "the watchdog is guaranteed to stop even
// if the audio thread is still draining").
func (w *Watchdog) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()
	close(w.stop)
}
