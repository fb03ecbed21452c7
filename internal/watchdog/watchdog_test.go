package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestArmCancelsAfterTimeout(t *testing.T) {
	w := New()
	defer w.Stop()

	ctx, cancel := w.Arm(context.Background(), 1)
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(5 * TickInterval):
		t.Fatal("context was not cancelled within 5 ticks")
	}
}

func TestDisarmPreventsCancellation(t *testing.T) {
	w := New()
	defer w.Stop()

	ctx, cancel := w.Arm(context.Background(), 1)
	defer cancel()
	w.Disarm()

	select {
	case <-ctx.Done():
		t.Fatal("context was cancelled after Disarm")
	case <-time.After(3 * TickInterval):
	}
}

func TestZeroTimeoutNeverCancels(t *testing.T) {
	w := New()
	defer w.Stop()

	ctx, cancel := w.Arm(context.Background(), 0)
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatal("context was cancelled despite timeoutTicks == 0")
	case <-time.After(3 * TickInterval):
	}
}

func TestStopIsIdempotent(t *testing.T) {
	w := New()
	require.NotPanics(t, func() {
		w.Stop()
		w.Stop()
	})
}
