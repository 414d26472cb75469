//go:build linux

package control

import (
	"testing"
	"time"

	"stressforge/internal/engine/shm"
)

func newTestContext(t *testing.T, deadline time.Time, maxOps uint64) *RunContext {
	t.Helper()
	region, err := shm.Alloc(2)
	if err != nil {
		t.Fatalf("alloc region: %v", err)
	}
	t.Cleanup(func() { _ = region.Close() })
	ctx, err := NewRunContext(region, 0, deadline, maxOps, 4096)
	if err != nil {
		t.Fatalf("new run context: %v", err)
	}
	return ctx
}

func TestShouldContinueStopsAtMaxOps(t *testing.T) {
	ctx := newTestContext(t, time.Time{}, 1000)

	ops := uint64(0)
	for ctx.ShouldContinue() {
		ctx.BogoAdd(DefaultBatch)
		ops += DefaultBatch
		if ops > 1000+DefaultBatch {
			t.Fatalf("overshoot beyond one batch: %d ops", ops)
		}
	}
	got := ctx.Ops()
	if got < 1000 || got >= 1000+DefaultBatch {
		t.Fatalf("final ops = %d, want in [1000, %d)", got, 1000+DefaultBatch)
	}
}

func TestShouldContinueStopsAtDeadline(t *testing.T) {
	ctx := newTestContext(t, time.Now().Add(30*time.Millisecond), 0)

	start := time.Now()
	for ctx.ShouldContinue() {
		ctx.BogoInc()
		if time.Since(start) > 2*time.Second {
			t.Fatalf("loop did not stop after deadline")
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("stopped %v after start, grace bound is 1s", elapsed)
	}
}

func TestShouldContinueStopsOnFlagClear(t *testing.T) {
	ctx := newTestContext(t, time.Time{}, 0)

	if !ctx.ShouldContinue() {
		t.Fatalf("fresh context should continue")
	}
	ctx.Region().StopAll()
	if ctx.ShouldContinue() {
		t.Fatalf("cleared continue flag not observed")
	}
}

func TestCounterVisibleToParentView(t *testing.T) {
	ctx := newTestContext(t, time.Time{}, 0)
	ctx.BogoAdd(7)
	ctx.BogoInc()
	if got := ctx.Region().Ops(0); got != 8 {
		t.Fatalf("region ops = %d, want 8", got)
	}
	if ctx.Region().Ops(1) != 0 {
		t.Fatalf("sibling counter dirtied")
	}
}

func TestValidate(t *testing.T) {
	ctx := newTestContext(t, time.Time{}, 0)
	if err := ctx.Validate(); err != nil {
		t.Fatalf("valid context rejected: %v", err)
	}
	bad := &RunContext{}
	if err := bad.Validate(); err == nil {
		t.Fatalf("uninitialized context accepted")
	}
}
