package trampoline

import (
	"sync/atomic"
	"testing"
	"time"

	appErr "stressforge/pkg/errors"
)

func TestAttemptNormalPath(t *testing.T) {
	g := NewGuard("safe")
	ran := false
	if err := g.Attempt("fancy", func() { ran = true }); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if !ran {
		t.Fatalf("method body did not run")
	}
	if g.Disabled("fancy") {
		t.Fatalf("clean method was disabled")
	}
}

func TestAttemptTrapDisablesPermanently(t *testing.T) {
	g := NewGuard("safe")

	var data []byte
	err := g.Attempt("fancy", func() {
		_ = data[1] // runtime fault stands in for a hardware trap
	})
	if !appErr.Is(err, appErr.ProbeTrapped) {
		t.Fatalf("err = %v, want ProbeTrapped", err)
	}
	if !g.Disabled("fancy") {
		t.Fatalf("trapped method not disabled")
	}

	// Idempotence: the method stays disabled and is never re-run.
	err = g.Attempt("fancy", func() {
		t.Fatalf("disabled method body executed")
	})
	if !appErr.Is(err, appErr.MethodDisabled) {
		t.Fatalf("err = %v, want MethodDisabled", err)
	}
	if _, ok := g.DisableReason("fancy"); !ok {
		t.Fatalf("disable reason lost")
	}
}

func TestAttemptNonFaultPanicPropagates(t *testing.T) {
	g := NewGuard("safe")
	defer func() {
		if recover() == nil {
			t.Fatalf("non-fault panic swallowed")
		}
	}()
	_ = g.Attempt("fancy", func() { panic("payload bug") })
}

func TestSelectSubstitutesFallback(t *testing.T) {
	g := NewGuard("safe")

	if m, err := g.Select("fancy"); err != nil || m != "fancy" {
		t.Fatalf("Select(fancy) = %q, %v", m, err)
	}

	g.Disable("fancy", "trapped SIGILL")
	if m, err := g.Select("fancy"); err != nil || m != "safe" {
		t.Fatalf("Select after disable = %q, %v, want fallback", m, err)
	}

	g.Disable("safe", "trapped SIGILL")
	if _, err := g.Select("fancy"); !appErr.Is(err, appErr.FallbackDisabled) {
		t.Fatalf("err = %v, want FallbackDisabled", err)
	}
}

func TestWatchdogFiresAndRearms(t *testing.T) {
	wd := NewWatchdog(20 * time.Millisecond)

	var fires atomic.Int32
	wd.Arm(func() { fires.Add(1) })
	time.Sleep(80 * time.Millisecond)
	if !wd.Fired() {
		t.Fatalf("watchdog did not fire")
	}
	if fires.Load() != 1 {
		t.Fatalf("onFire ran %d times, want 1", fires.Load())
	}

	// Re-arming resets the fired flag; disarming prevents the trip.
	wd.Arm(func() { fires.Add(1) })
	if wd.Fired() {
		t.Fatalf("fired flag not reset by Arm")
	}
	wd.Disarm()
	time.Sleep(60 * time.Millisecond)
	if wd.Fired() || fires.Load() != 1 {
		t.Fatalf("disarmed watchdog fired")
	}
}

func TestTargetRegistry(t *testing.T) {
	ran := false
	RegisterTarget("guard-test-target", func() { ran = true })

	if err := RunTarget("guard-test-target"); err != nil {
		t.Fatalf("run target: %v", err)
	}
	if !ran {
		t.Fatalf("target body did not run")
	}
	if err := RunTarget("no-such-target"); !appErr.Is(err, appErr.NotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("duplicate target registration did not panic")
		}
	}()
	RegisterTarget("guard-test-target", func() {})
}
