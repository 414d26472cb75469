package report

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"stressforge/internal/engine/lifecycle"
	"stressforge/internal/engine/shm"
)

func TestAggregateArithmeticMean(t *testing.T) {
	samples := []shm.MetricSample{
		{Worker: 0, Label: "spawn latency ms", Value: 2, Kind: shm.AggArithmetic},
		{Worker: 1, Label: "spawn latency ms", Value: 4, Kind: shm.AggArithmetic},
		{Worker: 2, Label: "spawn latency ms", Value: 6, Kind: shm.AggArithmetic},
	}
	got := Aggregate(samples)
	if len(got) != 1 {
		t.Fatalf("got %d metrics, want 1", len(got))
	}
	if got[0].Mean != 4 {
		t.Errorf("mean = %g, want 4", got[0].Mean)
	}
	if got[0].Samples != 3 {
		t.Errorf("samples = %d, want 3", got[0].Samples)
	}
}

func TestAggregateHarmonicMean(t *testing.T) {
	// n / Σ(1/v): 3 / (1/2 + 1/4 + 1/8) = 24/7.
	samples := []shm.MetricSample{
		{Worker: 0, Label: "compression ratio", Value: 2, Kind: shm.AggHarmonic},
		{Worker: 1, Label: "compression ratio", Value: 4, Kind: shm.AggHarmonic},
		{Worker: 2, Label: "compression ratio", Value: 8, Kind: shm.AggHarmonic},
	}
	got := Aggregate(samples)
	want := 24.0 / 7.0
	if math.Abs(got[0].Mean-want) > 1e-12 {
		t.Errorf("harmonic mean = %g, want %g", got[0].Mean, want)
	}
}

func TestAggregateHarmonicZeroDominates(t *testing.T) {
	samples := []shm.MetricSample{
		{Worker: 0, Label: "rate", Value: 5, Kind: shm.AggHarmonic},
		{Worker: 1, Label: "rate", Value: 0, Kind: shm.AggHarmonic},
	}
	got := Aggregate(samples)
	if got[0].Mean != 0 {
		t.Errorf("mean = %g, want 0 when any rate sample is zero", got[0].Mean)
	}
}

func TestAggregateGroupsByLabel(t *testing.T) {
	samples := []shm.MetricSample{
		{Worker: 0, Label: "b", Value: 1, Kind: shm.AggArithmetic},
		{Worker: 0, Label: "a", Value: 2, Kind: shm.AggArithmetic},
		{Worker: 1, Label: "b", Value: 3, Kind: shm.AggArithmetic},
	}
	got := Aggregate(samples)
	if len(got) != 2 {
		t.Fatalf("got %d metrics, want 2", len(got))
	}
	if got[0].Label != "a" || got[1].Label != "b" {
		t.Errorf("labels = %q, %q, want sorted a, b", got[0].Label, got[1].Label)
	}
	if got[1].Mean != 2 {
		t.Errorf("mean(b) = %g, want 2", got[1].Mean)
	}
}

func TestBuildSummary(t *testing.T) {
	res := &lifecycle.RunResult{
		Slots: []lifecycle.SlotResult{
			{Slot: 0, Ops: 600},
			{Slot: 1, Ops: 400},
		},
		Duration: 2 * time.Second,
	}
	s := Build("cpu", res, nil)
	if s.BogoOps != 1000 {
		t.Errorf("BogoOps = %d, want 1000", s.BogoOps)
	}
	if s.OpsPerSec != 500 {
		t.Errorf("OpsPerSec = %g, want 500", s.OpsPerSec)
	}
	if s.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", s.ExitCode)
	}

	var buf bytes.Buffer
	s.Write(&buf)
	if !strings.Contains(buf.String(), "bogo-ops 1000") {
		t.Errorf("rendered summary missing ops: %q", buf.String())
	}
}
