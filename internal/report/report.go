// Package report aggregates per-worker counters and published metrics
// into the end-of-run summary.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"stressforge/internal/engine/lifecycle"
	"stressforge/internal/engine/shm"
)

// Metric is one aggregated named metric across the workers that
// published it.
type Metric struct {
	Label   string
	Kind    shm.AggKind
	Samples int
	Mean    float64
}

// Summary is the per-stressor end-of-run report.
type Summary struct {
	Stressor  string
	Instances int
	BogoOps   uint64
	RealTime  time.Duration
	// OpsPerSec is bogo-ops over wall-clock run time.
	OpsPerSec float64
	Metrics   []Metric
	Slots     []lifecycle.SlotResult
	ExitCode  int
}

// Aggregate folds per-worker samples of the same label into one metric
// using the kind the publisher declared. Rate-like metrics use the
// harmonic mean so a slow worker is not averaged away; magnitude
// metrics use the arithmetic mean.
func Aggregate(samples []shm.MetricSample) []Metric {
	type acc struct {
		kind  shm.AggKind
		n     int
		sum   float64 // arithmetic: Σv, harmonic: Σ(1/v)
		zeros int
	}
	byLabel := map[string]*acc{}
	var order []string
	for _, s := range samples {
		a, ok := byLabel[s.Label]
		if !ok {
			a = &acc{kind: s.Kind}
			byLabel[s.Label] = a
			order = append(order, s.Label)
		}
		a.n++
		switch a.kind {
		case shm.AggHarmonic:
			if s.Value == 0 {
				a.zeros++
			} else {
				a.sum += 1 / s.Value
			}
		default:
			a.sum += s.Value
		}
	}
	sort.Strings(order)

	out := make([]Metric, 0, len(order))
	for _, label := range order {
		a := byLabel[label]
		var mean float64
		switch {
		case a.kind == shm.AggHarmonic && a.zeros > 0:
			// A zero rate dominates the harmonic mean.
			mean = 0
		case a.kind == shm.AggHarmonic && a.sum > 0:
			mean = float64(a.n) / a.sum
		case a.kind != shm.AggHarmonic && a.n > 0:
			mean = a.sum / float64(a.n)
		}
		out = append(out, Metric{Label: label, Kind: a.kind, Samples: a.n, Mean: mean})
	}
	return out
}

// Build assembles the summary for one finished run.
func Build(stressor string, res *lifecycle.RunResult, samples []shm.MetricSample) *Summary {
	s := &Summary{
		Stressor:  stressor,
		Instances: len(res.Slots),
		BogoOps:   res.TotalOps(),
		RealTime:  res.Duration,
		Metrics:   Aggregate(samples),
		Slots:     res.Slots,
		ExitCode:  res.WorstExit(),
	}
	if secs := res.Duration.Seconds(); secs > 0 {
		s.OpsPerSec = float64(s.BogoOps) / secs
	}
	return s
}

// Write renders the summary as fixed-width text.
func (s *Summary) Write(w io.Writer) {
	fmt.Fprintf(w, "%-12s workers %d  bogo-ops %d  real %.2fs  ops/s %.2f\n",
		s.Stressor, s.Instances, s.BogoOps, s.RealTime.Seconds(), s.OpsPerSec)
	for _, m := range s.Metrics {
		fmt.Fprintf(w, "  %-28s %12.4f  (%d samples)\n", m.Label, m.Mean, m.Samples)
	}
	for _, slot := range s.Slots {
		if slot.Status.ExitCode() != 0 || slot.Restarts > 0 {
			fmt.Fprintf(w, "  worker %d: %s restarts=%d ops=%d\n",
				slot.Slot, slot.Status.Class, slot.Restarts, slot.Ops)
		}
	}
}
