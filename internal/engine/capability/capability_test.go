package capability

import "testing"

func TestSnapshotMemoized(t *testing.T) {
	first := Snapshot()
	second := Snapshot()
	if first != second {
		t.Fatalf("Snapshot returned different tables across calls")
	}
}

func TestHasNeverPanicsAndUnknownIsFalse(t *testing.T) {
	for f := FeatSSE2; f <= FeatNUMA; f++ {
		_ = Has(f)
	}
	if Has(Feature(9999)) {
		t.Fatalf("unknown feature reported as supported")
	}
}

func TestTableBasics(t *testing.T) {
	tab := Snapshot()
	if tab.PageSize() <= 0 {
		t.Fatalf("page size = %d, want > 0", tab.PageSize())
	}
	if tab.CPUs() < 1 {
		t.Fatalf("cpu count = %d, want >= 1", tab.CPUs())
	}
	if tab.NUMANodes() < 1 {
		t.Fatalf("numa nodes = %d, want >= 1", tab.NUMANodes())
	}
	if tab.Vendor() == "" {
		// Non-x86 builds have no vendor string; that is not an error.
		t.Logf("no CPU vendor string on this platform")
	}
}

func TestReprobeConsistent(t *testing.T) {
	a := Snapshot()
	b := Reprobe()
	for f := FeatSSE2; f <= FeatRDTSCP; f++ {
		if a.Has(f) != b.Has(f) {
			t.Fatalf("feature %d flapped between probes", f)
		}
	}
}
