// Package capability answers "does this hardware/OS support feature X"
// queries used to gate code paths. Probing happens once and is cached;
// absence of support is a normal false, never an error.
package capability

import (
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Feature identifies a probed CPU or OS capability.
type Feature int

const (
	FeatSSE2 Feature = iota
	FeatSSE42
	FeatAVX
	FeatAVX2
	FeatAVX512F
	FeatAES
	FeatSHA
	FeatRDRAND
	FeatRDTSCP
	FeatCMOV
	FeatHypervisor
	FeatCgroup2
	FeatNUMA

	FeatureCount
)

var featureNames = [FeatureCount]string{
	FeatSSE2:       "sse2",
	FeatSSE42:      "sse4.2",
	FeatAVX:        "avx",
	FeatAVX2:       "avx2",
	FeatAVX512F:    "avx512f",
	FeatAES:        "aes",
	FeatSHA:        "sha",
	FeatRDRAND:     "rdrand",
	FeatRDTSCP:     "rdtscp",
	FeatCMOV:       "cmov",
	FeatHypervisor: "hypervisor",
	FeatCgroup2:    "cgroup2",
	FeatNUMA:       "numa",
}

func (f Feature) String() string {
	if f < 0 || f >= FeatureCount {
		return "unknown"
	}
	return featureNames[f]
}

// knownVendors maps raw CPUID vendor signatures to display names. Unknown
// signatures fall through to the raw string.
var knownVendors = map[string]string{
	"GenuineIntel": "Intel",
	"AuthenticAMD": "AMD",
	"HygonGenuine": "Hygon",
	"CentaurHauls": "VIA/Centaur",
	"  Shanghai  ": "Zhaoxin",
	"KVMKVMKVM":    "KVM",
	"TCGTCGTCGTCG": "QEMU TCG",
	"Microsoft Hv": "Hyper-V",
	"VMwareVMware": "VMware",
	"XenVMMXenVMM": "Xen",
	"VBoxVBoxVBox": "VirtualBox",
}

// Table is the cached set of capability facts for the current host.
type Table struct {
	features  map[Feature]bool
	vendor    string
	pageSize  int
	cpus      int
	numaNodes int
}

var (
	probeOnce sync.Once
	cached    *Table
)

// Snapshot returns the memoized capability table, probing on first use.
// Safe to call from any worker after spawn.
func Snapshot() *Table {
	probeOnce.Do(func() {
		cached = probe()
	})
	return cached
}

// Has reports whether the feature is available. Unknown features and
// unsupported architectures report false.
func Has(f Feature) bool {
	return Snapshot().Has(f)
}

// Reprobe recomputes the table, bypassing the cache. The returned table
// does not replace the cached one seen by Has.
func Reprobe() *Table {
	return probe()
}

func probe() *Table {
	t := &Table{
		features:  make(map[Feature]bool),
		pageSize:  pageSize(),
		cpus:      cpuCount(),
		numaNodes: numaNodeCount(),
	}

	cpu := cpuid.CPU
	t.features[FeatSSE2] = cpu.Supports(cpuid.SSE2)
	t.features[FeatSSE42] = cpu.Supports(cpuid.SSE42)
	t.features[FeatAVX] = cpu.Supports(cpuid.AVX)
	t.features[FeatAVX2] = cpu.Supports(cpuid.AVX2)
	t.features[FeatAVX512F] = cpu.Supports(cpuid.AVX512F)
	t.features[FeatAES] = cpu.Supports(cpuid.AESNI)
	t.features[FeatSHA] = cpu.Supports(cpuid.SHA)
	t.features[FeatRDRAND] = cpu.Supports(cpuid.RDRAND)
	t.features[FeatRDTSCP] = cpu.Supports(cpuid.RDTSCP)
	t.features[FeatCMOV] = cpu.Supports(cpuid.CMOV)
	t.features[FeatHypervisor] = cpu.Supports(cpuid.HYPERVISOR)
	t.features[FeatCgroup2] = cgroup2Mounted()
	t.features[FeatNUMA] = t.numaNodes > 1

	t.vendor = cpu.VendorString
	if name, ok := knownVendors[cpu.VendorString]; ok {
		t.vendor = name
	}
	return t
}

// Has reports whether the feature is available in this table.
func (t *Table) Has(f Feature) bool {
	return t.features[f]
}

// Vendor returns the display name of the CPU vendor, or the raw CPUID
// signature when the vendor is not in the known table.
func (t *Table) Vendor() string {
	return t.vendor
}

// PageSize returns the system page size in bytes.
func (t *Table) PageSize() int {
	return t.pageSize
}

// CPUs returns the number of schedulable CPUs.
func (t *Table) CPUs() int {
	return t.cpus
}

// NUMANodes returns the number of online NUMA nodes, at least 1.
func (t *Table) NUMANodes() int {
	if t.numaNodes < 1 {
		return 1
	}
	return t.numaNodes
}
