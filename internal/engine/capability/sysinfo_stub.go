//go:build !linux

package capability

import (
	"os"
	"runtime"
)

func pageSize() int {
	return os.Getpagesize()
}

func cpuCount() int {
	return runtime.NumCPU()
}

func numaNodeCount() int {
	return 1
}

func cgroup2Mounted() bool {
	return false
}
