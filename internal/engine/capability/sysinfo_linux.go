//go:build linux

package capability

import (
	"os"
	"runtime"
	"strings"

	"golang.org/x/sys/unix"
)

func pageSize() int {
	return os.Getpagesize()
}

func cpuCount() int {
	return runtime.NumCPU()
}

// numaNodeCount counts online NUMA nodes from sysfs. Hosts without the
// node directory report a single node.
func numaNodeCount() int {
	entries, err := os.ReadDir("/sys/devices/system/node")
	if err != nil {
		return 1
	}
	nodes := 0
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "node") {
			continue
		}
		if len(name) > 4 && name[4] >= '0' && name[4] <= '9' {
			nodes++
		}
	}
	if nodes == 0 {
		return 1
	}
	return nodes
}

func cgroup2Mounted() bool {
	var st unix.Statfs_t
	if err := unix.Statfs("/sys/fs/cgroup", &st); err != nil {
		return false
	}
	return st.Type == unix.CGROUP2_SUPER_MAGIC
}
