//go:build linux

package shm

import (
	"os"
	"time"

	appErr "stressforge/pkg/errors"

	"golang.org/x/sys/unix"
)

const (
	allocRetries     = 5
	allocRetryDelay  = 20 * time.Millisecond
	allocRetryCeiling = 500 * time.Millisecond
)

// Hooks for fault injection in tests.
var (
	memfdCreate = unix.MemfdCreate
	mmapFd      = unix.Mmap
)

// Alloc creates the shared metrics region sized for the given worker
// count. It must be called before any worker is spawned; workers attach
// to the inherited fd. Transient failures are retried with backoff; a
// run that cannot allocate the region reports resource exhaustion
// before forking anything.
func Alloc(workers int) (*Region, error) {
	if workers <= 0 {
		return nil, appErr.ValidationError("workers", "must be positive")
	}
	size := Size(workers, os.Getpagesize())

	var lastErr error
	delay := allocRetryDelay
	for attempt := 0; attempt < allocRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			if delay < allocRetryCeiling {
				delay *= 2
			}
		}
		fd, err := memfdCreate("stressforge-shm", unix.MFD_CLOEXEC)
		if err != nil {
			lastErr = err
			continue
		}
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			_ = unix.Close(fd)
			lastErr = err
			continue
		}
		data, err := mmapFd(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			_ = unix.Close(fd)
			lastErr = err
			continue
		}
		r := &Region{
			file:    os.NewFile(uintptr(fd), "stressforge-shm"),
			data:    data,
			workers: workers,
		}
		r.initHeader(workers)
		return r, nil
	}
	return nil, appErr.Wrap(lastErr, appErr.RegionAllocFailed).
		WithDetail("attempts", allocRetries)
}

// Attach maps an existing region from an inherited fd (worker side) and
// validates the header before first use.
func Attach(f *os.File) (*Region, error) {
	if f == nil {
		return nil, appErr.ValidationError("file", "required")
	}
	info, err := f.Stat()
	if err != nil {
		return nil, appErr.Wrap(err, appErr.RegionMapFailed)
	}
	size := int(info.Size())
	if size < headerSize {
		return nil, appErr.New(appErr.RegionCorrupt).WithDetail("size", size)
	}
	data, err := mmapFd(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.RegionMapFailed)
	}
	r := &Region{file: f, data: data}
	if err := r.validateHeader(); err != nil {
		_ = unix.Munmap(data)
		return nil, err
	}
	return r, nil
}

// Close unmaps the region and closes the backing fd. The mapping stays
// live in other processes that attached it.
func (r *Region) Close() error {
	var first error
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			first = err
		}
		r.data = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && first == nil {
			first = err
		}
		r.file = nil
	}
	return first
}
