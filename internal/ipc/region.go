// Package ipc implements the cross-process synchronization fabric: a
// memfd-backed shared memory region plus spin-wait mutexes and counting
// semaphores over atomic words inside it.
//
// A named POSIX shared memory segment (shm_open) and named POSIX semaphores
// (sem_open) are the textbook primitives for this job, but golang.org/x/sys/unix
// does not wrap sem_open, and shm_open's only advantage over an anonymous
// memfd is a filesystem-visible name that has to be unlinked on every exit
// path. memfd_create gives the same "shared, kernel-reference-counted,
// independent of any one process's lifetime" region without that cleanup
// hazard, addressed by the same logical name ("/concurrent_http_shm") for
// diagnostics. The fd is handed to children exactly the way the listening
// socket is: through exec.Cmd.ExtraFiles.
package ipc

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// RegionName is the logical name of the shared memory region, kept for
// parity with the source's named-IPC surface even though the underlying
// transport (memfd + fd inheritance) has no filesystem path to register it
// under.
const RegionName = "/concurrent_http_shm"

// layout mirrors the fixed-size, pointer-free structure the spec requires:
// monotonic counters guarded by a mutex, plus the telemetry ring's own
// counters and lock words. All fields are fixed-width primitives so the
// struct can be mapped directly onto shared bytes from any process,
// regardless of allocator state — there are no pointers in the region.
type layout struct {
	// stats block, read/written through internal/stats.Engine
	TotalRequests       uint64
	BytesTransferred    uint64
	Status200           uint32
	Status403           uint32
	Status404           uint32
	Status500           uint32
	Status503           uint32
	Status201           uint32
	Status206           uint32
	ActiveConnections   int32
	StartTimeUnixNano   int64
	TotalResponseTimeMs uint64

	// telemetry ring counters, read/written through Telemetry
	queueDepth    int32
	queuePeak     int32
	queueTotal    uint64
	queueRejected uint64
	queueMax      int32

	// lock words, wrapped by Mutex/CountingSem accessors below
	statsLock uint32
	logLock   uint32
	queueLock uint32
	emptySem  int32
	fullSem   int32
}

const regionSize = unsafe.Sizeof(layout{})

// Region is a shared memory mapping visible identically from every process
// that holds its file descriptor.
type Region struct {
	fd   int
	data []byte
	L    *layout
}

// CreateRegion allocates a new anonymous, shareable memfd of the right size
// and maps it. Called once, by the master, before fork.
func CreateRegion(maxQueue int) (*Region, error) {
	fd, err := unix.MemfdCreate(RegionName, 0)
	if err != nil {
		return nil, fmt.Errorf("ipc: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(regionSize)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ipc: ftruncate: %w", err)
	}
	r, err := mapFd(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	r.L.queueMax = int32(maxQueue)
	r.L.emptySem = int32(maxQueue)
	r.L.fullSem = 0
	return r, nil
}

// AttachRegion maps a region inherited via an fd from the parent process
// (found at a well-known ExtraFiles index, conventionally fd 4; fd 3 is the
// listening socket).
func AttachRegion(fd int) (*Region, error) {
	return mapFd(fd)
}

func mapFd(fd int) (*Region, error) {
	data, err := unix.Mmap(fd, 0, int(regionSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("ipc: mmap: %w", err)
	}
	return &Region{
		fd:   fd,
		data: data,
		L:    (*layout)(unsafe.Pointer(&data[0])),
	}, nil
}

// Fd returns the underlying file descriptor, for passing to a child via
// exec.Cmd.ExtraFiles.
func (r *Region) Fd() int { return r.fd }

// Close unmaps the region in this process. The memfd itself is reclaimed by
// the kernel once every process holding it has closed or exited.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	r.L = nil
	closeErr := unix.Close(r.fd)
	if err != nil {
		return fmt.Errorf("ipc: munmap: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("ipc: close fd: %w", closeErr)
	}
	return nil
}

// StatsMutex guards every read and write of the shared statistics block.
func (r *Region) StatsMutex() *Mutex { return NewMutex(&r.L.statsLock) }

// LogMutex guards each access-log append+flush.
func (r *Region) LogMutex() *Mutex { return NewMutex(&r.L.logLock) }

// QueueMutex guards the telemetry ring's counters.
func (r *Region) QueueMutex() *Mutex { return NewMutex(&r.L.queueLock) }

// EmptySem counts free admission slots (initial value Q_max).
func (r *Region) EmptySem() *CountingSem { return NewCountingSem(&r.L.emptySem) }

// FullSem counts occupied admission slots (initial value 0).
func (r *Region) FullSem() *CountingSem { return NewCountingSem(&r.L.fullSem) }
