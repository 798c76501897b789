// Package exec is the process-wide executable memory allocator (spec §4.8).
//
// It hands out (ptr, size) regions that are writable while the client is
// copying code into them and executable once Finalize is called, and it keeps
// a free list across compilations so short-lived compilers don't each pay for
// a fresh mmap. All three entry points serialize on a single mutex; there is
// no locking inside a single region once it has been handed out.
package exec

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Region is a block of memory suitable for holding generated code.
type Region struct {
	Ptr  []byte // mmap-backed slice; len == capacity rounded to the block granularity
	Used int    // bytes actually occupied by generated code
}

// Addr returns the base address of the region as a uintptr.
func (r *Region) Addr() uintptr {
	if len(r.Ptr) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&r.Ptr[0]))
}

type freeBlock struct {
	mem  []byte
	next *freeBlock
}

var (
	mu       sync.Mutex
	freeList *freeBlock
	pageSize = unix.Getpagesize()
)

// roundUp rounds an allocation size up to a whole number of pages. Rounding to the
// page size keeps every region mprotect-able on its own and lets freed blocks
// of the same rounded size be reused directly off the free list.
func roundUp(size int) int {
	if size <= 0 {
		size = 1
	}
	return (size + pageSize - 1) &^ (pageSize - 1)
}

// Alloc reserves size bytes of read/write memory. The caller writes the
// generated code into Region.Ptr[:Region.Used] and then calls Finalize to
// transition the region to executable.
func Alloc(size int) (*Region, error) {
	alloc := roundUp(size)

	mu.Lock()
	prev := (*freeBlock)(nil)
	for b := freeList; b != nil; b = b.next {
		if len(b.mem) == alloc {
			if prev == nil {
				freeList = b.next
			} else {
				prev.next = b.next
			}
			mu.Unlock()
			if err := unix.Mprotect(b.mem, unix.PROT_READ|unix.PROT_WRITE); err != nil {
				return nil, fmt.Errorf("exec: mprotect reused region rw: %w", err)
			}
			return &Region{Ptr: b.mem}, nil
		}
		prev = b
	}
	mu.Unlock()

	mem, err := unix.Mmap(-1, 0, alloc, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("exec: mmap %d bytes: %w", alloc, err)
	}
	return &Region{Ptr: mem}, nil
}

// Finalize transitions a region from read/write to read/execute and flushes
// the instruction cache over the used portion. flush may be nil (e.g. on
// architectures whose icache is coherent with ordinary stores).
func Finalize(r *Region, flush func(addr uintptr, size int)) error {
	if err := unix.Mprotect(r.Ptr, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("exec: mprotect region rx: %w", err)
	}
	if flush != nil {
		flush(r.Addr(), r.Used)
	}
	return nil
}

// MakeWritable is the counterpart used by the self-modifying-code APIs
// (set_jump_addr, set_const, spec §6): the caller must bracket a patch with
// MakeWritable/Finalize so the region is never both writable and executable
// at once on platforms that enforce W^X.
func MakeWritable(r *Region) error {
	if err := unix.Mprotect(r.Ptr, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("exec: mprotect region rw: %w", err)
	}
	return nil
}

// Free releases a region back to the process-wide free list for reuse by a
// future Alloc of the same rounded size, rather than returning it to the OS
// immediately.
func Free(r *Region) error {
	if r == nil || len(r.Ptr) == 0 {
		return nil
	}
	if err := unix.Mprotect(r.Ptr, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("exec: mprotect region for free: %w", err)
	}
	mu.Lock()
	freeList = &freeBlock{mem: r.Ptr, next: freeList}
	mu.Unlock()
	r.Ptr = nil
	return nil
}

// FreeUnused releases every region on the free list back to the OS. Intended
// for long-running processes that want to give memory back after a burst of
// compilations.
func FreeUnused() error {
	mu.Lock()
	b := freeList
	freeList = nil
	mu.Unlock()

	var firstErr error
	for b != nil {
		if err := unix.Munmap(b.mem); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("exec: munmap: %w", err)
		}
		b = b.next
	}
	return firstErr
}
