// Package ustack implements the optional user-space stack allocator (spec
// §4.9): a virtual address reservation that can grow and shrink its committed
// region without moving, built the same way internal/exec builds its
// executable regions.
package ustack

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Stack mirrors the spec §3 Stack entity: base <= limit <= max_limit, with
// base page-aligned. Top is not interpreted by this package; callers move it
// as they push/pop.
type Stack struct {
	mem      []byte // full max_limit reservation, PROT_NONE beyond the committed tail
	Top      uintptr
	Base     uintptr
	Limit    uintptr
	MaxLimit uintptr
}

var pageSize = unix.Getpagesize()

func roundUp(n int) int {
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// Allocate reserves maxLimit bytes of address space and commits the first
// limit bytes of it.
func Allocate(limit, maxLimit int) (*Stack, error) {
	if limit < 0 || maxLimit < limit {
		return nil, fmt.Errorf("ustack: invalid bounds limit=%d maxLimit=%d", limit, maxLimit)
	}
	reserveSize := roundUp(maxLimit)
	if reserveSize == 0 {
		reserveSize = pageSize
	}

	mem, err := unix.Mmap(-1, 0, reserveSize, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("ustack: reserve %d bytes: %w", reserveSize, err)
	}

	s := &Stack{mem: mem}
	s.Base = addrOf(mem)
	s.Top = s.Base
	s.Limit = s.Base
	s.MaxLimit = s.Base + uintptr(reserveSize)

	commitSize := roundUp(limit)
	if commitSize > 0 {
		if err := unix.Mprotect(mem[:commitSize], unix.PROT_READ|unix.PROT_WRITE); err != nil {
			_ = unix.Munmap(mem)
			return nil, fmt.Errorf("ustack: commit %d bytes: %w", commitSize, err)
		}
	}
	s.Limit = s.Base + uintptr(commitSize)

	return s, nil
}

// Resize commits or decommits pages so the committed region matches newLimit
// bytes from Base, rounded up to the page boundary. It fails if newLimit
// falls outside [0, max_limit-base].
func (s *Stack) Resize(newLimit int) error {
	if newLimit < 0 || uintptr(newLimit) > s.MaxLimit-s.Base {
		return fmt.Errorf("ustack: resize %d out of bounds [0,%d]", newLimit, s.MaxLimit-s.Base)
	}

	cur := int(s.Limit - s.Base)
	want := roundUp(newLimit)

	switch {
	case want > cur:
		if err := unix.Mprotect(s.mem[cur:want], unix.PROT_READ|unix.PROT_WRITE); err != nil {
			return fmt.Errorf("ustack: grow commit to %d: %w", want, err)
		}
	case want < cur:
		// Decommit the released tail: drop the backing pages (MADV_DONTNEED)
		// and remove write access so a stray access faults instead of
		// silently reusing stale pages.
		if err := unix.Madvise(s.mem[want:cur], unix.MADV_DONTNEED); err != nil {
			return fmt.Errorf("ustack: decommit advise: %w", err)
		}
		if err := unix.Mprotect(s.mem[want:cur], unix.PROT_NONE); err != nil {
			return fmt.Errorf("ustack: decommit protect: %w", err)
		}
	}

	s.Limit = s.Base + uintptr(want)
	return nil
}

// Free releases the entire reservation.
func (s *Stack) Free() error {
	if s.mem == nil {
		return nil
	}
	err := unix.Munmap(s.mem)
	s.mem = nil
	if err != nil {
		return fmt.Errorf("ustack: munmap: %w", err)
	}
	return nil
}

func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
