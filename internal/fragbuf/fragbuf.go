// Package fragbuf implements the Fragment Buffers of spec §4.3: a
// singly-linked pool of fixed-capacity chunks that grows by prepending,
// never by reallocating, so pointers handed out by Ensure stay valid for the
// lifetime of the Pool.
package fragbuf

import "fmt"

// Capacity is the size of one fragment. Emission requests are bounded well
// below it (spec §4.3: "per-request allocation is bounded (≤256 bytes)").
const Capacity = 4096

// MaxRequest is the largest single Ensure call a Pool accepts.
const MaxRequest = 256

type fragment struct {
	next *fragment
	used int
	buf  [Capacity]byte
}

// Pool is one of the two buffer pools a Compiler owns (the instruction buffer
// or the auxiliary buffer). Fragments are prepended to head as they fill, so
// the list is in reverse emission order until Reverse is called.
type Pool struct {
	head  *fragment
	total int
}

// Ensure carves size bytes out of the current head fragment, prepending a
// fresh one if there isn't room. The returned slice is stable: it is never
// moved or copied by a later Ensure call.
func (p *Pool) Ensure(size int) ([]byte, error) {
	if size < 0 || size > MaxRequest {
		return nil, fmt.Errorf("fragbuf: request size %d out of range [0,%d]", size, MaxRequest)
	}
	if p.head == nil || p.head.used+size > Capacity {
		p.head = &fragment{next: p.head}
	}
	start := p.head.used
	p.head.used += size
	p.total += size
	return p.head.buf[start:p.head.used], nil
}

// Size returns the total number of bytes carved out across every fragment.
func (p *Pool) Size() int {
	return p.total
}

// Reverse flips the head-prepended list in place so traversal order matches
// emission order (spec §4.3/§4.7(b), §8 invariant 4).
func (p *Pool) Reverse() {
	var prev *fragment
	cur := p.head
	for cur != nil {
		next := cur.next
		cur.next = prev
		prev = cur
		cur = next
	}
	p.head = prev
}

// Bytes copies every fragment's used bytes, in list order, into dst. Call
// Reverse first so that order is emission order. dst must have length >=
// Size().
func (p *Pool) Bytes(dst []byte) int {
	off := 0
	for f := p.head; f != nil; f = f.next {
		off += copy(dst[off:], f.buf[:f.used])
	}
	return off
}

// Reset releases every fragment, leaving the Pool empty.
func (p *Pool) Reset() {
	p.head = nil
	p.total = 0
}
