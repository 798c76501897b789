// Package lirjit is a stack-less JIT compiler back-end (spec §1): a portable
// low-level intermediate representation and code generator that emits native
// machine code for multiple CPU families behind one emission API, the way
// the teacher's JITCompiler wrapped a single architecture's code generator
// behind Compile/Execute, generalized here to many architectures and to a
// client that drives emission instruction-by-instruction instead of
// compiling a whole bytecode function in one call.
package lirjit

import (
	"sync"

	"lirjit/arch"
	"lirjit/internal/exec"
)

// state is the Compiler lifecycle spec §3 describes: created, configured,
// emitting, generated, freed.
type state uint8

const (
	stateCreated state = iota
	stateConfigured
	stateEmitting
	stateGenerated
	stateFreed
)

// Compiler is the mutable session object spec §3 describes. Unlike the
// teacher's JITCompiler, which serializes concurrent callers with a
// sync.RWMutex because many goroutines can drive one JITCompiler at once, a
// Compiler here is owned by a single thread of control while emitting (spec
// §5): the mutex only serializes individual calls, so concurrent use from
// several goroutines does not race on the fields but still interleaves their
// instruction streams.
type Compiler struct {
	mu sync.Mutex

	target  Target
	backend arch.Backend
	descr   arch.Descriptor
	session *arch.Session

	state state
	err   ErrCode

	region   *exec.Region // set once GenerateCode has run, nil before; FreeCode does not clear it
	codeSize int          // byte size of the last generated code, set by GenerateCode

	verbose bool
	trace   *traceWriter
}

// New creates a Compiler targeting one CPU family. It fails only if target
// names no registered backend.
func New(target Target) (*Compiler, ErrCode) {
	backend, ok := selectBackend(target)
	if !ok {
		return nil, ErrBadArgument
	}
	return &Compiler{
		target:  target,
		backend: backend,
		descr:   backend.Descriptor(),
	}, Ok
}

// Target reports the CPU family this Compiler emits for.
func (c *Compiler) Target() Target { return c.target }

// Descriptor exposes the Platform Descriptor backing this Compiler, mainly
// so callers can check Supported before emitting against a stub target.
func (c *Compiler) Descriptor() arch.Descriptor { return c.descr }

// Err returns the Compiler's latched error code (spec §7): once non-zero,
// every subsequent emission call is a no-op returning the same code.
func (c *Compiler) Err() ErrCode { return c.err }

// fail latches err if the Compiler isn't already in an error state, and
// returns the (possibly pre-existing) latched code. Spec §3: "Error codes,
// once non-zero, latch."
func (c *Compiler) fail(err ErrCode) ErrCode {
	if c.err == Ok {
		c.err = err
	}
	return c.err
}

// shortCircuited runs the spec §4.4 step-1 short-circuit: true if an error is
// already latched (including compiler-freed), in which case the caller
// should return c.err immediately without touching the session.
func (c *Compiler) shortCircuited() bool {
	return c.err != Ok || c.state == stateFreed
}

// requireSession returns ErrBadArgument if Enter/SetContext has not run yet
// (spec §3: most emission calls are only meaningful once quotas and frame
// size are fixed).
func (c *Compiler) requireSession() (*arch.Session, ErrCode) {
	if c.session == nil {
		return nil, c.fail(ErrBadArgument)
	}
	return c.session, Ok
}

// Free releases the Compiler's buffers and metadata lists (spec §3
// ownership: "freeing the Compiler frees all of them but not the generated
// code"). The generated code region, if any, is released only by FreeCode.
func (c *Compiler) Free() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	c.state = stateFreed
}

// FreeCode releases a code region returned by GenerateCode, delegating to
// the Executable Allocator's release path (spec §4.8 free_exec).
func FreeCode(code CodePtr) error {
	if len(code.Region) == 0 {
		return nil
	}
	return exec.Free(&exec.Region{Ptr: code.Region})
}
