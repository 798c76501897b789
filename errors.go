package lirjit

import "lirjit/arch"

// ErrCode is the Compiler's latched error state (spec §7). The zero value is
// success, matching arch.ErrCode's own zero value, so a freshly created
// Compiler starts "ok" without explicit initialization.
type ErrCode = arch.ErrCode

// Error codes, in the exact numeric order spec §6's Bounds table lists them:
// success(0), already-compiled(1), alloc-failed(2), exec-alloc-failed(3),
// unsupported(4), bad-argument(5).
const (
	Ok                 = arch.Ok
	ErrAlreadyCompiled = arch.ErrAlreadyCompiled
	ErrAlloc           = arch.ErrAlloc
	ErrExecAlloc       = arch.ErrExecAlloc
	ErrUnsupported     = arch.ErrUnsupported
	ErrBadArgument     = arch.ErrBadArgument
)
