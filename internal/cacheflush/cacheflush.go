// Package cacheflush implements the per-platform instruction-cache flush
// primitive named by the Platform Descriptor (spec §2.1). Spec §1 explicitly
// places cache-flush primitives out of this module's core scope ("per-platform
// cache-flush primitives, specified only by their interface contract") — so
// this package exists to give every backend a uniform call site, not to carry
// a from-scratch per-architecture cache-maintenance implementation.
//
// The teacher's jit.CodeCache.invalidateInstructionCache left the ARM64 case
// as an explicit placeholder ("this is a placeholder for ARM64 cache
// invalidation ... in practice, ARM64 cache invalidation would be handled by
// specific assembly instructions or system calls"). This package resolves that
// placeholder for the one thing this module actually does to a region's
// protection bits: every transition to PROT_EXEC goes through
// internal/exec.Finalize, which calls unix.Mprotect. On Linux/arm64 the kernel
// itself performs the required D-cache-clean/I-cache-invalidate
// (sync_icache_dcache, invoked from set_pte_at) whenever a mapping becomes
// executable, so no additional instruction-level cache maintenance is needed
// from user space for code written before that mprotect call. Flush is
// therefore a hook point, not dead code: it exists so a future PROT_EXEC
// transition mechanism (or a non-Linux target) has a single place to plug in
// real cache-line maintenance without touching any caller.
package cacheflush

// Flush makes code written to [addr, addr+size) visible to the instruction
// fetch unit. Callers invoke it after internal/exec.Finalize's mprotect
// transition and after any self-modifying-code patch (set_jump_addr,
// set_const), which itself re-enters Finalize and therefore re-triggers the
// kernel-side cache maintenance described above.
func Flush(addr uintptr, size int) {
	_, _ = addr, size
}
