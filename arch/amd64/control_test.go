package amd64

import (
	"encoding/binary"
	"testing"

	"lirjit/arch"
)

// TestPatchJumpRelativeDisplacement exercises the rel32 contract PatchJump
// relies on: both the jump's own Addr and the target it's handed must share
// one region-relative (0-based) coordinate space, since PatchJump indexes
// code[] directly with j.Addr and has no notion of where the region was
// eventually mapped in the address space.
func TestPatchJumpRelativeDisplacement(t *testing.T) {
	b := New()
	s := arch.NewSession(arch.AMD64, Descriptor(), arch.EnterOptions{Scratches: 1, Saveds: 1})

	j, ec := b.EmitJump(s, arch.JumpAlways, false)
	if ec != arch.Ok {
		t.Fatalf("EmitJump: %v", ec)
	}
	s.Code.Reverse()
	size := s.Code.Size()
	code := make([]byte, size)
	s.Code.Bytes(code)

	// Target ten bytes past the jump's own site, in the same region-relative
	// coordinate space j.Addr already lives in.
	targetRel := j.Addr + 10
	if err := b.PatchJump(code, j, targetRel); err != nil {
		t.Fatalf("PatchJump: %v", err)
	}
	rel := int32(binary.LittleEndian.Uint32(code[j.Addr:]))
	wantRel := int32(targetRel) - int32(j.Addr+4)
	if rel != wantRel {
		t.Errorf("patched rel32 = %d, want %d", rel, wantRel)
	}
}

// TestEmitConstWritesImmediateAtRecordedOffset checks that EmitConst's
// Const.Addr names the offset PatchConst later overwrites, in the same
// region-relative coordinate space Bytes() produces.
func TestEmitConstWritesImmediateAtRecordedOffset(t *testing.T) {
	b := New()
	s := arch.NewSession(arch.AMD64, Descriptor(), arch.EnterOptions{Scratches: 1, Saveds: 1})

	k, ec := b.EmitConst(s, arch.Reg(1), 7)
	if ec != arch.Ok {
		t.Fatalf("EmitConst: %v", ec)
	}
	s.Code.Reverse()
	size := s.Code.Size()
	code := make([]byte, size)
	s.Code.Bytes(code)

	if got := int64(binary.LittleEndian.Uint64(code[k.Addr:])); got != 7 {
		t.Fatalf("embedded const = %d, want 7", got)
	}
	if err := b.PatchConst(code, k, 99); err != nil {
		t.Fatalf("PatchConst: %v", err)
	}
	if got := int64(binary.LittleEndian.Uint64(code[k.Addr:])); got != 99 {
		t.Errorf("patched const = %d, want 99", got)
	}
}

func TestDescriptorWellFormed(t *testing.T) {
	d := Descriptor()
	if d.NumRegs <= 0 || d.NumScratchRegs+d.NumSavedRegs > d.NumRegs {
		t.Errorf("amd64 Descriptor register budget is inconsistent: %+v", d)
	}
	if !d.Supported {
		t.Error("amd64 is a full backend, Descriptor().Supported should be true")
	}
}
