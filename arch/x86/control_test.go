package x86

import (
	"encoding/binary"
	"testing"

	"lirjit/arch"
)

func TestPatchJumpRelativeDisplacement(t *testing.T) {
	b := New()
	s := arch.NewSession(arch.X86, Descriptor(), arch.EnterOptions{Scratches: 1, Saveds: 1})

	j, ec := b.EmitJump(s, arch.JumpAlways, false)
	if ec != arch.Ok {
		t.Fatalf("EmitJump: %v", ec)
	}
	s.Code.Reverse()
	size := s.Code.Size()
	code := make([]byte, size)
	s.Code.Bytes(code)

	targetRel := j.Addr + 5
	if err := b.PatchJump(code, j, targetRel); err != nil {
		t.Fatalf("PatchJump: %v", err)
	}
	rel := int32(binary.LittleEndian.Uint32(code[j.Addr:]))
	wantRel := int32(targetRel) - int32(j.Addr+4)
	if rel != wantRel {
		t.Errorf("patched rel32 = %d, want %d", rel, wantRel)
	}
}

func TestDescriptorReportsVirtualRegisters(t *testing.T) {
	d := Descriptor()
	if !d.HasVirtualRegs {
		t.Error("x86-32 Descriptor().HasVirtualRegs should be true: R3-R6 and R10-R11 have no physical home")
	}
	if !d.Supported {
		t.Error("x86-32 is a full backend, Descriptor().Supported should be true")
	}
}
