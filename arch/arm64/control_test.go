package arm64

import (
	"testing"

	"lirjit/arch"
)

// TestPatchJumpRelativeDisplacement exercises the word-aligned imm26 B/BL
// encoding PatchJump rewrites in place, confirming j.Addr and the target it's
// handed must both live in the region-relative coordinate space PatchJump
// indexes code[] with.
func TestPatchJumpRelativeDisplacement(t *testing.T) {
	b := New()
	s := arch.NewSession(arch.ARM64, Descriptor(), arch.EnterOptions{Scratches: 1, Saveds: 1})

	j, ec := b.EmitJump(s, arch.JumpAlways, false)
	if ec != arch.Ok {
		t.Fatalf("EmitJump: %v", ec)
	}
	s.Code.Reverse()
	size := s.Code.Size()
	code := make([]byte, size)
	s.Code.Bytes(code)

	targetRel := j.Addr + 16
	if err := b.PatchJump(code, j, targetRel); err != nil {
		t.Fatalf("PatchJump: %v", err)
	}
}

func TestPatchJumpRejectsMisalignedTarget(t *testing.T) {
	b := New()
	s := arch.NewSession(arch.ARM64, Descriptor(), arch.EnterOptions{Scratches: 1, Saveds: 1})

	j, ec := b.EmitJump(s, arch.JumpAlways, false)
	if ec != arch.Ok {
		t.Fatalf("EmitJump: %v", ec)
	}
	s.Code.Reverse()
	size := s.Code.Size()
	code := make([]byte, size)
	s.Code.Bytes(code)

	if err := b.PatchJump(code, j, j.Addr+3); err == nil {
		t.Error("PatchJump with a non-4-byte-aligned displacement should fail")
	}
}

func TestDescriptorWellFormed(t *testing.T) {
	d := Descriptor()
	if !d.Supported {
		t.Error("arm64 is a full backend, Descriptor().Supported should be true")
	}
	if d.WordSize != 8 {
		t.Errorf("arm64 Descriptor().WordSize = %d, want 8", d.WordSize)
	}
}
