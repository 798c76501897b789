package lirjit

import "lirjit/arch"

// Label is spec §3's Label entity, returned by Compiler.Label.
type Label = arch.Label

// Jump is spec §3's Jump entity, returned by Compiler.Jump/Cmp/Fcmp.
type Jump = arch.Jump

// Const is spec §3's Const entity, returned by Compiler.EmitConst.
type Const = arch.Const

// JumpFlag is the Jump.Flags bit-set: exactly one of ToLabel/ToAddr must be
// set before GenerateCode (spec §4.5).
type JumpFlag = arch.JumpFlag

const (
	ToLabel    = arch.ToLabel
	ToAddr     = arch.ToAddr
	Rewritable = arch.Rewritable
)

// EnterOptions bundles the parameters shared by Enter/SetContext (spec §6).
type EnterOptions = arch.EnterOptions

// CodePtr is the entry pointer GenerateCode returns (spec §4.7(k)).
type CodePtr = arch.CodePtr
