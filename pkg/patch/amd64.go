package patch

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// amd64 patch: JMP [RIP+0] followed by the 8-byte destination literal.
// 6 bytes of instruction plus 8 bytes of trailer.
const amd64JumpSize = 14

type amd64Codegen struct{}

func (amd64Codegen) jumpSize() int {
	return amd64JumpSize
}

func (amd64Codegen) emitJump(to uintptr) []byte {
	seq := make([]byte, amd64JumpSize)
	seq[0] = 0xFF // JMP [RIP+0]
	seq[1] = 0x25
	// 4-byte zero displacement: the literal sits right after the instruction.
	binary.LittleEndian.PutUint64(seq[6:], uint64(to))
	return seq
}

// analyze walks instruction boundaries until the patch window is covered.
// Instructions are variable width, so the relocated prologue may end up a
// few bytes longer than the patch itself.
func (amd64Codegen) analyze(code []byte) (int, error) {
	length := 0
	for length < amd64JumpSize {
		if length >= len(code) {
			return 0, ErrShortFunction
		}
		inst, err := x86asm.Decode(code[length:], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: undecodable instruction at offset %d: %v", ErrShortFunction, length, err)
		}
		if !relocatable(inst) {
			return 0, fmt.Errorf("%w: %s at offset %d", ErrUnsafeTarget, inst.Op, length)
		}
		length += inst.Len
	}
	return length, nil
}

// relocatable reports whether an instruction keeps its meaning when copied
// to a different address: anything RIP-relative or with a relative branch
// operand does not.
func relocatable(inst x86asm.Inst) bool {
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		if mem, ok := a.(x86asm.Mem); ok && mem.Base == x86asm.RIP {
			return false
		}
		if _, ok := a.(x86asm.Rel); ok {
			return false
		}
	}
	return true
}
