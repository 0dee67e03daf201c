package patch

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"
)

// arm64 patch: LDR X16 from the literal 8 bytes ahead, BR X16, then the
// 8-byte destination literal. Two instructions plus the trailer, 16 bytes.
const (
	arm64JumpSize = 16

	arm64LdrX16Lit8 = 0x58000050 // LDR X16, #8
	arm64BrX16      = 0xD61F0200 // BR X16
)

type arm64Codegen struct{}

func (arm64Codegen) jumpSize() int {
	return arm64JumpSize
}

func (arm64Codegen) emitJump(to uintptr) []byte {
	seq := make([]byte, arm64JumpSize)
	binary.LittleEndian.PutUint32(seq[0:], arm64LdrX16Lit8)
	binary.LittleEndian.PutUint32(seq[4:], arm64BrX16)
	binary.LittleEndian.PutUint64(seq[8:], uint64(to))
	return seq
}

// analyze checks the fixed four-instruction window. Instructions are all the
// same width, so the relocated prologue is always exactly the patch size.
func (arm64Codegen) analyze(code []byte) (int, error) {
	if len(code) < arm64JumpSize {
		return 0, ErrShortFunction
	}
	for off := 0; off < arm64JumpSize; off += 4 {
		inst, err := arm64asm.Decode(code[off:])
		if err != nil {
			return 0, fmt.Errorf("%w: undecodable instruction at offset %d: %v", ErrShortFunction, off, err)
		}
		for _, a := range inst.Args {
			if a == nil {
				break
			}
			if _, ok := a.(arm64asm.PCRel); ok {
				return 0, fmt.Errorf("%w: %s at offset %d", ErrUnsafeTarget, inst.Op, off)
			}
		}
	}
	return arm64JumpSize, nil
}
