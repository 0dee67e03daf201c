// Package patch redirects control flow at a target address to a detour while
// preserving a callable path to the original function body.
package patch

import (
	"fmt"
	"runtime"
)

// codegen synthesizes the per-architecture jump sequences and validates that
// a target's prologue can be safely relocated into a trampoline.
type codegen interface {
	// jumpSize is the number of bytes the patch overwrites at the target.
	jumpSize() int
	// emitJump builds an absolute indirect jump to the given address,
	// ending in a literal trailer holding the address itself.
	emitJump(to uintptr) []byte
	// analyze returns how many prologue bytes must be relocated: at least
	// jumpSize, rounded up to an instruction boundary. It fails when the
	// window contains a PC-relative instruction or runs out of decodable
	// code before covering the patch.
	analyze(code []byte) (int, error)
}

// analysisWindow is how many target bytes are examined; generously larger
// than any patch so instruction decoding never runs off the edge.
const analysisWindow = 32

func newCodegen(arch string) (codegen, error) {
	switch arch {
	case "amd64":
		return amd64Codegen{}, nil
	case "arm64":
		return arm64Codegen{}, nil
	}
	return nil, fmt.Errorf("unsupported architecture %s", arch)
}

func nativeCodegen() (codegen, error) {
	return newCodegen(runtime.GOARCH)
}
