package image

import (
	"encoding/binary"
	"fmt"
)

const dosHeaderSize = 64

// peHeaderOffset validates the DOS header and returns e_lfanew, the offset of
// the PE signature from the image base. The offset is bounded only by the
// image's own layout; linkers are free to place the PE header past any fixed
// stub size.
func peHeaderOffset(dos []byte) (uint32, error) {
	if len(dos) < dosHeaderSize {
		return 0, fmt.Errorf("DOS header truncated at %d bytes", len(dos))
	}
	if dos[0] != 'M' || dos[1] != 'Z' {
		return 0, fmt.Errorf("invalid DOS signature")
	}
	return binary.LittleEndian.Uint32(dos[60:]), nil
}

// isPESignature reports whether sig starts with the 4-byte "PE\0\0" marker.
func isPESignature(sig []byte) bool {
	return len(sig) >= 4 && sig[0] == 'P' && sig[1] == 'E' && sig[2] == 0 && sig[3] == 0
}
