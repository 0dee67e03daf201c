//go:build windows

package image

import (
	"fmt"
	"unsafe"

	"github.com/Binject/debug/pe"
	"golang.org/x/sys/windows"
)

// Load locates the main executable in memory and parses its headers in place.
// The parse happens once at startup; the result is read-only.
func Load() (*Image, error) {
	handle, err := windows.GetModuleHandle(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get main module handle: %w", err)
	}
	return loadAt(uintptr(handle))
}

func loadAt(base uintptr) (*Image, error) {
	dos := unsafe.Slice((*byte)(unsafe.Pointer(base)), dosHeaderSize)
	peOffset, err := peHeaderOffset(dos)
	if err != nil {
		return nil, fmt.Errorf("module base 0x%X: %w", base, err)
	}

	sig := unsafe.Slice((*byte)(unsafe.Pointer(base+uintptr(peOffset))), 4)
	if !isPESignature(sig) {
		return nil, fmt.Errorf("invalid PE signature at module base 0x%X", base)
	}

	// SizeOfImage lives at offset 56 of the OptionalHeader, which starts 24
	// bytes past the PE signature.
	sizeOfImage := *(*uint32)(unsafe.Pointer(base + uintptr(peOffset) + 24 + 56))

	dataSlice := unsafe.Slice((*byte)(unsafe.Pointer(base)), sizeOfImage)
	file, err := pe.NewFileFromMemory(&memoryReaderAt{data: dataSlice})
	if err != nil {
		return nil, fmt.Errorf("failed to parse PE headers: %w", err)
	}
	defer file.Close()

	var preferredBase uintptr
	switch hdr := file.OptionalHeader.(type) {
	case *pe.OptionalHeader64:
		preferredBase = uintptr(hdr.ImageBase)
	case *pe.OptionalHeader32:
		preferredBase = uintptr(hdr.ImageBase)
	default:
		return nil, fmt.Errorf("unsupported optional header type %T", file.OptionalHeader)
	}

	sections := make([]Section, 0, len(file.Sections))
	for _, s := range file.Sections {
		sections = append(sections, Section{
			Name:           s.Name,
			VirtualAddress: s.VirtualAddress,
		})
	}

	return New(base, preferredBase, sections)
}

// memoryReaderAt implements io.ReaderAt for in-memory data.
type memoryReaderAt struct {
	data []byte
}

func (r *memoryReaderAt) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off >= int64(len(r.data)) {
		return 0, fmt.Errorf("offset out of range")
	}
	n = copy(p, r.data[off:])
	if n < len(p) {
		err = fmt.Errorf("EOF")
	}
	return n, err
}
