//go:build windows

package patch

import (
	"fmt"
	"syscall"
	"unsafe"

	winapi "github.com/carved4/go-native-syscall"
	"golang.org/x/sys/windows"
)

const (
	currentProcess = ^uintptr(0)

	memCommit  = 0x00001000
	memReserve = 0x00002000
	memRelease = 0x00008000
)

var (
	kernel32dll               = syscall.NewLazyDLL("kernel32.dll")
	procFlushInstructionCache = kernel32dll.NewProc("FlushInstructionCache")
)

// NewEngine returns an engine over the live process, with jump synthesis for
// the running architecture.
func NewEngine() (*Engine, error) {
	gen, err := nativeCodegen()
	if err != nil {
		return nil, err
	}
	return newEngine(winMemory{}, gen), nil
}

// winMemory mutates the process through direct NT syscalls for allocation
// and VirtualProtect for protection flips. Writes are plain stores: the
// engine only writes pages it has already made writable.
type winMemory struct{}

func (winMemory) Alloc(size uintptr) (uintptr, error) {
	var base uintptr
	regionSize := size
	status, err := winapi.NtAllocateVirtualMemory(currentProcess, &base, 0, &regionSize, memCommit|memReserve, windows.PAGE_READWRITE)
	if status != 0 {
		return 0, fmt.Errorf("NtAllocateVirtualMemory failed: status=0x%X, err=%v", status, err)
	}
	return base, nil
}

func (winMemory) Free(addr, size uintptr) error {
	base := addr
	regionSize := uintptr(0) // MEM_RELEASE frees the whole allocation
	status, err := winapi.NtFreeVirtualMemory(currentProcess, &base, &regionSize, memRelease)
	if status != 0 {
		return fmt.Errorf("NtFreeVirtualMemory failed: status=0x%X, err=%v", status, err)
	}
	return nil
}

func (winMemory) Protect(addr, size uintptr, prot Protection) error {
	var newProtect uint32
	switch prot {
	case ProtReadWrite:
		newProtect = windows.PAGE_READWRITE
	case ProtReadExec:
		newProtect = windows.PAGE_EXECUTE_READ
	default:
		return fmt.Errorf("unknown protection %d", prot)
	}

	var oldProtect uint32
	if err := windows.VirtualProtect(addr, size, newProtect, &oldProtect); err != nil {
		return fmt.Errorf("VirtualProtect(0x%X, %d, 0x%X) failed: %w", addr, size, newProtect, err)
	}
	return nil
}

func (winMemory) Write(addr uintptr, data []byte) error {
	dst := unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(data))
	copy(dst, data)
	return nil
}

func (winMemory) Read(addr uintptr, buf []byte) error {
	src := unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(buf))
	copy(buf, src)
	return nil
}

func (winMemory) FlushICache(addr, size uintptr) {
	procFlushInstructionCache.Call(uintptr(windows.CurrentProcess()), addr, size)
}
