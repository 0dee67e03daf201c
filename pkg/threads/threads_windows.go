//go:build windows

package threads

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	threadSuspendResume = 0x0002
	threadGetContext    = 0x0008
	threadSetContext    = 0x0010
)

var (
	kernel32dll       = syscall.NewLazyDLL("kernel32.dll")
	procSuspendThread = kernel32dll.NewProc("SuspendThread")
	procResumeThread  = kernel32dll.NewProc("ResumeThread")
)

// NewCoordinator returns a coordinator over the live process.
func NewCoordinator() *Coordinator {
	return newCoordinator(winSystem{})
}

type winSystem struct{}

func (winSystem) Peers() ([]Thread, int, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPTHREAD, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to snapshot process threads: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ThreadEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	if err := windows.Thread32First(snapshot, &entry); err != nil {
		return nil, 0, fmt.Errorf("failed to read first thread entry: %w", err)
	}

	processID := windows.GetCurrentProcessId()
	threadID := windows.GetCurrentThreadId()

	var peers []Thread
	unopened := 0
	for {
		if entry.OwnerProcessID == processID && entry.ThreadID != threadID {
			handle, err := windows.OpenThread(threadSuspendResume|threadGetContext|threadSetContext, false, entry.ThreadID)
			if err != nil {
				// The thread may be gone already, or access denied; either
				// way it stays outside the window and is accounted for.
				unopened++
			} else {
				peers = append(peers, Thread{ID: entry.ThreadID, Handle: uintptr(handle)})
			}
		}

		entry.Size = uint32(unsafe.Sizeof(entry))
		if err := windows.Thread32Next(snapshot, &entry); err != nil {
			break
		}
	}

	return peers, unopened, nil
}

func (winSystem) Suspend(t Thread) error {
	// SuspendThread returns the previous suspend count, or -1 on failure.
	ret, _, err := procSuspendThread.Call(t.Handle)
	if int32(ret) == -1 {
		return err
	}
	return nil
}

func (winSystem) Resume(t Thread) error {
	ret, _, err := procResumeThread.Call(t.Handle)
	if int32(ret) == -1 {
		return err
	}
	return nil
}

func (winSystem) Close(t Thread) error {
	return windows.CloseHandle(windows.Handle(t.Handle))
}
