package patch

import (
	"bytes"
	"errors"
	"testing"
)

// fakeMemory is a sparse fake address space. Allocation hands out regions
// from a counter; protection flips are recorded but not enforced beyond the
// injected failures.
type fakeMemory struct {
	space  map[uintptr]byte
	allocs map[uintptr]uintptr
	next   uintptr

	failAlloc   error
	failProtect func(addr uintptr, prot Protection) error
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{
		space:  make(map[uintptr]byte),
		allocs: make(map[uintptr]uintptr),
		next:   0x7F000000,
	}
}

func (m *fakeMemory) seed(addr uintptr, data []byte) {
	for i, b := range data {
		m.space[addr+uintptr(i)] = b
	}
}

func (m *fakeMemory) bytesAt(addr, n uintptr) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = m.space[addr+uintptr(i)]
	}
	return buf
}

func (m *fakeMemory) Alloc(size uintptr) (uintptr, error) {
	if m.failAlloc != nil {
		return 0, m.failAlloc
	}
	base := m.next
	m.next += size + 0x1000
	m.allocs[base] = size
	return base, nil
}

func (m *fakeMemory) Free(addr, size uintptr) error {
	if _, ok := m.allocs[addr]; !ok {
		return errors.New("free of unallocated region")
	}
	delete(m.allocs, addr)
	return nil
}

func (m *fakeMemory) Protect(addr, size uintptr, prot Protection) error {
	if m.failProtect != nil {
		return m.failProtect(addr, prot)
	}
	return nil
}

func (m *fakeMemory) Write(addr uintptr, data []byte) error {
	m.seed(addr, data)
	return nil
}

func (m *fakeMemory) Read(addr uintptr, buf []byte) error {
	copy(buf, m.bytesAt(addr, uintptr(len(buf))))
	return nil
}

func (m *fakeMemory) FlushICache(addr, size uintptr) {}

const (
	testTarget uintptr = 0x140001000
	testDetour uintptr = 0x7F8000000
)

func nopTarget(mem *fakeMemory) {
	mem.seed(testTarget, bytes.Repeat([]byte{0x90}, analysisWindow))
}

func TestAttachDetachRoundTrip(t *testing.T) {
	mem := newFakeMemory()
	nopTarget(mem)
	e := newEngine(mem, amd64Codegen{})

	h, err := e.Attach(testTarget, testDetour)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if h.Target != testTarget || h.Detour != testDetour || h.Original == 0 {
		t.Fatalf("hook fields wrong: %+v", h)
	}
	if !e.Hooked(testTarget) {
		t.Error("Hooked() = false after attach")
	}

	// The target entry now jumps to the detour; bytes past the patch are
	// untouched.
	if got := mem.bytesAt(testTarget, amd64JumpSize); !bytes.Equal(got, gen.emitJump(testDetour)) {
		t.Errorf("patched entry = % X, want jump to detour", got)
	}
	if got := mem.bytesAt(testTarget+amd64JumpSize, 4); !bytes.Equal(got, []byte{0x90, 0x90, 0x90, 0x90}) {
		t.Errorf("bytes past the patch were modified: % X", got)
	}

	// The trampoline holds the relocated prologue followed by a jump back
	// into the target past the patch.
	trampSize, ok := mem.allocs[h.Original]
	if !ok {
		t.Fatal("trampoline region not allocated")
	}
	wantTramp := append(bytes.Repeat([]byte{0x90}, amd64JumpSize), gen.emitJump(testTarget+amd64JumpSize)...)
	if got := mem.bytesAt(h.Original, trampSize); !bytes.Equal(got, wantTramp) {
		t.Errorf("trampoline = % X, want % X", got, wantTramp)
	}

	if err := e.Detach(h); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if e.Hooked(testTarget) {
		t.Error("Hooked() = true after detach")
	}
	// Bit-identical restoration.
	if got := mem.bytesAt(testTarget, analysisWindow); !bytes.Equal(got, bytes.Repeat([]byte{0x90}, analysisWindow)) {
		t.Errorf("target not restored: % X", got)
	}
	if len(mem.allocs) != 0 {
		t.Errorf("%d trampoline region(s) leaked", len(mem.allocs))
	}
}

func TestAttachArm64RoundTrip(t *testing.T) {
	mem := newFakeMemory()
	mem.seed(testTarget, arm64NopSled(analysisWindow/4))
	e := newEngine(mem, arm64Codegen{})

	h, err := e.Attach(testTarget, testDetour)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if got := mem.bytesAt(testTarget, arm64JumpSize); !bytes.Equal(got, agen.emitJump(testDetour)) {
		t.Errorf("patched entry = % X, want jump to detour", got)
	}
	if err := e.Detach(h); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if got := mem.bytesAt(testTarget, arm64JumpSize); !bytes.Equal(got, arm64NopSled(4)) {
		t.Errorf("target not restored: % X", got)
	}
}

func TestAttachNilPointers(t *testing.T) {
	e := newEngine(newFakeMemory(), amd64Codegen{})
	if _, err := e.Attach(0, testDetour); !errors.Is(err, ErrNilPointer) {
		t.Errorf("null target accepted: %v", err)
	}
	if _, err := e.Attach(testTarget, 0); !errors.Is(err, ErrNilPointer) {
		t.Errorf("null detour accepted: %v", err)
	}
	if err := e.Detach(nil); !errors.Is(err, ErrNilPointer) {
		t.Errorf("nil hook accepted: %v", err)
	}
}

func TestAttachTwiceRejected(t *testing.T) {
	mem := newFakeMemory()
	nopTarget(mem)
	e := newEngine(mem, amd64Codegen{})

	if _, err := e.Attach(testTarget, testDetour); err != nil {
		t.Fatalf("first Attach failed: %v", err)
	}
	if _, err := e.Attach(testTarget, testDetour+8); !errors.Is(err, ErrAlreadyHooked) {
		t.Errorf("second Attach = %v, want ErrAlreadyHooked", err)
	}
}

func TestAttachUnsafeTargetLeavesBytesAlone(t *testing.T) {
	mem := newFakeMemory()
	prologue := append([]byte{0xE9, 0x00, 0x00, 0x00, 0x00}, bytes.Repeat([]byte{0x90}, analysisWindow-5)...)
	mem.seed(testTarget, prologue)
	e := newEngine(mem, amd64Codegen{})

	_, err := e.Attach(testTarget, testDetour)
	if !errors.Is(err, ErrUnsafeTarget) {
		t.Fatalf("Attach = %v, want ErrUnsafeTarget", err)
	}
	if got := mem.bytesAt(testTarget, analysisWindow); !bytes.Equal(got, prologue) {
		t.Errorf("target modified by a failed attach: % X", got)
	}
	if len(mem.allocs) != 0 {
		t.Errorf("%d trampoline region(s) leaked by a failed attach", len(mem.allocs))
	}
}

func TestAttachAllocFailure(t *testing.T) {
	mem := newFakeMemory()
	nopTarget(mem)
	mem.failAlloc = errors.New("out of address space")
	e := newEngine(mem, amd64Codegen{})

	if _, err := e.Attach(testTarget, testDetour); err == nil {
		t.Fatal("Attach succeeded without a trampoline")
	}
	if got := mem.bytesAt(testTarget, analysisWindow); !bytes.Equal(got, bytes.Repeat([]byte{0x90}, analysisWindow)) {
		t.Errorf("target modified by a failed attach: % X", got)
	}
}

func TestAttachUnprotectFailureRollsBack(t *testing.T) {
	mem := newFakeMemory()
	nopTarget(mem)
	mem.failProtect = func(addr uintptr, prot Protection) error {
		if addr == testTarget && prot == ProtReadWrite {
			return errors.New("page is guarded")
		}
		return nil
	}
	e := newEngine(mem, amd64Codegen{})

	if _, err := e.Attach(testTarget, testDetour); err == nil {
		t.Fatal("Attach succeeded despite the protection failure")
	}
	if got := mem.bytesAt(testTarget, analysisWindow); !bytes.Equal(got, bytes.Repeat([]byte{0x90}, analysisWindow)) {
		t.Errorf("target modified by a failed attach: % X", got)
	}
	if len(mem.allocs) != 0 {
		t.Errorf("%d trampoline region(s) leaked by a failed attach", len(mem.allocs))
	}
	if e.Hooked(testTarget) {
		t.Error("failed attach left a registered hook")
	}
}

func TestAttachReprotectFailureRestoresBytes(t *testing.T) {
	mem := newFakeMemory()
	nopTarget(mem)
	armed := false
	mem.failProtect = func(addr uintptr, prot Protection) error {
		// Fail only the flip back to executable on the target page.
		if addr == testTarget && prot == ProtReadExec && armed {
			return errors.New("protect refused")
		}
		if addr == testTarget && prot == ProtReadWrite {
			armed = true
		}
		return nil
	}
	e := newEngine(mem, amd64Codegen{})

	if _, err := e.Attach(testTarget, testDetour); err == nil {
		t.Fatal("Attach succeeded despite the reprotect failure")
	}
	if got := mem.bytesAt(testTarget, analysisWindow); !bytes.Equal(got, bytes.Repeat([]byte{0x90}, analysisWindow)) {
		t.Errorf("original bytes not restored: % X", got)
	}
	if len(mem.allocs) != 0 {
		t.Errorf("%d trampoline region(s) leaked", len(mem.allocs))
	}
}

func TestDetachForeignHookRejected(t *testing.T) {
	mem := newFakeMemory()
	nopTarget(mem)
	e := newEngine(mem, amd64Codegen{})

	h, err := e.Attach(testTarget, testDetour)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	stranger := &Hook{Target: testTarget, Detour: testDetour}
	if err := e.Detach(stranger); !errors.Is(err, ErrHookNotFound) {
		t.Errorf("Detach of a foreign hook = %v, want ErrHookNotFound", err)
	}

	if err := e.Detach(h); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if err := e.Detach(h); !errors.Is(err, ErrHookNotFound) {
		t.Errorf("double Detach = %v, want ErrHookNotFound", err)
	}
}
