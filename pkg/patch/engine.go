package patch

import (
	"fmt"
	"log"
	"sync"
)

// Protection is the subset of page protections the engine toggles between.
// Pages are never writable and executable at the same time.
type Protection int

const (
	// ProtReadWrite is used only inside a mutation window.
	ProtReadWrite Protection = iota
	// ProtReadExec is the resting state of every code page the engine touches.
	ProtReadExec
)

// memory is the low-level surface the engine mutates code through. The
// Windows implementation goes through direct syscalls and VirtualProtect;
// tests drive the engine over a fake.
type memory interface {
	// Alloc returns a fresh read-write region of at least size bytes.
	Alloc(size uintptr) (uintptr, error)
	Free(addr, size uintptr) error
	Protect(addr, size uintptr, prot Protection) error
	Write(addr uintptr, data []byte) error
	Read(addr uintptr, buf []byte) error
	// FlushICache invalidates any instruction cache covering the range.
	// Instruction caches are not coherent with data writes everywhere.
	FlushICache(addr, size uintptr)
}

// Hook is one applied redirection. The trampoline region is exclusively
// owned by the hook and released on detach.
type Hook struct {
	// Target is the patched function entry.
	Target uintptr
	// Detour is where the target now jumps.
	Detour uintptr
	// Original is callable and behaves like the un-hooked target.
	Original uintptr

	saved     []byte
	trampSize uintptr
}

// Engine applies and reverts individual hooks. Callers must only invoke it
// inside a coordinated suspend window; the engine itself only guards its
// registry.
type Engine struct {
	mem memory
	gen codegen

	mu    sync.Mutex
	hooks map[uintptr]*Hook
}

func newEngine(mem memory, gen codegen) *Engine {
	return &Engine{
		mem:   mem,
		gen:   gen,
		hooks: make(map[uintptr]*Hook),
	}
}

// Attach redirects target to detour and returns a hook whose Original field
// is a callable preserving the un-hooked behavior. Either the whole patch is
// applied or the target is left byte-for-byte unmodified.
func (e *Engine) Attach(target, detour uintptr) (*Hook, error) {
	if target == 0 || detour == 0 {
		return nil, ErrNilPointer
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.hooks[target]; ok {
		return nil, fmt.Errorf("%w: 0x%X", ErrAlreadyHooked, target)
	}

	window := make([]byte, analysisWindow)
	if err := e.mem.Read(target, window); err != nil {
		return nil, fmt.Errorf("failed to read target prologue at 0x%X: %w", target, err)
	}

	prologueLen, err := e.gen.analyze(window)
	if err != nil {
		return nil, fmt.Errorf("cannot hook 0x%X: %w", target, err)
	}

	saved := make([]byte, prologueLen)
	copy(saved, window[:prologueLen])

	tramp, trampSize, err := e.buildTrampoline(target, saved)
	if err != nil {
		return nil, err
	}

	if err := e.patchTarget(target, detour, saved); err != nil {
		if ferr := e.mem.Free(tramp, trampSize); ferr != nil {
			log.Printf("[WARN] failed to free trampoline at 0x%X: %v\n", tramp, ferr)
		}
		return nil, err
	}

	hook := &Hook{
		Target:    target,
		Detour:    detour,
		Original:  tramp,
		saved:     saved,
		trampSize: trampSize,
	}
	e.hooks[target] = hook
	return hook, nil
}

// buildTrampoline allocates and seals the original-callable region: the
// relocated prologue followed by a jump back into the target past the patch.
// The region is written while read-write and only then flipped executable.
func (e *Engine) buildTrampoline(target uintptr, saved []byte) (uintptr, uintptr, error) {
	body := make([]byte, 0, len(saved)+e.gen.jumpSize())
	body = append(body, saved...)
	body = append(body, e.gen.emitJump(target+uintptr(len(saved)))...)
	size := uintptr(len(body))

	tramp, err := e.mem.Alloc(size)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to allocate trampoline for 0x%X: %w", target, err)
	}

	if err := e.mem.Write(tramp, body); err != nil {
		e.freeQuietly(tramp, size)
		return 0, 0, fmt.Errorf("failed to write trampoline at 0x%X: %w", tramp, err)
	}

	if err := e.mem.Protect(tramp, size, ProtReadExec); err != nil {
		e.freeQuietly(tramp, size)
		return 0, 0, fmt.Errorf("failed to seal trampoline at 0x%X: %w", tramp, err)
	}
	e.mem.FlushICache(tramp, size)

	return tramp, size, nil
}

// patchTarget overwrites the target entry with a jump to the detour. On any
// failure the original bytes are put back before returning.
func (e *Engine) patchTarget(target, detour uintptr, saved []byte) error {
	size := uintptr(len(saved))

	if err := e.mem.Protect(target, size, ProtReadWrite); err != nil {
		return fmt.Errorf("failed to unprotect target 0x%X: %w", target, err)
	}

	if err := e.mem.Write(target, e.gen.emitJump(detour)); err != nil {
		e.restoreQuietly(target, saved)
		e.protectQuietly(target, size)
		return fmt.Errorf("failed to write patch at 0x%X: %w", target, err)
	}

	if err := e.mem.Protect(target, size, ProtReadExec); err != nil {
		// The page is still writable; undo the patch before giving up.
		e.restoreQuietly(target, saved)
		e.protectQuietly(target, size)
		return fmt.Errorf("failed to reprotect target 0x%X: %w", target, err)
	}
	e.mem.FlushICache(target, size)

	return nil
}

// Detach restores the target's saved bytes and releases the trampoline. The
// hook must not be used afterwards.
func (e *Engine) Detach(h *Hook) error {
	if h == nil {
		return ErrNilPointer
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	registered, ok := e.hooks[h.Target]
	if !ok || registered != h {
		return fmt.Errorf("%w: 0x%X", ErrHookNotFound, h.Target)
	}

	size := uintptr(len(h.saved))
	if err := e.mem.Protect(h.Target, size, ProtReadWrite); err != nil {
		return fmt.Errorf("failed to unprotect target 0x%X: %w", h.Target, err)
	}
	if err := e.mem.Write(h.Target, h.saved); err != nil {
		e.protectQuietly(h.Target, size)
		return fmt.Errorf("failed to restore target 0x%X: %w", h.Target, err)
	}
	if err := e.mem.Protect(h.Target, size, ProtReadExec); err != nil {
		return fmt.Errorf("failed to reprotect target 0x%X: %w", h.Target, err)
	}
	e.mem.FlushICache(h.Target, size)

	if err := e.mem.Free(h.Original, h.trampSize); err != nil {
		log.Printf("[WARN] failed to free trampoline at 0x%X: %v\n", h.Original, err)
	}

	delete(e.hooks, h.Target)
	return nil
}

// Hooked reports whether a live hook is registered for the target.
func (e *Engine) Hooked(target uintptr) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.hooks[target]
	return ok
}

func (e *Engine) freeQuietly(addr, size uintptr) {
	if err := e.mem.Free(addr, size); err != nil {
		log.Printf("[WARN] failed to free trampoline at 0x%X: %v\n", addr, err)
	}
}

func (e *Engine) restoreQuietly(target uintptr, saved []byte) {
	if err := e.mem.Write(target, saved); err != nil {
		log.Printf("[ERROR] failed to restore original bytes at 0x%X: %v\n", target, err)
	}
}

func (e *Engine) protectQuietly(target, size uintptr) {
	if err := e.mem.Protect(target, size, ProtReadExec); err != nil {
		log.Printf("[ERROR] failed to reprotect target 0x%X: %v\n", target, err)
	}
	e.mem.FlushICache(target, size)
}
