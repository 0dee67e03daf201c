package hooks

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"gamehook/pkg/patch"
)

// Owner identifies who attached a hook, so an unloading extension can drop
// everything it owns in one pass. The owner is data, not behavior.
type Owner = uuid.UUID

// NewOwner mints a fresh owner handle.
func NewOwner() Owner {
	return uuid.New()
}

// Resolver is the identifier-to-pointer surface the system consumes.
type Resolver interface {
	Resolve(hash uint32) uintptr
}

// ErrUnresolved means the identifier is not known for this binary version.
// The feature behind it is unavailable; callers skip it and continue.
var ErrUnresolved = errors.New("identifier did not resolve for this binary version")

// System is the public hooking facade: it resolves identifiers, runs each
// request in its own transaction and keeps the owner registry.
type System struct {
	engine   Engine
	coord    Coordinator
	resolver Resolver

	mu    sync.Mutex
	owned map[Owner][]*patch.Hook
}

// NewSystem builds the facade over an engine, a thread coordinator and a
// resolver.
func NewSystem(engine Engine, coord Coordinator, resolver Resolver) *System {
	return &System{
		engine:   engine,
		coord:    coord,
		resolver: resolver,
		owned:    make(map[Owner][]*patch.Hook),
	}
}

// AttachHash resolves an identifier hash and attaches a detour to it. A
// resolution miss is reported as ErrUnresolved, not applied half-way.
func (s *System) AttachHash(owner Owner, hash uint32, detour uintptr) (uintptr, error) {
	target := s.resolver.Resolve(hash)
	if target == 0 {
		log.Printf("[WARN] identifier 0x%08X is not known for this binary, skipping hook\n", hash)
		return 0, fmt.Errorf("%w: 0x%08X", ErrUnresolved, hash)
	}
	return s.Attach(owner, target, detour)
}

// Attach hooks a resolved target inside a single-hook transaction and
// records it under the owner. Returns the original-callable pointer.
func (s *System) Attach(owner Owner, target, detour uintptr) (uintptr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := Begin(s.engine, s.coord)
	if err != nil {
		return 0, err
	}
	defer tx.Close()

	h, err := tx.Attach(target, detour)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.owned[owner] = append(s.owned[owner], h)
	return h.Original, nil
}

// Detach removes the owner's hook at the given target.
func (s *System) Detach(owner Owner, target uintptr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hooksOf := s.owned[owner]
	idx := -1
	for i, h := range hooksOf {
		if h.Target == target {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%w: owner has no hook at 0x%X", patch.ErrHookNotFound, target)
	}

	tx, err := Begin(s.engine, s.coord)
	if err != nil {
		return err
	}
	defer tx.Close()

	if err := tx.Detach(hooksOf[idx]); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.owned[owner] = append(hooksOf[:idx], hooksOf[idx+1:]...)
	if len(s.owned[owner]) == 0 {
		delete(s.owned, owner)
	}
	return nil
}

// DetachAll removes every hook the owner holds, in one transaction. Used
// when an extension unloads. Returns how many hooks were detached.
func (s *System) DetachAll(owner Owner) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detachAllLocked(owner)
}

// Shutdown detaches every dangling hook of every owner.
func (s *System) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for owner := range s.owned {
		count, err := s.detachAllLocked(owner)
		total += count
		if err != nil {
			log.Printf("[WARN] could not detach all hooks of owner %s: %v\n", owner, err)
		}
	}
	log.Printf("[INFO] %d dangling hook(s) detached\n", total)
}

func (s *System) detachAllLocked(owner Owner) (int, error) {
	hooksOf := s.owned[owner]
	if len(hooksOf) == 0 {
		return 0, nil
	}

	tx, err := Begin(s.engine, s.coord)
	if err != nil {
		return 0, err
	}
	defer tx.Close()

	count := 0
	remaining := make([]*patch.Hook, 0, len(hooksOf))
	for _, h := range hooksOf {
		if err := tx.Detach(h); err != nil {
			log.Printf("[WARN] could not detach hook at 0x%X: %v\n", h.Target, err)
			remaining = append(remaining, h)
			continue
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return count, err
	}

	if len(remaining) == 0 {
		delete(s.owned, owner)
	} else {
		s.owned[owner] = remaining
	}
	return count, nil
}

// Count returns how many live hooks the owner holds.
func (s *System) Count(owner Owner) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owned[owner])
}
