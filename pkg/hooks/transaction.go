// Package hooks batches attach/detach requests into atomic transactions
// applied while every peer thread is suspended, and tracks which extension
// owns which hook.
package hooks

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"gamehook/pkg/patch"
	"gamehook/pkg/threads"
)

// State is the transaction lifecycle.
type State int

const (
	// Invalid is the initial state and the state after a failed start.
	Invalid State = iota
	// Started means peer threads are suspended and patches may be applied.
	Started
	// Committed is terminal: patches kept, threads resumed.
	Committed
	// Aborted is terminal: patches rolled back, threads resumed.
	Aborted
	// Failed is terminal: the resume primitive itself failed and the
	// process's thread state can no longer be trusted.
	Failed
)

func (s State) String() string {
	switch s {
	case Invalid:
		return "invalid"
	case Started:
		return "started"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Engine is the patch surface a transaction drives.
type Engine interface {
	Attach(target, detour uintptr) (*patch.Hook, error)
	Detach(h *patch.Hook) error
}

// Coordinator is the suspend window a transaction runs inside.
type Coordinator interface {
	SuspendPeers() (threads.Report, error)
	ResumePeers() error
}

var (
	// ErrThreadStateUnknown is fatal: peer threads may still be suspended.
	ErrThreadStateUnknown = errors.New("failed to resume peer threads, thread state unknown")
	// ErrNotStarted means the transaction is not in the Started state.
	ErrNotStarted = errors.New("transaction is not started")
)

// transactions are serialized process-wide: one suspend window at a time.
var txMu sync.Mutex

type detachedHook struct {
	target uintptr
	detour uintptr
}

// Transaction is one atomic batch of hook mutations. Begin it, apply work,
// then Commit or Abort exactly once; Close makes scope-based cleanup safe on
// every exit path.
type Transaction struct {
	engine Engine
	coord  Coordinator
	state  State

	attached []*patch.Hook
	detached []detachedHook
}

// Begin suspends every peer thread and opens the mutation window. The whole
// window is a stop-the-world pause for the process: keep it short.
func Begin(engine Engine, coord Coordinator) (*Transaction, error) {
	txMu.Lock()

	tx := &Transaction{engine: engine, coord: coord, state: Invalid}

	report, err := coord.SuspendPeers()
	if err != nil {
		txMu.Unlock()
		return nil, fmt.Errorf("could not start transaction: %w", err)
	}
	if report.Skipped > 0 {
		log.Printf("[WARN] transaction window is partial: %d thread(s) suspended, %d skipped\n", report.Suspended, report.Skipped)
	}

	tx.state = Started
	return tx, nil
}

// State returns the transaction's current state.
func (tx *Transaction) State() State {
	return tx.state
}

// Attach applies one hook inside the window. A failure affects only this
// hook; the transaction stays usable and the caller decides whether to
// degrade that one feature or abort the batch.
func (tx *Transaction) Attach(target, detour uintptr) (*patch.Hook, error) {
	if tx.state != Started {
		return nil, fmt.Errorf("%w: state is %s", ErrNotStarted, tx.state)
	}
	h, err := tx.engine.Attach(target, detour)
	if err != nil {
		return nil, err
	}
	tx.attached = append(tx.attached, h)
	return h, nil
}

// Detach reverts one hook inside the window. Aborting the transaction puts
// the hook back.
func (tx *Transaction) Detach(h *patch.Hook) error {
	if tx.state != Started {
		return fmt.Errorf("%w: state is %s", ErrNotStarted, tx.state)
	}
	target, detour := h.Target, h.Detour
	if err := tx.engine.Detach(h); err != nil {
		return err
	}
	tx.detached = append(tx.detached, detachedHook{target: target, detour: detour})
	return nil
}

// Commit keeps every patch applied so far and resumes peer threads
// unconditionally.
func (tx *Transaction) Commit() error {
	if tx.state != Started {
		return fmt.Errorf("cannot commit: state is %s", tx.state)
	}
	return tx.finish(Committed)
}

// Abort undoes every patch applied within this transaction, newest first,
// then resumes peer threads unconditionally.
func (tx *Transaction) Abort() error {
	if tx.state != Started {
		return fmt.Errorf("cannot abort: state is %s", tx.state)
	}

	for i := len(tx.attached) - 1; i >= 0; i-- {
		h := tx.attached[i]
		if err := tx.engine.Detach(h); err != nil {
			log.Printf("[ERROR] rollback could not detach hook at 0x%X: %v\n", h.Target, err)
		}
	}
	for i := len(tx.detached) - 1; i >= 0; i-- {
		d := tx.detached[i]
		if _, err := tx.engine.Attach(d.target, d.detour); err != nil {
			log.Printf("[ERROR] rollback could not re-attach hook at 0x%X: %v\n", d.target, err)
		}
	}

	return tx.finish(Aborted)
}

// Close aborts a transaction that is still open. Deferred right after Begin,
// it guarantees peer threads are resumed exactly once on every exit path.
func (tx *Transaction) Close() error {
	if tx.state != Started {
		return nil
	}
	return tx.Abort()
}

func (tx *Transaction) finish(terminal State) error {
	err := tx.coord.ResumePeers()
	if err != nil {
		tx.state = Failed
		txMu.Unlock()
		return fmt.Errorf("%w: %v", ErrThreadStateUnknown, err)
	}
	tx.state = terminal
	txMu.Unlock()
	return nil
}
