// Package threads suspends and resumes every OS thread of the current
// process except the caller's own, producing a window in which live code can
// be mutated without another thread executing through it.
package threads

import (
	"fmt"
	"log"
)

// Thread is one enumerated peer thread and its open OS handle.
type Thread struct {
	ID     uint32
	Handle uintptr
}

// Report is the partial-success outcome of a suspend pass. A skipped thread
// is a documented residual risk, not a failure: callers can reason about it
// instead of getting a bare boolean.
type Report struct {
	Suspended int
	Skipped   int
}

// system is the OS surface the coordinator drives. Split out so the handle
// and state accounting can be exercised with a fake.
type system interface {
	// Peers enumerates every thread of the current process except the
	// calling thread, with handles already open. unopened counts threads
	// that were seen but whose handles could not be opened; they stay
	// outside the suspend window.
	Peers() (peers []Thread, unopened int, err error)
	Suspend(t Thread) error
	Resume(t Thread) error
	Close(t Thread) error
}

// Coordinator owns one suspend/resume cycle. Not safe for concurrent use;
// the hook transaction serializes access.
type Coordinator struct {
	sys       system
	suspended []Thread
}

func newCoordinator(sys system) *Coordinator {
	return &Coordinator{sys: sys}
}

// SuspendPeers enumerates and suspends every peer thread. A thread that
// cannot be suspended is logged, its handle closed, and the pass continues.
// Failure to enumerate at all degrades the safety window and is logged at
// warning level, but does not block the caller.
func (c *Coordinator) SuspendPeers() (Report, error) {
	if len(c.suspended) != 0 {
		return Report{}, fmt.Errorf("peers are already suspended")
	}

	peers, unopened, err := c.sys.Peers()
	if err != nil {
		log.Printf("[WARN] could not enumerate process threads, continuing without a suspend window: %v\n", err)
		return Report{}, nil
	}

	var report Report
	if unopened > 0 {
		log.Printf("[WARN] could not open %d thread(s), they stay outside the suspend window\n", unopened)
		report.Skipped += unopened
	}
	for _, t := range peers {
		if err := c.sys.Suspend(t); err != nil {
			log.Printf("[WARN] could not suspend thread %d, skipping it: %v\n", t.ID, err)
			if cerr := c.sys.Close(t); cerr != nil {
				log.Printf("[WARN] could not close handle of thread %d: %v\n", t.ID, cerr)
			}
			report.Skipped++
			continue
		}
		c.suspended = append(c.suspended, t)
		report.Suspended++
	}

	return report, nil
}

// ResumePeers resumes every thread suspended by the last SuspendPeers call
// and closes all handles, whether or not the intervening mutation succeeded.
// A resume failure is returned: at that point the process's thread state can
// no longer be trusted.
func (c *Coordinator) ResumePeers() error {
	var firstErr error
	for _, t := range c.suspended {
		if err := c.sys.Resume(t); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("could not resume thread %d: %w", t.ID, err)
		}
		if err := c.sys.Close(t); err != nil {
			log.Printf("[WARN] could not close handle of thread %d: %v\n", t.ID, err)
		}
	}
	c.suspended = nil
	return firstErr
}
