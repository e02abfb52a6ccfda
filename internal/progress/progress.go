// Package progress implements the shared status channel between the
// patch worker and an external observer (spec.md §5): a single
// ProgressRecord protected by a mutex, written by the worker after every
// hunk/action and polled by the observer at its own cadence. No
// condition-variable wakeups are required or provided; the observer is
// expected to poll (e.g. every 16ms) and stop once IsDone is true.
package progress

import "sync"

// IterStatus is the decoder's iteration state as of the most recent
// publication.
type IterStatus int

const (
	// None means no hunk/action has been processed yet.
	None IterStatus = iota
	// Next means at least one hunk/action was successfully applied and
	// more may follow.
	Next
	// Done means the decoder reached its natural end (IPS EOF marker, or
	// BPS's out_pos == target_size) and any trailer checks passed.
	Done
	// IoError means the worker terminated on an I/O or decode failure.
	IoError
)

func (s IterStatus) String() string {
	switch s {
	case None:
		return "None"
	case Next:
		return "Next"
	case Done:
		return "Done"
	case IoError:
		return "IoError"
	default:
		return "Unknown"
	}
}

// Record is an immutable-by-convention snapshot of the worker's
// progress; the worker publishes a fresh value after each hunk/action,
// it is never mutated in place once published.
type Record struct {
	HunkCount  uint64
	IterStatus IterStatus
	Err        error
	IsDone     bool
}

// Channel is the mutex-guarded shadow copy of a Record, safely readable
// by an observer running on a different goroutine than the worker that
// publishes to it.
type Channel struct {
	mu  sync.Mutex
	rec Record
}

// Publish overwrites the shared record from the worker's local copy.
// Safe to call from exactly one writer (the worker); once a Record with
// IsDone set is published, no further Publish calls are expected.
func (c *Channel) Publish(r Record) {
	c.mu.Lock()
	c.rec = r
	c.mu.Unlock()
}

// Snapshot copies out the current record for the observer.
func (c *Channel) Snapshot() Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec
}
