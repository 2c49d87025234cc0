// Package sequence issues the monotonic sequence numbers that key
// outbox records.
package sequence

import "sync/atomic"

// Sequencer generates strictly monotonic sequence IDs.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer that resumes after start: the first Next
// returns start+1. A reopened outbox seeds start with its highest
// stored sequence.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next sequence ID.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}
