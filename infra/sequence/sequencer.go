package sequence

import "sync/atomic"

// Sequencer hands out strictly monotonic sequence IDs. Execution reports
// are keyed by these in the outbox, so downstream consumers can order and
// dedupe redeliveries.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer that issues IDs greater than start.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next sequence ID.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued sequence.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}
