package ledger

// Sequencer issues the strictly monotonic sequence numbers that define
// the single total order of all matching-relevant facts.
type Sequencer struct {
	next uint64
}

// NewSequencer starts issuing from start+1; pass the last replayed
// sequence to resume after loading an archived run.
func NewSequencer(start uint64) *Sequencer {
	return &Sequencer{next: start}
}

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 {
	s.next++
	return s.next
}

// Current returns the last issued sequence number.
func (s *Sequencer) Current() uint64 {
	return s.next
}
