package pipeline

import (
	"sync"
	"sync/atomic"
)

// State is the phase the replicator is currently in.
type State string

const (
	StateInit          State = "init"
	StateStreaming     State = "streaming"
	StateVerifying     State = "verifying"
	StateRouting       State = "routing"
	StateApplying      State = "applying"
	StateCheckpointing State = "checkpointing"
	StateStopped       State = "stopped"
	StateFatal         State = "fatal"
)

// Stats is a point in time snapshot of a replicator.
type Stats struct {
	State    State  `json:"state"`
	LastSeq  string `json:"last_seq"`
	Received uint64 `json:"received"`
	Applied  uint64 `json:"applied"`
	Inserted uint64 `json:"inserted"`
	Deleted  uint64 `json:"deleted"`
	Skipped  uint64 `json:"skipped"`
}

type stats struct {
	received atomic.Uint64
	applied  atomic.Uint64
	inserted atomic.Uint64
	deleted  atomic.Uint64
	skipped  atomic.Uint64

	mu      sync.RWMutex
	state   State
	lastSeq string
}

func (s *stats) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *stats) setLastSeq(seq string) {
	s.mu.Lock()
	s.lastSeq = seq
	s.mu.Unlock()
}

// Stats is safe to call while Run is in progress.
func (r *Replicator) Stats() Stats {
	r.stats.mu.RLock()
	defer r.stats.mu.RUnlock()

	return Stats{
		State:    r.stats.state,
		LastSeq:  r.stats.lastSeq,
		Received: r.stats.received.Load(),
		Applied:  r.stats.applied.Load(),
		Inserted: r.stats.inserted.Load(),
		Deleted:  r.stats.deleted.Load(),
		Skipped:  r.stats.skipped.Load(),
	}
}
