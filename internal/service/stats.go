package service

import "sync/atomic"

// Tally keeps process-local delivery outcome counters for the stats
// endpoint. Prometheus carries the same numbers for scraping; this one is
// readable without a registry round-trip.
type Tally struct {
	delivered atomic.Uint64
	queued    atomic.Uint64
	dropped   atomic.Uint64
}

func NewTally() *Tally { return &Tally{} }

func (t *Tally) Record(o Outcome) {
	switch o {
	case Delivered:
		t.delivered.Add(1)
	case Queued:
		t.queued.Add(1)
	case Dropped:
		t.dropped.Add(1)
	}
}

func (t *Tally) Snapshot() (delivered, queued, dropped uint64) {
	return t.delivered.Load(), t.queued.Load(), t.dropped.Load()
}
