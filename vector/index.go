// Package vector implements the causal-history engine: for
// every event it maintains the highest sequence observed per validator in
// its past, and stamps ancestors with the lowest descendant per observer
// validator that transitively cites them. Together these two vectors
// support an O(validators) forkless-cause check without walking the DAG.
package vector

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/Fantom-foundation/lachesis-base/inter/pos"

	"github.com/rony4d/lachesis-core/event"
	"github.com/rony4d/lachesis-core/validator"
)

// Index owns no state of its own beyond a logger: HighestObserved and
// LowestObserving live on the Event annotations themselves.
type Index struct {
	log log.Logger
}

// NewIndex returns a causal-history engine.
func NewIndex(logger log.Logger) *Index {
	if logger == nil {
		logger = log.Root()
	}
	return &Index{log: logger}
}

// MergeHighestObserved computes e.HighestObserved from e's parents: for
// each validator V, the max over parents p of max(p.HighestObserved[V],
// seq if p.Creator==V). Cheater parents contribute nothing.
func (ix *Index) MergeHighestObserved(e *event.Event, store *event.Store, reg *validator.Registry) {
	for _, pid := range e.Parents {
		if reg.IsCheater(pid.Creator) {
			continue
		}
		parent, ok := store.Get(pid)
		if !ok {
			continue
		}
		merge := func(v event.ValidatorID, seq idx.Event) {
			if cur, ok := e.HighestObserved[v]; !ok || seq > cur {
				e.HighestObserved[v] = seq
			}
		}
		merge(parent.Creator, parent.Seq())
		for v, seq := range parent.HighestObserved {
			merge(v, seq)
		}
	}
	// an event always observes its own creator's sequence.
	if cur, ok := e.HighestObserved[e.Creator]; !ok || e.Seq() > cur {
		e.HighestObserved[e.Creator] = e.Seq()
	}
}

// StampLowestObserving walks breadth-first from e.Parents: every ancestor
// that has no LowestObserving entry for e.Creator yet is stamped with
// (e.ID, e.Seq) and the walk continues through its parents, except that an
// ancestor created by e.Creator is stamped without queueing its parents.
// The walk never re-crosses an already-stamped ancestor, so the work is
// bounded by the ancestry e newly observes.
func (ix *Index) StampLowestObserving(e *event.Event, store *event.Store, reg *validator.Registry) {
	queue := append([]event.ID(nil), e.Parents...)
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]

		if reg.IsCheater(pid.Creator) {
			continue
		}
		parent, ok := store.Get(pid)
		if !ok {
			continue
		}
		if _, already := parent.LowestObserving[e.Creator]; already {
			continue
		}
		parent.LowestObserving[e.Creator] = event.LowestObservingEntry{
			EventID: e.ID,
			Seq:     e.Seq(),
		}
		if parent.Creator != e.Creator {
			queue = append(queue, parent.Parents...)
		}
	}
}

// ForklessCause reports whether A observes B through a quorum of
// non-cheating validators. It is false whenever either
// creator is a confirmed cheater, or either creator appears in the
// other's observed-cheater list.
func ForklessCause(a, b *event.Event, reg *validator.Registry) bool {
	if reg.IsCheater(a.Creator) || reg.IsCheater(b.Creator) {
		return false
	}
	if reg.HasObservedCheating(a.Creator, b.Creator) || reg.HasObservedCheating(b.Creator, a.Creator) {
		return false
	}

	var yes pos.Weight
	for v, seq := range a.HighestObserved {
		entry, ok := b.LowestObserving[v]
		if !ok {
			continue
		}
		if entry.Seq <= seq {
			yes += reg.Weight(v)
		}
	}
	return yes >= reg.Quorum(b.Frame)
}
