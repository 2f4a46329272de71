// Package forkdetect tracks, per instance, sequence numbers and
// causal-history overlap used to flag a validator as equivocating.
// Detection is purely local evidence — it never raises an error, it only
// reports offenders to the validator registry, which decides when observer
// weight has crossed quorum.
package forkdetect

import (
	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/lachesis-core/event"
	"github.com/rony4d/lachesis-core/validator"
)

// Detector tracks, per observing instance, the last sequence number seen
// for each creator. Ancestor-sequence-collision detection is scoped to a
// single event's ancestry walk, using a per-walk visited-slot marker.
type Detector struct {
	lastSeq map[event.ValidatorID]idx.Event
}

// NewDetector returns an empty fork detector.
func NewDetector() *Detector {
	return &Detector{
		lastSeq: map[event.ValidatorID]idx.Event{},
	}
}

// Detect runs all four equivocation checks against e, flagging offenders
// on reg and reporting whether any fork evidence was found for e's own
// processing (used by the engine to decide whether to recompute quorum).
//
// observer is the identity of the local instance; evidence found directly
// at ingest time (a broken self-parent chain, duplicate parents, a
// self-citation) is attributed to it. Evidence uncovered inside e's
// ancestry is attributed to e's creator, since the offending structure was
// assembled by whoever authored e. When observer is empty the offender
// itself is recorded as the witness.
func (d *Detector) Detect(e *event.Event, store *event.Store, reg *validator.Registry, currentFrame idx.Frame, observer event.ValidatorID) bool {
	found := false

	flag := func(subject event.ValidatorID) {
		by := observer
		if by == "" {
			by = subject
		}
		reg.FlagCheater(by, subject, currentFrame)
	}

	// (4) self-citation.
	if e.CountsSelfCitation() {
		flag(e.Creator)
		found = true
	}

	// (3) duplicate parent references.
	for creator := range e.DuplicateParentCreators() {
		flag(creator)
		found = true
	}

	// (1) non-monotone self-sequence.
	if last, ok := d.lastSeq[e.Creator]; ok && last >= e.Seq() {
		flag(e.Creator)
		found = true
	} else {
		d.lastSeq[e.Creator] = e.Seq()
	}

	// (2) ancestor sequence collision via BFS stamping.
	if d.walkAncestry(e, store, reg, currentFrame) {
		found = true
	}

	return found
}

// walkAncestry breadth-first scans e's ancestry for (creator, seq) slots
// occupied by more than one distinct event — the fork signature. Branches
// of a fork are tracked by the store alongside the canonical event, so a
// single visit per id suffices.
func (d *Detector) walkAncestry(e *event.Event, store *event.Store, reg *validator.Registry, currentFrame idx.Frame) bool {
	found := false
	queue := append([]event.ID(nil), e.Parents...)
	visited := map[event.ID]struct{}{}

	for len(queue) > 0 {
		aid := queue[0]
		queue = queue[1:]

		if _, seen := visited[aid]; seen {
			continue
		}
		visited[aid] = struct{}{}

		ancestor, ok := store.Get(aid)
		if !ok {
			continue
		}

		if len(store.ForksOf(aid)) > 0 {
			reg.FlagCheater(e.Creator, ancestor.Creator, currentFrame)
			found = true
		}

		queue = append(queue, ancestor.Parents...)
	}

	return found
}
