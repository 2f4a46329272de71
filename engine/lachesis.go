// Package engine composes event storage, fork detection, the causal-history
// engine, frame/root assignment, and Atropos election into the
// single-instance Lachesis pipeline, and exposes its read-only query
// surface.
package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/Fantom-foundation/lachesis-base/inter/pos"

	"github.com/rony4d/lachesis-core/atropos"
	"github.com/rony4d/lachesis-core/event"
	"github.com/rony4d/lachesis-core/forkdetect"
	"github.com/rony4d/lachesis-core/frame"
	"github.com/rony4d/lachesis-core/validator"
	"github.com/rony4d/lachesis-core/vector"
)

// ErrConsensusHalted is returned once total effective weight reaches zero
// (every validator confirmed a cheater or zeroed for inactivity); the
// engine accepts no further
// ingests past this point.
var ErrConsensusHalted = errors.New("lachesis: consensus halted, total effective weight is zero")

// ErrMissingAncestor is returned when Ingest is called directly (bypassing
// a coordinator that guarantees parent presence) with a parent not yet in
// the store.
type ErrMissingAncestor struct {
	Event  event.ID
	Parent event.ID
}

func (e *ErrMissingAncestor) Error() string {
	return fmt.Sprintf("lachesis: event %s references missing ancestor %s", e.Event, e.Parent)
}

// Lachesis is a single-instance consensus engine: one per validator in the
// multi-instance deployment, or a single standalone instance.
type Lachesis struct {
	log  log.Logger
	self event.ValidatorID

	store    *event.Store
	registry *validator.Registry
	forks    *forkdetect.Detector
	vectors  *vector.Index
	frames   *frame.Assigner
	election *atropos.Election

	halted      bool
	currentTime int64
}

// New constructs an engine with all components wired together. self names
// the validator this instance runs on behalf of; equivocation evidence
// found directly at ingest time is attributed to it. A standalone engine
// may pass the empty id. logger may be nil, in which case log.Root() is
// used.
func New(self event.ValidatorID, logger log.Logger) *Lachesis {
	if logger == nil {
		logger = log.Root()
	}

	l := &Lachesis{
		log:      logger,
		self:     self,
		store:    event.NewStore(),
		registry: validator.NewRegistry(logger),
		forks:    forkdetect.NewDetector(),
		vectors:  vector.NewIndex(logger),
		frames:   frame.NewAssigner(logger),
	}
	l.election = atropos.NewElection(logger, l.frames, l.store)
	l.frames.OnRoot = func(root *event.Event) {
		l.election.ProcessRoot(root, l.registry)
	}
	return l
}

// SetInactivityThreshold overrides the default 20-timestep inactivity
// window, per config.Rules.InactivityThreshold.
func (l *Lachesis) SetInactivityThreshold(threshold int64) {
	l.registry.SetInactivityThreshold(threshold)
}

// RegisterValidator registers v with weight w, growing the registry the
// same way it grows on first sight of a validator during ingest.
func (l *Lachesis) RegisterValidator(v event.ValidatorID, w pos.Weight) {
	l.registry.Observe(v, w)
}

// Ingest runs the six-step single-instance pipeline for e: store, fork
// detection, causal-history merge and stamp, timestamp bookkeeping and
// inactivity sweep, then frame/root assignment. All of e.Parents must
// already be present in the store; if they are not, ErrMissingAncestor is
// returned (this only happens when the engine is driven directly rather
// than through gossip.Coordinator, which guarantees parent presence before
// delivery). Re-ingesting an identical event (same UUID) is a no-op; a
// different event at an already-stored id is recorded as a fork branch and
// its creator is flagged as a cheater.
func (l *Lachesis) Ingest(d event.Descriptor) error {
	if l.halted {
		return ErrConsensusHalted
	}

	id := event.ID{Creator: d.Creator, Seq: d.Seq}
	if existing, ok := l.store.Get(id); ok {
		fresh := event.New(d)
		if fresh.UUID == existing.UUID {
			// exact duplicate delivery; idempotent.
			return nil
		}
		// A second, distinct event at an occupied identity is an
		// equivocation. The branch is recorded so descendants' ancestry
		// walks can see the collision, and the local instance flags the
		// offender.
		l.store.PutFork(fresh)
		l.log.Debug("consensus: conflicting event at occupied identity",
			"id", id.String(), "uuid", common.Hash(fresh.UUID).TerminalString())
		observer := l.self
		if observer == "" {
			observer = d.Creator
		}
		l.registry.FlagCheater(observer, d.Creator, l.frames.Frame())
		l.registry.InvalidateFrom(l.frames.Frame())
		if l.registry.Halted() {
			l.halted = true
		}
		return nil
	}

	for _, pid := range d.Parents {
		if !l.store.Has(pid) {
			return &ErrMissingAncestor{Event: id, Parent: pid}
		}
	}

	l.registry.Observe(d.Creator, d.Weight)
	if d.Timestamp > l.currentTime {
		l.currentTime = d.Timestamp
	}

	e := event.New(d)

	// 1. store
	l.store.Put(e)

	// 2. fork detection; recompute quorum if any fork evidence was found.
	if l.forks.Detect(e, l.store, l.registry, l.frames.Frame(), l.self) {
		l.registry.InvalidateFrom(l.frames.Frame())
	}

	// 3. merge highest_observed
	l.vectors.MergeHighestObserved(e, l.store, l.registry)

	// 4. stamp ancestors' lowest_observing
	l.vectors.StampLowestObserving(e, l.store, l.registry)

	// 5. timestamp bookkeeping: every parent's creator was already
	// observed when that parent was ingested, so only e's own creator
	// needs recording here, followed by the inactivity sweep.
	l.registry.ObserveTimestamp(e.Creator, e.Timestamp)
	for _, v := range l.registry.Known() {
		l.registry.ApplyInactivity(v, l.currentTime, l.frames.Frame())
	}

	// 6. frame/root assignment, which may trigger Atropos voting.
	l.frames.Assign(e, l.store, l.registry)

	if l.registry.Halted() {
		l.halted = true
	}

	return nil
}

// Frame returns the current highest frame observed.
func (l *Lachesis) Frame() idx.Frame { return l.frames.Frame() }

// Block returns 1 + the number of decided atropos roots.
func (l *Lachesis) Block() int { return l.election.Block() }

// FrameToDecide returns the smallest frame whose atropos is undetermined.
func (l *Lachesis) FrameToDecide() idx.Frame { return l.election.FrameToDecide() }

// AtroposOf returns the elected root of frame f, if decided.
func (l *Lachesis) AtroposOf(f idx.Frame) (event.ID, bool) { return l.election.AtroposOf(f) }

// RootSet returns the root ids of frame f.
func (l *Lachesis) RootSet(f idx.Frame) []event.ID {
	set := l.frames.RootSet(f)
	if set == nil {
		return nil
	}
	out := make([]event.ID, len(set.Events))
	copy(out, set.Events)
	return out
}

// IsCheater reports whether v is a confirmed cheater.
func (l *Lachesis) IsCheater(v event.ValidatorID) bool { return l.registry.IsCheater(v) }

// Event returns the stored, annotated event for id.
func (l *Lachesis) Event(id event.ID) (*event.Event, bool) { return l.store.Get(id) }

// Store exposes the underlying event store for callers (e.g. the gossip
// coordinator) that need direct read access without duplicating state.
func (l *Lachesis) Store() *event.Store { return l.store }

// Registry exposes the validator registry for read access.
func (l *Lachesis) Registry() *validator.Registry { return l.registry }

// Suspected returns the validators this instance has local equivocation
// evidence against, whether or not observer weight has reached quorum yet.
func (l *Lachesis) Suspected() []event.ValidatorID { return l.registry.Suspected() }

// ConfirmCheater force-confirms v, used by a coordinator that has
// aggregated equivocation evidence across instances.
func (l *Lachesis) ConfirmCheater(v event.ValidatorID) {
	l.registry.ConfirmCheater(v, l.frames.Frame())
	if l.registry.Halted() {
		l.halted = true
	}
}
