// Package frame decides whether a newly ingested event is a root, and in
// which frame, based on whether it forkless-causes a quorum of the
// previous frame's roots.
package frame

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/Fantom-foundation/lachesis-base/inter/pos"

	"github.com/rony4d/lachesis-core/event"
	"github.com/rony4d/lachesis-core/validator"
	"github.com/rony4d/lachesis-core/vector"
)

// RootSet tracks, for one frame, the root event ids and the set of
// creators already represented in that frame's root set.
type RootSet struct {
	Events   []event.ID
	Creators map[event.ValidatorID]struct{}
}

func newRootSet() *RootSet {
	return &RootSet{Creators: map[event.ValidatorID]struct{}{}}
}

// RootListener is notified whenever a new root is registered, so Atropos
// election can be advanced from the same call site without frame importing
// atropos (which would create an import cycle — the engine wires the two
// together instead).
type RootListener func(root *event.Event)

// Assigner owns the root set for every frame seen so far.
type Assigner struct {
	log log.Logger

	rootSets  map[idx.Frame]*RootSet
	rootIndex map[event.ID]*event.Event
	frame     idx.Frame

	OnRoot RootListener
}

// NewAssigner returns an assigner with frame 1 seeded as the current
// engine frame (no roots yet — Assign registers each sequence-1 event as a
// genesis root as it arrives).
func NewAssigner(logger log.Logger) *Assigner {
	if logger == nil {
		logger = log.Root()
	}
	return &Assigner{
		log:      logger,
		rootSets: map[idx.Frame]*RootSet{},
		frame:    1,
	}
}

// Frame returns the highest frame observed so far.
func (a *Assigner) Frame() idx.Frame { return a.frame }

// RootSet returns the root set for frame f (nil if frame f has no roots
// yet).
func (a *Assigner) RootSet(f idx.Frame) *RootSet {
	return a.rootSets[f]
}

// Assign determines e's frame and whether it becomes a root. e's
// HighestObserved/LowestObserving annotations must already be populated.
// store and reg provide lookups for the self-parent and forkless-cause
// weight sums.
func (a *Assigner) Assign(e *event.Event, store *event.Store, reg *validator.Registry) {
	if e.Seq() == 1 {
		e.Frame = 1
		a.registerRoot(e, reg)
		return
	}

	selfParentID, ok := e.SelfParentID()
	if !ok {
		// malformed non-genesis event with no resolvable self-parent;
		// nothing further to assign.
		return
	}
	selfParent, ok := store.Get(selfParentID)
	if !ok {
		return
	}

	e.Frame = selfParent.Frame

	if reg.IsCheater(e.Creator) {
		return
	}

	if a.forklessCausesQuorum(e, selfParent.Frame, reg) {
		e.Frame = selfParent.Frame + 1
		a.registerRoot(e, reg)
	}
}

func (a *Assigner) forklessCausesQuorum(e *event.Event, f idx.Frame, reg *validator.Registry) bool {
	roots := a.rootSets[f]
	if roots == nil {
		return false
	}
	var sum pos.Weight
	for _, rid := range roots.Events {
		// the root's own stored event carries the weight and annotations
		// needed for the forkless-cause check; callers populate e before
		// calling Assign so this lookup always succeeds for live roots.
		root := a.lookupRoot(rid)
		if root == nil {
			continue
		}
		if vector.ForklessCause(e, root, reg) {
			sum += reg.Weight(root.Creator)
		}
	}
	return sum >= reg.Quorum(f)
}

// lookupRoot resolves a root id to its stored event; rootIndex is
// populated by registerRoot and never pruned, since roots live as long as
// the engine does.
func (a *Assigner) lookupRoot(id event.ID) *event.Event {
	return a.rootIndex[id]
}

func (a *Assigner) registerRoot(e *event.Event, reg *validator.Registry) {
	if reg.IsCheater(e.Creator) {
		// cheaters never become roots; their events only keep a frame for
		// bookkeeping.
		return
	}

	e.IsRoot = true

	set, ok := a.rootSets[e.Frame]
	if !ok {
		set = newRootSet()
		a.rootSets[e.Frame] = set
	}
	set.Events = append(set.Events, e.ID)
	set.Creators[e.Creator] = struct{}{}

	if a.rootIndex == nil {
		a.rootIndex = map[event.ID]*event.Event{}
	}
	a.rootIndex[e.ID] = e

	if e.Frame > a.frame {
		a.frame = e.Frame
	}

	if a.OnRoot != nil {
		a.OnRoot(e)
	}
}
