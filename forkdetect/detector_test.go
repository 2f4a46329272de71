package forkdetect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/lachesis-core/event"
	"github.com/rony4d/lachesis-core/validator"
)

func newEvent(creator event.ValidatorID, seq idx.Event, parents ...event.ID) *event.Event {
	return event.New(event.Descriptor{
		Creator: creator,
		Seq:     seq,
		Weight:  1,
		Parents: parents,
	})
}

func id(creator event.ValidatorID, seq idx.Event) event.ID {
	return event.ID{Creator: creator, Seq: seq}
}

// TestNonMonotoneSelfSequence verifies a repeated or decreasing sequence
// number marks the creator a suspect with the local observer.
func TestNonMonotoneSelfSequence(t *testing.T) {
	store := event.NewStore()
	reg := validator.NewRegistry(nil)
	reg.Observe("A", 1)
	d := NewDetector()

	first := newEvent("A", 1)
	store.Put(first)
	require.False(t, d.Detect(first, store, reg, 1, "B"))

	second := newEvent("A", 2, id("A", 1))
	store.Put(second)
	require.False(t, d.Detect(second, store, reg, 1, "B"))

	repeat := newEvent("A", 2, id("A", 1))
	require.True(t, d.Detect(repeat, store, reg, 1, "B"))
	require.True(t, reg.IsSuspected("A"))
	require.True(t, reg.HasObservedCheating("B", "A"))
}

// TestSelfCitation verifies an event listing itself among its parents
// flags its creator.
func TestSelfCitation(t *testing.T) {
	store := event.NewStore()
	reg := validator.NewRegistry(nil)
	reg.Observe("A", 1)
	d := NewDetector()

	e := newEvent("A", 2, id("A", 2), id("A", 1))
	require.True(t, d.Detect(e, store, reg, 1, ""))
	require.True(t, reg.IsSuspected("A"))
	// with no named observer the offender itself is the witness.
	require.True(t, reg.HasObservedCheating("A", "A"))
}

// TestDuplicateParents verifies citing the same parent twice flags that
// parent's creator.
func TestDuplicateParents(t *testing.T) {
	store := event.NewStore()
	reg := validator.NewRegistry(nil)
	reg.Observe("A", 1)
	reg.Observe("B", 1)
	d := NewDetector()

	e := newEvent("A", 2, id("A", 1), id("B", 1), id("B", 1))
	require.True(t, d.Detect(e, store, reg, 1, "A"))
	require.True(t, reg.IsSuspected("B"))
	require.False(t, reg.IsSuspected("A"))
}

// TestAncestryForkWalk verifies that an ancestor id carrying recorded fork
// branches flags the forker, attributed to the creator of the event whose
// ancestry revealed it.
func TestAncestryForkWalk(t *testing.T) {
	store := event.NewStore()
	reg := validator.NewRegistry(nil)
	for _, v := range []event.ValidatorID{"A", "B", "C"} {
		reg.Observe(v, 1)
	}
	d := NewDetector()

	a1 := newEvent("A", 1)
	store.Put(a1)
	a2 := newEvent("A", 2, id("A", 1))
	store.Put(a2)
	branch := event.New(event.Descriptor{Creator: "A", Seq: 2, Timestamp: 7, Parents: []event.ID{id("A", 1)}})
	store.PutFork(branch)

	b1 := newEvent("B", 1)
	store.Put(b1)
	b2 := newEvent("B", 2, id("B", 1), id("A", 2))
	store.Put(b2)

	require.True(t, d.Detect(b2, store, reg, 1, "C"))
	require.True(t, reg.HasObservedCheating("B", "A"),
		"ancestry evidence is attributed to the event's creator, not the ingesting instance")
	require.False(t, reg.HasObservedCheating("C", "A"))
}
