package gossip

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/Fantom-foundation/lachesis-base/inter/pos"

	"github.com/rony4d/lachesis-core/event"
	"github.com/rony4d/lachesis-core/gendag"
)

func id(creator event.ValidatorID, seq idx.Event) event.ID {
	return event.ID{Creator: creator, Seq: seq}
}

func newCoordinator(vals ...event.ValidatorID) *Coordinator {
	genesis := map[event.ValidatorID]pos.Weight{}
	for _, v := range vals {
		genesis[v] = 1
	}
	c := NewCoordinator(nil)
	for _, v := range vals {
		c.AddValidator(v, genesis)
	}
	return c
}

// TestPullGossipBackfillsMissingParent delivers an event whose parent
// lives on another instance and verifies the parent is requested, served,
// and ingested before its child.
func TestPullGossipBackfillsMissingParent(t *testing.T) {
	c := newCoordinator("A", "B", "C")

	c.IngestTimestep(0, []event.Descriptor{
		{Creator: "A", Seq: 1, Timestamp: 0, Weight: 1},
	})
	c.IngestTimestep(1, []event.Descriptor{
		{Creator: "B", Seq: 1, Timestamp: 1, Weight: 1, Parents: []event.ID{id("A", 1)}},
	})

	b := c.Instance("B")
	_, ok := b.Event(id("A", 1))
	require.True(t, ok, "instance B should have pulled a1")
	_, ok = b.Event(id("B", 1))
	require.True(t, ok)
	require.ElementsMatch(t, []event.ID{id("A", 1), id("B", 1)}, b.RootSet(1))

	// the owner keeps its own view; the uninvolved instance saw nothing.
	require.Equal(t, 1, c.Instance("A").Store().Len())
	require.Equal(t, 0, c.Instance("C").Store().Len())
}

// TestRecursiveBackfill verifies a request for an event with its own
// missing ancestors pulls the whole chain in one timestep.
func TestRecursiveBackfill(t *testing.T) {
	c := newCoordinator("A", "B")

	c.IngestTimestep(0, []event.Descriptor{
		{Creator: "A", Seq: 1, Timestamp: 0, Weight: 1},
	})
	c.IngestTimestep(1, []event.Descriptor{
		{Creator: "A", Seq: 2, Timestamp: 1, Weight: 1, Parents: []event.ID{id("A", 1)}},
	})
	// B's first event cites A2; B knows neither A2 nor A1.
	c.IngestTimestep(2, []event.Descriptor{
		{Creator: "B", Seq: 1, Timestamp: 2, Weight: 1, Parents: []event.ID{id("A", 2)}},
	})

	b := c.Instance("B")
	require.Equal(t, 3, b.Store().Len())
	for _, want := range []event.ID{id("A", 1), id("A", 2), id("B", 1)} {
		_, ok := b.Event(want)
		require.True(t, ok, "missing %s", want)
	}
}

// TestDuplicateDeliveryIsTolerated re-offers an already-ingested event and
// verifies instance state is unchanged.
func TestDuplicateDeliveryIsTolerated(t *testing.T) {
	c := newCoordinator("A", "B")
	a1 := event.Descriptor{Creator: "A", Seq: 1, Timestamp: 0, Weight: 1}

	c.IngestTimestep(0, []event.Descriptor{a1})
	inst := c.Instance("A")
	frame, block, stored := inst.Frame(), inst.Block(), inst.Store().Len()

	c.IngestTimestep(1, []event.Descriptor{a1})
	require.Equal(t, frame, inst.Frame())
	require.Equal(t, block, inst.Block())
	require.Equal(t, stored, inst.Store().Len())
}

// TestInstancesAgreeOnAtropos runs four validators through a full-mesh
// DAG and verifies every instance decides the same leaders — the
// agreement property the deployment exists for.
func TestInstancesAgreeOnAtropos(t *testing.T) {
	vals := []event.ValidatorID{"A", "B", "C", "D"}
	c := newCoordinator(vals...)

	byTimestep := gendag.Generate(gendag.Options{Validators: vals, Timesteps: 10})
	for t0 := int64(0); t0 <= 10; t0++ {
		c.IngestTimestep(t0, byTimestep[t0])
	}

	reference := c.Instance("A")
	require.Greater(t, reference.Block(), 1, "no frame was decided at all")

	for _, v := range vals {
		inst := c.Instance(v)
		minDecided := reference.FrameToDecide()
		if inst.FrameToDecide() < minDecided {
			minDecided = inst.FrameToDecide()
		}
		for f := idx.Frame(1); f < minDecided; f++ {
			want, ok := reference.AtroposOf(f)
			require.True(t, ok)
			got, ok := inst.AtroposOf(f)
			require.True(t, ok, "instance %s has not decided frame %d", v, f)
			require.Equal(t, want, got, "instance %s disagrees on frame %d", v, f)
		}
	}
}

// TestForkConfirmedAcrossInstances forks validator A at sequence 2 and
// verifies the fork branches travel with gossip, every instance gathers
// evidence, and the aggregated observer weight confirms A everywhere.
func TestForkConfirmedAcrossInstances(t *testing.T) {
	vals := []event.ValidatorID{"A", "B", "C"}
	c := newCoordinator(vals...)

	byTimestep := gendag.Generate(gendag.Options{
		Validators:   vals,
		Timesteps:    4,
		Equivocators: map[event.ValidatorID]idx.Event{"A": 2},
	})
	for t0 := int64(0); t0 <= 4; t0++ {
		c.IngestTimestep(t0, byTimestep[t0])
	}

	for _, v := range vals {
		require.True(t, c.Instance(v).IsCheater("A"), "instance %s has not confirmed A", v)
	}
}

// TestRequestsForCheaterEventsAreDropped verifies no instance serves a
// confirmed cheater's events once confirmation has propagated.
func TestRequestsForCheaterEventsAreDropped(t *testing.T) {
	vals := []event.ValidatorID{"A", "B", "C"}
	c := newCoordinator(vals...)

	byTimestep := gendag.Generate(gendag.Options{
		Validators:   vals,
		Timesteps:    3,
		Equivocators: map[event.ValidatorID]idx.Event{"A": 2},
	})
	for t0 := int64(0); t0 <= 3; t0++ {
		c.IngestTimestep(t0, byTimestep[t0])
	}
	require.True(t, c.Instance("B").IsCheater("A"))

	// a late joiner citing one of A's events gets nothing back for it.
	c.AddValidator("D", map[event.ValidatorID]pos.Weight{"A": 1, "B": 1, "C": 1, "D": 1})
	c.IngestTimestep(4, []event.Descriptor{
		{Creator: "D", Seq: 1, Timestamp: 4, Weight: 1, Parents: []event.ID{id("A", 1)}},
	})

	d := c.Instance("D")
	_, ok := d.Event(id("A", 1))
	require.False(t, ok, "a confirmed cheater's event must not be served")
}
