package atropos

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/lachesis-core/event"
	"github.com/rony4d/lachesis-core/frame"
	"github.com/rony4d/lachesis-core/validator"
	"github.com/rony4d/lachesis-core/vector"
)

type fixture struct {
	store    *event.Store
	reg      *validator.Registry
	ix       *vector.Index
	frames   *frame.Assigner
	election *Election
}

func newFixture(validators ...event.ValidatorID) *fixture {
	f := &fixture{
		store:  event.NewStore(),
		reg:    validator.NewRegistry(nil),
		ix:     vector.NewIndex(nil),
		frames: frame.NewAssigner(nil),
	}
	f.election = NewElection(nil, f.frames, f.store)
	f.frames.OnRoot = func(root *event.Event) {
		f.election.ProcessRoot(root, f.reg)
	}
	for _, v := range validators {
		f.reg.Observe(v, 1)
	}
	return f
}

func (f *fixture) ingest(creator event.ValidatorID, seq idx.Event, ts int64, parents ...event.ID) {
	e := event.New(event.Descriptor{
		Creator:   creator,
		Seq:       seq,
		Timestamp: ts,
		Weight:    1,
		Parents:   parents,
	})
	f.store.Put(e)
	f.ix.MergeHighestObserved(e, f.store, f.reg)
	f.ix.StampLowestObserving(e, f.store, f.reg)
	f.frames.Assign(e, f.store, f.reg)
}

func id(creator event.ValidatorID, seq idx.Event) event.ID {
	return event.ID{Creator: creator, Seq: seq}
}

// fullMesh drives a DAG where every round's events cite every event of the
// previous round, for the given number of rounds.
func (f *fixture) fullMesh(vals []event.ValidatorID, rounds idx.Event) {
	prev := make([]event.ID, 0, len(vals))
	for _, v := range vals {
		f.ingest(v, 1, 0)
		prev = append(prev, id(v, 1))
	}
	for seq := idx.Event(2); seq <= rounds; seq++ {
		next := make([]event.ID, 0, len(vals))
		for _, v := range vals {
			f.ingest(v, seq, int64(seq-1), prev...)
			next = append(next, id(v, seq))
		}
		prev = next
	}
}

// TestFirstRoundVotes verifies that roots one frame above the frame under
// decision record undecided forkless-cause votes.
func TestFirstRoundVotes(t *testing.T) {
	vals := []event.ValidatorID{"A", "B", "C", "D"}
	f := newFixture(vals...)
	f.fullMesh(vals, 3)

	require.Equal(t, idx.Frame(2), f.frames.Frame())
	require.Equal(t, idx.Frame(1), f.election.FrameToDecide())
	require.Equal(t, 1, f.election.Block())

	votes := f.election.votes[1]
	require.NotNil(t, votes)
	for _, voter := range vals {
		for _, candidate := range vals {
			v, ok := votes[VotePair{Voter: id(voter, 3), Candidate: id(candidate, 1)}]
			require.True(t, ok, "missing vote (%s3, %s1)", voter, candidate)
			require.False(t, v.Decided)
			require.True(t, v.Yes)
		}
	}
}

// TestAggregationDecidesAtropos verifies the aggregation round elects the
// first candidate once previous-frame yes votes cross quorum, advancing
// the decided frame and the block counter.
func TestAggregationDecidesAtropos(t *testing.T) {
	vals := []event.ValidatorID{"A", "B", "C", "D"}
	f := newFixture(vals...)
	f.fullMesh(vals, 5)

	require.Equal(t, idx.Frame(3), f.frames.Frame())
	require.Equal(t, idx.Frame(2), f.election.FrameToDecide())
	require.Equal(t, 2, f.election.Block())

	atropos, ok := f.election.AtroposOf(1)
	require.True(t, ok)
	require.Equal(t, id("A", 1), atropos)

	winner, _ := f.store.Get(atropos)
	require.True(t, winner.IsAtropos)

	// the frame now under decision already has first-round votes from the
	// frame-3 roots.
	require.NotEmpty(t, f.election.votes[2])
}

// TestCandidateOrderIsDeterministic verifies the (timestamp, creator,
// sequence, weight) tie-break, independent of registration order.
func TestCandidateOrderIsDeterministic(t *testing.T) {
	vals := []event.ValidatorID{"A", "B", "C"}
	f := newFixture(vals...)
	for _, v := range []event.ValidatorID{"C", "A", "B"} {
		f.ingest(v, 1, 0)
	}

	ordered := f.election.orderedCandidates([]event.ID{id("C", 1), id("A", 1), id("B", 1)})
	require.Equal(t, []event.ID{id("A", 1), id("B", 1), id("C", 1)}, ordered)

	// a strictly earlier timestamp outranks creator order.
	f.ingest("C", 2, 1, id("C", 1))
	late := event.New(event.Descriptor{Creator: "A", Seq: 2, Timestamp: 2, Weight: 1, Parents: []event.ID{id("A", 1)}})
	f.store.Put(late)
	ordered = f.election.orderedCandidates([]event.ID{id("A", 2), id("C", 2)})
	require.Equal(t, []event.ID{id("C", 2), id("A", 2)}, ordered)
}
