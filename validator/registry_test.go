package validator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rony4d/lachesis-core/event"
)

func newTestRegistry(ids ...event.ValidatorID) *Registry {
	r := NewRegistry(nil)
	for _, id := range ids {
		r.Observe(id, 1)
	}
	return r
}

// TestQuorum verifies the 2/3+1 quorum formula and that weight changes
// invalidate the per-frame cache for current and future frames only.
func TestQuorum(t *testing.T) {
	r := newTestRegistry("A", "B", "C", "D")
	require.Equal(t, uint64(3), uint64(r.Quorum(1)))

	// cached value survives until weights change.
	require.Equal(t, uint64(3), uint64(r.Quorum(1)))

	r.ConfirmCheater("D", 2)
	// frame 1 keeps its stale cached quorum; frame 2 onward recomputes
	// over the reduced total weight of 3.
	require.Equal(t, uint64(3), uint64(r.Quorum(1)))
	require.Equal(t, uint64(3), uint64(r.Quorum(2)))

	r.ConfirmCheater("C", 2)
	require.Equal(t, uint64(2), uint64(r.Quorum(2)))
}

// TestFlagCheaterPromotion verifies that a suspect is only confirmed once
// the combined weight of its observers reaches quorum, and that
// confirmation zeroes its weight.
func TestFlagCheaterPromotion(t *testing.T) {
	r := newTestRegistry("A", "B", "C")

	r.FlagCheater("B", "A", 1)
	require.True(t, r.IsSuspected("A"))
	require.False(t, r.IsCheater("A"))
	require.True(t, r.HasObservedCheating("B", "A"))
	require.False(t, r.HasObservedCheating("C", "A"))

	r.FlagCheater("C", "A", 1)
	require.False(t, r.IsCheater("A"), "observer weight 2 is below quorum 3")

	r.FlagCheater("A", "A", 1)
	require.True(t, r.IsCheater("A"))
	require.Equal(t, uint64(0), uint64(r.Weight("A")))
	require.Equal(t, uint64(2), uint64(r.TotalWeight()))
	require.Equal(t, uint64(2), uint64(r.Quorum(1)))
}

// TestFlagCheaterAfterConfirmation verifies flagging an already-confirmed
// cheater changes nothing.
func TestFlagCheaterAfterConfirmation(t *testing.T) {
	r := newTestRegistry("A", "B")
	r.ConfirmCheater("A", 1)
	r.FlagCheater("B", "A", 1)
	require.True(t, r.IsCheater("A"))
	require.False(t, r.HasObservedCheating("B", "A"))
}

// TestInactivity verifies that a validator silent past the threshold is
// zeroed, and that the zeroing is irreversible even if it resumes.
func TestInactivity(t *testing.T) {
	r := newTestRegistry("A", "B", "C", "D")
	r.ObserveTimestamp("A", 5)

	r.ApplyInactivity("A", 24, 1)
	require.Equal(t, uint64(1), uint64(r.Weight("A")), "19 units of silence is under the threshold")

	r.ApplyInactivity("A", 25, 1)
	require.Equal(t, uint64(0), uint64(r.Weight("A")))
	require.Equal(t, uint64(3), uint64(r.Quorum(1)))

	// resuming activity does not restore weight.
	r.ObserveTimestamp("A", 30)
	r.ApplyInactivity("A", 31, 1)
	require.Equal(t, uint64(0), uint64(r.Weight("A")))
}

// TestInactivityUnknownTimestamp verifies a validator never heard from at
// all is not zeroed (there is no silence interval to measure).
func TestInactivityUnknownTimestamp(t *testing.T) {
	r := newTestRegistry("A")
	r.ApplyInactivity("A", 100, 1)
	require.Equal(t, uint64(1), uint64(r.Weight("A")))
}

// TestHalted verifies the registry reports the terminal state once every
// validator's weight is gone.
func TestHalted(t *testing.T) {
	r := newTestRegistry("A", "B")
	require.False(t, r.Halted())
	r.ConfirmCheater("A", 1)
	require.False(t, r.Halted())
	r.ConfirmCheater("B", 1)
	require.True(t, r.Halted())
}
