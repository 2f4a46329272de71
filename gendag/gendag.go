// Package gendag generates synthetic event DAGs: event descriptors
// suitable for driving either engine.Lachesis directly or
// gossip.Coordinator across timesteps, covering plain full-mesh growth,
// equivocating validators, and validators that go quiet.
package gendag

import (
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/Fantom-foundation/lachesis-base/inter/pos"

	"github.com/rony4d/lachesis-core/event"
)

// Options configures a generated DAG.
type Options struct {
	// Validators is the genesis validator set, in a fixed iteration order
	// (callers should pass a stable slice for reproducibility).
	Validators []event.ValidatorID

	// Weight is each validator's declared weight; defaults to 1 for every
	// validator not present in the map.
	Weight map[event.ValidatorID]pos.Weight

	// Timesteps is the number of "full round" timesteps to generate after
	// genesis: each produces one new event per still-active validator,
	// parented on every validator's event from the previous timestep.
	Timesteps int

	// Equivocators, if set, each publish an extra conflicting event at the
	// given sequence number (a second distinct event at (creator, seq)).
	Equivocators map[event.ValidatorID]idx.Event

	// Inactive, if set, stops a validator from emitting events after the
	// given timestep.
	Inactive map[event.ValidatorID]int64
}

// Generate returns, per timestep, the slice of descriptors arriving at
// that timestep — a full-mesh DAG where round r's events parent every
// validator's round r-1 event.
func Generate(opts Options) map[int64][]event.Descriptor {
	out := map[int64][]event.Descriptor{}

	weightOf := func(v event.ValidatorID) pos.Weight {
		if w, ok := opts.Weight[v]; ok {
			return w
		}
		return 1
	}

	// genesis round (timestamp 0): one sequence-1 event per validator, no
	// parents.
	prevRound := map[event.ValidatorID]event.ID{}
	for _, v := range opts.Validators {
		id := event.ID{Creator: v, Seq: 1}
		out[0] = append(out[0], event.Descriptor{
			Creator:   v,
			Seq:       1,
			Timestamp: 0,
			Weight:    weightOf(v),
		})
		prevRound[v] = id
	}

	for v, seq := range opts.Equivocators {
		if seq == 1 {
			out[0] = append(out[0], event.Descriptor{
				Creator:   v,
				Seq:       1,
				Timestamp: 0,
				Weight:    weightOf(v),
				UUID:      forkUUID(v, 1),
			})
		}
	}

	allParents := func(round map[event.ValidatorID]event.ID) []event.ID {
		ids := make([]event.ID, 0, len(round))
		for _, v := range opts.Validators {
			if id, ok := round[v]; ok {
				ids = append(ids, id)
			}
		}
		return ids
	}

	for t := int64(1); t <= int64(opts.Timesteps); t++ {
		parents := allParents(prevRound)
		nextRound := map[event.ValidatorID]event.ID{}

		for _, v := range opts.Validators {
			if until, ok := opts.Inactive[v]; ok && t > until {
				nextRound[v] = prevRound[v]
				continue
			}
			seq := idx.Event(t + 1)
			out[t] = append(out[t], event.Descriptor{
				Creator:   v,
				Seq:       seq,
				Timestamp: t,
				Weight:    weightOf(v),
				Parents:   append([]event.ID(nil), parents...),
			})
			nextRound[v] = event.ID{Creator: v, Seq: seq}

			if eqSeq, ok := opts.Equivocators[v]; ok && eqSeq == seq {
				// the conflicting branch cites the same parents but is a
				// distinct event.
				out[t] = append(out[t], event.Descriptor{
					Creator:   v,
					Seq:       seq,
					Timestamp: t,
					Weight:    weightOf(v),
					Parents:   append([]event.ID(nil), parents...),
					UUID:      forkUUID(v, seq),
				})
			}
		}
		prevRound = nextRound
	}

	return out
}

func forkUUID(v event.ValidatorID, seq idx.Event) hash.Event {
	var num [8]byte
	num[7] = byte(seq)
	return hash.Event(hash.Of([]byte("fork"), []byte(v), num[:]))
}

// Flatten concatenates every timestep's descriptors in timestep order,
// suitable for a single-instance engine that ingests directly rather than
// through a timestepped coordinator.
func Flatten(byTimestep map[int64][]event.Descriptor, maxT int64) []event.Descriptor {
	var out []event.Descriptor
	for t := int64(0); t <= maxT; t++ {
		out = append(out, byTimestep[t]...)
	}
	return out
}
