// Package event defines the DAG's unit of identity: an immutable
// (creator, sequence) pair plus the mutable annotations the consensus core
// attaches to it as it is processed (frame, causal-history vectors, root
// and atropos flags).
package event

import (
	"encoding/binary"
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/Fantom-foundation/lachesis-base/inter/pos"
)

// ValidatorID is the opaque validator symbol used throughout the core.
// Deployments commonly use short strings ("A", "B", ...); nothing in the
// algorithms below depends on the symbol's shape.
type ValidatorID string

// ID identifies an event by the pair (creator, sequence). Sequence numbers
// are 1-based and monotonically increasing per validator.
type ID struct {
	Creator ValidatorID
	Seq     idx.Event
}

// String renders an ID as a compact node label, e.g. "A1".
func (id ID) String() string {
	return fmt.Sprintf("%s%d", id.Creator, id.Seq)
}

// Less orders IDs by (Creator, Seq), used for the deterministic sorted
// root-set iteration required by the Atropos election.
func (id ID) Less(other ID) bool {
	if id.Creator != other.Creator {
		return id.Creator < other.Creator
	}
	return id.Seq < other.Seq
}

// LowestObservingEntry records the earliest (by sequence) descendant by a
// given observer validator that transitively cites an event — the dual of
// HighestObserved.
type LowestObservingEntry struct {
	EventID ID
	Seq     idx.Event
}

// Descriptor is the wire-level arrival tuple the core consumes from an
// abstract input source: (creator, sequence, timestamp, weight, parents).
// UUID is optional; when zero it is derived from the descriptor's content,
// so two conflicting events at the same (creator, seq) still end up
// distinguishable.
type Descriptor struct {
	Creator   ValidatorID
	Seq       idx.Event
	Timestamp int64
	Weight    pos.Weight
	Parents   []ID
	UUID      hash.Event
}

// Event is the DAG node: an immutable identity/parent triple plus the
// mutable derived annotations the engine writes during ingest. Confirmed
// equivocators may publish more than one event at the same (creator, seq);
// UUID distinguishes those otherwise-colliding identities using
// lachesis-base's native 32-byte event hash rather than a bespoke type.
type Event struct {
	ID        ID
	UUID      hash.Event
	Creator   ValidatorID
	Parents   []ID
	Timestamp int64
	Weight    pos.Weight

	Frame     idx.Frame
	IsRoot    bool
	IsAtropos bool

	// HighestObserved[v] is the largest sequence number of v's events
	// reachable via Parents*.
	HighestObserved map[ValidatorID]idx.Event

	// LowestObserving[v] is the smallest (by sequence) descendant by
	// observer v that transitively includes this event. It is written onto
	// ancestors, not onto the event itself, by vector.Index.
	LowestObserving map[ValidatorID]LowestObservingEntry
}

// New constructs an Event from a Descriptor with empty derived annotations.
// A zero descriptor UUID is replaced with a content hash over (creator,
// seq, timestamp, parents), so equivocating events at the same identity
// hash differently as long as they differ anywhere an honest event could.
func New(d Descriptor) *Event {
	uuid := d.UUID
	if uuid == (hash.Event{}) {
		uuid = contentHash(d)
	}
	return &Event{
		ID:              ID{Creator: d.Creator, Seq: d.Seq},
		UUID:            uuid,
		Creator:         d.Creator,
		Parents:         append([]ID(nil), d.Parents...),
		Timestamp:       d.Timestamp,
		Weight:          d.Weight,
		HighestObserved: map[ValidatorID]idx.Event{},
		LowestObserving: map[ValidatorID]LowestObservingEntry{},
	}
}

func contentHash(d Descriptor) hash.Event {
	var num [8]byte
	pieces := make([][]byte, 0, 3+len(d.Parents))
	pieces = append(pieces, []byte(d.Creator))
	binary.BigEndian.PutUint64(num[:], uint64(d.Seq))
	pieces = append(pieces, append([]byte(nil), num[:]...))
	binary.BigEndian.PutUint64(num[:], uint64(d.Timestamp))
	pieces = append(pieces, append([]byte(nil), num[:]...))
	for _, p := range d.Parents {
		pieces = append(pieces, []byte(p.String()))
	}
	return hash.Event(hash.Of(pieces...))
}

// SelfParentID returns the id of e's self-parent, (Creator, Seq-1), without
// assuming a distinguished parent slot: it scans Parents for the matching
// id rather than relying on a promoted field.
func (e *Event) SelfParentID() (ID, bool) {
	if e.Seq() <= 1 {
		return ID{}, false
	}
	want := ID{Creator: e.Creator, Seq: e.Seq() - 1}
	for _, p := range e.Parents {
		if p == want {
			return p, true
		}
	}
	return ID{}, false
}

// Seq is a convenience accessor mirroring ID.Seq.
func (e *Event) Seq() idx.Event { return e.ID.Seq }

// CountsSelfCitation reports whether e lists its own id among its
// parents — one of the equivocation signatures the fork detector checks
// for.
func (e *Event) CountsSelfCitation() bool {
	for _, p := range e.Parents {
		if p == e.ID {
			return true
		}
	}
	return false
}

// DuplicateParentCreators returns the creators of every parent id that
// appears more than once among e.Parents. Distinct parent ids by the same
// creator are not duplicates.
func (e *Event) DuplicateParentCreators() map[ValidatorID]struct{} {
	seen := map[ID]int{}
	for _, p := range e.Parents {
		seen[p]++
	}
	out := map[ValidatorID]struct{}{}
	for id, n := range seen {
		if n > 1 {
			out[id.Creator] = struct{}{}
		}
	}
	return out
}
