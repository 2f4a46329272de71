// Package atropos implements Atropos leader election: a per-candidate-frame
// vote table that progresses frameToDecide and records the elected root
// (atropos) per decided frame.
package atropos

import (
	"sort"

	"github.com/ethereum/go-ethereum/log"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/lachesis-core/event"
	"github.com/rony4d/lachesis-core/frame"
	"github.com/rony4d/lachesis-core/validator"
	"github.com/rony4d/lachesis-core/vector"
)

// VotePair is the (voter root, candidate root) key of the vote table.
type VotePair struct {
	Voter     event.ID
	Candidate event.ID
}

// Vote is the recorded outcome for one (voter, candidate) pair.
type Vote struct {
	Decided bool
	Yes     bool
}

// Election owns the vote table, frameToDecide, the decided atropos roots,
// and the block counter.
//
// The aggregation-round tie is resolved as yesTotal >= noTotal: a
// consistent choice is required for byzantine agreement to hold across
// instances.
type Election struct {
	log log.Logger

	frames        *frame.Assigner
	votes         map[idx.Frame]map[VotePair]Vote
	frameToDecide idx.Frame
	atroposRoots  map[idx.Frame]event.ID
	block         int
	store         *event.Store
}

// NewElection returns an election state machine wired to the frame
// assigner that owns the per-frame root sets and the event store used to
// resolve vote-pair ids to their annotated events.
func NewElection(logger log.Logger, frames *frame.Assigner, store *event.Store) *Election {
	if logger == nil {
		logger = log.Root()
	}
	return &Election{
		log:           logger,
		frames:        frames,
		votes:         map[idx.Frame]map[VotePair]Vote{},
		frameToDecide: 1,
		atroposRoots:  map[idx.Frame]event.ID{},
		block:         1,
		store:         store,
	}
}

// FrameToDecide returns the smallest frame whose atropos is undetermined.
func (el *Election) FrameToDecide() idx.Frame { return el.frameToDecide }

// Block returns 1 + the number of decided atropos roots.
func (el *Election) Block() int { return el.block }

// AtroposOf returns the elected root for frame f, if decided.
func (el *Election) AtroposOf(f idx.Frame) (event.ID, bool) {
	id, ok := el.atroposRoots[f]
	return id, ok
}

// ProcessRoot runs the voting step for a newly registered root, then
// re-enters the loop for every subsequently unblocked frame — advancing
// frameToDecide may make the next frame's candidates votable in the same
// call.
func (el *Election) ProcessRoot(newRoot *event.Event, reg *validator.Registry) {
	for {
		advanced := el.voteOnce(newRoot, reg)
		if !advanced {
			return
		}
	}
}

// voteOnce runs a single pass of candidate consideration at the current
// frameToDecide and reports whether frameToDecide advanced (meaning a
// further pass may now find newly-votable candidates).
func (el *Election) voteOnce(newRoot *event.Event, reg *validator.Registry) bool {
	candidates := el.frames.RootSet(el.frameToDecide)
	if candidates == nil || len(candidates.Events) == 0 {
		return false
	}

	ordered := el.orderedCandidates(candidates.Events)

	for _, candidateID := range ordered {
		pair := VotePair{Voter: newRoot.ID, Candidate: candidateID}

		byFrame, ok := el.votes[el.frameToDecide]
		if !ok {
			byFrame = map[VotePair]Vote{}
			el.votes[el.frameToDecide] = byFrame
		}
		if _, already := byFrame[pair]; already {
			continue
		}

		candidate := el.resolve(candidateID)
		if candidate == nil {
			continue
		}

		vote, computed := el.computeVote(newRoot, candidate, reg)
		if !computed {
			continue
		}
		byFrame[pair] = vote

		if vote.Decided {
			if vote.Yes {
				el.atroposRoots[el.frameToDecide] = candidateID
				candidate.IsAtropos = true
				el.log.Debug("consensus: atropos elected", "frame", el.frameToDecide, "root", candidateID.String())
				el.frameToDecide++
				el.block++
				return true
			}
			// decided-no: skip this candidate and keep considering the
			// rest of the frame; frameToDecide does not advance.
			continue
		}
	}
	return false
}

func (el *Election) computeVote(newRoot, candidate *event.Event, reg *validator.Registry) (Vote, bool) {
	currentFrame := el.frames.Frame()

	switch {
	case currentFrame == el.frameToDecide+1:
		return Vote{Decided: false, Yes: vector.ForklessCause(newRoot, candidate, reg)}, true

	case currentFrame >= el.frameToDecide+2:
		prevRoots := el.frames.RootSet(currentFrame - 1)
		if prevRoots == nil {
			return Vote{}, false
		}
		var yesTotal, noTotal uint64
		for _, prevID := range prevRoots.Events {
			prevVote, ok := el.votes[el.frameToDecide][VotePair{Voter: prevID, Candidate: candidate.ID}]
			w := uint64(reg.Weight(prevID.Creator))
			if ok && prevVote.Yes {
				yesTotal += w
			} else {
				noTotal += w
			}
		}
		quorum := uint64(reg.Quorum(currentFrame))
		return Vote{
			Decided: yesTotal >= quorum || noTotal >= quorum,
			Yes:     yesTotal >= noTotal,
		}, true

	default:
		return Vote{}, false
	}
}

func (el *Election) resolve(id event.ID) *event.Event {
	if el.store == nil {
		return nil
	}
	e, _ := el.store.Get(id)
	return e
}

// orderedCandidates sorts candidate root ids by the deterministic tuple
// (timestamp, creator, sequence, weight) ascending, so candidate
// enumeration stays deterministic across instances.
func (el *Election) orderedCandidates(ids []event.ID) []event.ID {
	out := make([]event.ID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool {
		a, b := el.resolve(out[i]), el.resolve(out[j])
		if a == nil || b == nil {
			return out[i].Less(out[j])
		}
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if a.Creator != b.Creator {
			return a.Creator < b.Creator
		}
		if a.Seq() != b.Seq() {
			return a.Seq() < b.Seq()
		}
		return a.Weight < b.Weight
	})
	return out
}
