// Package gossip implements the multi-instance coordinator: one engine per
// validator, driven through discrete timesteps with three ordered phases —
// defer incoming events to their owning instance, serve cross-instance
// pull requests for missing ancestors, then ingest whatever each instance
// has accumulated. The three phases form a barrier: no instance starts
// serving requests until every instance has finished deferring the current
// timestep's events, which is what keeps delivery causal (a requester
// cannot ingest a parent before the owning instance has had a chance to
// serve it).
package gossip

import (
	"sort"

	"github.com/ethereum/go-ethereum/log"

	"github.com/Fantom-foundation/lachesis-base/inter/pos"

	"github.com/rony4d/lachesis-core/engine"
	"github.com/rony4d/lachesis-core/event"
)

// request is a pull-gossip request: requester wants the event identified
// by want, which is believed to be owned by instance[want.Creator].
type request struct {
	requester event.ValidatorID
	want      event.ID
}

// pending is a process-queue entry: an event descriptor awaiting ingest at
// one instance, along with the timestamp it was offered at (used for the
// (timestamp, id) ingest order when the queue drains).
type pending struct {
	descriptor event.Descriptor
	offeredAt  int64
}

// instanceState bundles one validator's engine with its gossip-local
// queues.
type instanceState struct {
	engine       *engine.Lachesis
	processQueue map[event.ID][]pending
	requestQueue []request
	time         int64
}

// Coordinator owns one Lachesis instance per validator plus the
// request/process queue machinery implementing pull-style gossip. It also
// aggregates equivocation evidence across instances: a validator flagged
// by instances whose combined weight reaches quorum is confirmed a cheater
// on every instance at once, so the whole deployment agrees on effective
// weights.
type Coordinator struct {
	log log.Logger

	instances           map[event.ValidatorID]*instanceState
	weights             map[event.ValidatorID]pos.Weight
	inactivityThreshold int64
}

// NewCoordinator returns a coordinator with no instances yet; call
// AddValidator for every validator in the genesis set before the first
// timestep.
func NewCoordinator(logger log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Root()
	}
	return &Coordinator{
		log:       logger,
		instances: map[event.ValidatorID]*instanceState{},
		weights:   map[event.ValidatorID]pos.Weight{},
	}
}

// AddValidator creates the per-validator engine instance and registers the
// full genesis validator set (with weights) on it: every instance starts
// out aware of every validator's declared weight.
func (c *Coordinator) AddValidator(self event.ValidatorID, genesis map[event.ValidatorID]pos.Weight) {
	if _, exists := c.instances[self]; exists {
		return
	}
	eng := engine.New(self, c.log)
	if c.inactivityThreshold > 0 {
		eng.SetInactivityThreshold(c.inactivityThreshold)
	}
	for v, w := range genesis {
		eng.RegisterValidator(v, w)
		if _, known := c.weights[v]; !known {
			c.weights[v] = w
		}
	}
	c.instances[self] = &instanceState{
		engine:       eng,
		processQueue: map[event.ID][]pending{},
	}
}

// SetInactivityThreshold overrides the default inactivity window for every
// instance subsequently added via AddValidator.
func (c *Coordinator) SetInactivityThreshold(threshold int64) {
	c.inactivityThreshold = threshold
}

// Instance returns the query surface for validator v's engine.
func (c *Coordinator) Instance(v event.ValidatorID) *engine.Lachesis {
	st, ok := c.instances[v]
	if !ok {
		return nil
	}
	return st.engine
}

// Validators returns the ids of every instance, sorted.
func (c *Coordinator) Validators() []event.ValidatorID {
	out := make([]event.ValidatorID, 0, len(c.instances))
	for v := range c.instances {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IngestTimestep runs the three phases for the given set of events, all
// arriving at the same logical timestep. Events for validators not yet
// known via AddValidator are ignored: the genesis set must be established
// up front.
func (c *Coordinator) IngestTimestep(timestamp int64, events []event.Descriptor) {
	c.phaseDefer(timestamp, events)
	c.phaseServeRequests()
	c.phaseProcessDeferred()
	c.aggregateCheaterEvidence()

	for _, st := range c.instances {
		st.time++
	}
}

// phaseDefer delivers each event to its creator's instance and enqueues
// pull requests for any parent the instance hasn't seen yet.
func (c *Coordinator) phaseDefer(timestamp int64, events []event.Descriptor) {
	for _, d := range events {
		owner, ok := c.instances[d.Creator]
		if !ok {
			continue
		}
		id := event.ID{Creator: d.Creator, Seq: d.Seq}
		owner.processQueue[id] = append(owner.processQueue[id], pending{descriptor: d, offeredAt: timestamp})

		for _, pid := range d.Parents {
			if owner.engine.Store().Has(pid) {
				continue
			}
			if _, queued := owner.processQueue[pid]; queued {
				continue
			}
			parentOwner, ok := c.instances[pid.Creator]
			if !ok {
				continue
			}
			parentOwner.requestQueue = append(parentOwner.requestQueue, request{requester: d.Creator, want: pid})
		}
	}
}

// phaseServeRequests drains every instance's request queue, copying the
// basic identity of known events into the requester's process queue and
// recursively requesting, on the serving instance's own queue, whatever
// parents the requester is still missing. Requests for a confirmed
// cheater's events are silently dropped.
func (c *Coordinator) phaseServeRequests() {
	for _, owner := range c.instances {
		queue := owner.requestQueue
		owner.requestQueue = nil

		for len(queue) > 0 {
			req := queue[0]
			queue = queue[1:]

			if owner.engine.IsCheater(req.want.Creator) {
				continue
			}

			requester, ok := c.instances[req.requester]
			if !ok {
				continue
			}
			if requester.engine.Store().Has(req.want) {
				continue
			}
			if _, queued := requester.processQueue[req.want]; queued {
				continue
			}

			wanted, ok := owner.engine.Event(req.want)
			if !ok {
				continue
			}

			descriptor := event.Descriptor{
				Creator: wanted.Creator,
				Seq:     wanted.Seq(),
				Parents: append([]event.ID(nil), wanted.Parents...),
				Weight:  wanted.Weight,
				UUID:    wanted.UUID,
				// the requester sorts by the event's own creation
				// timestamp, as stored by this instance.
				Timestamp: wanted.Timestamp,
			}
			requester.processQueue[req.want] = append(requester.processQueue[req.want], pending{
				descriptor: descriptor,
				offeredAt:  wanted.Timestamp,
			})

			// fork branches travel with the canonical event, so the
			// requester sees the same equivocation evidence the serving
			// instance holds.
			for _, branch := range owner.engine.Store().ForksOf(req.want) {
				requester.processQueue[req.want] = append(requester.processQueue[req.want], pending{
					descriptor: event.Descriptor{
						Creator:   branch.Creator,
						Seq:       branch.Seq(),
						Parents:   append([]event.ID(nil), branch.Parents...),
						Weight:    branch.Weight,
						UUID:      branch.UUID,
						Timestamp: branch.Timestamp,
					},
					offeredAt: branch.Timestamp,
				})
			}

			for _, grandparent := range wanted.Parents {
				if requester.engine.Store().Has(grandparent) {
					continue
				}
				if _, queued := requester.processQueue[grandparent]; queued {
					continue
				}
				queue = append(queue, request{requester: req.requester, want: grandparent})
			}
		}
	}
}

// phaseProcessDeferred ingests every instance's process queue in
// (timestamp, id) order, tolerating duplicate deliveries of the same
// event id: only the first ingest materializes the event.
func (c *Coordinator) phaseProcessDeferred() {
	for _, owner := range c.instances {
		type entry struct {
			id event.ID
			p  pending
		}
		var entries []entry
		for id, ps := range owner.processQueue {
			for _, p := range ps {
				entries = append(entries, entry{id: id, p: p})
			}
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].p.offeredAt != entries[j].p.offeredAt {
				return entries[i].p.offeredAt < entries[j].p.offeredAt
			}
			return entries[i].id.Less(entries[j].id)
		})

		for _, e := range entries {
			_ = owner.engine.Ingest(e.p.descriptor)
		}
		owner.processQueue = map[event.ID][]pending{}
	}
}

// aggregateCheaterEvidence promotes a suspect to a confirmed cheater on
// every instance once the combined weight of the instances holding local
// evidence against it reaches quorum.
func (c *Coordinator) aggregateCheaterEvidence() {
	accusers := map[event.ValidatorID]pos.Weight{}
	for self, st := range c.instances {
		for _, subject := range st.engine.Suspected() {
			accusers[subject] += c.weights[self]
		}
	}
	if len(accusers) == 0 {
		return
	}

	var total pos.Weight
	for _, w := range c.weights {
		total += w
	}
	quorum := pos.Weight(2*uint64(total)/3 + 1)

	for subject, weight := range accusers {
		if weight < quorum {
			continue
		}
		if c.weights[subject] == 0 {
			continue
		}
		c.weights[subject] = 0
		c.log.Debug("gossip: cheater confirmed across instances", "validator", subject)
		for _, st := range c.instances {
			st.engine.ConfirmCheater(subject)
		}
	}
}
