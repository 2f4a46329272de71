// Package validator maintains the weighted validator set backing quorum
// computation: validator id to stake weight, a per-frame quorum cache, and
// the confirmed/suspected cheater bookkeeping that zeroes a validator's
// effective weight once equivocation is confirmed or the validator goes
// quiet past the inactivity threshold.
package validator

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/Fantom-foundation/lachesis-base/inter/pos"

	"github.com/rony4d/lachesis-core/event"
)

// InactivityThreshold is the default number of time units a validator may
// stay silent before it is dropped from quorum.
const InactivityThreshold = 20

// Registry tracks validator weights, the per-frame quorum cache, and
// equivocation evidence. It is owned by a single engine instance; nothing
// in it is safe for concurrent use from multiple goroutines.
type Registry struct {
	log log.Logger

	weights map[event.ValidatorID]pos.Weight

	quorumCache map[idx.Frame]pos.Weight

	confirmedCheaters map[event.ValidatorID]struct{}
	suspectedCheaters map[event.ValidatorID]struct{}

	// cheaterList[v] is the set of validators that v has personally
	// witnessed equivocating.
	cheaterList map[event.ValidatorID]map[event.ValidatorID]struct{}

	// cheaterObservers[v] is the set of validators that have flagged v as
	// a cheater, used to test the equivocation-confirmation quorum.
	cheaterObservers map[event.ValidatorID]map[event.ValidatorID]struct{}

	highestTimestamp map[event.ValidatorID]int64

	inactivityThreshold int64
}

// NewRegistry returns an empty registry. Validators are added on first
// sight via Observe.
func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.Root()
	}
	return &Registry{
		log:                 logger,
		weights:             map[event.ValidatorID]pos.Weight{},
		quorumCache:         map[idx.Frame]pos.Weight{},
		confirmedCheaters:   map[event.ValidatorID]struct{}{},
		suspectedCheaters:   map[event.ValidatorID]struct{}{},
		cheaterList:         map[event.ValidatorID]map[event.ValidatorID]struct{}{},
		cheaterObservers:    map[event.ValidatorID]map[event.ValidatorID]struct{}{},
		highestTimestamp:    map[event.ValidatorID]int64{},
		inactivityThreshold: InactivityThreshold,
	}
}

// Observe registers v with the given declared weight if not already known.
// The registry grows on first sight of a validator.
func (r *Registry) Observe(v event.ValidatorID, weight pos.Weight) {
	if _, ok := r.weights[v]; !ok {
		r.weights[v] = weight
	}
}

// Weight returns v's current effective weight (zero for confirmed cheaters
// and inactive validators).
func (r *Registry) Weight(v event.ValidatorID) pos.Weight {
	return r.weights[v]
}

// IsCheater reports whether v is a confirmed cheater.
func (r *Registry) IsCheater(v event.ValidatorID) bool {
	_, ok := r.confirmedCheaters[v]
	return ok
}

// HasObservedCheating reports whether observer has flagged subject as a
// cheater (suspected or confirmed), used by the forkless-cause short
// circuit.
func (r *Registry) HasObservedCheating(observer, subject event.ValidatorID) bool {
	list, ok := r.cheaterList[observer]
	if !ok {
		return false
	}
	_, flagged := list[subject]
	return flagged
}

// TotalWeight sums every validator's current effective weight.
func (r *Registry) TotalWeight() pos.Weight {
	var total pos.Weight
	for _, w := range r.weights {
		total += w
	}
	return total
}

// Quorum returns ⌊2·ΣW/3⌋+1 for frame f, caching the result.
func (r *Registry) Quorum(f idx.Frame) pos.Weight {
	if q, ok := r.quorumCache[f]; ok {
		return q
	}
	q := pos.Weight(2*uint64(r.TotalWeight())/3 + 1)
	r.quorumCache[f] = q
	return q
}

// InvalidateFrom drops cached quorum values for frame and every later
// frame, forcing recomputation on next access. Already-completed elections
// (frames strictly before `frame`) keep their stale cached values.
func (r *Registry) InvalidateFrom(frame idx.Frame) {
	for f := range r.quorumCache {
		if f >= frame {
			delete(r.quorumCache, f)
		}
	}
}

// FlagCheater records that observer witnessed subject equivocating, and
// promotes subject to a confirmed cheater once the combined weight of its
// observers reaches quorum at currentFrame.
func (r *Registry) FlagCheater(observer, subject event.ValidatorID, currentFrame idx.Frame) {
	if r.IsCheater(subject) {
		return
	}
	r.suspectedCheaters[subject] = struct{}{}

	if _, ok := r.cheaterList[observer]; !ok {
		r.cheaterList[observer] = map[event.ValidatorID]struct{}{}
	}
	r.cheaterList[observer][subject] = struct{}{}

	if _, ok := r.cheaterObservers[subject]; !ok {
		r.cheaterObservers[subject] = map[event.ValidatorID]struct{}{}
	}
	r.cheaterObservers[subject][observer] = struct{}{}

	var observerWeight pos.Weight
	for obs := range r.cheaterObservers[subject] {
		observerWeight += r.weights[obs]
	}

	if observerWeight >= r.Quorum(currentFrame) {
		r.ConfirmCheater(subject, currentFrame)
	}
}

// ConfirmCheater promotes v straight to a confirmed cheater, zeroing its
// weight and invalidating quorum from currentFrame on. Used both
// internally once observer weight crosses quorum, and by a coordinator
// that has aggregated equivocation evidence across instances.
func (r *Registry) ConfirmCheater(v event.ValidatorID, currentFrame idx.Frame) {
	if r.IsCheater(v) {
		return
	}
	r.confirmedCheaters[v] = struct{}{}
	r.suspectedCheaters[v] = struct{}{}
	r.weights[v] = 0
	r.InvalidateFrom(currentFrame)
	r.log.Debug("consensus: validator confirmed cheater", "validator", v)
}

// IsSuspected reports whether any observer has flagged v as equivocating.
func (r *Registry) IsSuspected(v event.ValidatorID) bool {
	_, ok := r.suspectedCheaters[v]
	return ok
}

// Suspected returns the current set of suspected cheaters.
func (r *Registry) Suspected() []event.ValidatorID {
	out := make([]event.ValidatorID, 0, len(r.suspectedCheaters))
	for v := range r.suspectedCheaters {
		out = append(out, v)
	}
	return out
}

// ObserverWeight sums the weight of the validators that have flagged v.
func (r *Registry) ObserverWeight(v event.ValidatorID) pos.Weight {
	var total pos.Weight
	for obs := range r.cheaterObservers[v] {
		total += r.weights[obs]
	}
	return total
}

// Known returns every validator id the registry has seen.
func (r *Registry) Known() []event.ValidatorID {
	out := make([]event.ValidatorID, 0, len(r.weights))
	for v := range r.weights {
		out = append(out, v)
	}
	return out
}

// SetInactivityThreshold overrides the default threshold, per
// config.Rules.InactivityThreshold.
func (r *Registry) SetInactivityThreshold(threshold int64) {
	r.inactivityThreshold = threshold
}

// ApplyInactivity zeroes v's weight when it has not been heard from for at
// least the inactivity threshold's worth of time units. Irreversible: a
// validator that resumes activity after being zeroed stays at zero.
func (r *Registry) ApplyInactivity(v event.ValidatorID, currentTime int64, currentFrame idx.Frame) {
	if r.IsCheater(v) {
		return
	}
	last, ok := r.highestTimestamp[v]
	if !ok {
		return
	}
	if currentTime-last >= r.inactivityThreshold && r.weights[v] != 0 {
		r.weights[v] = 0
		r.InvalidateFrom(currentFrame)
		r.log.Debug("consensus: validator zeroed for inactivity", "validator", v)
	}
}

// ObserveTimestamp merges a validator's latest observed timestamp.
func (r *Registry) ObserveTimestamp(v event.ValidatorID, ts int64) {
	if cur, ok := r.highestTimestamp[v]; !ok || ts > cur {
		r.highestTimestamp[v] = ts
	}
}

// HighestTimestamp returns the latest timestamp observed for v.
func (r *Registry) HighestTimestamp(v event.ValidatorID) (int64, bool) {
	ts, ok := r.highestTimestamp[v]
	return ts, ok
}

// Halted reports whether total effective weight has reached zero — every
// validator is a confirmed cheater or zeroed for inactivity, the terminal
// state for this registry.
func (r *Registry) Halted() bool {
	return r.TotalWeight() == 0
}
