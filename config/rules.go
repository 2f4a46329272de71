// Package config defines the configuration parameters for a consensus
// run: a single struct gathering every consensus-critical parameter for a
// deployment.
package config

import (
	"github.com/Fantom-foundation/lachesis-base/inter/pos"

	"github.com/rony4d/lachesis-core/event"
	"github.com/rony4d/lachesis-core/validator"
)

// Rules gathers the parameters a run of the consensus core needs: the
// genesis validator set and weights, the inactivity threshold, and whether
// same-timestep ingest order is randomized or made deterministic for
// reproducible runs.
type Rules struct {
	// Genesis maps each founding validator to its declared weight.
	Genesis map[event.ValidatorID]pos.Weight

	// InactivityThreshold overrides validator.InactivityThreshold when
	// non-zero.
	InactivityThreshold int64

	// Deterministic selects stable (id-sorted) same-timestep ordering
	// instead of a random shuffle.
	Deterministic bool
}

// DefaultRules returns a Rules value with no genesis validators and the
// default inactivity threshold.
func DefaultRules() Rules {
	return Rules{
		Genesis:             map[event.ValidatorID]pos.Weight{},
		InactivityThreshold: validator.InactivityThreshold,
		Deterministic:       true,
	}
}
