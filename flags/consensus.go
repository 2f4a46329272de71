package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// ConsensusFlags returns the flags configuring a consensus run: the
// validator set, how the driving DAG is produced, and the engine knobs.
func ConsensusFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "validators",
			Usage: "Comma-separated genesis validator ids",
			Value: "A,B,C,D",
		},
		cli.StringFlag{
			Name:  "weights",
			Usage: "Comma-separated genesis weights, matching --validators positionally (default 1 each)",
		},
		cli.IntFlag{
			Name:  "timesteps",
			Usage: "Number of synthetic timesteps to generate after genesis",
			Value: 10,
		},
		cli.Int64Flag{
			Name:  "inactivity-threshold",
			Usage: "Time units of silence before a validator is dropped from quorum",
			Value: 20,
		},
		cli.BoolTFlag{
			Name:  "deterministic",
			Usage: "Use stable same-timestep ordering instead of a random shuffle",
		},
		cli.BoolFlag{
			Name:  "multi-instance",
			Usage: "Run one engine per validator with pull gossip instead of a single engine",
		},
		cli.StringFlag{
			Name:  "input",
			Usage: "JSON-lines event descriptor file to drive the run instead of a synthetic DAG",
		},
	}
}
