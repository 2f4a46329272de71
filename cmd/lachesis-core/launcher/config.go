package launcher

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Fantom-foundation/lachesis-base/inter/pos"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/lachesis-core/config"
	"github.com/rony4d/lachesis-core/event"
)

// runConfig carries the launcher-level knobs that are not consensus rules:
// how the driving DAG is produced and which deployment shape to run.
type runConfig struct {
	Validators    []event.ValidatorID
	Timesteps     int
	MultiInstance bool
	Deterministic bool
	InputFile     string
}

var dumpConfigCommand = cli.Command{
	Name:        "dumpconfig",
	Usage:       "Show configuration values",
	Action:      dumpConfig,
	Category:    "MISCELLANEOUS COMMANDS",
	Description: "The dumpconfig command prints the effective configuration as JSON.",
}

var checkConfigCommand = cli.Command{
	Name:        "checkconfig",
	Usage:       "Check configuration values for validity",
	Action:      checkConfig,
	Category:    "MISCELLANEOUS COMMANDS",
	Description: "The checkconfig command validates the effective configuration and exits.",
}

// makeConfig merges defaults with CLI flag overrides.
func makeConfig(ctx *cli.Context) (config.Rules, runConfig, error) {
	rules := config.DefaultRules()
	runCfg := runConfig{
		Timesteps:     ctx.GlobalInt("timesteps"),
		MultiInstance: ctx.GlobalBool("multi-instance"),
		Deterministic: ctx.GlobalBoolT("deterministic"),
		InputFile:     ctx.GlobalString("input"),
	}

	names := strings.Split(ctx.GlobalString("validators"), ",")
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		runCfg.Validators = append(runCfg.Validators, event.ValidatorID(name))
	}
	if len(runCfg.Validators) == 0 {
		return rules, runCfg, fmt.Errorf("at least one validator is required")
	}

	weights := map[event.ValidatorID]pos.Weight{}
	if raw := ctx.GlobalString("weights"); raw != "" {
		parts := strings.Split(raw, ",")
		if len(parts) != len(runCfg.Validators) {
			return rules, runCfg, fmt.Errorf("got %d weights for %d validators", len(parts), len(runCfg.Validators))
		}
		for i, part := range parts {
			w, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
			if err != nil {
				return rules, runCfg, fmt.Errorf("bad weight %q: %v", part, err)
			}
			weights[runCfg.Validators[i]] = pos.Weight(w)
		}
	} else {
		for _, v := range runCfg.Validators {
			weights[v] = 1
		}
	}
	rules.Genesis = weights

	if t := ctx.GlobalInt64("inactivity-threshold"); t > 0 {
		rules.InactivityThreshold = t
	}
	rules.Deterministic = runCfg.Deterministic

	return rules, runCfg, nil
}

func dumpConfig(ctx *cli.Context) error {
	rules, runCfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	out := struct {
		Rules config.Rules
		Run   runConfig
	}{rules, runCfg}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func checkConfig(ctx *cli.Context) error {
	rules, _, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	var total pos.Weight
	for _, w := range rules.Genesis {
		total += w
	}
	if total == 0 {
		return fmt.Errorf("total genesis weight must be positive")
	}
	return nil
}

// readDescriptors reads a JSON-lines file of event descriptors and buckets
// them by timestamp. Blank lines and lines starting with '#' are skipped.
func readDescriptors(path string) (map[int64][]event.Descriptor, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	byTimestep := map[int64][]event.Descriptor{}
	var maxT int64

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var d event.Descriptor
		if err := json.Unmarshal([]byte(text), &d); err != nil {
			return nil, 0, fmt.Errorf("%s:%d: %v", path, line, err)
		}
		byTimestep[d.Timestamp] = append(byTimestep[d.Timestamp], d)
		if d.Timestamp > maxT {
			maxT = d.Timestamp
		}
	}
	return byTimestep, maxT, scanner.Err()
}

// orderTimestep fixes the ingest order inside one timestamp bucket: sorted
// by id when deterministic, shuffled otherwise.
func orderTimestep(events []event.Descriptor, deterministic bool) []event.Descriptor {
	out := append([]event.Descriptor(nil), events...)
	if deterministic {
		sort.Slice(out, func(i, j int) bool {
			a := event.ID{Creator: out[i].Creator, Seq: out[i].Seq}
			b := event.ID{Creator: out[j].Creator, Seq: out[j].Seq}
			return a.Less(b)
		})
		return out
	}
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
