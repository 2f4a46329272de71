/*
	The launcher is the main entry point for the lachesis-core command-line
	interface. It wires together CLI flags, logging and crash reporting,
	the synthetic DAG generator or a JSON-lines input file, and the helper
	commands (dumpconfig, checkconfig).
*/

package launcher

import (
	"crypto/tls"
	"net/http"
	"sort"

	"github.com/certifi/gocertifi"
	"github.com/evalphobia/logrus_sentry"
	"github.com/getsentry/raven-go"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/lachesis-core/config"
	"github.com/rony4d/lachesis-core/engine"
	"github.com/rony4d/lachesis-core/event"
	"github.com/rony4d/lachesis-core/flags"
	"github.com/rony4d/lachesis-core/gendag"
	"github.com/rony4d/lachesis-core/gossip"
)

var (
	// Git SHA1 commit hash of the release (set via linker flags).
	gitCommit = ""
	gitDate   = ""

	// The app that holds all commands and flags.
	app = flags.NewApp(gitCommit, gitDate, "the lachesis-core command line interface")
)

func init() {
	app.Flags = append(app.Flags, flags.CommonFlags()...)
	app.Flags = append(app.Flags, flags.ConsensusFlags()...)
	app.Action = runConsensus
	app.Commands = []cli.Command{
		runCommand,
		dumpConfigCommand,
		checkConfigCommand,
	}
	app.Before = func(ctx *cli.Context) error {
		setupLogging(ctx)
		return setupCrashReporting(ctx)
	}
}

var runCommand = cli.Command{
	Name:        "run",
	Usage:       "Run the consensus core over a synthetic or file-provided DAG",
	Action:      runConsensus,
	Description: "Drives a single engine, or one engine per validator with pull gossip, and prints the decided state.",
}

// Launch parses args and runs the selected command.
func Launch(args []string) error {
	return app.Run(args)
}

func setupLogging(ctx *cli.Context) {
	switch ctx.GlobalString("log.format") {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors: ctx.GlobalBool("log.color"),
		})
	}

	switch ctx.GlobalInt("log.verbosity") {
	case 0:
		logrus.SetLevel(logrus.FatalLevel)
	case 1:
		logrus.SetLevel(logrus.ErrorLevel)
	case 2:
		logrus.SetLevel(logrus.WarnLevel)
	case 3:
		logrus.SetLevel(logrus.InfoLevel)
	case 4:
		logrus.SetLevel(logrus.DebugLevel)
	default:
		logrus.SetLevel(logrus.TraceLevel)
	}
}

// setupCrashReporting attaches a Sentry hook to logrus when a DSN is
// configured. The raven client is given certifi's CA bundle so reporting
// works on hosts without a usable system cert store.
func setupCrashReporting(ctx *cli.Context) error {
	dsn := ctx.GlobalString("sentry-dsn")
	if dsn == "" {
		return nil
	}

	client, err := raven.New(dsn)
	if err != nil {
		return err
	}
	certPool, err := gocertifi.CACerts()
	if err != nil {
		return err
	}
	client.Transport = &raven.HTTPTransport{
		Client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{RootCAs: certPool},
			},
		},
	}

	hook, err := logrus_sentry.NewWithClientSentryHook(client, []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
	})
	if err != nil {
		return err
	}
	hook.StacktraceConfiguration.Enable = true
	logrus.AddHook(hook)
	return nil
}

func runConsensus(ctx *cli.Context) error {
	rules, runCfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}

	var byTimestep map[int64][]event.Descriptor
	var maxT int64
	if runCfg.InputFile != "" {
		byTimestep, maxT, err = readDescriptors(runCfg.InputFile)
		if err != nil {
			return err
		}
	} else {
		byTimestep = gendag.Generate(gendag.Options{
			Validators: runCfg.Validators,
			Weight:     rules.Genesis,
			Timesteps:  runCfg.Timesteps,
		})
		maxT = int64(runCfg.Timesteps)
	}

	if runCfg.MultiInstance {
		return runMulti(rules, runCfg, byTimestep, maxT)
	}
	return runSingle(rules, runCfg, byTimestep, maxT)
}

func runSingle(rules config.Rules, runCfg runConfig, byTimestep map[int64][]event.Descriptor, maxT int64) error {
	eng := engine.New("", nil)
	if rules.InactivityThreshold > 0 {
		eng.SetInactivityThreshold(rules.InactivityThreshold)
	}
	for v, w := range rules.Genesis {
		eng.RegisterValidator(v, w)
	}

	for t := int64(0); t <= maxT; t++ {
		for _, d := range orderTimestep(byTimestep[t], runCfg.Deterministic) {
			if err := eng.Ingest(d); err != nil {
				logrus.WithError(err).WithField("event", event.ID{Creator: d.Creator, Seq: d.Seq}.String()).
					Warn("ingest failed")
			}
		}
	}

	reportEngine("single", eng)
	return nil
}

func runMulti(rules config.Rules, runCfg runConfig, byTimestep map[int64][]event.Descriptor, maxT int64) error {
	coord := gossip.NewCoordinator(nil)
	if rules.InactivityThreshold > 0 {
		coord.SetInactivityThreshold(rules.InactivityThreshold)
	}
	for _, v := range runCfg.Validators {
		coord.AddValidator(v, rules.Genesis)
	}

	for t := int64(0); t <= maxT; t++ {
		coord.IngestTimestep(t, orderTimestep(byTimestep[t], runCfg.Deterministic))
	}

	for _, v := range coord.Validators() {
		reportEngine(string(v), coord.Instance(v))
	}
	return nil
}

func reportEngine(name string, eng *engine.Lachesis) {
	entry := logrus.WithFields(logrus.Fields{
		"instance":        name,
		"frame":           eng.Frame(),
		"block":           eng.Block(),
		"frame_to_decide": eng.FrameToDecide(),
	})
	var decided []string
	for f := eng.Frame(); f >= 1; f-- {
		if id, ok := eng.AtroposOf(f); ok {
			decided = append(decided, id.String())
		}
	}
	sort.Strings(decided)
	var cheaters []string
	for _, v := range eng.Registry().Known() {
		if eng.IsCheater(v) {
			cheaters = append(cheaters, string(v))
		}
	}
	sort.Strings(cheaters)
	entry.WithField("atropos", decided).WithField("cheaters", cheaters).Info("consensus state")
}
