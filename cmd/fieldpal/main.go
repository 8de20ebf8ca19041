package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog"
	"go.mau.fi/util/exerrors"
	"go.mau.fi/util/exzerolog"
	"go.mau.fi/util/progver"
	flag "maunium.net/go/mauflag"

	"github.com/highesttt/fieldpal/pkg/caserun"
	"github.com/highesttt/fieldpal/pkg/interp"
)

// Information to find out exactly which commit the binary was built from.
// These are filled at build time with the -X linker flag.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath = flag.MakeFull("c", "config", "The path to the case config file.", "config.yaml").String()
var writeExampleConfig = flag.MakeFull("e", "generate-example-config", "Save the example config to the config path and quit.", "false").Bool()
var version = flag.MakeFull("v", "version", "View version and quit.", "false").Bool()
var wantHelp, _ = flag.MakeHelpFlag()

func main() {
	ver := progver.ProgramVersion{
		Name:        "fieldpal",
		URL:         "https://github.com/highesttt/fieldpal",
		BaseVersion: "0.1.0",
	}.Init(Tag, Commit, BuildTime)

	flag.SetHelpTitles(
		"fieldpal - run scripts against host field data.",
		"fieldpal [-hev] [-c <path>]",
	)
	err := flag.Parse()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		flag.PrintHelp()
		os.Exit(1)
	} else if *wantHelp {
		flag.PrintHelp()
		os.Exit(0)
	} else if *version {
		fmt.Println(ver.VersionDescription)
		os.Exit(0)
	} else if *writeExampleConfig {
		if _, err = os.Stat(*configPath); err == nil {
			_, _ = fmt.Fprintln(os.Stderr, *configPath, "already exists, please remove it if you want to generate a new example")
			os.Exit(1)
		}
		exerrors.PanicIfNotNil(os.WriteFile(*configPath, []byte(caserun.ExampleConfig), 0600))
		fmt.Println("Wrote example config to", *configPath)
		os.Exit(0)
	}

	cfg, err := caserun.LoadConfig(*configPath)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(10)
	}
	log, err := cfg.Logging.Compile()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(11)
	}
	exzerolog.SetupDefaults(log)
	log.Info().
		Str("name", ver.Name).
		Str("version", ver.FormattedVersion).
		Time("built_at", ver.BuildTime).
		Str("go_version", runtime.Version()).
		Msg("Initializing fieldpal")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, log)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *caserun.Config, log *zerolog.Logger) int {
	defer func() {
		if err := interp.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("Failed to shut down interpreter")
		}
	}()

	res, err := caserun.NewRunner(cfg, *log).Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Warn().Msg("Interrupted")
		return 130
	} else if err != nil {
		log.Err(err).Msg("Run failed")
		return 1
	}

	evt := log.Info().
		Strs("patches", res.Patches).
		Strs("skipped", res.Skipped).
		Strs("outputs", res.Outputs).
		Dur("duration", res.Duration)
	for name, v := range res.Scalars {
		evt = evt.Float64("scalar_"+name, v)
	}
	for name, v := range res.Texts {
		evt = evt.Str("text_"+name, v)
	}
	evt.Msg("Run finished")
	return 0
}
