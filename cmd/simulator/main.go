// Command simulator runs a local Vensim model, optionally holding one
// variable at a new value from a start time onward, and prints the
// normalized records as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/signalsfoundry/scenario-resimulator/core"
	"github.com/signalsfoundry/scenario-resimulator/internal/config"
	"github.com/signalsfoundry/scenario-resimulator/internal/engine/vensim"
	"github.com/signalsfoundry/scenario-resimulator/internal/logging"
	"github.com/signalsfoundry/scenario-resimulator/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		config.Exitf("simulator: %v", err)
	}
}

// localScenario names the in-memory scenario the run is stored under.
const localScenario = "local"

type options struct {
	modelPath     string
	override      string
	value         string
	start         string
	maxSavePoints int
	logLevel      string
}

func parseFlags(args []string, errOut io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("simulator", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&opts.modelPath, "model", "", "path to the .mdl file to run")
	fs.StringVar(&opts.override, "override", "", "variable to hold at -value (any spelling the API accepts)")
	fs.StringVar(&opts.value, "value", "", "new value for -override")
	fs.StringVar(&opts.start, "start", "", "time from which -value applies")
	fs.IntVar(&opts.maxSavePoints, "max-save-points", vensim.DefaultMaxSavePoints, "largest number of rows a run may record (0 = unlimited)")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.modelPath == "" {
		return options{}, errors.New("-model is required")
	}
	if opts.override != "" && (opts.value == "" || opts.start == "") {
		return options{}, errors.New("-override needs -value and -start")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	log := logging.NewWithWriter(logging.Config{Level: opts.logLevel, Format: "text"}, stderr)

	artifact, err := os.ReadFile(opts.modelPath)
	if err != nil {
		return fmt.Errorf("read model: %w", err)
	}

	svc := core.NewScenarioService(
		store.NewMemoryStore(),
		vensim.New(vensim.WithMaxSavePoints(opts.maxSavePoints)),
		core.WithLogger(log),
	)
	table, err := svc.Simulate(ctx, core.SimulateRequest{
		Filename:     filepath.Base(opts.modelPath),
		Model:        artifact,
		ScenarioName: localScenario,
	})
	if err != nil {
		return err
	}

	if opts.override != "" {
		table, err = svc.Resimulate(ctx, core.ResimulateRequest{
			BaseScenarioName: localScenario,
			VariableToModify: opts.override,
			NewValue:         opts.value,
			StartTime:        opts.start,
		})
		if err != nil {
			return err
		}
	}

	out, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	_, err = fmt.Fprintf(stdout, "%s\n", out)
	return err
}
