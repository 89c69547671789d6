package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/openagua/go-evaluator/dataset"
	"github.com/openagua/go-evaluator/engine"
	"github.com/openagua/go-evaluator/format"
	"github.com/openagua/go-evaluator/timestep"
)

// ExitError carries the process exit code of a failed invocation.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// options are the parsed command line.
type options struct {
	ConfigPath string
	// FixturePath is a JSON fixture of datasets that override the database.
	FixturePath string
	// Offline evaluates against the fixture alone, without connecting to Postgres.
	Offline    bool
	ScenarioID int64
	NetworkID  int64
	// Keys are resource attribute keys evaluated in one run.
	Keys []string
	// Expression is evaluated instead of stored datasets when set.
	Expression string
	Type       dataset.Type
	Flavor     format.Flavor
	Strict     bool
	Flatten    bool
	Window     engine.Window
	LogLevel   slog.Level
}

// parseArgs reads the command line. It returns nil options when only help was asked for.
func parseArgs(args []string, output io.Writer) (*options, error) {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, `
evaluate - evaluate resource attribute datasets of a scenario.

Usage:
  evaluate [options] KEY [KEY...]
  evaluate [options] -expr EXPRESSION

Arguments:
  KEY
    Resource attribute key: resource_type/resource_id/attr_id, optionally prefixed
    with the network id.

Options:
`)
		fs.PrintDefaults()
	}

	o := &options{}
	fs.StringVar(&o.ConfigPath, "config", "", "Path to the YAML configuration file.")
	fs.StringVar(&o.FixturePath, "datasets", "", "JSON fixture of datasets and calendar that override the database.")
	fs.BoolVar(&o.Offline, "offline", false, "Do not connect to the database; requires -datasets.")
	fs.Int64Var(&o.ScenarioID, "scenario", 0, "Scenario id.")
	fs.Int64Var(&o.NetworkID, "network", 0, "Network id of the scenario.")
	fs.StringVar(&o.Expression, "expr", "", "Expression to evaluate instead of stored datasets.")
	typeFlag := fs.String("type", string(dataset.Timeseries), "Dataset type of -expr.")
	flavorFlag := fs.String("flavor", string(format.Structured), "Output flavor: structured, tabular or interchange.")
	fs.BoolVar(&o.Strict, "strict", false, "Fail on the first failing step.")
	fs.BoolVar(&o.Flatten, "flatten", false, "Sum the blocks of each date.")
	startFlag := fs.String("start", "", "First date of the evaluation window.")
	endFlag := fs.String("end", "", "Last date of the evaluation window.")
	levelFlag := fs.String("log-level", "warn", "Logging level: debug, info, warn or error.")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil
		}
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	o.Keys = fs.Args()

	usage := func(format string, a ...any) error {
		return &ExitError{Code: 2, Message: fmt.Sprintf(format, a...)}
	}
	if o.ScenarioID == 0 {
		return nil, usage("-scenario is required")
	}
	if o.Offline && o.FixturePath == "" {
		return nil, usage("-offline requires -datasets")
	}
	if (o.Expression == "") == (len(o.Keys) == 0) {
		return nil, usage("give either -expr or at least one key")
	}

	var err error
	if o.Type, err = dataset.ParseType(*typeFlag); err != nil {
		return nil, usage("invalid -type: %v", err)
	}
	if o.Flavor, err = format.ParseFlavor(*flavorFlag); err != nil {
		return nil, usage("invalid -flavor: %v", err)
	}
	if *startFlag != "" {
		if o.Window.Start, err = timestep.ParseDate(*startFlag); err != nil {
			return nil, usage("invalid -start: %v", err)
		}
	}
	if *endFlag != "" {
		if o.Window.End, err = timestep.ParseDate(*endFlag); err != nil {
			return nil, usage("invalid -end: %v", err)
		}
	}
	if err := o.LogLevel.UnmarshalText([]byte(strings.ToLower(*levelFlag))); err != nil {
		return nil, usage("invalid -log-level: %v", err)
	}
	return o, nil
}
