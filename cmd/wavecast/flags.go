package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/MrWong99/wavecast/internal/config"
)

// options is the parsed command line.
type options struct {
	command    string
	configPath string
	protocol   int
	dss        bool
	verbose    bool
	overwrite  bool
	bitrate    string
	workers    int

	// set records the flags given explicitly; only those override the config.
	set  map[string]bool
	args []string
}

// commandArgs is the number of positional arguments each command takes.
var commandArgs = map[string]int{
	"encode": 2,
	"decode": 2,
	"check":  0,
}

// parseArgs parses args as "<command> [flags] [positional...]". Flags may
// appear before, between or after the positional arguments.
func parseArgs(args []string, output io.Writer) (*options, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing command")
	}
	opts := &options{command: args[0], set: map[string]bool{}}
	want, ok := commandArgs[opts.command]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", opts.command)
	}

	fs := flag.NewFlagSet("wavecast "+opts.command, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "path to a YAML configuration file")
	fs.IntVar(&opts.protocol, "p", 0, "ggwave protocol id (both ends must match)")
	fs.BoolVar(&opts.dss, "dss", false, "enable direct sequence spread")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	if opts.command != "check" {
		fs.BoolVar(&opts.overwrite, "y", false, "overwrite the output file if it exists")
	}
	if opts.command == "encode" {
		fs.StringVar(&opts.bitrate, "b", "", "compressed output bitrate, e.g. 128k")
	}
	if opts.command == "decode" {
		fs.IntVar(&opts.workers, "workers", 0, "scan windows demodulated concurrently")
	}

	rest := args[1:]
	for {
		if err := fs.Parse(rest); err != nil {
			return nil, err
		}
		rest = fs.Args()
		if len(rest) == 0 {
			break
		}
		opts.args = append(opts.args, rest[0])
		rest = rest[1:]
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	if len(opts.args) != want {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", opts.command, want, len(opts.args))
	}
	return opts, nil
}

// loadConfig reads the configuration file, if any, and applies the flags
// given on the command line.
func loadConfig(opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, err
		}
	}
	applyFlags(cfg, opts)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, opts *options) {
	if opts.set["p"] {
		cfg.Modem.Protocol = opts.protocol
	}
	if opts.set["dss"] {
		cfg.Modem.DSS = opts.dss
	}
	if opts.set["workers"] {
		cfg.Receive.Workers = opts.workers
	}
	if opts.verbose {
		cfg.Log.Level = config.LogDebug
	}
}
