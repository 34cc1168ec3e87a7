package main

import (
	"flag"
	"fmt"
	"os"
)

// defaultUnwrapThresholdTicks matches the acquisition side: a backward
// jump larger than this is a wrap of the 24-bit hardware clock, a
// smaller one is jitter.
const defaultUnwrapThresholdTicks = 1_000_000

// CLIConfig holds command-line configuration
type CLIConfig struct {
	Input                string
	File                 string
	Mapping              string
	Out                  string
	TCPServer            string
	TCPClient            string
	NATSURL              string
	NATSSubject          string
	NoData               string
	DropNoData           bool
	IncludeNoData        bool
	UnwrapThresholdTicks uint64
	LogLevel             string
	ShowVersion          bool
	ShowHelp             bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.Input, "input", "",
		"Input source: file or stdin (required)")
	flag.StringVar(&cfg.File, "file", "",
		"Path to binary capture, required with -input=file")
	flag.StringVar(&cfg.Mapping, "mapping", "",
		"Optional JSON mapping file of raw_id to channel")
	flag.StringVar(&cfg.Out, "out", "ndjson",
		"Stdout output: ndjson or none")
	flag.StringVar(&cfg.TCPServer, "tcp-server", "",
		"Serve event lines to connecting clients on host:port")
	flag.StringVar(&cfg.TCPClient, "tcp-client", "",
		"Push event lines to a listening peer at host:port")
	flag.StringVar(&cfg.NATSURL, "nats-url", "",
		"Publish event lines to this NATS server (e.g. nats://localhost:4222)")
	flag.StringVar(&cfg.NATSSubject, "nats-subject", "quicklook.events",
		"NATS subject for published event lines")
	flag.StringVar(&cfg.NoData, "no-data", "drop",
		"Policy for no_data records: keep or drop")
	flag.BoolVar(&cfg.DropNoData, "drop-no-data", false,
		"Drop no_data records (overrides -no-data)")
	flag.BoolVar(&cfg.IncludeNoData, "include-no-data", false,
		"Keep no_data records (overrides -drop-no-data and -no-data)")
	flag.Uint64Var(&cfg.UnwrapThresholdTicks, "unwrap-threshold-ticks", defaultUnwrapThresholdTicks,
		"Backward jump in clock ticks treated as a 24-bit wrap")
	flag.StringVar(&cfg.LogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")

	flag.Usage = func() {
		printDetailedHelp()
	}

	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	switch cfg.Input {
	case "file":
		if cfg.File == "" {
			return fmt.Errorf("-file is required with -input=file")
		}
	case "stdin":
	case "":
		return fmt.Errorf("-input is required (file or stdin)")
	default:
		return fmt.Errorf("invalid -input: %s (want file or stdin)", cfg.Input)
	}

	if cfg.Out != "ndjson" && cfg.Out != "none" {
		return fmt.Errorf("invalid -out: %s (want ndjson or none)", cfg.Out)
	}
	if cfg.NoData != "keep" && cfg.NoData != "drop" {
		return fmt.Errorf("invalid -no-data: %s (want keep or drop)", cfg.NoData)
	}
	if cfg.UnwrapThresholdTicks == 0 {
		return fmt.Errorf("-unwrap-threshold-ticks must be positive")
	}
	if cfg.Out == "none" && cfg.TCPServer == "" && cfg.TCPClient == "" && cfg.NATSURL == "" {
		return fmt.Errorf("no outputs configured: -out=none without -tcp-server, -tcp-client or -nats-url")
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - detector binary stream to NDJSON adapter

Usage: %s -input=file|stdin [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Decode a capture file to stdout
  %s -input=file -file=capture.bin

  # Decode from a pipe, serve lines on TCP 9001 and keep stdout quiet
  cat capture.bin | %s -input=stdin -out=none -tcp-server=0.0.0.0:9001

  # Pin the hardware channel mapping and keep no_data records
  %s -input=file -file=capture.bin -mapping=channels.json -include-no-data

Version: %s
`, os.Args[0], os.Args[0], os.Args[0], Version)
}
