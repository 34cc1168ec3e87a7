// Package main implements the hardware adapter: it reads the
// detector's 12-byte binary subrecords from a file or stdin, decodes
// them into normalized events, and fans the NDJSON lines out to
// stdout and optional TCP peers.
//
// Stdout carries event lines only; all diagnostics go to stderr so the
// adapter can sit in a shell pipeline.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/MaigomAS/Quicklook/decode"
	"github.com/MaigomAS/Quicklook/fanout"
	"github.com/MaigomAS/Quicklook/natsclient"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "quicklook-adapter"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Adapter failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger := setupStderrLogger(cliCfg.LogLevel)
	slog.SetDefault(logger)

	src, err := openInput(cliCfg)
	if err != nil {
		return err
	}
	defer src.Close()

	mapper, err := buildMapper(cliCfg, logger)
	if err != nil {
		return err
	}

	dropNoData := resolveNoDataPolicy(cliCfg)
	logger.Info("no_data policy resolved", "drop", dropNoData)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sinks, closeSinks, err := buildSinks(ctx, cliCfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()
	out := fanout.New(sinks, logger, nil)

	if err := out.Start(ctx); err != nil {
		return fmt.Errorf("start fanout: %w", err)
	}
	defer func() {
		if err := out.Stop(2 * time.Second); err != nil {
			logger.Warn("fanout stop failed", "error", err)
		}
	}()

	stats, err := decodeStream(ctx, src, mapper, cliCfg.UnwrapThresholdTicks, dropNoData, out, logger)

	logger.Info("adapter finished",
		"emitted_hits", stats.emittedHits,
		"dropped_no_data", stats.droppedNoData,
		"emitted_total", stats.emittedTotal,
		"dropped_no_channel", stats.droppedNoChannel)
	logger.Info("final channel mapping", "mapping", mapper.Describe())

	return err
}

type adapterStats struct {
	emittedHits      int64
	droppedNoData    int64
	emittedTotal     int64
	droppedNoChannel int64
}

// decodeStream drives the subrecord scanner through the decode pipeline
// and fans accepted events out as NDJSON lines.
func decodeStream(
	ctx context.Context,
	src io.Reader,
	mapper *decode.ChannelMapper,
	unwrapThresholdTicks uint64,
	dropNoData bool,
	out *fanout.Fanout,
	logger *slog.Logger,
) (adapterStats, error) {
	pipeline := decode.NewPipeline(mapper, unwrapThresholdTicks)
	scanner := decode.NewSubrecordScanner(src)

	var stats adapterStats

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			logger.Info("interrupted, stopping")
			return stats, nil
		default:
		}

		rec := scanner.Subrecord()
		ev, res := pipeline.Build(rec)

		switch res.Outcome {
		case decode.MapExhausted:
			stats.droppedNoChannel++
			if stats.droppedNoChannel == 1 {
				logger.Warn("channel namespace exhausted, dropping unmappable records",
					"raw_id", rec.RawID)
			}
			continue
		case decode.MapAssigned:
			logger.Info("auto-assigned channel",
				"raw_id", rec.RawID,
				"channel", res.Channel,
				"assigned", pipeline.Mapper().Len())
		}

		if ev.Flags.NoData && dropNoData {
			stats.droppedNoData++
			continue
		}

		line, err := ev.MarshalLine()
		if err != nil {
			logger.Warn("event marshal failed", "error", err)
			continue
		}
		out.Write(line)

		stats.emittedTotal++
		if !ev.Flags.NoData {
			stats.emittedHits++
		}
	}

	if trailing := scanner.Buffered(); trailing > 0 {
		logger.Warn("stream ended mid-subrecord", "trailing_bytes", trailing)
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read input: %w", err)
	}
	return stats, nil
}

func openInput(cfg *CLIConfig) (io.ReadCloser, error) {
	if cfg.Input == "stdin" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	return f, nil
}

func buildMapper(cfg *CLIConfig, logger *slog.Logger) (*decode.ChannelMapper, error) {
	if cfg.Mapping == "" {
		logger.Info("no mapping file, channels auto-assigned first seen first served")
		return decode.NewChannelMapper(), nil
	}

	mapper, err := decode.NewChannelMapperFromFile(cfg.Mapping)
	if err != nil {
		return nil, fmt.Errorf("load mapping file: %w", err)
	}
	logger.Info("channel mapping loaded",
		"path", cfg.Mapping,
		"entries", mapper.Len(),
		"mapping", mapper.Describe())
	return mapper, nil
}

// resolveNoDataPolicy applies the flag precedence: -include-no-data
// beats -drop-no-data beats -no-data.
func resolveNoDataPolicy(cfg *CLIConfig) bool {
	if cfg.IncludeNoData {
		return false
	}
	if cfg.DropNoData {
		return true
	}
	return cfg.NoData == "drop"
}

// buildSinks assembles the output fanout from the flags. The returned
// closer tears down the NATS connection, if one was opened.
func buildSinks(ctx context.Context, cfg *CLIConfig, logger *slog.Logger) ([]fanout.Sink, func(), error) {
	var sinks []fanout.Sink
	if cfg.Out == "ndjson" {
		sinks = append(sinks, fanout.NewConsoleSink(os.Stdout))
	}
	if cfg.TCPServer != "" {
		sinks = append(sinks, fanout.NewTCPServerSink(cfg.TCPServer, logger))
	}
	if cfg.TCPClient != "" {
		sinks = append(sinks, fanout.NewTCPClientSink(cfg.TCPClient, logger))
	}

	closer := func() {}
	if cfg.NATSURL != "" {
		client, err := natsclient.NewClient(cfg.NATSURL,
			natsclient.WithName(appName),
			natsclient.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("create NATS client: %w", err)
		}

		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := client.Connect(connectCtx); err != nil {
			return nil, nil, fmt.Errorf("connect to NATS %s: %w", cfg.NATSURL, err)
		}

		sinks = append(sinks, fanout.NewNATSSink(client, cfg.NATSSubject))
		closer = func() {
			if err := client.Close(); err != nil {
				logger.Warn("NATS close failed", "error", err)
			}
		}
	}
	return sinks, closer, nil
}

func setupStderrLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler).With("service", appName)
}
