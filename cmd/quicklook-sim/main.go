// Package main implements the detector simulator: a TCP server that
// streams synthetic NDJSON event lines with configurable per-channel
// rates, ADC spectra, burst mode and packet drop, for exercising the
// adapter and acquisition service without hardware.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "quicklook-sim"
)

type simConfig struct {
	Host            string        `json:"-"`
	Port            int           `json:"-"`
	Channels        int           `json:"channels"`
	RateHz          float64       `json:"rate_hz"`
	DeadChannels    []int         `json:"dead_channels"`
	RateMultipliers []float64     `json:"rate_multipliers"`
	Distribution    distribution  `json:"distribution"`
	Burst           bool          `json:"-"`
	DropRate        float64       `json:"-"`
	StatsInterval   time.Duration `json:"-"`
	Seed            int64         `json:"-"`
}

func defaultSimConfig() *simConfig {
	return &simConfig{
		Host:          "0.0.0.0",
		Port:          9001,
		Channels:      4,
		RateHz:        200,
		Distribution:  defaultDistribution(),
		StatsInterval: 5 * time.Second,
	}
}

func main() {
	if err := run(); err != nil {
		slog.Error("Simulator failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cfg, showVersion, showHelp, err := parseFlags()
	if showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if showHelp {
		flag.Usage()
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With("service", appName)
	slog.SetDefault(logger)

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	gen := newGenerator(cfg, rng)

	logger.Info("simulator starting",
		"addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		"channels", cfg.Channels,
		"rate_hz", cfg.RateHz,
		"burst", cfg.Burst,
		"drop_rate", cfg.DropRate,
		"seed", seed)
	for ch, r := range gen.Rates(cfg.RateHz) {
		logger.Info("effective channel rate", "channel", ch, "rate_hz", fmt.Sprintf("%.2f", r))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	limiter := rate.NewLimiter(rate.Limit(cfg.RateHz), 1)

	// One client at a time; the next connection is served after the
	// current one drops.
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("simulator stopped")
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		logger.Info("client connected", "remote", conn.RemoteAddr().String())
		if err := stream(ctx, conn, gen, rng, cfg, limiter, logger); err != nil {
			logger.Info("client disconnected", "remote", conn.RemoteAddr().String(), "error", err)
		}
		conn.Close()
		if ctx.Err() != nil {
			logger.Info("simulator stopped")
			return nil
		}
	}
}

// stream paces events at the nominal rate and writes them to the client
// until it disconnects or the context is cancelled.
func stream(
	ctx context.Context,
	conn net.Conn,
	gen *generator,
	rng *rand.Rand,
	cfg *simConfig,
	limiter *rate.Limiter,
	logger *slog.Logger,
) error {
	var sent, dropped uint64
	counts := make([]int, cfg.Channels)
	lastStats := time.Now()

	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}

		ev := gen.Next(time.Now())
		if rng.Float64() < cfg.DropRate {
			dropped++
		} else {
			line, err := ev.MarshalLine()
			if err != nil {
				logger.Warn("event marshal failed", "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if _, err := conn.Write(line); err != nil {
				return err
			}
			sent++
			counts[ev.Channel]++
		}

		if elapsed := time.Since(lastStats); elapsed >= cfg.StatsInterval {
			logger.Info("stats",
				"elapsed_s", fmt.Sprintf("%.2f", elapsed.Seconds()),
				"sent_rate_hz", fmt.Sprintf("%.2f", float64(sent)/elapsed.Seconds()),
				"sent", sent,
				"dropped", dropped,
				"per_channel", counts)
			sent, dropped = 0, 0
			counts = make([]int, cfg.Channels)
			lastStats = time.Now()
		}
	}
}

func parseFlags() (*simConfig, bool, bool, error) {
	cfg := defaultSimConfig()

	var (
		deadChannels string
		configPath   string
		showVersion  bool
		showHelp     bool
	)

	flag.StringVar(&cfg.Host, "host", cfg.Host, "Listen address")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Listen port")
	flag.IntVar(&cfg.Channels, "channels", cfg.Channels, "Number of active channels (1-64)")
	flag.Float64Var(&cfg.RateHz, "rate-hz", cfg.RateHz, "Aggregate event rate in Hz")
	flag.Int64Var(&cfg.Seed, "seed", 0, "Random seed, 0 for time-based")
	flag.StringVar(&deadChannels, "dead-channels", "", "Comma-separated channels that never fire")
	flag.BoolVar(&cfg.Burst, "burst", false, "Enable periodic rate bursts")
	flag.Float64Var(&cfg.DropRate, "drop-rate", 0, "Fraction of events silently dropped (0-1)")
	flag.DurationVar(&cfg.StatsInterval, "stats-interval", cfg.StatsInterval, "Interval between stats log lines")
	flag.StringVar(&configPath, "config", "", "Optional JSON file with channels, rates and distribution")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help information")

	flag.Parse()

	if showVersion || showHelp {
		return cfg, showVersion, showHelp, nil
	}

	if configPath != "" {
		if err := applyConfigFile(cfg, configPath); err != nil {
			return nil, false, false, err
		}
		// Explicit flags beat the config file.
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "channels":
				cfg.Channels, _ = strconv.Atoi(f.Value.String())
			case "rate-hz":
				cfg.RateHz, _ = strconv.ParseFloat(f.Value.String(), 64)
			}
		})
	}

	if deadChannels != "" {
		parsed, err := parseChannelList(deadChannels)
		if err != nil {
			return nil, false, false, err
		}
		cfg.DeadChannels = parsed
	}

	if err := validateConfig(cfg); err != nil {
		return nil, false, false, err
	}
	return cfg, false, false, nil
}

func applyConfigFile(cfg *simConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func parseChannelList(s string) ([]int, error) {
	var channels []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ch, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid channel %q: %w", part, err)
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func validateConfig(cfg *simConfig) error {
	if cfg.Channels < 1 || cfg.Channels > 64 {
		return fmt.Errorf("channels %d outside [1, 64]", cfg.Channels)
	}
	if cfg.RateHz <= 0 {
		return fmt.Errorf("rate-hz must be positive")
	}
	if cfg.DropRate < 0 || cfg.DropRate > 1 {
		return fmt.Errorf("drop-rate %g outside [0, 1]", cfg.DropRate)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port %d outside [1, 65535]", cfg.Port)
	}
	for _, ch := range cfg.DeadChannels {
		if ch < 0 || ch >= cfg.Channels {
			return fmt.Errorf("dead channel %d outside [0, %d)", ch, cfg.Channels)
		}
	}
	return nil
}
