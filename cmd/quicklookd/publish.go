package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/MaigomAS/Quicklook/acquire"
	"github.com/MaigomAS/Quicklook/natsclient"
)

// publishSnapshots forwards each newly closed window to the NATS
// subject. Publishing is best-effort: a disconnected broker drops
// snapshots, it never slows the acquisition loop.
func publishSnapshots(ctx context.Context, engine *acquire.Engine, client *natsclient.Client, subject string, logger *slog.Logger) {
	logger = logger.With("component", "snapshot-publisher")
	logger.Info("snapshot publishing enabled", "subject", subject)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastRun string
	var lastEnd int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap := engine.Snapshot()
		if snap.RunID == "" || (snap.RunID == lastRun && snap.TEndUs == lastEnd) {
			continue
		}

		data, err := json.Marshal(snap)
		if err != nil {
			logger.Warn("snapshot marshal failed", "error", err)
			continue
		}
		if err := client.Publish(subject, data); err != nil {
			logger.Debug("snapshot publish failed", "error", err)
			continue
		}
		lastRun, lastEnd = snap.RunID, snap.TEndUs
	}
}
