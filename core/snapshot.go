package core

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/mlat-coordinator/internal/logging"
)

// syncEntry is the per-receiver entry in the sync-state snapshot.
type syncEntry struct {
	Peers any `json:"peers"`
}

// locationEntry is the per-receiver entry in the locations snapshot.
type locationEntry struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Alt        float64 `json:"alt"`
	Privacy    bool    `json:"privacy"`
	Connection string  `json:"connection"`
}

// Start launches the periodic snapshot publisher. Call Close and
// WaitClosed at shutdown.
func (c *Coordinator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.snapCancel = cancel
	c.snapDone = make(chan struct{})
	go c.writeState(ctx)
}

// Close cancels the snapshot publisher and, when the coordinator created
// its own signal multiplexer, removes the OS signal hook.
func (c *Coordinator) Close() {
	if c.snapCancel != nil {
		c.snapCancel()
	}
	if c.ownsSignals {
		c.signals.Close()
	}
}

// WaitClosed blocks until the snapshot publisher has stopped. The
// cancellation outcome is swallowed; it is not an error at shutdown.
func (c *Coordinator) WaitClosed() {
	if c.snapDone != nil {
		<-c.snapDone
	}
}

// writeState wakes on a fixed interval, measured from the end of the
// previous write, and rewrites both snapshot artifacts. The period
// therefore drifts by the write's duration; that is accepted. A failing
// write terminates the task.
func (c *Coordinator) writeState(ctx context.Context) {
	defer close(c.snapDone)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.clk.After(c.cfg.SnapshotInterval):
		}

		if err := c.SnapshotNow(ctx); err != nil {
			c.log.Error(ctx, "state snapshot failed",
				logging.String("error", err.Error()))
			return
		}
	}
}

// SnapshotNow serializes the registry and interest state to the two
// snapshot artifacts, overwriting prior content: the sync-state document
// maps each identity to its clock-sync peers (as dumped by the
// ClockTracker) and the locations document maps each identity to its
// static location and metadata. Writes are not crash-atomic.
func (c *Coordinator) SnapshotNow(ctx context.Context) error {
	tracer := otel.Tracer("mlat-coordinator/core")
	ctx, span := tracer.Start(ctx, "coordinator.snapshot")
	defer span.End()

	start := time.Now()
	receivers := c.Receivers()

	syncState := make(map[string]syncEntry, len(receivers))
	locations := make(map[string]locationEntry, len(receivers))
	for _, r := range receivers {
		syncState[r.name] = syncEntry{Peers: c.cfg.ClockTracker.DumpReceiverState(r)}
		locations[r.name] = locationEntry{
			Lat:        r.positionLLH.Lat,
			Lon:        r.positionLLH.Lon,
			Alt:        r.positionLLH.Alt,
			Privacy:    r.privacy,
			Connection: r.connInfo,
		}
	}

	if err := writeJSONFile(c.cfg.SyncStatePath, syncState); err != nil {
		c.metrics.IncSnapshotError()
		return err
	}
	if err := writeJSONFile(c.cfg.LocationsPath, locations); err != nil {
		c.metrics.IncSnapshotError()
		return err
	}

	span.SetAttributes(attribute.Int("receivers", len(receivers)))
	c.metrics.ObserveSnapshotWrite(time.Since(start))
	c.log.Debug(ctx, "state snapshot written",
		logging.Int("receivers", len(receivers)))
	return nil
}

func writeJSONFile(path string, v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}
