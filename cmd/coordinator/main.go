package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/mlat-coordinator/core"
	"github.com/signalsfoundry/mlat-coordinator/internal/logging"
	"github.com/signalsfoundry/mlat-coordinator/internal/observability"
)

func main() {
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	snapshotInterval := flag.Duration("snapshot-interval", 30*time.Second, "pause between state snapshot writes")
	syncPath := flag.String("sync-state", "sync.json", "path of the sync-state snapshot artifact")
	locationsPath := flag.String("locations", "locations.json", "path of the locations snapshot artifact")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	collector, err := observability.NewCoordinatorCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}

	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	// The tracking, clock-sync and mlat-solving subsystems are separate
	// services wired in by the embedding server; standalone the hub runs
	// with inert placeholders so the registry, snapshots and metrics can
	// be exercised end to end.
	coordinator := core.New(core.Config{
		Tracker:          inertTracker{},
		ClockTracker:     inertClockTracker{},
		MlatTracker:      inertMlatTracker{},
		SnapshotInterval: *snapshotInterval,
		SyncStatePath:    *syncPath,
		LocationsPath:    *locationsPath,
		Logger:           logging.WithComponent(log, "coordinator"),
		Metrics:          collector,
	})

	coordinator.Start()
	log.Info(ctx, "coordinator started",
		logging.String("sync_state", *syncPath),
		logging.String("locations", *locationsPath))

	// SIGHUP forces an immediate snapshot, ahead of the periodic timer.
	reg := coordinator.AddSignalHandler(func() {
		if err := coordinator.SnapshotNow(context.Background()); err != nil {
			log.Warn(context.Background(), "forced snapshot failed", logging.String("error", err.Error()))
		}
	})
	defer coordinator.RemoveSignalHandler(reg)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down coordinator")
	coordinator.Close()
	coordinator.WaitClosed()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func serveMetrics(addr string, collector *observability.CoordinatorCollector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

type inertTracker struct{}

func (inertTracker) Add(*core.Receiver, []core.AircraftAddress)    {}
func (inertTracker) Remove(*core.Receiver, []core.AircraftAddress) {}
func (inertTracker) RemoveAll(*core.Receiver)                      {}
func (inertTracker) UpdateInterest(*core.Receiver)                 {}
func (inertTracker) Interesting(core.AircraftAddress) bool         { return false }

type inertClockTracker struct{}

func (inertClockTracker) ReceiverSync(*core.Receiver, float64, float64, []byte, []byte) {}
func (inertClockTracker) ReceiverClockReset(*core.Receiver)                             {}
func (inertClockTracker) ReceiverDisconnect(*core.Receiver)                             {}
func (inertClockTracker) DumpReceiverState(*core.Receiver) any                          { return map[string]any{} }

type inertMlatTracker struct{}

func (inertMlatTracker) ReceiverMlat(*core.Receiver, float64, []byte, time.Time) {}
