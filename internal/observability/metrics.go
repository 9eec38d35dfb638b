package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CoordinatorCollector bundles Prometheus metrics for the coordination hub
// and provides a ready-to-serve /metrics handler. All record methods are
// nil-safe so a nil collector disables metrics without branching at call
// sites.
type CoordinatorCollector struct {
	gatherer prometheus.Gatherer

	ConnectedReceivers prometheus.Gauge
	Admissions         *prometheus.CounterVec
	SyncPairs          prometheus.Counter
	MlatMessages       prometheus.Counter
	ResultsDelivered   prometheus.Counter
	DeliveryFailures   prometheus.Counter
	SnapshotErrors     prometheus.Counter
	SnapshotDuration   prometheus.Histogram
}

// NewCoordinatorCollector registers coordinator Prometheus metrics against
// the provided registerer, defaulting to the global Prometheus registry
// when nil.
func NewCoordinatorCollector(reg prometheus.Registerer) (*CoordinatorCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	connected, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mlat_connected_receivers",
		Help: "Current number of live receivers in the registry.",
	}), "mlat_connected_receivers")
	if err != nil {
		return nil, err
	}

	admissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mlat_admissions_total",
		Help: "Receiver admission attempts, labeled by outcome (admitted, duplicate, rejected).",
	}, []string{"outcome"})
	admissions, err = registerCounterVec(reg, admissions, "mlat_admissions_total")
	if err != nil {
		return nil, err
	}

	syncPairs, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mlat_sync_pairs_total",
		Help: "Sync message pairs routed to the clock tracker.",
	}), "mlat_sync_pairs_total")
	if err != nil {
		return nil, err
	}
	mlatMessages, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mlat_messages_total",
		Help: "Messages routed to the multilateration solver.",
	}), "mlat_messages_total")
	if err != nil {
		return nil, err
	}
	delivered, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mlat_results_delivered_total",
		Help: "Position results successfully delivered to receivers.",
	}), "mlat_results_delivered_total")
	if err != nil {
		return nil, err
	}
	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mlat_result_delivery_failures_total",
		Help: "Position result deliveries that failed and were dropped.",
	}), "mlat_result_delivery_failures_total")
	if err != nil {
		return nil, err
	}
	snapErrors, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mlat_snapshot_errors_total",
		Help: "State snapshot writes that failed.",
	}), "mlat_snapshot_errors_total")
	if err != nil {
		return nil, err
	}

	snapDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mlat_snapshot_write_duration_seconds",
		Help:    "Duration of a full state snapshot write.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
	snapDuration, err = registerHistogram(reg, snapDuration, "mlat_snapshot_write_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &CoordinatorCollector{
		gatherer:           gatherer,
		ConnectedReceivers: connected,
		Admissions:         admissions,
		SyncPairs:          syncPairs,
		MlatMessages:       mlatMessages,
		ResultsDelivered:   delivered,
		DeliveryFailures:   failures,
		SnapshotErrors:     snapErrors,
		SnapshotDuration:   snapDuration,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *CoordinatorCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetConnectedReceivers records the current registry size.
func (c *CoordinatorCollector) SetConnectedReceivers(n int) {
	if c == nil || c.ConnectedReceivers == nil {
		return
	}
	c.ConnectedReceivers.Set(float64(n))
}

// IncAdmission counts an admission attempt by outcome.
func (c *CoordinatorCollector) IncAdmission(outcome string) {
	if c == nil || c.Admissions == nil {
		return
	}
	c.Admissions.WithLabelValues(outcome).Inc()
}

// IncSyncPair counts a sync message pair.
func (c *CoordinatorCollector) IncSyncPair() {
	if c == nil || c.SyncPairs == nil {
		return
	}
	c.SyncPairs.Inc()
}

// IncMlatMessage counts a message handed to the solver.
func (c *CoordinatorCollector) IncMlatMessage() {
	if c == nil || c.MlatMessages == nil {
		return
	}
	c.MlatMessages.Inc()
}

// IncResultDelivered counts a successful per-receiver result delivery.
func (c *CoordinatorCollector) IncResultDelivered() {
	if c == nil || c.ResultsDelivered == nil {
		return
	}
	c.ResultsDelivered.Inc()
}

// IncDeliveryFailure counts a dropped per-receiver result delivery.
func (c *CoordinatorCollector) IncDeliveryFailure() {
	if c == nil || c.DeliveryFailures == nil {
		return
	}
	c.DeliveryFailures.Inc()
}

// IncSnapshotError counts a failed snapshot write.
func (c *CoordinatorCollector) IncSnapshotError() {
	if c == nil || c.SnapshotErrors == nil {
		return
	}
	c.SnapshotErrors.Inc()
}

// ObserveSnapshotWrite records the duration of a successful snapshot.
func (c *CoordinatorCollector) ObserveSnapshotWrite(d time.Duration) {
	if c == nil || c.SnapshotDuration == nil {
		return
	}
	c.SnapshotDuration.Observe(d.Seconds())
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
