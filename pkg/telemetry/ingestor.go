package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Ingestor collectors. Registered separately because the ingestor binary
// shares this package with the serving nodes but exports its own metrics.
var (
	EventsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pennant_ingestor_events_total",
		Help: "Exposure events written to the warehouse",
	})
	EventsDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pennant_ingestor_events_discarded_total",
		Help: "Exposure events discarded as malformed",
	})
	BatchFlushes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pennant_ingestor_batch_flushes_total",
		Help: "Batch writes attempted against the warehouse",
	})
	BatchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pennant_ingestor_batch_failures_total",
		Help: "Batch writes that failed",
	})
)

// InitIngestor registers the ingestor collectors.
func InitIngestor() {
	prometheus.MustRegister(EventsIngested, EventsDiscarded, BatchFlushes, BatchFailures)
}
