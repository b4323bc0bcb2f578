/*
Package metrics exports DriveFS activity as Prometheus metrics.

	┌─────────────┐
	│  Collector  │  ← adapter.MetricsRecorder
	└──────┬──────┘
	       │
	   ┌───┴────────────────────────────┐
	   │                                │
	┌──▼───────────┐         ┌──────────▼────────┐
	│  Prometheus  │         │  HTTP Endpoints   │
	│   Registry   │         │  /metrics         │
	│              │         │  /health          │
	│ - Counters   │         │  /debug/operations│
	│ - Histograms │         └───────────────────┘
	│ - Gauges     │
	└──────────────┘

Exported series, all under the configured namespace (default "drivefs"):

	operations_total{operation,status}      filesystem calls by outcome
	operation_duration_seconds{operation}   call latency
	syncs_total{status}                     remote listing syncs
	sync_duration_seconds                   listing latency
	entries                                 documents in the last good sync
	fetched_bytes_total                     content bytes downloaded
	fetch_duration_seconds                  content fetch latency
	cache_requests_total{type}              reads served from cache or fetched

The collector is disabled unless a metrics port is configured; a disabled
collector is still a valid recorder and drops every sample.

/health answers {"status":"healthy"} until SetHealth attaches a
health.Tracker; it then reports the tracker's overall state and components,
with status 503 once any component is unavailable.

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9100,
		Path:      "/metrics",
		Namespace: "drivefs",
	}, logger)
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(context.Background())

	a, err := adapter.New(ctx, adapter.Options{Client: client, Metrics: collector})
*/
package metrics
