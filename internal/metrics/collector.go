package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/drivefs/drivefs/pkg/health"
)

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Labels    map[string]string `yaml:"labels"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
}

// DefaultConfig returns a disabled configuration with the standard path and
// namespace.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   false,
		Port:      9100,
		Path:      "/metrics",
		Namespace: "drivefs",
		Labels:    make(map[string]string),
	}
}

// OperationMetrics tracks totals for one filesystem operation.
type OperationMetrics struct {
	Count         int64         `json:"count"`
	Errors        int64         `json:"errors"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
	LastOperation time.Time     `json:"last_operation"`
}

// Collector exports adapter activity as Prometheus metrics. A collector
// built from a disabled config accepts every Record call and does nothing.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *zap.Logger

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	syncCounter       *prometheus.CounterVec
	syncDuration      prometheus.Histogram
	syncEntries       prometheus.Gauge
	fetchBytes        prometheus.Counter
	fetchDuration     prometheus.Histogram
	cacheCounter      *prometheus.CounterVec

	operations map[string]*OperationMetrics
	started    time.Time
	health     *health.Tracker

	server *http.Server
}

// NewCollector creates a collector. A nil config uses DefaultConfig.
func NewCollector(config *Config, logger *zap.Logger) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Collector{
		config:     config,
		logger:     logger.With(zap.String("component", "metrics")),
		operations: make(map[string]*OperationMetrics),
		started:    time.Now(),
	}
	if !config.Enabled {
		return c, nil
	}

	c.registry = prometheus.NewRegistry()
	c.initMetrics()
	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

// Enabled reports whether the collector exports metrics.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// Handler returns the HTTP handler serving the metrics endpoint, the health
// check and the plain-text operation summary.
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	if c.registry != nil {
		mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/operations", c.debugOperationsHandler)
	return mux
}

// SetHealth makes the health endpoint report the tracker's components.
// Call it before Start.
func (c *Collector) SetHealth(t *health.Tracker) {
	c.health = t
}

// Start serves the metrics endpoint in the background.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           c.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	c.logger.Info("serving metrics",
		zap.Int("port", c.config.Port),
		zap.String("path", c.config.Path))
	return nil
}

// Stop shuts the metrics server down.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// RecordOperation records one filesystem operation.
func (c *Collector) RecordOperation(operation string, duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	m, ok := c.operations[operation]
	if !ok {
		m = &OperationMetrics{}
		c.operations[operation] = m
	}
	m.Count++
	if err != nil {
		m.Errors++
	}
	m.TotalDuration += duration
	m.AvgDuration = time.Duration(int64(m.TotalDuration) / m.Count)
	m.LastOperation = time.Now()
	c.mu.Unlock()

	c.operationCounter.WithLabelValues(operation, statusLabel(err)).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSync records one listing sync.
func (c *Collector) RecordSync(entries int, duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}
	c.syncCounter.WithLabelValues(statusLabel(err)).Inc()
	c.syncDuration.Observe(duration.Seconds())
	if err == nil {
		c.syncEntries.Set(float64(entries))
	}
}

// RecordFetch records one content fetch.
func (c *Collector) RecordFetch(bytes int64, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.fetchBytes.Add(float64(bytes))
	c.fetchDuration.Observe(duration.Seconds())
}

// RecordCacheHit records a read served from cached content.
func (c *Collector) RecordCacheHit() {
	if !c.config.Enabled {
		return
	}
	c.cacheCounter.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a read that had to fetch content.
func (c *Collector) RecordCacheMiss() {
	if !c.config.Enabled {
		return
	}
	c.cacheCounter.WithLabelValues("miss").Inc()
}

// Operations returns a copy of the per-operation totals.
func (c *Collector) Operations() map[string]OperationMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]OperationMetrics, len(c.operations))
	for k, v := range c.operations {
		out[k] = *v
	}
	return out
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) initMetrics() {
	ns, sub := c.config.Namespace, c.config.Subsystem
	labels := prometheus.Labels(c.config.Labels)

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "operations_total",
			Help:        "Total number of filesystem operations",
			ConstLabels: labels,
		},
		[]string{"operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "operation_duration_seconds",
			Help:        "Duration of filesystem operations in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.0001, 2, 18), // 100µs to ~13s
			ConstLabels: labels,
		},
		[]string{"operation"},
	)

	c.syncCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "syncs_total",
			Help:        "Total number of remote listing syncs",
			ConstLabels: labels,
		},
		[]string{"status"},
	)

	c.syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   ns,
		Subsystem:   sub,
		Name:        "sync_duration_seconds",
		Help:        "Duration of remote listing syncs in seconds",
		Buckets:     prometheus.ExponentialBuckets(0.01, 2, 12),
		ConstLabels: labels,
	})

	c.syncEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Subsystem:   sub,
		Name:        "entries",
		Help:        "Number of documents in the last successful sync",
		ConstLabels: labels,
	})

	c.fetchBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   ns,
		Subsystem:   sub,
		Name:        "fetched_bytes_total",
		Help:        "Total bytes of document content fetched",
		ConstLabels: labels,
	})

	c.fetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   ns,
		Subsystem:   sub,
		Name:        "fetch_duration_seconds",
		Help:        "Duration of content fetches in seconds",
		Buckets:     prometheus.ExponentialBuckets(0.01, 2, 12),
		ConstLabels: labels,
	})

	c.cacheCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "cache_requests_total",
			Help:        "Reads by whether cached content could serve them",
			ConstLabels: labels,
		},
		[]string{"type"},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.syncCounter,
		c.syncDuration,
		c.syncEntries,
		c.fetchBytes,
		c.fetchDuration,
		c.cacheCounter,
	}
	for _, m := range metrics {
		if err := c.registry.Register(m); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if c.health == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"drivefs-metrics"}`))
		return
	}

	overall := c.health.Overall()
	status := http.StatusOK
	if overall == health.StateUnavailable {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Status     health.State             `json:"status"`
		Service    string                   `json:"service"`
		Components []health.ComponentHealth `json:"components"`
	}{overall, "drivefs-metrics", c.health.Components()})
}

func (c *Collector) debugOperationsHandler(w http.ResponseWriter, _ *http.Request) {
	ops := c.Operations()

	w.Header().Set("Content-Type", "text/plain")
	writef := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(w, format, args...) }

	writef("DriveFS Operations Summary\n")
	writef("==========================\n\n")
	writef("Uptime: %v\n\n", time.Since(c.started).Truncate(time.Second))

	if len(ops) == 0 {
		writef("No operations recorded.\n")
		return
	}

	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	writef("%-12s %10s %10s %14s %10s\n", "Operation", "Count", "Errors", "Avg Duration", "Last Op")
	writef("%-12s %10s %10s %14s %10s\n", "---------", "-----", "------", "------------", "-------")
	for _, name := range names {
		op := ops[name]
		writef("%-12s %10d %10d %14v %10s\n",
			name, op.Count, op.Errors, op.AvgDuration, op.LastOperation.Format("15:04:05"))
	}
}
