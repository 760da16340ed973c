// Package metrics exposes Prometheus counters and histograms for artifact
// operations on a registry owned by the collector.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Transfer directions.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// Operation outcomes.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Config holds configuration for the Collector.
type Config struct {
	Namespace string `yaml:"namespace" json:"namespace"`
	Subsystem string `yaml:"subsystem" json:"subsystem"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Namespace: "artifact"}
}

// Collector wraps the Prometheus metrics recorded by the artifact client.
type Collector struct {
	registry *prometheus.Registry

	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	TransferBytes     *prometheus.CounterVec
}

// New creates a Collector with the default configuration.
func New() *Collector {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Collector with its own Prometheus registry.
func NewWithConfig(cfg Config) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "operations_total",
			Help:      "Total number of artifact operations",
		}, []string{"operation", "status"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Duration of artifact operations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		TransferBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "transfer_bytes_total",
			Help:      "Archive bytes moved to or from the object store",
		}, []string{"direction"}),
	}
	reg.MustRegister(c.Operations, c.OperationDuration, c.TransferBytes)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Push sends the registry to a Pushgateway at url under job, replacing
// the metrics previously pushed for that job.
func (c *Collector) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

// RecordOperation counts one finished operation and observes its duration.
// A nil Collector records nothing.
func (c *Collector) RecordOperation(operation string, err error, duration time.Duration) {
	if c == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	c.Operations.WithLabelValues(operation, status).Inc()
	c.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTransfer adds n bytes moved in direction.
func (c *Collector) RecordTransfer(direction string, n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.TransferBytes.WithLabelValues(direction).Add(float64(n))
}

// WriteTextfile writes the registry to path in the text exposition format
// read by the node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
