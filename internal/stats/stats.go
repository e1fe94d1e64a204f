// Package stats tracks run-wide counters shared across pipeline stages.
package stats

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	imagesDiscoveredTotal prometheus.Counter
	imagesProcessedTotal  prometheus.Counter
	deviationsTotal       prometheus.Counter
	errorsTotal           prometheus.Counter

	once sync.Once
)

func initCollectors() {
	once.Do(func() {
		imagesDiscoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "imgcheck_images_discovered_total",
			Help: "Total number of image descriptors emitted by discovery.",
		})
		imagesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "imgcheck_images_processed_total",
			Help: "Total number of jobs taken off the image queue, including skips and faults.",
		})
		deviationsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "imgcheck_deviations_total",
			Help: "Total number of results scoring at maximal deviation.",
		})
		errorsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "imgcheck_errors_total",
			Help: "Total number of per-image failures.",
		})
	})
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Discovered int64
	Processed  int64
	Deviations int64
	Errors     int64
}

// Registry holds the run counters. Increments are atomic; no compound
// read-modify-write spans more than one field.
type Registry struct {
	discovered atomic.Int64
	processed  atomic.Int64
	deviations atomic.Int64
	errs       atomic.Int64
}

// New constructs a Registry and makes sure the Prometheus collectors are
// registered.
func New() *Registry {
	initCollectors()
	return &Registry{}
}

// AddDiscovered records one emitted descriptor.
func (r *Registry) AddDiscovered() {
	r.discovered.Add(1)
	imagesDiscoveredTotal.Inc()
}

// AddProcessed records one completed job, whether or not it produced a result.
func (r *Registry) AddProcessed() {
	r.processed.Add(1)
	imagesProcessedTotal.Inc()
}

// AddDeviation records one maximally-deviating result.
func (r *Registry) AddDeviation() {
	r.deviations.Add(1)
	deviationsTotal.Inc()
}

// AddError records one per-image failure.
func (r *Registry) AddError() {
	r.errs.Add(1)
	errorsTotal.Inc()
}

// Discovered returns the running discovery count.
func (r *Registry) Discovered() int64 { return r.discovered.Load() }

// Processed returns the running processed count.
func (r *Registry) Processed() int64 { return r.processed.Load() }

// Remaining returns discovered minus processed.
func (r *Registry) Remaining() int64 { return r.discovered.Load() - r.processed.Load() }

// Snapshot copies every counter for progress reporting.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		Discovered: r.discovered.Load(),
		Processed:  r.processed.Load(),
		Deviations: r.deviations.Load(),
		Errors:     r.errs.Load(),
	}
}
