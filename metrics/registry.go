package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMu       sync.Mutex
	globalRegistry = prometheus.NewRegistry()
)

// GetRegistry returns the process-wide prometheus registry served at /metrics.
func GetRegistry() *prometheus.Registry {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalRegistry
}

// ComponentRegistry prefixes all collectors with a namespace/subsystem pair
// and registers them on the global registry. Duplicate registration panics,
// so each component constructs its metrics exactly once.
type ComponentRegistry struct {
	namespace string
	subsystem string
	reg       prometheus.Registerer
}

// NewComponentRegistry creates a registry view for one component.
func NewComponentRegistry(namespace, subsystem string) *ComponentRegistry {
	return &ComponentRegistry{
		namespace: namespace,
		subsystem: subsystem,
		reg:       GetRegistry(),
	}
}

// NewComponentRegistryOn is like NewComponentRegistry but registers on the
// given registerer. Tests pass a private registry to avoid duplicate
// registration across cases.
func NewComponentRegistryOn(reg prometheus.Registerer, namespace, subsystem string) *ComponentRegistry {
	if reg == nil {
		reg = GetRegistry()
	}
	return &ComponentRegistry{namespace: namespace, subsystem: subsystem, reg: reg}
}

func (r *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	c := prometheus.NewCounter(opts)
	r.reg.MustRegister(c)
	return c
}

func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	c := prometheus.NewCounterVec(opts, labels)
	r.reg.MustRegister(c)
	return c
}

func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	g := prometheus.NewGauge(opts)
	r.reg.MustRegister(g)
	return g
}

func (r *ComponentRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	g := prometheus.NewGaugeVec(opts, labels)
	r.reg.MustRegister(g)
	return g
}

func (r *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	h := prometheus.NewHistogram(opts)
	r.reg.MustRegister(h)
	return h
}

func (r *ComponentRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	h := prometheus.NewHistogramVec(opts, labels)
	r.reg.MustRegister(h)
	return h
}
