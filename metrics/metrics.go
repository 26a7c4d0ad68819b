package metrics

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const _namespace = "commlib"

var (
	_registry = prometheus.NewRegistry()
	_vecs     sync.Map // vecKey -> prometheus.Collector

	_stopwatchBuckets = prometheus.ExponentialBuckets(0.0001, 2, 18)
)

type vecKey struct {
	policy Policy
	name   string
	labels string
}

// Registry returns the registry holding every metric of the process.
func Registry() *prometheus.Registry {
	return _registry
}

// Handler serves the registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(_registry, promhttp.HandlerOpts{})
}

// FullName returns the exported name of group/name: "<namespace>_<group>_<name>"
// with dots replaced by underscores.
func FullName(group, name string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(_namespace + "_" + group + "_" + name)
}

func labelNames(dims Dimension) []string {
	if len(dims) == 0 {
		return nil
	}
	names := make([]string, 0, len(dims))
	for k := range dims {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func register(c prometheus.Collector) prometheus.Collector {
	if err := _registry.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		// conflicting label set: keep the collector usable but unexported
	}
	return c
}

func getVec(policy Policy, group, name string, dims Dimension) prometheus.Collector {
	labels := labelNames(dims)
	key := vecKey{policy: policy, name: FullName(group, name), labels: strings.Join(labels, ",")}
	if c, ok := _vecs.Load(key); ok {
		return c.(prometheus.Collector)
	}

	var c prometheus.Collector
	switch policy {
	case PolicySum:
		c = prometheus.NewCounterVec(prometheus.CounterOpts{Name: key.name, Help: group + " " + name}, labels)
	case PolicySet:
		c = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: key.name, Help: group + " " + name}, labels)
	default:
		c = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    key.name,
			Help:    group + " " + name + " (seconds)",
			Buckets: _stopwatchBuckets,
		}, labels)
	}
	c = register(c)
	actual, _ := _vecs.LoadOrStore(key, c)
	return actual.(prometheus.Collector)
}

// IncrCounterWithGroup adds v to the counter group/name.
func IncrCounterWithGroup(group, name string, v Value) {
	IncrCounterWithDimGroup(group, name, v, nil)
}

// IncrCounterWithDimGroup adds v to the counter group/name for dims.
func IncrCounterWithDimGroup(group, name string, v Value, dims Dimension) {
	vec, ok := getVec(PolicySum, group, name, dims).(*prometheus.CounterVec)
	if !ok {
		return
	}
	vec.With(prometheus.Labels(dims)).Add(float64(v))
}

// UpdateGaugeWithGroup sets the gauge group/name to v.
func UpdateGaugeWithGroup(group, name string, v Value) {
	UpdateGaugeWithDimGroup(group, name, v, nil)
}

// UpdateGaugeWithDimGroup sets the gauge group/name for dims to v.
func UpdateGaugeWithDimGroup(group, name string, v Value, dims Dimension) {
	vec, ok := getVec(PolicySet, group, name, dims).(*prometheus.GaugeVec)
	if !ok {
		return
	}
	vec.With(prometheus.Labels(dims)).Set(float64(v))
}

// RecordStopwatchWithGroup observes the time elapsed since start.
func RecordStopwatchWithGroup(group, name string, start time.Time) {
	RecordStopwatchWithDimGroup(group, name, start, nil)
}

// RecordStopwatchWithDimGroup observes the time elapsed since start for dims.
func RecordStopwatchWithDimGroup(group, name string, start time.Time, dims Dimension) {
	vec, ok := getVec(PolicyStopwatch, group, name, dims).(*prometheus.HistogramVec)
	if !ok {
		return
	}
	vec.With(prometheus.Labels(dims)).Observe(time.Since(start).Seconds())
}
