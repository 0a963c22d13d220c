package materialite

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "materialite"

type metrics struct {
	commits        prometheus.Counter
	rollbacks      prometheus.Counter
	aborts         prometheus.Counter
	commitDuration prometheus.Histogram
	sources        prometheus.Gauge
	pullScanned    prometheus.Counter
}

// newMetrics creates the coordinator metrics. Collectors are only exported if reg is not nil;
// coordinators with the same name share their collectors.
func newMetrics(reg prometheus.Registerer, name string) *metrics {
	labels := prometheus.Labels{"name": name}
	m := &metrics{
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "commits_total",
			Help:        "Number of committed versions.",
			ConstLabels: labels,
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "rollbacks_total",
			Help:        "Number of rolled back transactions.",
			ConstLabels: labels,
		}),
		aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "aborted_versions_total",
			Help:        "Number of versions aborted by a panic during propagation.",
			ConstLabels: labels,
		}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   metricsNamespace,
			Name:        "commit_duration_seconds",
			Help:        "Time spent committing a version.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		sources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "sources",
			Help:        "Number of registered sources.",
			ConstLabels: labels,
		}),
		pullScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "pull_scanned_values_total",
			Help:        "Number of values read by sorted sources to answer pull requests.",
			ConstLabels: labels,
		}),
	}

	if reg != nil {
		m.commits = register(reg, m.commits)
		m.rollbacks = register(reg, m.rollbacks)
		m.aborts = register(reg, m.aborts)
		m.commitDuration = register(reg, m.commitDuration)
		m.sources = register(reg, m.sources)
		m.pullScanned = register(reg, m.pullScanned)
	}
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}
