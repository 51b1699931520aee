// Package promhooks counts dualstore events with Prometheus counters.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/dualstore"
)

type Hooks struct {
	readFallbacks *prometheus.CounterVec
	duplicates    *prometheus.CounterVec
	writeFailures *prometheus.CounterVec
	idMismatches  *prometheus.CounterVec
}

var _ dualstore.Hooks = (*Hooks)(nil)

// New registers the counters with reg. namespace "" => "dualstore".
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	if namespace == "" {
		namespace = "dualstore"
	}
	h := &Hooks{
		readFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_read_fallbacks_total",
			Help:      "Cache reads answered by the durable store, by reason.",
		}, []string{"op", "reason"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_inserts_total",
			Help:      "Cache inserts rejected because the field already existed.",
		}, []string{"entity"}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_write_failures_total",
			Help:      "Cache writes that failed and were returned to the caller.",
		}, []string{"op"}),
		idMismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_mismatches_total",
			Help:      "Durable lookups that returned a record with a different identity.",
		}, []string{"entity"}),
	}
	for _, c := range []prometheus.Collector{h.readFallbacks, h.duplicates, h.writeFailures, h.idMismatches} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) CacheReadFallback(op, _, reason string) {
	h.readFallbacks.WithLabelValues(op, reason).Inc()
}

func (h *Hooks) DuplicateInsert(entity, _ string) {
	h.duplicates.WithLabelValues(entity).Inc()
}

func (h *Hooks) CacheWriteFailed(op, _ string, _ error) {
	h.writeFailures.WithLabelValues(op).Inc()
}

func (h *Hooks) IdentityMismatch(entity, _, _ string) {
	h.idMismatches.WithLabelValues(entity).Inc()
}
