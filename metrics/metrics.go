package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "warlock"

// Collector counts lock outcomes. It satisfies locker.Hooks.
// Lock names come from clients, so they never become label values.
type Collector struct {
	acquired    prometheus.Counter
	contended   prometheus.Counter
	released    *prometheus.CounterVec
	unavailable prometheus.Counter
	storeErrors *prometheus.CounterVec
}

func NewCollector() *Collector {
	return &Collector{
		acquired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquired_total",
			Help:      "Successful lock acquisitions.",
		}),
		contended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_contended_total",
			Help:      "Acquisition attempts that found the lock held.",
		}),
		released: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_released_total",
			Help:      "Release calls by outcome (deleted or noop).",
		}, []string{"outcome"}),
		unavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_unavailable_total",
			Help:      "Optimistic acquisitions that exhausted their attempts.",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Store operations that failed.",
		}, []string{"op"}),
	}
}

// Register adds every counter to reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.acquired, c.contended, c.released, c.unavailable, c.storeErrors} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) Acquired(string) {
	c.acquired.Inc()
}

func (c *Collector) Contended(string) {
	c.contended.Inc()
}

func (c *Collector) Released(_ string, deleted bool) {
	outcome := "noop"
	if deleted {
		outcome = "deleted"
	}
	c.released.WithLabelValues(outcome).Inc()
}

func (c *Collector) Unavailable(string, int) {
	c.unavailable.Inc()
}

// StoreFailed is labelled by op, a fixed set: conditional_set, compare_and_delete.
func (c *Collector) StoreFailed(op string) {
	c.storeErrors.WithLabelValues(op).Inc()
}
