// Package metrics records request, error and duration (RED) metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "perfume_store"

// REDClient records call counts and latencies for the operations of one service
type REDClient struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New registers the RED collectors of a service with reg
func New(reg prometheus.Registerer, service string) *REDClient {
	c := &REDClient{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "calls_total",
			Help:      "Number of calls per method and outcome",
		}, []string{"method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "call_duration_seconds",
			Help:      "Duration of calls per method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(c.calls, c.duration)
	return c
}

// Record starts timing method. The returned func stops the timer, counts the
// outcome and passes err through unchanged.
func (c *REDClient) Record(method string) func(error) error {
	if c == nil {
		return func(err error) error { return err }
	}
	start := time.Now()
	return func(err error) error {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.calls.WithLabelValues(method, status).Inc()
		c.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		return err
	}
}
