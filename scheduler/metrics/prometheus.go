package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics to track
var (
	InvocationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_invocations_total",
			Help: "Total number of start/stop invocations handled",
		},
		[]string{"action", "status"}, // Labels: action (start, stop, invalid), status (HTTP-style code)
	)
	InstanceCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_instances_total",
			Help: "Total number of instances reported as affected by successful invocations",
		},
		[]string{"action"},
	)
)

var registerOnce sync.Once

// InitMetrics registers the scheduler metrics with the default registry.
// Safe to call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(InvocationCount, InstanceCount)
	})
}
