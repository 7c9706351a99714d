package meltdown

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsRegistered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meltdown_services_registered_total",
		Help: "Total number of services registered",
	})
	metricsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meltdown_services_completed_total",
		Help: "Total number of completed services by result",
	}, []string{"result"})
	metricsDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meltdown_service_duration_seconds",
		Help:    "Run time of services by result",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 60, 300},
	}, []string{"result"})
	metricsInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meltdown_services_inflight",
		Help: "Number of services that have not completed yet",
	})
	metricsTriggers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meltdown_triggers_total",
		Help: "Number of shutdown triggers that fired a signal",
	})
)

const (
	resultSuccess = "success"
	resultFail    = "fail"
	resultPanic   = "panic"
)

func errorToResultLabel(err error) string {
	var perr *PanicError
	switch {
	case err == nil:
		return resultSuccess
	case errors.As(err, &perr):
		return resultPanic
	default:
		return resultFail
	}
}

func recordRegistered() {
	metricsRegistered.Inc()
	metricsInflight.Inc()
}

func recordCompleted(err error, startTime time.Time) {
	resultLabel := errorToResultLabel(err)
	metricsDuration.WithLabelValues(resultLabel).Observe(time.Since(startTime).Seconds())
	metricsCompleted.WithLabelValues(resultLabel).Inc()
	metricsInflight.Dec()
}

func recordTrigger() {
	metricsTriggers.Inc()
}

func init() {
	prometheus.MustRegister(
		metricsRegistered,
		metricsCompleted,
		metricsDuration,
		metricsInflight,
		metricsTriggers,
	)
}
