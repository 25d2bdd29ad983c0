package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for pipeline operations.
type Observer interface {
	RecordProcess(duration time.Duration, err error)
	RecordVariant(name string, duration time.Duration, sizeBytes int, err error)
	RecordRefresh(duration time.Duration, err error)
}

// PrometheusObserver exports pipeline metrics to Prometheus.
type PrometheusObserver struct {
	opDuration    *prometheus.HistogramVec
	opErrors      *prometheus.CounterVec
	variantBytes  *prometheus.CounterVec
	variantErrors *prometheus.CounterVec
}

// NewPrometheusObserver registers process/variant/refresh metrics.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "trailvision_pipeline"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	observer := &PrometheusObserver{
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency for pipeline operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		opErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of pipeline operation failures.",
		}, []string{"operation"}),
		variantBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "variant_bytes_total",
			Help:      "Cumulative encoded bytes written per variant.",
		}, []string{"variant"}),
		variantErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "variant_errors_total",
			Help:      "Count of per-variant generation or upload failures.",
		}, []string{"variant"}),
	}
	collectors := []prometheus.Collector{observer.opDuration, observer.opErrors, observer.variantBytes, observer.variantErrors}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("register pipeline metric: %w", err)
		}
	}
	return observer, nil
}

// RecordProcess tracks whole-call duration and fatal failures.
func (o *PrometheusObserver) RecordProcess(duration time.Duration, err error) {
	recordOperation(o, "process", duration, err)
}

// RecordVariant tracks per-variant output size and failures.
func (o *PrometheusObserver) RecordVariant(name string, duration time.Duration, sizeBytes int, err error) {
	if o == nil {
		return
	}
	o.opDuration.WithLabelValues("variant").Observe(duration.Seconds())
	if err != nil {
		o.variantErrors.WithLabelValues(name).Inc()
		return
	}
	o.variantBytes.WithLabelValues(name).Add(float64(sizeBytes))
}

func (o *PrometheusObserver) RecordRefresh(duration time.Duration, err error) {
	recordOperation(o, "refresh", duration, err)
}

func recordOperation(o *PrometheusObserver, op string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.opDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		o.opErrors.WithLabelValues(op).Inc()
	}
}

// NopObserver discards all telemetry.
type NopObserver struct{}

func (NopObserver) RecordProcess(time.Duration, error) {}

func (NopObserver) RecordVariant(string, time.Duration, int, error) {}

func (NopObserver) RecordRefresh(time.Duration, error) {}
