// Package metrics registers the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "facturation_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	loadTotal     *prometheus.CounterVec
	loadLatency   *prometheus.HistogramVec
	bucketsGauge  prometheus.Gauge
	rejectedGauge prometheus.Gauge

	toggleTotal *prometheus.CounterVec
	exportTotal *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	syncTotal    *prometheus.CounterVec
	messageTotal *prometheus.CounterVec
)

// Init registers every collector with the default registry. It is safe to
// call more than once.
func Init() {
	registerOnce.Do(func() {
		loadTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "aggregate_loads_total",
			Help: "Billing aggregate load cycles by result",
		}, []string{"result"})
		loadLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricPrefix + "aggregate_load_seconds",
			Help:    "Billing aggregate load latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"})
		bucketsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "month_buckets",
			Help: "Month buckets in the current aggregate",
		})
		rejectedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "rejected_steps",
			Help: "Malformed steps rejected by the last aggregation",
		})
		toggleTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "invoiced_toggles_total",
			Help: "Invoiced flag toggles by result",
		}, []string{"result"})
		exportTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "exports_total",
			Help: "Exports by format and result",
		}, []string{"format", "result"})
		httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "http_requests_total",
			Help: "HTTP requests by method and status",
		}, []string{"method", "status"})
		httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricPrefix + "http_request_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"})
		syncTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "sheet_syncs_total",
			Help: "Sheet mirror runs by trigger and result",
		}, []string{"trigger", "result"})
		messageTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "plan_messages_total",
			Help: "Plan changed messages handled by result",
		}, []string{"result"})

		prometheus.MustRegister(
			loadTotal, loadLatency, bucketsGauge, rejectedGauge,
			toggleTotal, exportTotal,
			httpRequests, httpLatency,
			syncTotal, messageTotal,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

// Billing adapts the collectors to the billing service observer.
type Billing struct{}

func (Billing) ObserveLoad(d time.Duration, buckets, rejected int, err error) {
	if loadTotal == nil {
		return
	}
	r := result(err)
	loadTotal.WithLabelValues(r).Inc()
	loadLatency.WithLabelValues(r).Observe(d.Seconds())
	if err == nil {
		bucketsGauge.Set(float64(buckets))
		rejectedGauge.Set(float64(rejected))
	}
}

func (Billing) ObserveToggle(err error) {
	if toggleTotal != nil {
		toggleTotal.WithLabelValues(result(err)).Inc()
	}
}

func ObserveExport(format string, err error) {
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result(err)).Inc()
	}
}

func ObserveHTTP(method string, status int, d time.Duration) {
	if httpRequests == nil {
		return
	}
	httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(method).Observe(d.Seconds())
}

func ObserveSync(trigger string, err error) {
	if syncTotal != nil {
		syncTotal.WithLabelValues(trigger, result(err)).Inc()
	}
}

func ObserveMessage(err error) {
	if messageTotal != nil {
		messageTotal.WithLabelValues(result(err)).Inc()
	}
}
