package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation labels used by Metrics.
const (
	opGet         = "get"
	opPut         = "put"
	opDel         = "del"
	opQuery       = "query"
	opBatchWrite  = "batch_write"
	opCreateTable = "create_table"
	opDeleteTable = "delete_table"
)

// Metrics tracks DynamoDB traffic generated by a Store. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests    *prometheus.CounterVec
	failures    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	pages       prometheus.Counter
	filtered    prometheus.Counter
	unprocessed prometheus.Counter
}

// NewMetrics initializes metrics. They still need to be registered.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dynadown_requests_total",
			Help: "DynamoDB requests issued",
		}, []string{"operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dynadown_request_errors_total",
			Help: "DynamoDB requests that returned an error",
		}, []string{"operation"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dynadown_request_duration_seconds",
			Help:    "DynamoDB request latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"operation"}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dynadown_query_pages_total",
			Help: "Query result pages fetched by iterators",
		}),
		filtered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dynadown_rows_filtered_total",
			Help: "Rows dropped by exclusive range bounds",
		}),
		unprocessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dynadown_unprocessed_items_total",
			Help: "Batch write requests returned unprocessed and resubmitted",
		}),
	}
}

// Collectors returns every collector owned by m.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.failures, m.latency, m.pages, m.filtered, m.unprocessed}
}

// Register registers all collectors with r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) pageFetched(filtered int) {
	if m == nil {
		return
	}
	m.pages.Inc()
	m.filtered.Add(float64(filtered))
}

func (m *Metrics) retried(n int) {
	if m == nil {
		return
	}
	m.unprocessed.Add(float64(n))
}
