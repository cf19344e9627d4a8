package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ginjaninja78/etc-mailer/internal/types"
)

// Email outcomes.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
	OutcomeDryRun = "dry_run"
)

// Registry holds the process metrics. A nil *Registry is valid and records
// nothing, so packages can take one optionally.
type Registry struct {
	reg          *prometheus.Registry
	Files        *prometheus.CounterVec
	RowsAdmitted prometheus.Counter
	RowsRejected prometheus.Counter
	Emails       *prometheus.CounterVec
	Customers    prometheus.Gauge
	SendLatency  prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	files := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "etcmailer_files_total",
		Help: "Source files seen, by ingestion status.",
	}, []string{"status"})
	admitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "etcmailer_rows_admitted_total",
		Help: "Rows folded into customer records.",
	})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "etcmailer_rows_rejected_total",
		Help: "Rows skipped for a missing ETC number.",
	})
	emails := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "etcmailer_emails_total",
		Help: "Emails processed, by outcome.",
	}, []string{"outcome"})
	customers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "etcmailer_customers",
		Help: "Consolidated customers in the current batch.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "etcmailer_send_latency_seconds",
		Help:    "Time spent in the mail transport per message.",
		Buckets: prometheus.DefBuckets,
	})

	r.MustRegister(files, admitted, rejected, emails, customers, latency)
	return &Registry{
		reg:          r,
		Files:        files,
		RowsAdmitted: admitted,
		RowsRejected: rejected,
		Emails:       emails,
		Customers:    customers,
		SendLatency:  latency,
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// FileSeen counts one sheet by its ingestion status.
func (r *Registry) FileSeen(status types.FileStatus) {
	if r == nil {
		return
	}
	r.Files.WithLabelValues(string(status)).Inc()
}

// RowAdmitted counts one row merged into a customer record.
func (r *Registry) RowAdmitted() {
	if r == nil {
		return
	}
	r.RowsAdmitted.Inc()
}

// RowRejected counts one row dropped for lacking an ETC number.
func (r *Registry) RowRejected() {
	if r == nil {
		return
	}
	r.RowsRejected.Inc()
}

// SetCustomers records the number of consolidated customers.
func (r *Registry) SetCustomers(n int) {
	if r == nil {
		return
	}
	r.Customers.Set(float64(n))
}

// EmailProcessed counts one dispatch outcome. Dry runs are not timed.
func (r *Registry) EmailProcessed(outcome string, took time.Duration) {
	if r == nil {
		return
	}
	r.Emails.WithLabelValues(outcome).Inc()
	if outcome != OutcomeDryRun {
		r.SendLatency.Observe(took.Seconds())
	}
}
