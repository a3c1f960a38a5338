package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Publishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_publishes_total",
		Help: "Total publish attempts by result",
	}, []string{"result"})
	QuotaDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_quota_denials_total",
		Help: "Total rate gate denials by operation",
	}, []string{"op"})
	HookAdaptations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_hook_adaptations_total",
		Help: "Total hook adaptations by pattern type",
	}, []string{"pattern"})
	PublishDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "quill_publish_duration_seconds",
		Help:    "Platform publish call duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_command_runs_total",
		Help: "Total command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_command_errors_total",
		Help: "Total command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(Publishes, QuotaDenials, HookAdaptations, PublishDuration, CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObservePublishDuration records one platform call duration.
func ObservePublishDuration(start time.Time) {
	PublishDuration.Observe(time.Since(start).Seconds())
}

// IncPublish increments the publish counter for a result ("posted" or "failed").
func IncPublish(result string) { Publishes.WithLabelValues(result).Inc() }

// IncQuotaDenial increments the denial counter for an operation key.
func IncQuotaDenial(op string) { QuotaDenials.WithLabelValues(op).Inc() }

// IncAdaptation increments the adaptation counter for a pattern type.
func IncAdaptation(pattern string) { HookAdaptations.WithLabelValues(pattern).Inc() }

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
