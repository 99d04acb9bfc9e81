package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(queueJobs, queueDepth, queueJobDurationMs, taskOutcomes)
}

var (
	queueJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_total",
			Help: "Queue job transitions by event (added/completed/failed/retried/cancelled/stalled).",
		},
		[]string{"queue", "event"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Point-in-time number of jobs per state.",
		},
		[]string{"queue", "state"},
	)

	queueJobDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_job_duration_ms",
			Help:    "Wall-clock job handler duration in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 15000, 60000, 300000},
		},
		[]string{"queue"},
	)

	taskOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_outcomes_total",
			Help: "Terminal task outcomes by status.",
		},
		[]string{"status"},
	)
)

func IncQueueJob(queue, event string) {
	queueJobs.WithLabelValues(norm(queue), norm(event)).Inc()
}

func SetQueueDepth(queue, state string, n int) {
	queueDepth.WithLabelValues(norm(queue), norm(state)).Set(float64(n))
}

func ObserveJobDuration(queue string, ms int) {
	queueJobDurationMs.WithLabelValues(norm(queue)).Observe(float64(ms))
}

func IncTaskOutcome(status string) {
	taskOutcomes.WithLabelValues(norm(status)).Inc()
}
