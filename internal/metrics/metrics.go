package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "collageq"

var (
	JobSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_submitted_total",
			Help:      "Total number of collage jobs submitted, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	PollTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_total",
			Help:      "Total number of status polls issued, labeled by result.",
		},
		[]string{"result"},
	)

	PollDiscardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_discarded_total",
			Help:      "Total number of stale or post-cancel poll responses discarded.",
		},
	)

	WatchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "watch_duration_seconds",
			Help:      "Time from watch start to terminal status (seconds).",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"status"},
	)

	DownloadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_total",
			Help:      "Total number of artifact downloads, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	AdviceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advice_requests_total",
			Help:      "Total number of grid and overlap advisory calls, labeled by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	AdviceAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advice_applied_total",
			Help:      "Total number of advisory apply actions, labeled by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	UploadRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_rejected_total",
			Help:      "Total number of files rejected before submission, labeled by reason.",
		},
		[]string{"reason"},
	)

	StubJobsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stub_jobs_created_total",
			Help:      "Total number of jobs accepted by the stub backend.",
		},
	)

	StubJobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stub_jobs_finished_total",
			Help:      "Total number of stub jobs that reached a terminal status.",
		},
		[]string{"status"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of requests rejected by the stub rate limiter.",
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		JobSubmittedTotal,
		PollTotal,
		PollDiscardedTotal,
		WatchDurationSeconds,
		DownloadTotal,
		AdviceRequestsTotal,
		AdviceAppliedTotal,
		UploadRejectedTotal,
		StubJobsCreatedTotal,
		StubJobsFinishedTotal,
		RateLimitHitsTotal,
	)
}
