package metrics

import "time"

// JobStarted should be called when a job begins processing.
func JobStarted(jobType string) {
	JobsInFlight.WithLabelValues(jobType).Inc()
}

// JobCompleted records a successful job completion.
func JobCompleted(jobType string, duration time.Duration) {
	JobsInFlight.WithLabelValues(jobType).Dec()
	JobsTotal.WithLabelValues(jobType, "completed").Inc()
	JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// JobFailed records a job failure. Retryable failures also count as a retry.
func JobFailed(jobType string, permanent bool) {
	JobsInFlight.WithLabelValues(jobType).Dec()
	JobsTotal.WithLabelValues(jobType, "failed").Inc()
	if !permanent {
		JobRetriesTotal.WithLabelValues(jobType).Inc()
	}
}
