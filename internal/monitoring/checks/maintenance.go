package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/notely/internal/monitoring"
)

const defaultMaintenanceMaxAge = 6 * time.Hour

// JobStatus is the last known outcome of a background job.
type JobStatus struct {
	Job                 string
	LastRunAt           time.Time
	LastError           string
	ConsecutiveFailures int
	TotalRuns           int
}

// JobReporter exposes the state of background jobs.
type JobReporter interface {
	Jobs() []JobStatus
}

// Maintenance verifies that background jobs run successfully within the expected interval.
// When maxAge is zero, a default window (6h) is used.
func Maintenance(reporter JobReporter, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(ctx context.Context) monitoring.ProbeResult {
		if reporter == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "maintenance disabled"}
		}
		jobs := reporter.Jobs()
		if len(jobs) == 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no maintenance jobs registered"}
		}

		now := time.Now()
		status := monitoring.StatusUp
		var failures []string

		for _, job := range jobs {
			if job.TotalRuns == 0 {
				failures = append(failures, job.Job+": pending first run")
				continue
			}

			if job.ConsecutiveFailures > 0 {
				status = worstStatus(status, monitoring.StatusDown)
				failures = append(failures, job.Job+": "+job.LastError)
			}

			if !job.LastRunAt.IsZero() && now.Sub(job.LastRunAt) > maxAge {
				status = worstStatus(status, monitoring.StatusDegraded)
				failures = append(failures, job.Job+": stale run "+job.LastRunAt.UTC().Format(time.RFC3339))
			}
		}

		return monitoring.ProbeResult{
			Status:  status,
			Details: strings.Join(failures, "; "),
		}
	})
}

func worstStatus(current, candidate monitoring.ProbeStatus) monitoring.ProbeStatus {
	if current == monitoring.StatusDown || candidate == monitoring.StatusDown {
		return monitoring.StatusDown
	}
	if current == monitoring.StatusDegraded || candidate == monitoring.StatusDegraded {
		return monitoring.StatusDegraded
	}
	return monitoring.StatusUp
}
