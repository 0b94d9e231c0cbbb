package di

import (
	"fmt"

	"github.com/aristath/frontier/internal/modules/calculations"
	"github.com/aristath/frontier/internal/scheduler"
	"github.com/rs/zerolog"
)

// Job schedules (seconds field first)
const (
	resultCacheCleanupSchedule = "0 */15 * * * *"
	walCheckpointSchedule      = "0 0 * * * *"
)

// RegisterJobs creates the maintenance jobs and registers them with a new scheduler.
// The scheduler is not started.
func RegisterJobs(container *Container, log zerolog.Logger) (*JobInstances, error) {
	sched := scheduler.New(log)

	jobs := &JobInstances{
		ResultCacheCleanup:  calculations.NewCleanupJob(container.ResultCache, log),
		CheckWALCheckpoints: scheduler.NewCheckWALCheckpointsJob(log, container.Databases()...),
	}

	if err := sched.AddJob(resultCacheCleanupSchedule, jobs.ResultCacheCleanup); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", jobs.ResultCacheCleanup.Name(), err)
	}
	if err := sched.AddJob(walCheckpointSchedule, jobs.CheckWALCheckpoints); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", jobs.CheckWALCheckpoints.Name(), err)
	}

	container.Scheduler = sched
	return jobs, nil
}
