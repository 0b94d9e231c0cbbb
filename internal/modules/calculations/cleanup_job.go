package calculations

import (
	"github.com/rs/zerolog"
)

// CleanupJob removes expired memoized results
type CleanupJob struct {
	cache *ResultCache
	log   zerolog.Logger
}

// NewCleanupJob creates a new result cache cleanup job
func NewCleanupJob(cache *ResultCache, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		cache: cache,
		log:   log.With().Str("job", "result_cache_cleanup").Logger(),
	}
}

// Run deletes expired entries from every cache table
func (j *CleanupJob) Run() error {
	results, err := j.cache.DeleteAllExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired results")
		return err
	}

	var total int64
	for table, count := range results {
		if count > 0 {
			j.log.Debug().Str("table", table).Int64("deleted", count).Msg("Cleaned up expired results")
			total += count
		}
	}
	if total > 0 {
		j.log.Info().Int64("total_deleted", total).Msg("Result cache cleanup completed")
	}
	return nil
}

// Name returns the job name for scheduling and logging
func (j *CleanupJob) Name() string {
	return "result_cache_cleanup"
}
