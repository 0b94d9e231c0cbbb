package scheduler

import (
	"fmt"

	"github.com/aristath/frontier/internal/database"
	"github.com/rs/zerolog"
)

// walFrameThreshold is the WAL size, in frames, above which a truncating checkpoint is forced
const walFrameThreshold = 1000

// CheckWALCheckpointsJob monitors WAL growth and truncates oversized logs
type CheckWALCheckpointsJob struct {
	log       zerolog.Logger
	databases []*database.DB
}

// NewCheckWALCheckpointsJob creates a new CheckWALCheckpointsJob. Nil databases are skipped.
func NewCheckWALCheckpointsJob(log zerolog.Logger, databases ...*database.DB) *CheckWALCheckpointsJob {
	return &CheckWALCheckpointsJob{
		log:       log.With().Str("job", "check_wal_checkpoints").Logger(),
		databases: databases,
	}
}

// Name returns the job name
func (j *CheckWALCheckpointsJob) Name() string {
	return "check_wal_checkpoints"
}

// Run executes the check WAL checkpoints job
func (j *CheckWALCheckpointsJob) Run() error {
	checkedCount := 0
	truncated := 0
	var failed []string

	for _, db := range j.databases {
		if db == nil {
			continue
		}

		// PRAGMA wal_checkpoint returns: busy, log, checkpointed
		var busy, frames, checkpointed int
		err := db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
		if err != nil {
			j.log.Warn().
				Err(err).
				Str("database", db.Name()).
				Msg("Failed to check WAL checkpoint")
			failed = append(failed, db.Name())
			continue
		}

		if frames > walFrameThreshold {
			j.log.Warn().
				Str("database", db.Name()).
				Int("wal_frames", frames).
				Int("checkpointed", checkpointed).
				Msg("WAL file is large, truncating")
			if err := db.WALCheckpoint(); err != nil {
				j.log.Warn().Err(err).Str("database", db.Name()).Msg("Truncating checkpoint failed")
				failed = append(failed, db.Name())
				continue
			}
			truncated++
		} else {
			j.log.Debug().
				Str("database", db.Name()).
				Int("wal_frames", frames).
				Bool("busy", busy != 0).
				Msg("WAL checkpoint status OK")
		}

		checkedCount++
	}

	j.log.Info().
		Int("checked", checkedCount).
		Int("truncated", truncated).
		Msg("WAL checkpoint check completed")

	if len(failed) > 0 {
		return fmt.Errorf("WAL checkpoint failed for %v", failed)
	}
	return nil
}
