package jobs

import (
	"fmt"
	"log/slog"
)

// Checkpointer flushes the SQLite write-ahead log. *database.DBManager
// satisfies it through cartridge's sqlite.Manager.
type Checkpointer interface {
	CheckpointWAL(mode string) error
}

// CheckpointJob keeps the WAL file from growing between restarts. Click
// ingestion is append-heavy, so the log fills steadily.
type CheckpointJob struct {
	db     Checkpointer
	logger *slog.Logger
}

func NewCheckpointJob(db Checkpointer, logger *slog.Logger) *CheckpointJob {
	return &CheckpointJob{db: db, logger: logger}
}

// Run performs a PASSIVE checkpoint, which never blocks writers.
func (j *CheckpointJob) Run() error {
	if err := j.db.CheckpointWAL("PASSIVE"); err != nil {
		return fmt.Errorf("wal checkpoint failed: %w", err)
	}
	j.logger.Debug("WAL checkpoint completed")
	return nil
}
