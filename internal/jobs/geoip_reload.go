package jobs

import (
	"log/slog"
)

// GeoDatabase is a local geo database that can be reopened from disk.
type GeoDatabase interface {
	Reload()
	Available() bool
}

// GeoReloadJob picks up a GeoLite2 file that was replaced on disk.
type GeoReloadJob struct {
	reader GeoDatabase
	logger *slog.Logger
}

func NewGeoReloadJob(reader GeoDatabase, logger *slog.Logger) *GeoReloadJob {
	return &GeoReloadJob{reader: reader, logger: logger}
}

func (j *GeoReloadJob) Run() error {
	j.reader.Reload()
	j.logger.Info("GeoLite database reloaded", slog.Bool("available", j.reader.Available()))
	return nil
}
