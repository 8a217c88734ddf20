// Package store persists a submission history of training jobs to a local
// SQLite database. The store is advisory: the scheduler and the per-job files
// on disk stay the source of truth, history survives job directory cleanup.
package store

import (
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
)

// JobRecord is one submitted job as persisted in the history database.
type JobRecord struct {
	ID          uint   `gorm:"primarykey"`
	UID         string `gorm:"uniqueIndex"`
	Name        string
	Experiment  string `gorm:"index"`
	JID         string
	Phase       string
	SubmittedAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	ExitCode    *int32
}

// Store wraps the history database handle.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the history database at the given path and runs
// the schema migration.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open history database %s", path)
	}
	if err := db.AutoMigrate(&JobRecord{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate history database")
	}
	return &Store{db: db}, nil
}

// RecordSubmission inserts a history row for a freshly submitted job.
// Resubmitting the same UID updates the existing row instead.
func (s *Store) RecordSubmission(uid, name, experiment, jid string) error {
	record := JobRecord{
		UID:         uid,
		Name:        name,
		Experiment:  experiment,
		JID:         jid,
		Phase:       string(api.PhasePending),
		SubmittedAt: time.Now(),
	}
	err := s.db.Where(JobRecord{UID: uid}).Assign(record).FirstOrCreate(&JobRecord{}).Error
	return errors.Wrapf(err, "failed to record submission of job %s", uid)
}

// UpdatePhase stores the last observed phase of a job. The finish time is
// recorded once, the first time a terminal phase is seen.
func (s *Store) UpdatePhase(uid string, phase api.JobPhase) error {
	var record JobRecord
	err := s.db.Where(JobRecord{UID: uid}).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Job predates the history database, nothing to update.
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to load history of job %s", uid)
	}

	record.Phase = string(phase)
	if phase.Terminal() && record.FinishedAt == nil {
		now := time.Now()
		record.FinishedAt = &now
	}
	err = s.db.Save(&record).Error
	return errors.Wrapf(err, "failed to update history of job %s", uid)
}

// RecordOutcome stores the terminal phase of a job together with its observed
// start time and exit code. Start time, exit code and finish time are written
// once, repeated status polls of a finished job leave them untouched.
func (s *Store) RecordOutcome(uid string, phase api.JobPhase, startedAt time.Time, exitCode int32) error {
	var record JobRecord
	err := s.db.Where(JobRecord{UID: uid}).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to load history of job %s", uid)
	}

	record.Phase = string(phase)
	if record.StartedAt == nil && !startedAt.IsZero() {
		record.StartedAt = &startedAt
	}
	if record.ExitCode == nil {
		record.ExitCode = &exitCode
	}
	if record.FinishedAt == nil {
		now := time.Now()
		record.FinishedAt = &now
	}
	err = s.db.Save(&record).Error
	return errors.Wrapf(err, "failed to record outcome of job %s", uid)
}

// List returns the history entries, most recent submissions first. An empty
// experiment matches all experiments. A non-positive limit returns everything.
func (s *Store) List(experiment string, limit int) ([]api.HistoryEntry, error) {
	query := s.db.Order("submitted_at desc")
	if experiment != "" {
		query = query.Where(JobRecord{Experiment: experiment})
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []JobRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list job history")
	}

	entries := make([]api.HistoryEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, api.HistoryEntry{
			UID:         record.UID,
			Name:        record.Name,
			Experiment:  record.Experiment,
			JID:         record.JID,
			Phase:       api.JobPhase(record.Phase),
			SubmittedAt: record.SubmittedAt,
			StartedAt:   record.StartedAt,
			FinishedAt:  record.FinishedAt,
			ExitCode:    record.ExitCode,
		})
	}
	return entries, nil
}
