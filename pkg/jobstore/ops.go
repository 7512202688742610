package jobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/harrypuuter/ram/pkg/backend"
	"github.com/harrypuuter/ram/pkg/job"
)

// Record is one stored row as seen by listing commands.
type Record struct {
	JobID          string
	Status         Status
	SubmissionTime time.Time
}

// Put inserts a freshly submitted job. The snapshot is taken here so the
// stored object matches the moment of persistence.
func (s *Store) Put(ctx context.Context, j *job.Job) error {
	blob, err := j.Snapshot()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (jobid, status, submissiontime, object) VALUES (?, ?, ?, ?)`,
		j.ID(), int(StatusSubmitted), j.SubmissionTime.UTC().Format(time.RFC3339), blob)
	if err != nil {
		return fmt.Errorf("store job %s: %w", j.ID(), err)
	}
	return nil
}

// UpdateStatus re-snapshots the job and moves its row to the given
// status. Moving back to submitted is refused: status only advances.
func (s *Store) UpdateStatus(ctx context.Context, j *job.Job, status Status) error {
	if status == StatusSubmitted {
		return fmt.Errorf("job %s: status cannot move back to submitted", j.ID())
	}
	blob, err := j.Snapshot()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, object = ? WHERE jobid = ?`,
		int(status), blob, j.ID())
	if err != nil {
		return fmt.Errorf("update job %s: %w", j.ID(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update job %s: not found", j.ID())
	}
	return nil
}

// ListUnfinished restores every job still marked submitted, attaching
// the given schedd handle. These are the recovery candidates after a
// restart.
func (s *Store) ListUnfinished(ctx context.Context, schedd backend.Schedd) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT jobid, object FROM jobs WHERE status = ?`, int(StatusSubmitted))
	if err != nil {
		return nil, fmt.Errorf("query unfinished jobs: %w", err)
	}
	defer rows.Close()

	var out []*job.Job
	for rows.Next() {
		var jobID string
		var blob []byte
		if err := rows.Scan(&jobID, &blob); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		j, err := job.Restore(blob, schedd)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", jobID, err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// Count returns the number of stored rows. A count of zero marks the
// first run after an empty or purged store, which triggers an immediate
// dispatch of all probes.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

// List returns all rows newest first, for operator inspection.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT jobid, status, submissiontime FROM jobs ORDER BY submissiontime DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var status int
		var ts string
		if err := rows.Scan(&r.JobID, &status, &ts); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		r.Status = Status(status)
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("job %s: bad submission time %q: %w", r.JobID, ts, err)
		}
		r.SubmissionTime = t
		out = append(out, r)
	}
	return out, rows.Err()
}
