package jobstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrypuuter/ram/pkg/backend"
	"github.com/harrypuuter/ram/pkg/job"
	"github.com/harrypuuter/ram/pkg/probeconfig"
)

type stubSchedd struct{}

func (stubSchedd) Submit(context.Context, backend.SubmitSpec) (int64, error) { return 0, nil }
func (stubSchedd) Events(_ context.Context, _ string, off int64, _ time.Duration) ([]backend.Event, int64, error) {
	return nil, off, nil
}
func (stubSchedd) Query(context.Context, int64) (*backend.QueueAd, error)     { return nil, nil }
func (stubSchedd) History(context.Context, int64) (*backend.HistoryAd, error) { return nil, nil }
func (stubSchedd) Remove(context.Context, int64) error                        { return nil }

func storeJob(t *testing.T, cluster int64, submitted time.Time) *job.Job {
	t.Helper()
	def := probeconfig.Probe{
		Name: "cpu-smoke",
		Parameters: probeconfig.Parameters{
			TimeoutSeconds: 300,
			Site:           "ETP",
			Job: probeconfig.JobSpec{
				Executable: "run_test.sh",
				OutputFile: "result.yaml",
				Output:     "out.txt",
				Error:      "err.txt",
				Log:        "events.log",
			},
			Requirements: probeconfig.Requirements{CPU: 1, MemoryMB: 1, DiskKB: 1},
		},
	}
	j, err := job.New(def, submitted, stubSchedd{}, t.TempDir(), t.TempDir())
	require.NoError(t, err)
	j.Cluster = cluster
	j.State = job.StateMonitoring
	return j
}

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDriverRegistration(t *testing.T) {
	// The driver name is claimed by the library's own init; a second
	// Register under the same name panics every linking binary at startup.
	assert.Contains(t, sql.Drivers(), driverSQLite)

	// Two stores in one process share the registration cleanly.
	s1 := openStore(t, filepath.Join(t.TempDir(), "a.db"))
	s2 := openStore(t, filepath.Join(t.TempDir(), "b.db"))
	require.NoError(t, s1.Close())
	require.NoError(t, s2.Close())
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	s1 := openStore(t, path)
	require.NoError(t, s1.Put(context.Background(), storeJob(t, 1, time.Now().UTC())))
	require.NoError(t, s1.Close())

	s2 := openStore(t, path)
	n, err := s2.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPutAndListUnfinished(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "jobs.db"))
	ctx := context.Background()

	j := storeJob(t, 42, time.Now().UTC())
	require.NoError(t, s.Put(ctx, j))

	unfinished, err := s.ListUnfinished(ctx, stubSchedd{})
	require.NoError(t, err)
	require.Len(t, unfinished, 1)
	assert.Equal(t, "cpu-smoke_42", unfinished[0].ID())
	assert.Equal(t, int64(42), unfinished[0].Cluster)
	assert.Equal(t, job.StateMonitoring, unfinished[0].State)
	assert.Equal(t, 300, unfinished[0].TimeoutSeconds)
	assert.WithinDuration(t, j.SubmissionTime, unfinished[0].SubmissionTime, time.Second)
}

func TestUpdateStatus(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "jobs.db"))
	ctx := context.Background()

	j := storeJob(t, 42, time.Now().UTC())
	require.NoError(t, s.Put(ctx, j))

	j.State = job.StateReported
	require.NoError(t, s.UpdateStatus(ctx, j, StatusCompleted))

	unfinished, err := s.ListUnfinished(ctx, stubSchedd{})
	require.NoError(t, err)
	assert.Empty(t, unfinished)

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StatusCompleted, records[0].Status)
}

func TestUpdateStatus_RefusesSubmitted(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "jobs.db"))
	ctx := context.Background()

	j := storeJob(t, 42, time.Now().UTC())
	require.NoError(t, s.Put(ctx, j))

	err := s.UpdateStatus(ctx, j, StatusSubmitted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot move back")
}

func TestUpdateStatus_MissingJob(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "jobs.db"))
	j := storeJob(t, 42, time.Now().UTC())
	assert.Error(t, s.UpdateStatus(context.Background(), j, StatusCompleted))
}

func TestOpen_PurgesOldRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	s := openStore(t, path)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.Put(ctx, storeJob(t, 1, now.AddDate(0, 0, -8))))
	require.NoError(t, s.Put(ctx, storeJob(t, 2, now.AddDate(0, 0, -6))))
	require.NoError(t, s.Close())

	s2 := openStore(t, path)
	records, err := s2.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "cpu-smoke_2", records[0].JobID)
}

func TestList_CorruptTimestamp(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "jobs.db"))
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (jobid, status, submissiontime, object) VALUES (?, ?, ?, ?)`,
		"cpu-smoke_9", int(StatusSubmitted), "not a timestamp", []byte("{}"))
	require.NoError(t, err)

	_, err = s.List(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad submission time")
}

func TestList_NewestFirst(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "jobs.db"))
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.Put(ctx, storeJob(t, 1, now.Add(-2*time.Hour))))
	require.NoError(t, s.Put(ctx, storeJob(t, 2, now.Add(-1*time.Hour))))

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "cpu-smoke_2", records[0].JobID)
	assert.Equal(t, "cpu-smoke_1", records[1].JobID)
}
