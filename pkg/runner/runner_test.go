package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrypuuter/ram/pkg/backend"
	"github.com/harrypuuter/ram/pkg/job"
	"github.com/harrypuuter/ram/pkg/jobstore"
	"github.com/harrypuuter/ram/pkg/metrics"
	"github.com/harrypuuter/ram/pkg/probeconfig"
	"github.com/harrypuuter/ram/pkg/scheduler"
)

type fakeSchedd struct {
	mu          sync.Mutex
	nextCluster int64
	submitErr   error
	eventsByLog map[string][]backend.Event
	queryAd     *backend.QueueAd
	queryErr    error
	historyAd   *backend.HistoryAd
	removed     []int64
}

func (f *fakeSchedd) Submit(_ context.Context, _ backend.SubmitSpec) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return -1, f.submitErr
	}
	f.nextCluster++
	return f.nextCluster, nil
}

func (f *fakeSchedd) Events(_ context.Context, logPath string, off int64, _ time.Duration) ([]backend.Event, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	evs := f.eventsByLog[logPath]
	delete(f.eventsByLog, logPath)
	return evs, off + int64(len(evs)), nil
}

func (f *fakeSchedd) Query(context.Context, int64) (*backend.QueueAd, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryAd, f.queryErr
}

func (f *fakeSchedd) History(context.Context, int64) (*backend.HistoryAd, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyAd, nil
}

func (f *fakeSchedd) Remove(_ context.Context, cluster int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, cluster)
	return nil
}

type recordingEmitter struct {
	mu      sync.Mutex
	results []metrics.Result
	err     error
}

func (e *recordingEmitter) Emit(_ context.Context, r metrics.Result) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, r)
	return e.err
}

func (e *recordingEmitter) Close() {}

func (e *recordingEmitter) all() []metrics.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]metrics.Result(nil), e.results...)
}

func testProbe() probeconfig.Probe {
	return probeconfig.Probe{
		Name: "cpu-smoke",
		Parameters: probeconfig.Parameters{
			Enabled:         true,
			IntervalSeconds: 60,
			TimeoutSeconds:  300,
			Site:            "ETP",
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
}

type fixture struct {
	runner   *Runner
	schedd   *fakeSchedd
	store    *jobstore.Store
	emitter  *recordingEmitter
	inflight *scheduler.Registry
	workDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	schedd := &fakeSchedd{eventsByLog: map[string][]backend.Event{}}
	store, err := jobstore.Open(context.Background(), jobstore.Config{
		Path: filepath.Join(t.TempDir(), "jobs.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emitter := &recordingEmitter{}
	inflight := scheduler.NewRegistry()
	workDir := t.TempDir()
	r := New(schedd, store, emitter, inflight, t.TempDir(), workDir)
	return &fixture{runner: r, schedd: schedd, store: store, emitter: emitter, inflight: inflight, workDir: workDir}
}

// stageEvents registers the terminal event stream for the next cluster id.
func (fx *fixture) stageEvents(logPath string, evs ...backend.Event) {
	fx.schedd.mu.Lock()
	defer fx.schedd.mu.Unlock()
	fx.schedd.eventsByLog[logPath] = evs
}

func (fx *fixture) logPath() string {
	return filepath.Join(fx.workDir, "logs", "cpu-smoke", "events.log")
}

func (fx *fixture) writeArtifact(t *testing.T, cluster string, content string) {
	t.Helper()
	dir := filepath.Join(fx.workDir, "results", "cpu-smoke")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	name := "id_" + cluster + "-0-result.yaml"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

const passingArtifact = "tests:\n  - name: ping\n    passed: true\n"

func TestExecute_PassingJob(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.stageEvents(fx.logPath(), backend.Event{
		Cluster: 1, Type: backend.EventTerminated, TerminatedNormally: true,
	})
	fx.writeArtifact(t, "1", passingArtifact)
	fx.schedd.historyAd = &backend.HistoryAd{
		Cluster: 1, LastStatus: backend.StatusCompleted,
		WallClockSeconds: 10, UserCPUSeconds: 8,
	}

	fx.runner.Execute(ctx, scheduler.Item{ID: "d1", Probe: testProbe()})

	results := fx.emitter.all()
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed)
	assert.Equal(t, "Job succeeded", results[0].Message)
	assert.Equal(t, "cpu-smoke", results[0].TestName)
	assert.Equal(t, "1", results[0].ClusterID)
	assert.Equal(t, int64(10), results[0].RuntimeSeconds)
	assert.Equal(t, "ETP", results[0].Site)

	records, err := fx.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, jobstore.StatusCompleted, records[0].Status)

	assert.Zero(t, fx.inflight.Len())
	// Passing jobs clean up their artifact.
	assert.NoFileExists(t, filepath.Join(fx.workDir, "results", "cpu-smoke", "id_1-0-result.yaml"))
}

func TestExecute_SubmissionFailure(t *testing.T) {
	fx := newFixture(t)
	fx.schedd.submitErr = errors.New("schedd unreachable")

	fx.runner.Execute(context.Background(), scheduler.Item{ID: "d1", Probe: testProbe()})

	assert.Empty(t, fx.emitter.all())
	n, err := fx.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExecute_StoreFailureAbortsInstance(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.store.Close())
	fx.stageEvents(fx.logPath(), backend.Event{
		Cluster: 1, Type: backend.EventTerminated, TerminatedNormally: true,
	})

	fx.runner.Execute(context.Background(), scheduler.Item{ID: "d1", Probe: testProbe()})

	// Without a stored row the instance is abandoned: no monitoring, no
	// result, and the submitted job is taken off the queue.
	assert.Empty(t, fx.emitter.all())
	assert.Equal(t, []int64{1}, fx.schedd.removed)
	assert.Zero(t, fx.inflight.Len())
}

func TestExecute_FailingJob(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.stageEvents(fx.logPath(), backend.Event{
		Cluster: 1, Type: backend.EventTerminated, TerminatedNormally: true, ReturnValue: 2,
	})

	fx.runner.Execute(ctx, scheduler.Item{ID: "d1", Probe: testProbe()})

	results := fx.emitter.all()
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Message, "did not succeed on HTCondor")
	assert.Contains(t, results[0].Message, "did not produce any output")

	// Failing jobs still end up completed in the store.
	records, err := fx.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, jobstore.StatusCompleted, records[0].Status)
}

func TestExecute_EmitterFailureStillCompletes(t *testing.T) {
	fx := newFixture(t)
	fx.emitter.err = errors.New("influx down")
	fx.stageEvents(fx.logPath(), backend.Event{
		Cluster: 1, Type: backend.EventTerminated, TerminatedNormally: true,
	})

	fx.runner.Execute(context.Background(), scheduler.Item{ID: "d1", Probe: testProbe()})

	records, err := fx.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, jobstore.StatusCompleted, records[0].Status)
}

func TestRecover_NoUnfinishedJobs(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.runner.Recover(context.Background()))
	assert.Empty(t, fx.emitter.all())
}

func TestRecover_ResolvesFinishedJobFromHistory(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// A job from a previous process: stored as submitted, gone from the queue.
	j, err := job.New(testProbe(), time.Now().UTC().Add(-time.Hour), fx.schedd, t.TempDir(), fx.workDir)
	require.NoError(t, err)
	j.Cluster = 7
	j.State = job.StateMonitoring
	require.NoError(t, fx.store.Put(ctx, j))

	fx.writeArtifact(t, "7", passingArtifact)
	fx.schedd.historyAd = &backend.HistoryAd{
		Cluster: 7, LastStatus: backend.StatusCompleted,
		WallClockSeconds: 60, UserCPUSeconds: 30, SysCPUSeconds: 30,
	}

	require.NoError(t, fx.runner.Recover(ctx))

	results := fx.emitter.all()
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed)
	assert.Equal(t, "7", results[0].ClusterID)
	assert.InDelta(t, 1.0, results[0].CPUEfficiency, 1e-9)
	// testtime spans submission to report, not just backend runtime.
	assert.InDelta(t, 3600, results[0].TestTimeSeconds, 10)
	assert.Equal(t, int64(60), results[0].RuntimeSeconds)

	unfinished, err := fx.store.ListUnfinished(ctx, fx.schedd)
	require.NoError(t, err)
	assert.Empty(t, unfinished)
}

func TestRecover_ResumesRunningJob(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	j, err := job.New(testProbe(), time.Now().UTC(), fx.schedd, t.TempDir(), fx.workDir)
	require.NoError(t, err)
	j.Cluster = 8
	j.State = job.StateMonitoring
	require.NoError(t, fx.store.Put(ctx, j))

	fx.schedd.queryAd = &backend.QueueAd{Cluster: 8, Status: backend.StatusRunning}
	fx.stageEvents(j.Spec.LogPath, backend.Event{
		Cluster: 8, Type: backend.EventTerminated, TerminatedNormally: true,
	})

	require.NoError(t, fx.runner.Recover(ctx))

	results := fx.emitter.all()
	require.Len(t, results, 1)
	assert.Equal(t, "8", results[0].ClusterID)
	// No artifact was staged, so the recovered job fails its grade.
	assert.False(t, results[0].Passed)
}
