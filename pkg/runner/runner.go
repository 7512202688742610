// Package runner executes dispatched probes end to end: submit, store,
// monitor, grade, report. It also recovers jobs left behind by a
// previous process.
package runner

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harrypuuter/ram/internal/observability"
	"github.com/harrypuuter/ram/pkg/backend"
	"github.com/harrypuuter/ram/pkg/job"
	"github.com/harrypuuter/ram/pkg/jobstore"
	"github.com/harrypuuter/ram/pkg/metrics"
	"github.com/harrypuuter/ram/pkg/scheduler"
)

// Runner wires one probe execution through the backend, the job store,
// and the metrics emitter.
type Runner struct {
	schedd    backend.Schedd
	store     *jobstore.Store
	emitter   metrics.Emitter
	inflight  *scheduler.Registry
	configDir string
	workDir   string
	log       *zap.Logger
}

func New(schedd backend.Schedd, store *jobstore.Store, emitter metrics.Emitter, inflight *scheduler.Registry, configDir, workDir string) *Runner {
	return &Runner{
		schedd:    schedd,
		store:     store,
		emitter:   emitter,
		inflight:  inflight,
		configDir: configDir,
		workDir:   workDir,
		log:       observability.Logger,
	}
}

// Execute runs one dispatched probe instance to completion. It is the
// worker body: any failure is handled here, logged, and folded into the
// reported result; nothing propagates back to the scheduler.
func (r *Runner) Execute(ctx context.Context, item scheduler.Item) {
	j, err := job.New(item.Probe, time.Now().UTC(), r.schedd, r.configDir, r.workDir)
	if err != nil {
		r.log.Error("Could not prepare job",
			zap.String("probe", item.Probe.Name), zap.Error(err))
		return
	}

	if err := j.Submit(ctx); err != nil {
		// Nothing was accepted by the backend, so there is nothing to
		// recover. The next interval brings a fresh attempt.
		r.log.Error("Submission failed, dropping this instance",
			zap.String("probe", item.Probe.Name), zap.Error(err))
		return
	}

	r.inflight.Add(scheduler.InflightJob{
		DispatchID:     item.ID,
		Probe:          j.ProbeName,
		Cluster:        j.Cluster,
		SubmissionTime: j.SubmissionTime,
	})
	defer r.inflight.Remove(item.ID)

	if err := r.store.Put(ctx, j); err != nil {
		// Without a stored row the job could never be recovered or marked
		// completed; abandon the instance and take it off the queue.
		r.log.Error("Could not persist job, abandoning this instance",
			zap.String("job", j.ID()), zap.Error(err))
		if rmErr := r.schedd.Remove(ctx, j.Cluster); rmErr != nil {
			r.log.Warn("Could not remove unpersisted job",
				zap.String("job", j.ID()), zap.Error(rmErr))
		}
		return
	}

	if err := j.Monitor(ctx); err != nil {
		// Shutdown mid-monitor. The stored row stays submitted and the
		// next process picks the job up in recovery.
		r.log.Info("Monitoring interrupted, leaving job for recovery",
			zap.String("job", j.ID()))
		return
	}

	r.collectAndReport(ctx, j)
}

// Recover picks up every stored job still marked submitted. Jobs found
// running on the backend are monitored to completion like any live job;
// jobs gone from the queue are graded from backend history. All
// recovered jobs flow through the same reporting tail, so a restart
// never loses a result.
func (r *Runner) Recover(ctx context.Context) error {
	jobs, err := r.store.ListUnfinished(ctx, r.schedd)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		r.log.Info("No unfinished jobs to recover")
		return nil
	}
	r.log.Info("Recovering unfinished jobs", zap.Int("count", len(jobs)))

	var g errgroup.Group
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			return r.recoverOne(ctx, j)
		})
	}
	return g.Wait()
}

func (r *Runner) recoverOne(ctx context.Context, j *job.Job) error {
	dispatchID := "recovered_" + j.ID()
	r.inflight.Add(scheduler.InflightJob{
		DispatchID:     dispatchID,
		Probe:          j.ProbeName,
		Cluster:        j.Cluster,
		SubmissionTime: j.SubmissionTime,
	})
	defer r.inflight.Remove(dispatchID)

	if j.StillRunning(ctx) {
		r.log.Info("Recovered job still running, resuming monitoring",
			zap.String("job", j.ID()))
		if err := j.Monitor(ctx); err != nil {
			return err
		}
	} else {
		r.log.Info("Recovered job left the queue, grading from history",
			zap.String("job", j.ID()))
		j.ResolveFromHistory(ctx)
	}

	r.collectAndReport(ctx, j)
	return nil
}

// collectAndReport is the shared tail for live and recovered jobs.
func (r *Runner) collectAndReport(ctx context.Context, j *job.Job) {
	j.CollectResults(ctx)

	passed := j.HasPassed()
	result := metrics.Result{
		TestName:        j.ProbeName,
		ClusterID:       strconv.FormatInt(j.Cluster, 10),
		Passed:          passed,
		Message:         j.Message(),
		RuntimeSeconds:  j.RuntimeSeconds,
		CPUEfficiency:   j.CPUEfficiency,
		Site:            j.Site,
		SubmissionTime:  j.SubmissionTime,
		TestTimeSeconds: int64(time.Since(j.SubmissionTime) / time.Second),
	}
	if err := r.emitter.Emit(ctx, result); err != nil {
		r.log.Error("Could not report result",
			zap.String("job", j.ID()), zap.Error(err))
	}
	j.MarkReported()

	r.log.Info("Job finished",
		zap.String("job", j.ID()),
		zap.Bool("passed", passed),
		zap.String("message", result.Message))

	if passed {
		j.CleanupOutputs()
	}

	if err := r.store.UpdateStatus(ctx, j, jobstore.StatusCompleted); err != nil {
		r.log.Error("Could not mark job completed",
			zap.String("job", j.ID()), zap.Error(err))
	}
}
