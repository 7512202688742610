// Package job implements the probe job entity and its lifecycle.
//
// A Job is one execution instance of a probe: it is submitted to the
// schedd, monitored through the user event log until a terminal event or
// its timeout, and then graded against the result artifact the probe
// executable produced. The struct is JSON-serializable for the durable
// store; the schedd handle and logger live in unexported fields so a
// snapshot can never capture a live connection.
package job

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/harrypuuter/ram/internal/observability"
	"github.com/harrypuuter/ram/pkg/backend"
	"github.com/harrypuuter/ram/pkg/probeconfig"
)

// State is the lifecycle state of a probe job.
//
// NOTE: These values are persisted inside job snapshots and are part of
// the stable on-disk contract.
type State string

const (
	StateCreated          State = "created"
	StateSubmitted        State = "submitted"
	StateMonitoring       State = "monitoring"
	StateTerminatedOk     State = "terminated_ok"
	StateTerminatedFail   State = "terminated_fail"
	StateAborted          State = "aborted"
	StateTimedOut         State = "timed_out"
	StateResultsCollected State = "results_collected"
	StateReported         State = "reported"
)

// Terminal reports whether monitoring is finished in this state.
func (s State) Terminal() bool {
	switch s {
	case StateTerminatedOk, StateTerminatedFail, StateAborted, StateTimedOut,
		StateResultsCollected, StateReported:
		return true
	}
	return false
}

// monitorPollSlice bounds one event-log poll so the monitor loop stays
// responsive to the wall-clock deadline.
const monitorPollSlice = 5 * time.Second

// Job is one execution instance of a probe.
type Job struct {
	ProbeName      string             `json:"probe_name"`
	Site           string             `json:"site"`
	TimeoutSeconds int                `json:"timeout_seconds"`
	SubmissionTime time.Time          `json:"submission_time"`
	Spec           backend.SubmitSpec `json:"spec"`
	ResultsDir     string             `json:"results_dir"`
	LogsDir        string             `json:"logs_dir"`

	// Cluster is the backend-assigned id, -1 before submission.
	Cluster int64 `json:"cluster"`
	State   State `json:"state"`

	LastEventType *backend.EventType `json:"last_event_type,omitempty"`

	Succeeded         bool `json:"succeeded"`
	DoneBeforeTimeout bool `json:"done_before_timeout"`

	Output *Report `json:"output,omitempty"`

	// RuntimeSeconds and CPUEfficiency are -1 until collected from history.
	RuntimeSeconds int64   `json:"runtime_seconds"`
	CPUEfficiency  float64 `json:"cpu_efficiency"`

	schedd backend.Schedd
	log    *zap.Logger
}

// New builds a Job for one dispatch of the given probe.
//
// The probe's data directory is configDir/<probe>; logs and results go
// under workDir/logs/<probe> and workDir/results/<probe>, both created
// here. The result artifact is remapped to a per-cluster file name so
// overlapping instances of the same probe never collide.
func New(def probeconfig.Probe, submissionTime time.Time, schedd backend.Schedd, configDir, workDir string) (*Job, error) {
	dataDir := filepath.Join(configDir, def.Name)
	logsDir := filepath.Join(workDir, "logs", def.Name)
	resultsDir := filepath.Join(workDir, "results", def.Name)
	for _, dir := range []string{logsDir, resultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create job directory: %w", err)
		}
	}

	params := def.Parameters
	spec := buildSubmitSpec(params, dataDir, logsDir, resultsDir)

	return &Job{
		ProbeName:      def.Name,
		Site:           params.Site,
		TimeoutSeconds: params.TimeoutSeconds,
		SubmissionTime: submissionTime,
		Spec:           spec,
		ResultsDir:     resultsDir,
		LogsDir:        logsDir,
		Cluster:        -1,
		State:          StateCreated,
		RuntimeSeconds: -1,
		CPUEfficiency:  -1,
		schedd:         schedd,
		log:            observability.Logger,
	}, nil
}

func buildSubmitSpec(params probeconfig.Parameters, dataDir, logsDir, resultsDir string) backend.SubmitSpec {
	js := params.Job
	resultPath := filepath.Join(resultsDir, "id_$(Cluster)-$(Process)-"+js.OutputFile)

	inputs := make([]string, 0, len(js.InputFiles))
	for _, f := range js.InputFiles {
		inputs = append(inputs, filepath.Join(dataDir, f))
	}

	return backend.SubmitSpec{
		Executable:         filepath.Join(dataDir, js.Executable),
		Arguments:          js.Arguments,
		Universe:           js.Universe,
		DockerImage:        js.DockerImage,
		AccountingGroup:    js.AccountingGroup,
		RequestCPUs:        params.Requirements.CPU,
		RequestMemoryMB:    params.Requirements.MemoryMB,
		RequestDiskKB:      params.Requirements.DiskKB,
		RequestGPUs:        params.Requirements.GPU,
		Requirements:       params.Requirements.Expression,
		TransferInputFiles: inputs,
		TransferOutputFile: js.OutputFile,
		OutputRemap:        fmt.Sprintf("%s = %s", js.OutputFile, resultPath),
		StdoutPath:         filepath.Join(logsDir, "$(Cluster)_"+js.Output),
		StderrPath:         filepath.Join(logsDir, "$(Cluster)_"+js.Error),
		LogPath:            filepath.Join(logsDir, js.Log),
	}
}

// ID is the stable job identifier once a cluster id is assigned.
func (j *Job) ID() string {
	return fmt.Sprintf("%s_%d", j.ProbeName, j.Cluster)
}

// Timeout is the per-instance timeout as a duration.
func (j *Job) Timeout() time.Duration {
	return time.Duration(j.TimeoutSeconds) * time.Second
}

// Deadline is the wall-clock time past which the job is removed.
func (j *Job) Deadline() time.Time {
	return j.SubmissionTime.Add(j.Timeout())
}

// Submit sends the job to the schedd and records the assigned cluster
// id. Submission failure is fatal for this instance; there is no retry
// here, the next schedule tick creates a fresh attempt.
func (j *Job) Submit(ctx context.Context) error {
	j.State = StateSubmitted
	cluster, err := j.schedd.Submit(ctx, j.Spec)
	if err != nil {
		return err
	}
	j.Cluster = cluster
	j.State = StateMonitoring
	j.log.Info("Submitted job",
		zap.String("probe", j.ProbeName),
		zap.Int64("cluster", j.Cluster),
		zap.Int("timeout_seconds", j.TimeoutSeconds))
	return nil
}

// Monitor consumes the job's event stream until a terminal event or the
// timeout deadline. On timeout the job is removed from the queue and the
// state becomes StateTimedOut; that is an expected outcome, not an error.
// Monitor returns an error only when ctx is cancelled.
func (j *Job) Monitor(ctx context.Context) error {
	deadline := j.Deadline()
	var offset int64

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait := monitorPollSlice
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}

		events, next, err := j.schedd.Events(ctx, j.Spec.LogPath, offset, wait)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			j.log.Warn("Event log read failed, retrying",
				zap.Int64("cluster", j.Cluster), zap.Error(err))
			continue
		}
		offset = next

		for _, ev := range events {
			if ev.Cluster != j.Cluster || ev.Proc != 0 {
				continue
			}
			if terminal := j.applyEvent(ev); terminal {
				return nil
			}
		}
	}

	j.log.Info("Timed out waiting for job to finish",
		zap.String("probe", j.ProbeName),
		zap.Int64("cluster", j.Cluster),
		zap.Int("timeout_seconds", j.TimeoutSeconds))
	if err := j.schedd.Remove(ctx, j.Cluster); err != nil {
		j.log.Warn("Failed to remove timed-out job",
			zap.Int64("cluster", j.Cluster), zap.Error(err))
	}
	j.DoneBeforeTimeout = false
	j.State = StateTimedOut
	return nil
}

// applyEvent classifies one event addressed to this job and reports
// whether it was terminal.
func (j *Job) applyEvent(ev backend.Event) bool {
	et := ev.Type
	j.LastEventType = &et

	switch {
	case ev.Type == backend.EventTerminated:
		j.DoneBeforeTimeout = true
		switch {
		case ev.TerminatedNormally && ev.ReturnValue == 0:
			j.Succeeded = true
			j.State = StateTerminatedOk
			j.log.Info("Job terminated normally",
				zap.Int64("cluster", j.Cluster), zap.Int("return_value", ev.ReturnValue))
		case ev.TerminatedNormally:
			j.State = StateTerminatedFail
			j.log.Info("Job terminated with non-zero return value",
				zap.Int64("cluster", j.Cluster), zap.Int("return_value", ev.ReturnValue))
		default:
			j.State = StateTerminatedFail
			j.log.Info("Job terminated on signal",
				zap.Int64("cluster", j.Cluster), zap.Int("signal", ev.TerminatedBySignal))
		}
		return true

	case ev.Type == backend.EventAborted || ev.Type == backend.EventHeld || ev.Type == backend.EventClusterRemove:
		j.DoneBeforeTimeout = true
		j.State = StateAborted
		j.log.Info("Job aborted, held, or removed",
			zap.Int64("cluster", j.Cluster), zap.Int("event_type", int(ev.Type)))
		return true

	case !ev.Benign():
		// The monitor cannot reason about unmodeled backend states, so an
		// unknown event type is terminal.
		j.DoneBeforeTimeout = true
		j.State = StateAborted
		j.log.Error("Job had unexpected event",
			zap.Int64("cluster", j.Cluster), zap.Int("event_type", int(ev.Type)))
		return true
	}

	return false
}

// StillRunning is the recovery-time liveness check. A failed query is
// answered conservatively: re-monitoring a finished job is cheap,
// silently losing track of a live one is not.
func (j *Job) StillRunning(ctx context.Context) bool {
	ad, err := j.schedd.Query(ctx, j.Cluster)
	if err != nil {
		j.log.Info("Could not query job status, assuming still running",
			zap.Int64("cluster", j.Cluster), zap.Error(err))
		return true
	}
	if ad == nil {
		j.log.Info("Job not found in queue", zap.Int64("cluster", j.Cluster))
		return false
	}
	return ad.Status == backend.StatusRunning
}

// ResolveFromHistory classifies a job that left the queue while the
// process was down. Success requires the backend's completed status; a
// missing record or a failed lookup both grade as failure, never as an
// error that aborts the recovery pass.
func (j *Job) ResolveFromHistory(ctx context.Context) {
	ad, err := j.schedd.History(ctx, j.Cluster)
	if err != nil {
		j.log.Warn("Could not look up job history, marking failed",
			zap.Int64("cluster", j.Cluster), zap.Error(err))
		j.Succeeded = false
		j.State = StateTerminatedFail
		return
	}
	if ad == nil {
		j.log.Info("Job has no history record, marking failed",
			zap.Int64("cluster", j.Cluster))
		j.DoneBeforeTimeout = true
		j.Succeeded = false
		j.State = StateTerminatedFail
		return
	}

	j.DoneBeforeTimeout = true
	if ad.LastStatus == backend.StatusCompleted {
		j.Succeeded = true
		j.State = StateTerminatedOk
		j.log.Info("Job finished while unobserved", zap.Int64("cluster", j.Cluster))
	} else {
		j.Succeeded = false
		j.State = StateTerminatedFail
		j.log.Info("Job did not finish successfully while unobserved",
			zap.Int64("cluster", j.Cluster),
			zap.Int("last_status", int(ad.LastStatus)))
	}
}

// CollectResults parses the result artifact and pulls runtime accounting
// from backend history. Neither a missing artifact nor a failed history
// lookup is fatal; both fold into the verdict.
func (j *Job) CollectResults(ctx context.Context) {
	j.parseOutput()
	j.collectHistoryDetails(ctx)
	j.State = StateResultsCollected
}

func (j *Job) collectHistoryDetails(ctx context.Context) {
	ad, err := j.schedd.History(ctx, j.Cluster)
	if err != nil {
		j.log.Info("Could not get job history details",
			zap.Int64("cluster", j.Cluster), zap.Error(err))
		return
	}
	if ad == nil {
		return
	}
	j.RuntimeSeconds = int64(ad.WallClockSeconds)
	if ad.WallClockSeconds == 0 {
		j.CPUEfficiency = 0
	} else {
		j.CPUEfficiency = (ad.UserCPUSeconds + ad.SysCPUSeconds) / ad.WallClockSeconds
	}
}

// MarkReported moves the job to its final state after result emission.
func (j *Job) MarkReported() {
	j.State = StateReported
}
