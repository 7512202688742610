// Package backend defines the contract between ram and the HTCondor
// scheduler daemon (schedd).
//
// The Schedd interface is the only thing the lifecycle code depends on;
// the production implementation lives in pkg/backend/htcondor and tests
// substitute fakes. Wire values (event codes, job statuses) follow the
// HTCondor user-log and ClassAd conventions and must not be renumbered.
package backend

import (
	"context"
	"time"
)

// Schedd submits, observes, and removes batch jobs.
//
// Events is a bounded poll: it returns any events appended to the job
// user log at logPath past fromOffset, waiting up to wait for new data,
// and reports the new offset to resume from. Query and History return
// (nil, nil) when the backend has no record for the cluster; an error
// return means the lookup itself failed and the caller decides policy.
type Schedd interface {
	Submit(ctx context.Context, spec SubmitSpec) (int64, error)
	Events(ctx context.Context, logPath string, fromOffset int64, wait time.Duration) ([]Event, int64, error)
	Query(ctx context.Context, cluster int64) (*QueueAd, error)
	History(ctx context.Context, cluster int64) (*HistoryAd, error)
	Remove(ctx context.Context, cluster int64) error
}

// SubmitSpec is a fully resolved submit description.
//
// Paths are absolute. The timeout is enforced by the caller, not the
// backend; it is not part of the submit description.
type SubmitSpec struct {
	Executable      string
	Arguments       string
	Universe        string
	DockerImage     string
	AccountingGroup string

	RequestCPUs     int
	RequestMemoryMB int
	RequestDiskKB   int
	RequestGPUs     int
	Requirements    string

	TransferInputFiles []string
	TransferOutputFile string
	// OutputRemap maps the produced output file to its destination path,
	// e.g. `result.yaml = /work/results/probe/id_$(Cluster)-$(Process)-result.yaml`.
	OutputRemap string

	StdoutPath string
	StderrPath string
	LogPath    string
}

// EventType is an HTCondor user-log event code.
type EventType int

const (
	EventSubmit        EventType = 0
	EventExecute       EventType = 1
	EventEvicted       EventType = 4
	EventTerminated    EventType = 5
	EventImageSize     EventType = 6
	EventAborted       EventType = 9
	EventSuspended     EventType = 10
	EventUnsuspended   EventType = 11
	EventHeld          EventType = 12
	EventClusterRemove EventType = 36
	EventFileTransfer  EventType = 40
)

// Event is one entry from a job's user log.
type Event struct {
	Cluster int64
	Proc    int
	Type    EventType

	// Termination detail, meaningful only for EventTerminated.
	TerminatedNormally bool
	ReturnValue        int
	TerminatedBySignal int
}

// Benign reports whether the event is expected during a normal run and
// carries no terminal meaning.
func (e Event) Benign() bool {
	switch e.Type {
	case EventSubmit, EventExecute, EventImageSize, EventEvicted,
		EventSuspended, EventUnsuspended, EventFileTransfer:
		return true
	}
	return false
}

// JobStatus is an HTCondor ClassAd JobStatus code.
type JobStatus int

const (
	StatusIdle      JobStatus = 1
	StatusRunning   JobStatus = 2
	StatusRemoved   JobStatus = 3
	StatusCompleted JobStatus = 4
	StatusHeld      JobStatus = 5
)

// QueueAd is a point-in-time view of a queued job.
type QueueAd struct {
	Cluster int64
	Status  JobStatus
}

// HistoryAd is the last known record of a completed or removed job.
type HistoryAd struct {
	Cluster    int64
	LastStatus JobStatus

	WallClockSeconds float64
	UserCPUSeconds   float64
	SysCPUSeconds    float64
}
