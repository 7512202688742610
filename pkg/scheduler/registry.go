package scheduler

import (
	"sort"
	"sync"
	"time"
)

// InflightJob is a point-in-time view of a job being worked on.
type InflightJob struct {
	DispatchID     string    `json:"dispatch_id"`
	Probe          string    `json:"probe"`
	Cluster        int64     `json:"cluster"`
	SubmissionTime time.Time `json:"submission_time"`
}

// Registry tracks the jobs currently held by workers, for the status
// endpoint and for shutdown reporting. Entries are immutable snapshots
// recorded at submission; live job state stays with the worker.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]InflightJob
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]InflightJob)}
}

func (r *Registry) Add(entry InflightJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[entry.DispatchID] = entry
}

func (r *Registry) Remove(dispatchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, dispatchID)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Snapshot returns the in-flight jobs ordered oldest first.
func (r *Registry) Snapshot() []InflightJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]InflightJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmissionTime.Before(out[j].SubmissionTime)
	})
	return out
}
