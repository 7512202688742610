package job

import (
	"encoding/json"
	"fmt"

	"github.com/harrypuuter/ram/internal/observability"
	"github.com/harrypuuter/ram/pkg/backend"
)

// Snapshot serializes the job for durable storage. The schedd handle and
// logger are unexported and never cross the snapshot boundary.
func (j *Job) Snapshot() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("snapshot job %s: %w", j.ID(), err)
	}
	return data, nil
}

// Restore rebuilds a job from a stored snapshot and attaches a live
// schedd handle.
func Restore(data []byte, schedd backend.Schedd) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("restore job snapshot: %w", err)
	}
	j.schedd = schedd
	j.log = observability.Logger
	return &j, nil
}
