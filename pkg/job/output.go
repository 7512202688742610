package job

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Report is the result artifact a probe executable writes.
type Report struct {
	Tests []TestResult `yaml:"tests" json:"tests"`
}

// TestResult is one sub-test inside a probe's result artifact.
type TestResult struct {
	Name    string `yaml:"name" json:"name"`
	Passed  bool   `yaml:"passed" json:"passed"`
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// Failed returns the sub-tests that did not pass.
func (r *Report) Failed() []TestResult {
	var out []TestResult
	for _, t := range r.Tests {
		if !t.Passed {
			out = append(out, t)
		}
	}
	return out
}

// parseOutput locates this instance's result artifact in the results
// directory and parses it. The artifact carries the cluster id in its
// name, so overlapping instances of the same probe never pick up each
// other's output. A missing or unreadable artifact leaves Output nil.
func (j *Job) parseOutput() {
	path, ok := j.findOutputFile()
	if !ok {
		j.log.Info("Job produced no output artifact",
			zap.String("probe", j.ProbeName), zap.Int64("cluster", j.Cluster))
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		j.log.Warn("Could not read output artifact",
			zap.String("path", path), zap.Error(err))
		return
	}

	var report Report
	if err := yaml.Unmarshal(data, &report); err != nil {
		j.log.Warn("Could not parse output artifact",
			zap.String("path", path), zap.Error(err))
		return
	}
	j.Output = &report
}

func (j *Job) findOutputFile() (string, bool) {
	entries, err := os.ReadDir(j.ResultsDir)
	if err != nil {
		j.log.Warn("Could not scan results directory",
			zap.String("dir", j.ResultsDir), zap.Error(err))
		return "", false
	}
	id := strconv.FormatInt(j.Cluster, 10)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.Contains(e.Name(), id) {
			return filepath.Join(j.ResultsDir, e.Name()), true
		}
	}
	return "", false
}

// HasPassed is the overall verdict: the job finished before its timeout,
// terminated successfully, produced a result artifact, and every
// sub-test in that artifact passed.
func (j *Job) HasPassed() bool {
	if !j.DoneBeforeTimeout || !j.Succeeded {
		return false
	}
	if j.Output == nil {
		return false
	}
	return len(j.Output.Failed()) == 0
}

// Message composes the human-readable verdict reported alongside the
// pass/fail flag. Every contributing failure cause is appended, so a job
// that both timed out and produced no output says so twice.
func (j *Job) Message() string {
	if j.HasPassed() {
		return "Job succeeded"
	}

	msg := "Job failed"
	if !j.DoneBeforeTimeout {
		msg += " - Job timed out before finishing"
	}
	if !j.Succeeded {
		last := "none"
		if j.LastEventType != nil {
			last = strconv.Itoa(int(*j.LastEventType))
		}
		msg += fmt.Sprintf(" - Job did not succeed on HTCondor (last event type: %s)", last)
	}
	if j.Output == nil {
		msg += " - Job did not produce any output"
	} else if failed := j.Output.Failed(); len(failed) > 0 {
		msgs := make([]string, 0, len(failed))
		for _, t := range failed {
			msgs = append(msgs, fmt.Sprintf("%s: %s", t.Name, t.Message))
		}
		msg += fmt.Sprintf(" - Tests failed: [%s]", strings.Join(msgs, ", "))
	}
	return msg
}

// CleanupOutputs deletes this instance's files from the log and results
// directories. Called only for passing jobs; failures keep their files
// for inspection.
func (j *Job) CleanupOutputs() {
	id := strconv.FormatInt(j.Cluster, 10)
	removed := 0
	for _, dir := range []string{j.LogsDir, j.ResultsDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.Contains(e.Name(), id) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				j.log.Warn("Could not remove job file",
					zap.String("file", e.Name()), zap.Error(err))
				continue
			}
			removed++
		}
	}
	j.log.Debug("Cleaned up job files",
		zap.Int64("cluster", j.Cluster), zap.Int("removed", removed))
}
