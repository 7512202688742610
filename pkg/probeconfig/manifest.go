// Package probeconfig provides loading and validation of the probe
// manifest.
//
// The manifest is a YAML file listing recurring probe jobs. Each probe
// names an executable bundled under the configuration directory, the
// resources it needs on the pool, and how often it runs.
//
// Example manifest:
//
//	jobs:
//	  - name: cpu-smoke
//	    parameters:
//	      enabled: true
//	      interval: 300
//	      timeout: 600
//	      site: ETP
//	      job:
//	        executable: run_test.sh
//	        output_file: result.yaml
//	        output: out.txt
//	        error: err.txt
//	        log: events.log
//	        universe: vanilla
//	      requirements:
//	        cpu: 1
//	        memory: 2000
//	        disk: 1000000
package probeconfig

import "time"

// Manifest is the parsed probe configuration file.
type Manifest struct {
	Jobs []Probe `yaml:"jobs"`
}

// Probe is one named recurring probe definition. Immutable after load.
type Probe struct {
	Name       string     `yaml:"name"`
	Parameters Parameters `yaml:"parameters"`
}

// Parameters configures one probe's scheduling and job shape.
type Parameters struct {
	// Enabled probes are scheduled; disabled ones are filtered out at load.
	Enabled bool `yaml:"enabled"`

	// IntervalSeconds is the dispatch period. Ignored when Schedule is set.
	IntervalSeconds int `yaml:"interval,omitempty"`

	// Schedule is an optional cron expression (5-field or @every form)
	// normalized to an interval at load time.
	Schedule string `yaml:"schedule,omitempty"`

	// TimeoutSeconds bounds one job instance from submission to terminal
	// event; past it the job is removed from the queue.
	TimeoutSeconds int `yaml:"timeout"`

	// Site labels where the probe runs; carried through to the result record.
	Site string `yaml:"site,omitempty"`

	Job          JobSpec      `yaml:"job"`
	Requirements Requirements `yaml:"requirements"`
}

// JobSpec describes the executable and its file plumbing. File names are
// relative: the executable and input files to configdir/<probe>/, the
// stdout/stderr/log names to the probe's log directory.
type JobSpec struct {
	Executable      string   `yaml:"executable"`
	Arguments       string   `yaml:"arguments,omitempty"`
	Universe        string   `yaml:"universe,omitempty"`
	DockerImage     string   `yaml:"docker_image,omitempty"`
	AccountingGroup string   `yaml:"accounting_group,omitempty"`
	InputFiles      []string `yaml:"input_files,omitempty"`

	// OutputFile is the result artifact the probe writes; it is remapped
	// to the results directory on transfer.
	OutputFile string `yaml:"output_file"`

	// Output, Error, and Log are the stdout, stderr, and user-log file names.
	Output string `yaml:"output"`
	Error  string `yaml:"error"`
	Log    string `yaml:"log"`
}

// Requirements are the resource requests passed to the backend.
type Requirements struct {
	CPU      int `yaml:"cpu"`
	MemoryMB int `yaml:"memory"`
	DiskKB   int `yaml:"disk"`
	GPU      int `yaml:"gpu,omitempty"`

	// Expression is a raw requirements constraint, e.g. a target-site
	// ClassAd expression. Passed through verbatim.
	Expression string `yaml:"requirements,omitempty"`
}

// Default values for optional parameters.
const (
	DefaultUniverse       = "vanilla"
	DefaultTimeoutSeconds = 3600
	DefaultSite           = "unknown"
)

// Interval returns the probe's dispatch period.
func (p Probe) Interval() time.Duration {
	return time.Duration(p.Parameters.IntervalSeconds) * time.Second
}

// Timeout returns the per-instance timeout.
func (p Probe) Timeout() time.Duration {
	return time.Duration(p.Parameters.TimeoutSeconds) * time.Second
}

// ApplyDefaults fills in defaults for optional fields. Called after
// validation so required fields are known to be present.
func (m *Manifest) ApplyDefaults() {
	for i := range m.Jobs {
		p := &m.Jobs[i].Parameters
		if p.Job.Universe == "" {
			p.Job.Universe = DefaultUniverse
		}
		if p.TimeoutSeconds == 0 {
			p.TimeoutSeconds = DefaultTimeoutSeconds
		}
		if p.Site == "" {
			p.Site = DefaultSite
		}
	}
}

// Enabled returns the probes that are enabled, preserving order.
func (m *Manifest) Enabled() []Probe {
	out := make([]Probe, 0, len(m.Jobs))
	for _, j := range m.Jobs {
		if j.Parameters.Enabled {
			out = append(out, j)
		}
	}
	return out
}
