package probeconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate checks structural requirements and resolves cron schedules
// into intervals. Disabled probes are validated too: a typo in a
// disabled probe should fail fast, not when it is next enabled.
func (m *Manifest) Validate() error {
	if len(m.Jobs) == 0 {
		return fmt.Errorf("probe manifest defines no jobs")
	}

	seen := make(map[string]bool, len(m.Jobs))
	for i := range m.Jobs {
		p := &m.Jobs[i]
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("jobs[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("jobs[%d]: duplicate probe name %q", i, name)
		}
		seen[name] = true

		params := &p.Parameters
		if params.Schedule != "" {
			interval, err := parseCronInterval(params.Schedule)
			if err != nil {
				return fmt.Errorf("probe %q: invalid schedule %q: %w", name, params.Schedule, err)
			}
			params.IntervalSeconds = int(interval / time.Second)
		}
		if params.IntervalSeconds <= 0 {
			return fmt.Errorf("probe %q: interval must be positive", name)
		}
		if params.TimeoutSeconds < 0 {
			return fmt.Errorf("probe %q: timeout must not be negative", name)
		}

		job := params.Job
		if strings.TrimSpace(job.Executable) == "" {
			return fmt.Errorf("probe %q: job.executable is required", name)
		}
		for field, v := range map[string]string{
			"job.output_file": job.OutputFile,
			"job.output":      job.Output,
			"job.error":       job.Error,
			"job.log":         job.Log,
		} {
			if strings.TrimSpace(v) == "" {
				return fmt.Errorf("probe %q: %s is required", name, field)
			}
		}
		if job.Universe == "docker" && strings.TrimSpace(job.DockerImage) == "" {
			return fmt.Errorf("probe %q: job.docker_image is required for the docker universe", name)
		}

		req := params.Requirements
		if req.CPU <= 0 || req.MemoryMB <= 0 || req.DiskKB <= 0 {
			return fmt.Errorf("probe %q: requirements.cpu, memory, and disk must be positive", name)
		}
		if req.GPU < 0 {
			return fmt.Errorf("probe %q: requirements.gpu must not be negative", name)
		}
	}
	return nil
}

// parseCronInterval converts a cron expression to its repeat interval.
// Macros and @every are handled by ParseStandard; bare 5-field specs get
// a dedicated parser.
func parseCronInterval(expr string) (time.Duration, error) {
	e := strings.TrimSpace(expr)
	if e == "" {
		return 0, fmt.Errorf("empty cron expression")
	}

	var schedule cron.Schedule
	var err error
	if strings.HasPrefix(e, "@") {
		schedule, err = cron.ParseStandard(e)
	} else {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		schedule, err = parser.Parse(e)
	}
	if err != nil {
		return 0, err
	}

	next1 := schedule.Next(time.Now())
	next2 := schedule.Next(next1)
	return next2.Sub(next1), nil
}
