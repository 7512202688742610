package htcondor

import (
	"fmt"
	"strings"

	"github.com/harrypuuter/ram/pkg/backend"
)

// renderSubmit turns a resolved submit spec into the condor_submit
// description language. Only set fields are emitted; HTCondor applies
// its own defaults for the rest.
func renderSubmit(spec backend.SubmitSpec) string {
	var b strings.Builder
	line := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s = %s\n", key, value)
		}
	}

	line("executable", spec.Executable)
	line("arguments", spec.Arguments)
	line("universe", spec.Universe)
	line("docker_image", spec.DockerImage)
	line("accounting_group", spec.AccountingGroup)

	if spec.RequestCPUs > 0 {
		line("request_cpus", fmt.Sprintf("%d", spec.RequestCPUs))
	}
	if spec.RequestMemoryMB > 0 {
		line("request_memory", fmt.Sprintf("%d", spec.RequestMemoryMB))
	}
	if spec.RequestDiskKB > 0 {
		line("request_disk", fmt.Sprintf("%d", spec.RequestDiskKB))
	}
	if spec.RequestGPUs > 0 {
		line("request_gpus", fmt.Sprintf("%d", spec.RequestGPUs))
	}
	line("requirements", spec.Requirements)

	line("should_transfer_files", "YES")
	line("when_to_transfer_output", "ON_EXIT")
	if len(spec.TransferInputFiles) > 0 {
		line("transfer_input_files", strings.Join(spec.TransferInputFiles, ","))
	}
	line("transfer_output_files", spec.TransferOutputFile)
	if spec.OutputRemap != "" {
		line("transfer_output_remaps", fmt.Sprintf("%q", spec.OutputRemap))
	}

	line("output", spec.StdoutPath)
	line("error", spec.StderrPath)
	line("log", spec.LogPath)

	b.WriteString("queue\n")
	return b.String()
}
