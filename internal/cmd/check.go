package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harrypuuter/ram/pkg/probeconfig"
	"github.com/harrypuuter/ram/pkg/scheduler"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the probe manifest",
	Long: `Validate the probe manifest and show what a run would schedule:
the enabled probes, their intervals and timeouts, and the resulting
worker pool size.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(_ *cobra.Command, _ []string) error {
	manifest, err := probeconfig.Load(manifestPath())
	if err != nil {
		return err
	}
	probes := manifest.Enabled()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "PROBE\tINTERVAL\tTIMEOUT\tSITE\tUNIVERSE")
	for _, p := range probes {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.Name,
			p.Interval(),
			p.Timeout(),
			p.Parameters.Site,
			p.Parameters.Job.Universe,
		)
	}
	_, _ = fmt.Fprintf(w, "\n%d probes enabled, worker pool size %d\n",
		len(probes), scheduler.WorkerCount(probes))
	return nil
}
