package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrypuuter/ram/pkg/jobstore"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the job database",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored jobs",
	RunE:  runJobsList,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := jobstore.Open(cmd.Context(), jobstore.Config{Path: jobDBPath()})
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No jobs found")
		return nil
	}

	if jsonOutput {
		type row struct {
			JobID          string    `json:"job_id"`
			Status         string    `json:"status"`
			SubmissionTime time.Time `json:"submission_time"`
		}
		rows := make([]row, 0, len(records))
		for _, r := range records {
			rows = append(rows, row{r.JobID, r.Status.String(), r.SubmissionTime})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tSTATUS\tSUBMITTED")
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n",
			r.JobID, r.Status, r.SubmissionTime.Format(time.RFC3339))
	}
	return nil
}
