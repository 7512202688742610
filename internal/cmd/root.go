// Package cmd implements the ram command line interface.
package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/harrypuuter/ram/internal/observability"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo is called from main with build-time values.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate)
}

var rootCmd = &cobra.Command{
	Use:   "ram",
	Short: "Resource availability monitoring for HTCondor pools",
	Long: `ram submits recurring probe jobs to an HTCondor pool, watches them
through the schedd's user log, grades their results, and reports the
outcome to InfluxDB.

Probes are defined in a YAML manifest in the configuration directory;
each probe's executable and input files live in a folder named after
the probe. Job state is persisted in a local SQLite database so that
jobs in flight survive a restart of the monitor.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		observability.Init(observability.Config{
			Level:    viper.GetString("log-level"),
			FilePath: viper.GetString("log-file"),
		})
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("workdir", "work", "Working directory for job logs, results, and the job database")
	pf.String("configdir", "config", "Configuration directory holding the probe manifest and probe folders")
	pf.String("config-file", "", "Probe manifest path (default <configdir>/probes.yaml)")
	pf.String("influxdb-config-file", "", "InfluxDB config path (default <configdir>/influxdb.yaml)")
	pf.String("job-db-file", "", "Job database path (default <workdir>/jobs.db)")
	pf.String("log-file", "", "Also write logs to this file")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")

	viper.SetEnvPrefix("RAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(pf)
}

// Execute runs the CLI.
func Execute() error {
	defer observability.Sync()
	return rootCmd.Execute()
}

// Path resolution for the conventional file layout. Explicit flags win;
// otherwise paths derive from configdir and workdir.

func manifestPath() string {
	if p := viper.GetString("config-file"); p != "" {
		return p
	}
	return filepath.Join(viper.GetString("configdir"), "probes.yaml")
}

func influxConfigPath() string {
	if p := viper.GetString("influxdb-config-file"); p != "" {
		return p
	}
	return filepath.Join(viper.GetString("configdir"), "influxdb.yaml")
}

func jobDBPath() string {
	if p := viper.GetString("job-db-file"); p != "" {
		return p
	}
	return filepath.Join(viper.GetString("workdir"), "jobs.db")
}
