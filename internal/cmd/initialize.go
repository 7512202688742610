package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/harrypuuter/ram/internal/assets"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a configuration directory",
	Long: `Write an example probe manifest and InfluxDB configuration into the
configuration directory. Existing files are never overwritten.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	configDir := viper.GetString("configdir")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	files := map[string][]byte{
		filepath.Join(configDir, "probes.yaml"):   assets.DefaultProbeManifest,
		filepath.Join(configDir, "influxdb.yaml"): assets.DefaultInfluxDBConfig,
	}
	for path, content := range files {
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("exists, skipping: %s\n", path)
			continue
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Printf("wrote: %s\n", path)
	}

	fmt.Println("\nNext steps: add a probe folder with its executable, enable it in probes.yaml, and run `ram check`.")
	return nil
}
