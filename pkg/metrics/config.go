package metrics

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds InfluxDB connection settings.
type Config struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// LoadConfig reads InfluxDB settings from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("influxdb config not found: %s", path)
		}
		return nil, fmt.Errorf("read influxdb config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid influxdb config: %w", err)
	}

	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("influxdb config: url is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("influxdb config: bucket is required")
	}
	return &cfg, nil
}
