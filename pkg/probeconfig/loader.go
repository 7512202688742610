package probeconfig

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and validates the probe manifest from the given path.
//
// Returns an error if the file cannot be read, is not valid YAML, fails
// validation, or leaves no probe enabled.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("probe manifest not found: %s", path)
		}
		return nil, fmt.Errorf("read probe manifest: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses and validates a manifest from raw bytes.
func LoadFromBytes(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, errors.New("probe manifest is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML in probe manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.ApplyDefaults()

	if len(m.Enabled()) == 0 {
		return nil, errors.New("no probes enabled in manifest")
	}
	return &m, nil
}

// LoadFromReader reads and validates a manifest from an io.Reader.
func LoadFromReader(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read probe manifest: %w", err)
	}
	return LoadFromBytes(data)
}
