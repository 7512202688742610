// Package assets provides embedded starter configuration for standalone
// binary behavior.
//
// The files are embedded at compile time so `ram init` can scaffold a
// working configuration directory regardless of where the binary is
// installed.
package assets

import _ "embed"

// DefaultProbeManifest is the embedded example probe manifest written
// by `ram init`.
//
//go:embed probes.yaml
var DefaultProbeManifest []byte

// DefaultInfluxDBConfig is the embedded example InfluxDB configuration.
//
//go:embed influxdb.yaml
var DefaultInfluxDBConfig []byte
