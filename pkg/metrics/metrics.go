// Package metrics reports probe results to InfluxDB.
package metrics

import (
	"context"
	"fmt"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"

	"github.com/harrypuuter/ram/internal/observability"
)

// Result is one probe outcome as reported downstream.
type Result struct {
	TestName       string
	ClusterID      string
	Passed         bool
	Message        string
	RuntimeSeconds int64
	CPUEfficiency  float64
	Site           string
	SubmissionTime time.Time

	// TestTimeSeconds is the total wall time from submission to report,
	// including recovery and grading, as opposed to RuntimeSeconds which
	// is only the backend execution time.
	TestTimeSeconds int64
}

// Emitter sends probe results to a metrics backend.
type Emitter interface {
	Emit(ctx context.Context, r Result) error
	Close()
}

// measurement is the InfluxDB measurement all results land in.
const measurement = "testresults"

// InfluxEmitter writes results as InfluxDB points.
type InfluxEmitter struct {
	client   influxdb2.Client
	write    api.WriteAPIBlocking
	hostname string
	log      *zap.Logger
}

// NewInfluxEmitter connects to InfluxDB with the given settings. The
// connection is lazy; a wrong URL surfaces on first Emit.
func NewInfluxEmitter(cfg Config) *InfluxEmitter {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxEmitter{
		client:   client,
		write:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		hostname: hostname,
		log:      observability.Logger,
	}
}

// Emit writes one result point. The point is timestamped with the job's
// submission time, not the report time, so late recovery reports land
// where the probe actually ran.
func (e *InfluxEmitter) Emit(ctx context.Context, r Result) error {
	result := 0
	if r.Passed {
		result = 1
	}
	point := influxdb2.NewPoint(measurement,
		map[string]string{
			"test_name": r.TestName,
		},
		map[string]interface{}{
			"cluster-id":     r.ClusterID,
			"result":         result,
			"message":        r.Message,
			"runtime":        r.RuntimeSeconds,
			"cpu_efficiency": r.CPUEfficiency,
			"testtime":       r.TestTimeSeconds,
			"site":           r.Site,
			"hostname":       e.hostname,
		},
		r.SubmissionTime)

	if err := e.write.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("write result for %s: %w", r.TestName, err)
	}
	e.log.Debug("Reported result",
		zap.String("test_name", r.TestName),
		zap.String("cluster_id", r.ClusterID),
		zap.Int("result", result))
	return nil
}

func (e *InfluxEmitter) Close() {
	e.client.Close()
}

// NopEmitter drops all results. Used with --no-influxdb and in tests.
type NopEmitter struct{}

func (NopEmitter) Emit(ctx context.Context, r Result) error {
	observability.Logger.Info("Result (reporting disabled)",
		zap.String("test_name", r.TestName),
		zap.Bool("passed", r.Passed),
		zap.String("message", r.Message))
	return nil
}

func (NopEmitter) Close() {}
