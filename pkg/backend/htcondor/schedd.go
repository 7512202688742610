// Package htcondor implements the backend contract on top of the
// HTCondor command line tools.
//
// Submission goes through condor_submit with the description piped on
// stdin; queue and history lookups use the -json output of condor_q and
// condor_history; event monitoring tails the job's user log file
// directly, which is cheaper than polling the schedd. Queue and history
// queries are rate limited so many concurrent workers cannot hammer the
// schedd.
package htcondor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/harrypuuter/ram/internal/observability"
	"github.com/harrypuuter/ram/pkg/backend"
)

// runCommandFunc executes one external command with optional stdin and
// returns its stdout. Swapped out in tests.
type runCommandFunc func(ctx context.Context, stdin string, name string, args ...string) ([]byte, error)

// CLISchedd talks to the local schedd through HTCondor's CLI tools.
type CLISchedd struct {
	limiter *rate.Limiter
	run     runCommandFunc
	log     *zap.Logger
}

// queryRate bounds condor_q and condor_history calls across all
// workers. Recovery after a long outage can fan out hundreds of
// lookups at once.
var queryRate = rate.Limit(2)

const queryBurst = 5

func NewCLISchedd() *CLISchedd {
	return &CLISchedd{
		limiter: rate.NewLimiter(queryRate, queryBurst),
		run:     runCommand,
		log:     observability.Logger,
	}
}

func runCommand(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %s: %w", name, msg, err)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// Submit pipes the rendered description into condor_submit and parses
// the -terse cluster assignment, e.g. "42.0 - 42.0".
func (s *CLISchedd) Submit(ctx context.Context, spec backend.SubmitSpec) (int64, error) {
	desc := renderSubmit(spec)
	out, err := s.run(ctx, desc, "condor_submit", "-terse", "-")
	if err != nil {
		return -1, &backend.SubmissionError{Err: err}
	}

	cluster, err := parseTerse(string(out))
	if err != nil {
		return -1, &backend.SubmissionError{Err: err}
	}
	return cluster, nil
}

func parseTerse(out string) (int64, error) {
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) == 0 {
		return -1, fmt.Errorf("empty condor_submit output")
	}
	idStr, _, _ := strings.Cut(fields[0], ".")
	cluster, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return -1, fmt.Errorf("unexpected condor_submit output %q", out)
	}
	return cluster, nil
}

// queueAd mirrors the condor_q -json attribute selection.
type queueAd struct {
	ClusterID int64 `json:"ClusterId"`
	JobStatus int   `json:"JobStatus"`
}

func (s *CLISchedd) Query(ctx context.Context, cluster int64) (*backend.QueueAd, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := s.run(ctx, "", "condor_q", "-json",
		"-attributes", "ClusterId,JobStatus",
		strconv.FormatInt(cluster, 10))
	if err != nil {
		return nil, &backend.QueryError{Op: "condor_q", Err: err}
	}

	ads, err := decodeAds[queueAd](out)
	if err != nil {
		return nil, &backend.QueryError{Op: "condor_q", Err: err}
	}
	for _, ad := range ads {
		if ad.ClusterID == cluster {
			return &backend.QueueAd{Cluster: cluster, Status: backend.JobStatus(ad.JobStatus)}, nil
		}
	}
	return nil, nil
}

// historyAd mirrors the condor_history -json attribute selection.
// HTCondor reports CPU and wall clock in seconds as floats.
type historyAd struct {
	ClusterID           int64   `json:"ClusterId"`
	LastJobStatus       int     `json:"LastJobStatus"`
	RemoteWallClockTime float64 `json:"RemoteWallClockTime"`
	RemoteUserCpu       float64 `json:"RemoteUserCpu"`
	RemoteSysCpu        float64 `json:"RemoteSysCpu"`
}

func (s *CLISchedd) History(ctx context.Context, cluster int64) (*backend.HistoryAd, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := s.run(ctx, "", "condor_history", "-json", "-limit", "1",
		"-attributes", "ClusterId,LastJobStatus,RemoteWallClockTime,RemoteUserCpu,RemoteSysCpu",
		strconv.FormatInt(cluster, 10))
	if err != nil {
		return nil, &backend.QueryError{Op: "condor_history", Err: err}
	}

	ads, err := decodeAds[historyAd](out)
	if err != nil {
		return nil, &backend.QueryError{Op: "condor_history", Err: err}
	}
	for _, ad := range ads {
		if ad.ClusterID == cluster {
			return &backend.HistoryAd{
				Cluster:          cluster,
				LastStatus:       backend.JobStatus(ad.LastJobStatus),
				WallClockSeconds: ad.RemoteWallClockTime,
				UserCPUSeconds:   ad.RemoteUserCpu,
				SysCPUSeconds:    ad.RemoteSysCpu,
			}, nil
		}
	}
	return nil, nil
}

func (s *CLISchedd) Remove(ctx context.Context, cluster int64) error {
	_, err := s.run(ctx, "", "condor_rm", strconv.FormatInt(cluster, 10))
	if err != nil {
		return &backend.QueryError{Op: "condor_rm", Err: err}
	}
	s.log.Debug("Removed job from queue", zap.Int64("cluster", cluster))
	return nil
}

// decodeAds parses the -json output of the query tools, which is a JSON
// array or, for no matches, empty output.
func decodeAds[T any](out []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var ads []T
	if err := json.Unmarshal(trimmed, &ads); err != nil {
		return nil, fmt.Errorf("parse classad json: %w", err)
	}
	return ads, nil
}

// eventPollInterval is how often Events re-reads the user log while
// waiting for new data.
const eventPollInterval = 500 * time.Millisecond
