package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harrypuuter/ram/internal/observability"
	"github.com/harrypuuter/ram/internal/server"
	"github.com/harrypuuter/ram/pkg/backend/htcondor"
	"github.com/harrypuuter/ram/pkg/jobstore"
	"github.com/harrypuuter/ram/pkg/metrics"
	"github.com/harrypuuter/ram/pkg/probeconfig"
	"github.com/harrypuuter/ram/pkg/runner"
	"github.com/harrypuuter/ram/pkg/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor",
	Long: `Run the monitor: recover jobs left over from a previous process,
then dispatch probes on their intervals until interrupted.

Example:
  ram run --configdir /etc/ram --workdir /var/lib/ram
  ram run --no-influxdb --status-addr :8080`,
	RunE: runMonitor,
}

var (
	runNoInfluxDB bool
	runStatusAddr string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runNoInfluxDB, "no-influxdb", false, "Log results instead of reporting to InfluxDB")
	runCmd.Flags().StringVar(&runStatusAddr, "status-addr", "", "Serve the status API on this address (disabled when empty)")
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	log := observability.Logger
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manifest, err := probeconfig.Load(manifestPath())
	if err != nil {
		return err
	}
	probes := manifest.Enabled()
	log.Info("Loaded probe manifest",
		zap.String("path", manifestPath()),
		zap.Int("enabled", len(probes)))

	store, err := jobstore.Open(ctx, jobstore.Config{Path: jobDBPath()})
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var emitter metrics.Emitter = metrics.NopEmitter{}
	if !runNoInfluxDB {
		influxCfg, err := metrics.LoadConfig(influxConfigPath())
		if err != nil {
			return err
		}
		emitter = metrics.NewInfluxEmitter(*influxCfg)
	}
	defer emitter.Close()

	count, err := store.Count(ctx)
	if err != nil {
		return err
	}

	schedd := htcondor.NewCLISchedd()
	inflight := scheduler.NewRegistry()
	r := runner.New(schedd, store, emitter, inflight,
		viper.GetString("configdir"), viper.GetString("workdir"))
	sched := scheduler.New(probes, inflight)

	startedAt := time.Now().UTC()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.Recover(gctx)
	})
	g.Go(func() error {
		sched.Run(gctx, r.Execute, count == 0)
		return nil
	})
	if runStatusAddr != "" {
		srv := server.New(runStatusAddr, inflight, func() server.Stats {
			return server.Stats{
				Probes:       len(probes),
				Workers:      scheduler.WorkerCount(probes),
				QueueLength:  sched.QueueLen(),
				InflightJobs: inflight.Len(),
				StartedAt:    startedAt,
			}
		})
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	err = g.Wait()
	if ctxErr := ctx.Err(); ctxErr == context.Canceled {
		log.Info("Shutting down")
		return nil
	}
	return err
}
