package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/blobgc/internal/cli/output"
	"github.com/marmos91/blobgc/internal/cli/prompt"
	"github.com/marmos91/blobgc/internal/logger"
	"github.com/marmos91/blobgc/pkg/config"
	"github.com/marmos91/blobgc/pkg/gc"
	"github.com/marmos91/blobgc/pkg/metrics"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/blobgc/pkg/metrics/prometheus"
)

const pushTimeout = 10 * time.Second

var (
	runPhases  []string
	runDryRun  bool
	runOutput  string
	runConfirm bool
	runYes     bool
	runNoLock  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the garbage collector",
	Long: `Run a garbage collection pass over the catalog and every blob backend.

Phases run in order: merge, expire, prune_aliases, prune_contents, sweep.
Any failure outside the sweep aborts the run. A duplicate group whose bytes
differ aborts with exit code 2 and is never resolved automatically.

Examples:
  # Full run
  blobgc run

  # Only expire and prune aliases
  blobgc run --phase expire --phase prune_aliases

  # Report orphans without deleting them
  blobgc run --dry-run

  # Ask before deleting anything, print the summary as JSON
  blobgc run --confirm --output json

  # Override settings from the environment
  BLOBGC_GC_ORPHAN_GRACE_PERIOD=3d blobgc run`,
	RunE: runGC,
}

func init() {
	runCmd.Flags().StringSliceVar(&runPhases, "phase", nil, "Run only these phases (repeatable or comma separated)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Report orphans found by the sweep without deleting them")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "table", "Summary format (table|json|yaml)")
	runCmd.Flags().BoolVar(&runConfirm, "confirm", false, "Prompt before a run that deletes data")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "Answer yes to the --confirm prompt")
	runCmd.Flags().BoolVar(&runNoLock, "no-lock", false, "Skip the catalog run lock (exclusion is enforced elsewhere)")
}

func runGC(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(runOutput)
	if err != nil {
		return err
	}

	applyRunFlags(cmd, cfg)
	if _, err := gc.ParsePhases(cfg.GC.Phases); err != nil {
		return err
	}

	if runConfirm && !cfg.GC.DryRun {
		ok, err := prompt.ConfirmWithForce("This run deletes catalog rows and blobs", "collect", runYes, os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
		if !ok {
			return prompt.ErrAborted
		}
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	// Cancelling stops the run at the next chunk boundary
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := initObservability(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdown()

	var (
		gcMetrics      metrics.GCMetrics
		backendMetrics metrics.BackendMetrics
	)
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		gcMetrics = metrics.NewGCMetrics()
		backendMetrics = metrics.NewBackendMetrics()
	}

	cat, err := config.NewCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cat.Close() }()

	blobs, err := config.NewBlobStore(ctx, cfg, backendMetrics)
	if err != nil {
		return err
	}
	defer func() { _ = blobs.Close() }()

	collector := gc.New(cat, blobs, cfg.GC, config.CollectorOptions(cfg, gcMetrics)...)
	stats, runErr := collector.Run(ctx)

	pushMetrics(ctx, cfg)

	if stats != nil {
		if err := printStats(cmd.OutOrStdout(), format, stats); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

// applyRunFlags lets explicit flags override the loaded configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("phase") {
		cfg.GC.Phases = runPhases
	}
	if runDryRun {
		cfg.GC.DryRun = true
	}
	if runNoLock {
		cfg.GC.RunLock = false
	}
}

// pushMetrics sends the run's metrics to the configured Pushgateway. A
// failed push is logged and never fails the run.
func pushMetrics(ctx context.Context, cfg *config.Config) {
	if cfg.Metrics.PushGateway == "" || !metrics.IsEnabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()

	grouping := map[string]string{}
	if host, err := os.Hostname(); err == nil {
		grouping["instance"] = host
	}

	if err := metrics.Push(ctx, cfg.Metrics.PushGateway, cfg.Metrics.Job, grouping); err != nil {
		logger.Warn("GC: metrics push failed", "url", cfg.Metrics.PushGateway, logger.Err(err))
		return
	}
	logger.Debug("GC: metrics pushed", "url", cfg.Metrics.PushGateway, "job", cfg.Metrics.Job)
}

// printStats writes the run summary in the requested format.
func printStats(w io.Writer, format output.Format, stats *gc.Stats) error {
	if format != output.FormatTable {
		return output.NewPrinter(w, format).Print(stats)
	}

	if err := output.SimpleTable(w, summaryPairs(stats)); err != nil {
		return err
	}
	if len(stats.Phases) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(w)
	return output.PrintTable(w, phaseTable(stats.Phases))
}
