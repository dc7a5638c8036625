package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/eapp-tools/dirsync/internal/history"
	"github.com/eapp-tools/dirsync/internal/policy"
	"github.com/eapp-tools/dirsync/internal/tui"
	"github.com/eapp-tools/dirsync/internal/watch"
	"github.com/eapp-tools/dirsync/pkg/logger"
	"github.com/eapp-tools/dirsync/pkg/planner"
	"github.com/eapp-tools/dirsync/pkg/scanner"
	"github.com/eapp-tools/dirsync/pkg/syncer"
)

type syncConfig struct {
	source         string
	target         string
	policyPath     string
	excludes       []string
	delete         bool
	prune          bool
	dryRun         bool
	onlyChanges    bool
	concurrency    int
	chunkThreshold string
	bwLimit        string
	modTimeWindow  time.Duration
	quiet          bool
	noProgress     bool
	watchMode      bool
	historyPath    string
}

func main() {
	var cfg syncConfig

	rootCmd := &cobra.Command{
		Use:   "dirsync <source> <target>",
		Short: "Reconcile a target directory tree with a source tree",
		Long: `dirsync compares two directory trees and applies the minimal set of
create, replace and delete operations needed to make the target match
the source. Large files are copied in chunks so transfers can be
cancelled cleanly and report real progress.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.source = args[0]
			cfg.target = args[1]
			cmd.SilenceUsage = true
			return run(cmd.Context(), &cfg)
		},
	}

	rootCmd.Flags().StringVar(&cfg.policyPath, "policy", "", "Path to a YAML policy file")
	rootCmd.Flags().StringSliceVar(&cfg.excludes, "exclude", nil, "Ignore patterns (can be specified multiple times)")
	rootCmd.Flags().BoolVar(&cfg.delete, "delete", false, "Delete target entries that don't exist in the source")
	rootCmd.Flags().BoolVar(&cfg.prune, "prune-empty-dirs", false, "Remove directories left empty by deletions")
	rootCmd.Flags().BoolVar(&cfg.dryRun, "dry-run", false, "Show the plan without applying it")
	rootCmd.Flags().BoolVar(&cfg.onlyChanges, "only-changes", false, "Hide unchanged entries from the dry-run listing")
	rootCmd.Flags().IntVar(&cfg.concurrency, "concurrency", 0, "Concurrent file transfers (default 3)")
	rootCmd.Flags().StringVar(&cfg.chunkThreshold, "chunk-threshold", "", "Chunked-copy size threshold, e.g. 128MiB")
	rootCmd.Flags().StringVar(&cfg.bwLimit, "bwlimit", "", "Bandwidth limit in bytes/sec, e.g. 10MiB")
	rootCmd.Flags().DurationVar(&cfg.modTimeWindow, "modtime-window", 0, "Timestamp equality tolerance (default 2s)")
	rootCmd.Flags().BoolVar(&cfg.quiet, "quiet", false, "Suppress output")
	rootCmd.Flags().BoolVar(&cfg.noProgress, "no-progress", false, "Disable the interactive progress display")
	rootCmd.Flags().BoolVar(&cfg.watchMode, "watch", false, "Keep running and re-sync when the source changes")
	rootCmd.Flags().StringVar(&cfg.historyPath, "history", "", "Record runs into this SQLite database")

	rootCmd.AddCommand(newHistoryCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func buildPolicy(cfg *syncConfig) (syncer.Policy, error) {
	pol := syncer.DefaultPolicy()
	if cfg.policyPath != "" {
		loaded, err := policy.Load(cfg.policyPath)
		if err != nil {
			return syncer.Policy{}, err
		}
		pol = loaded
	}

	if len(cfg.excludes) > 0 {
		if err := scanner.ValidatePatterns(cfg.excludes); err != nil {
			return syncer.Policy{}, err
		}
		pol.IgnorePatterns = append(pol.IgnorePatterns, cfg.excludes...)
	}
	if cfg.delete {
		pol.AllowDelete = true
	}
	if cfg.prune {
		pol.PruneEmptyDirs = true
	}
	if cfg.concurrency > 0 {
		pol.Concurrency = cfg.concurrency
	}
	if cfg.chunkThreshold != "" {
		n, err := humanize.ParseBytes(cfg.chunkThreshold)
		if err != nil {
			return syncer.Policy{}, fmt.Errorf("invalid --chunk-threshold: %w", err)
		}
		pol.ChunkThreshold = int64(n)
	}
	if cfg.bwLimit != "" {
		n, err := humanize.ParseBytes(cfg.bwLimit)
		if err != nil {
			return syncer.Policy{}, fmt.Errorf("invalid --bwlimit: %w", err)
		}
		pol.BandwidthLimit = int64(n)
	}
	if cfg.modTimeWindow > 0 {
		pol.ModTimeWindow = cfg.modTimeWindow
	}

	return pol, nil
}

func run(ctx context.Context, cfg *syncConfig) error {
	pol, err := buildPolicy(cfg)
	if err != nil {
		return err
	}
	log := logger.New(cfg.quiet)

	if cfg.dryRun {
		return dryRun(ctx, cfg, pol)
	}

	var store *history.Store
	if cfg.historyPath != "" {
		store, err = history.Open(cfg.historyPath)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	for {
		report, err := runOnce(ctx, cfg, pol, log)
		if err != nil {
			return err
		}

		printSummary(report, cfg.quiet)

		if store != nil {
			if err := store.Record(ctx, report); err != nil {
				log.Error("recording history: %v", err)
			}
		}

		if !cfg.watchMode {
			if report.Cancelled {
				return nil
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("sync completed with %d failures", len(report.Failed))
			}
			return nil
		}
		if report.Cancelled || ctx.Err() != nil {
			return nil
		}

		if err := waitForChange(ctx, cfg.source, pol, log); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func runOnce(ctx context.Context, cfg *syncConfig, pol syncer.Policy, log logger.Logger) (*syncer.Report, error) {
	sess := syncer.New(cfg.source, cfg.target, pol, log)

	interactive := !cfg.quiet && !cfg.noProgress && term.IsTerminal(int(os.Stdout.Fd()))
	if interactive {
		return runInteractive(ctx, sess, log)
	}

	events := sess.Events()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			switch ev.Type {
			case syncer.EventActionStarted:
				if ev.Action.Transfers() {
					log.Info("copy: %s (%s)", ev.Action.Path, humanize.IBytes(uint64(ev.Action.Size)))
				} else if ev.Action.Kind == planner.ActionDelete {
					log.Info("delete: %s", ev.Action.Path)
				}
			case syncer.EventActionFailed:
				// Already logged by the session.
			}
		}
	}()

	report, err := sess.Run(ctx)
	<-done
	return report, err
}

func runInteractive(ctx context.Context, sess *syncer.Session, log logger.Logger) (*syncer.Report, error) {
	events := sess.Events()

	type result struct {
		report *syncer.Report
		err    error
	}
	resCh := make(chan result, 1)
	go func() {
		r, err := sess.Run(ctx)
		resCh <- result{r, err}
	}()

	if err := tui.Run(sess, events); err != nil {
		// Keep draining so the session can finish.
		log.Error("progress display failed: %v", err)
		go func() {
			for range events {
			}
		}()
	}

	res := <-resCh
	return res.report, res.err
}

func waitForChange(ctx context.Context, source string, pol syncer.Policy, log logger.Logger) error {
	inv, err := scanner.New(pol.IgnorePatterns).Scan(ctx, source)
	if err != nil {
		return err
	}

	w, err := watch.New(source, inv.Dirs(), 0)
	if err != nil {
		return err
	}
	defer w.Close()

	log.Info("watching %s for changes", source)
	return w.Wait(ctx)
}

func printSummary(r *syncer.Report, quiet bool) {
	if quiet && r.Success() {
		return
	}

	fmt.Println()
	fmt.Println("=== Summary ===")
	fmt.Printf("Created: %d  Replaced: %d  Deleted: %d  Kept: %d\n",
		r.Created, r.Replaced, r.Deleted, r.Kept)
	if r.Pruned > 0 {
		fmt.Printf("Pruned: %d empty directories\n", r.Pruned)
	}
	fmt.Printf("Copied: %s\n", humanize.IBytes(uint64(r.BytesCopied)))
	for _, f := range r.Failed {
		fmt.Printf("FAILED %s %s: %v\n", f.Op, f.Path, f.Err)
	}
	if r.Cancelled {
		fmt.Println("Cancelled before completion.")
	}
	fmt.Printf("Duration: %s\n", r.Duration.Round(time.Millisecond))
}
