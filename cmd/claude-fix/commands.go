package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/batch"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/config"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/executor"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/history"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/notify"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/oracle"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/report"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/scheduler"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/units"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/watch"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/workspace"
)

var (
	runConcurrency     int
	runMaxIterations   int
	runSkipPreexisting bool
	historyClear       bool
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run UNITS_FILE",
		Short: "Repair every unit in a unit list once",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "override configured concurrency")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "override configured iteration budget per unit")
	runCmd.Flags().BoolVar(&runSkipPreexisting, "skip-preexisting", true, "ignore diagnostics already failing on the base ref")
	rootCmd.AddCommand(runCmd)

	watchCmd := &cobra.Command{
		Use:   "watch UNITS_FILE",
		Short: "Repair units now and again whenever the unit list changes",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
	rootCmd.AddCommand(watchCmd)

	scheduleCmd := &cobra.Command{
		Use:   "schedule SCHEDULE_FILE",
		Short: "Run repairs unattended on cron schedules",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchedule,
	}
	rootCmd.AddCommand(scheduleCmd)

	historyCmd := &cobra.Command{
		Use:   "history BRANCH [UNIT]",
		Short: "Show recorded fix attempts for a branch",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runHistory,
	}
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "delete all attempts for the branch")
	rootCmd.AddCommand(historyCmd)

	workspacesCmd := &cobra.Command{
		Use:   "workspaces",
		Short: "List leftover fix workspaces",
		RunE:  runWorkspaces,
	}
	rootCmd.AddCommand(workspacesCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// runtime bundles everything one repair run needs
type runtime struct {
	cfg     *config.Config
	store   *history.Store
	sched   *scheduler.Scheduler
	metrics *report.Collector
}

func buildRuntime(cfg *config.Config) (*runtime, error) {
	llm, err := oracle.NewOpenAI(oracle.OpenAIOptions{
		Model:     cfg.Oracle.Model,
		MaxTokens: cfg.Oracle.MaxTokens,
		BaseURL:   cfg.Oracle.BaseURL,
		APIKeyEnv: cfg.Oracle.APIKeyEnv,
		Timeout:   time.Duration(cfg.Oracle.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	store, err := history.New(cfg.General.DatabasePath,
		cfg.History.MaxAttemptsPerUnit,
		time.Duration(cfg.History.RetentionDays)*24*time.Hour)
	if err != nil {
		return nil, err
	}

	mgr := workspace.NewManager(cfg.General.RepoRoot, cfg.General.WorkspaceDir, cfg.General.DepCacheDir)
	exe := executor.New(cfg, mgr, llm, store, slog.Default())

	concurrency := cfg.General.Concurrency
	if runConcurrency > 0 {
		concurrency = runConcurrency
	}

	return &runtime{
		cfg:     cfg,
		store:   store,
		sched:   scheduler.New(exe, concurrency, slog.Default()),
		metrics: report.NewCollector(),
	}, nil
}

func (r *runtime) Close() {
	if err := r.store.Close(); err != nil {
		slog.Warn("closing history store", "error", err)
	}
}

func notifier(cfg *config.Config) notify.Notifier {
	return notify.NewMulti(
		notify.NewDesktop(cfg.Notifications.Desktop),
		notify.NewSlack(cfg.Notifications.SlackWebhook),
	)
}

// repairOnce loads the unit list, runs the scheduler and prints the report
func repairOnce(ctx context.Context, rt *runtime, unitsFile string) (*scheduler.Report, error) {
	list, err := units.Load(unitsFile)
	if err != nil {
		return nil, err
	}

	rep := rt.sched.Run(ctx, list)
	rt.metrics.RecordReport(rep)
	fmt.Print(report.Format(rep))
	return rep, nil
}

// logTotals reports cumulative statistics over every run this process has
// performed, meaningful in the long-lived watch and schedule modes
func (r *runtime) logTotals() {
	m := r.metrics.Metrics()
	slog.Info("session totals",
		"fixed", m.Succeeded, "failed", m.Failed, "skipped", m.Skipped,
		"iterations", m.TotalIterations, "avg_duration", m.AvgDuration)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runMaxIterations > 0 {
		cfg.General.MaxIterations = runMaxIterations
	}
	if cmd.Flags().Changed("skip-preexisting") {
		cfg.General.SkipPreexisting = runSkipPreexisting
	}
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signalContext()
	defer stop()

	rep, err := repairOnce(ctx, rt, args[0])
	if err != nil {
		return err
	}

	if err := notifier(cfg).Send(notify.ForReport(rep)); err != nil {
		slog.Warn("notification failed", "error", err)
	}
	if !rep.AllSucceeded() {
		return fmt.Errorf("%d of %d units not fixed", rep.Failed+rep.Skipped, len(rep.Jobs))
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signalContext()
	defer stop()

	// Runs triggered by file changes are serialized; a change during a run
	// queues at most one follow-up run.
	trigger := make(chan struct{}, 1)
	fire := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	watcher, err := watch.NewWatcher(args[0], fire, slog.Default())
	if err != nil {
		return err
	}
	defer watcher.Stop()
	watcher.Start(ctx)

	fire() // initial run
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-trigger:
			rep, err := repairOnce(ctx, rt, args[0])
			if err != nil {
				slog.Error("repair run failed", "error", err)
				continue
			}
			if err := notifier(cfg).Send(notify.ForReport(rep)); err != nil {
				slog.Warn("notification failed", "error", err)
			}
			rt.logTotals()
		}
	}
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	schedule, err := batch.LoadScheduleConfig(args[0])
	if err != nil {
		return err
	}
	if len(schedule.Entries) == 0 {
		return fmt.Errorf("no batches configured in %s", args[0])
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	batches, err := batch.NewScheduler(schedule.Entries, slog.Default())
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	for _, name := range batches.Names() {
		fmt.Printf("%s: next run %s\n", name, batches.NextRun(name).Format(time.RFC3339))
	}

	batches.Run(ctx, func(runCtx context.Context, entry batch.Entry) error {
		rep, err := repairOnce(runCtx, rt, entry.UnitsFile)
		if err != nil {
			return err
		}
		if entry.NotifyOnComplete {
			if err := notifier(cfg).Send(notify.ForReport(rep)); err != nil {
				slog.Warn("notification failed", "batch", entry.Name, "error", err)
			}
		}
		if units := rt.metrics.RecentUnits(entry.MaxDuration); len(units) > 0 {
			slog.Info("batch complete", "batch", entry.Name, "units", len(units))
		}
		rt.logTotals()
		return nil
	})
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := history.New(cfg.General.DatabasePath,
		cfg.History.MaxAttemptsPerUnit,
		time.Duration(cfg.History.RetentionDays)*24*time.Hour)
	if err != nil {
		return err
	}
	defer store.Close()

	branch := args[0]

	if historyClear {
		if err := store.Clear(branch); err != nil {
			return err
		}
		fmt.Printf("Cleared attempt history for %s\n", branch)
		return nil
	}

	if len(args) == 2 {
		attempts, err := store.Query(branch, args[1])
		if err != nil {
			return err
		}
		if len(attempts) == 0 {
			fmt.Println("No failed attempts recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RECORDED\tOUTCOME\tITERATIONS\tSTRATEGY")
		for _, a := range attempts {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				a.RecordedAt.Format("2006-01-02 15:04"), a.Outcome, a.Iterations, a.Strategy)
		}
		return w.Flush()
	}

	summary, err := store.Summarize(branch)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d attempts recorded, %d failed\n",
		branch, summary.TotalAttempts, summary.FailedAttempts)
	return nil
}

func runWorkspaces(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mgr := workspace.NewManager(cfg.General.RepoRoot, cfg.General.WorkspaceDir, cfg.General.DepCacheDir)
	paths, err := mgr.List()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("No workspaces")
		return nil
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}
