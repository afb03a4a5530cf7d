// Package main provides the CLI entry point for cachoor, a database cache
// size benchmarking tool for Ethereum clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/weiihann/cachoor/bench"
	"github.com/weiihann/cachoor/config"
	"github.com/weiihann/cachoor/harness"
	"github.com/weiihann/cachoor/report"
	"github.com/weiihann/cachoor/sampler"
	"github.com/weiihann/cachoor/supervisor"
)

// Exit codes.
const (
	exitOK          = 0
	exitUsage       = 1
	exitPartial     = 3
	exitInterrupted = 130
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	os.Exit(execute(logger, os.Args[1:]))
}

func execute(logger *slog.Logger, args []string) int {
	root := newRootCmd(logger)
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return exitOK
	}

	logger.Error("command failed", slog.String("error", err.Error()))

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}

	return exitUsage
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "cachoor",
		Short: "Database cache size benchmarking tool for Ethereum clients",
		Long: `Cachoor runs an Ethereum client through import, restore and sync tasks
at a range of database cache sizes, records CPU, memory, disk I/O and
database size while it runs, and renders the recordings as charts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "Path to a YAML sweep configuration")

	root.AddCommand(newRunCmd(logger))
	root.AddCommand(newReportCmd(logger))
	root.AddCommand(newListCmd())

	return root
}

// sweepFlags are the enumeration overrides shared by every command.
type sweepFlags struct {
	root       string
	binDir     string
	variants   []string
	cacheSizes []int
	tasks      []string
}

func (f *sweepFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.root, "root", "",
		"Working directory holding state/, logs/, plots/ and the client's data/")
	flags.StringVar(&f.binDir, "bin-dir", "",
		"Directory holding one parity-<variant> binary per variant, relative to --root")
	flags.StringSliceVar(&f.variants, "variants", nil,
		"Client variants to benchmark (e.g. rocksdb5,default)")
	flags.IntSliceVar(&f.cacheSizes, "cache-sizes", nil,
		"Database cache sizes in MB (e.g. 128,256)")
	flags.StringSliceVar(&f.tasks, "tasks", nil,
		"Tasks to run: import, restore, sync, sync-archive")
}

func (f *sweepFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("root") {
		cfg.Root = f.root
	}
	if flags.Changed("bin-dir") {
		cfg.BinDir = f.binDir
	}
	if flags.Changed("variants") {
		cfg.Variants = f.variants
	}
	if flags.Changed("cache-sizes") {
		cfg.CacheSizesMB = f.cacheSizes
	}
	if flags.Changed("tasks") {
		tasks := make([]bench.Task, 0, len(f.tasks))
		for _, name := range f.tasks {
			t, err := bench.ParseTask(name)
			if err != nil {
				return err
			}
			tasks = append(tasks, t)
		}
		cfg.Tasks = tasks
	}

	return nil
}

func loadConfig(cmd *cobra.Command, sf *sweepFlags) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if err := sf.apply(cmd, &cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg.Resolve()
}

func newListCmd() *cobra.Command {
	var sf sweepFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the runs a sweep would execute",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, &sf)
			if err != nil {
				return err
			}

			layout := cfg.Layout()
			for _, k := range cfg.RunKeys() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", k, layout.LogDir(k))
			}

			return nil
		},
	}

	sf.register(cmd)

	return cmd
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var (
		sf         sweepFlags
		timeout    time.Duration
		outputJSON bool
		skipCheck  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark sweep",
		Long: `Run every variant, task and cache size combination in turn. Each run
starts from an empty state directory, is sampled by iotop, ps and du, and is
stopped after the configured ceiling.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, &sf)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("timeout") {
				cfg.Timeout = timeout
			}

			return runSweep(cmd, logger, cfg, outputJSON, skipCheck)
		},
	}

	sf.register(cmd)

	flags := cmd.Flags()
	flags.DurationVar(&timeout, "timeout", harness.DefaultTimeout,
		"Ceiling on a single run")
	flags.BoolVar(&outputJSON, "json", false,
		"Output results as JSON instead of a table")
	flags.BoolVar(&skipCheck, "skip-check", false,
		"Skip checking that every variant binary exists")

	return cmd
}

func runSweep(
	cmd *cobra.Command,
	logger *slog.Logger,
	cfg config.Config,
	outputJSON bool,
	skipCheck bool,
) error {
	logger = logger.With(slog.String("sweep_id", uuid.NewString()))

	if !skipCheck {
		if err := harness.CheckBinaries(cfg.BinDir, cfg.Variants); err != nil {
			return fmt.Errorf("check binaries: %w", err)
		}
	}

	sup := supervisor.New(logger)

	ctx, stop := notifyShutdown(cmd.Context(), logger, sup)
	defer stop()

	samplers := sampler.NewSet(sampler.Options{
		Linux:         cfg.Linux(),
		Sudo:          cfg.Sudo,
		IOInterval:    cfg.IOInterval,
		UsageInterval: cfg.UsageInterval,
		DiskInterval:  cfg.DiskInterval,
		Logger:        logger,
	})

	orch := harness.NewOrchestrator(harness.Options{
		BinDir:     cfg.BinDir,
		Layout:     cfg.Layout(),
		Timeout:    cfg.Timeout,
		DropCaches: cfg.DropCaches,
		Linux:      cfg.Linux(),
		Sudo:       cfg.Sudo,
		WorkDir:    cfg.Root,
	}, samplers, sup, nil, logger)

	keys := cfg.RunKeys()
	logger.InfoContext(ctx, "starting sweep",
		slog.Any("variants", cfg.Variants),
		slog.Any("cache_sizes_mb", cfg.CacheSizesMB),
		slog.Any("tasks", cfg.Tasks),
		slog.Int("runs", len(keys)),
		slog.Duration("timeout", cfg.Timeout),
	)

	results, sweepErr := orch.Sweep(ctx, keys)

	if len(results) > 0 {
		out := cmd.OutOrStdout()
		if outputJSON {
			if err := report.GenerateJSON(out, results); err != nil {
				return fmt.Errorf("generate JSON report: %w", err)
			}
		} else if err := report.Generate(out, results); err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
	}

	if errors.Is(sweepErr, harness.ErrInterrupted) {
		return &exitError{code: exitInterrupted, err: sweepErr}
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}

	if failed > 0 {
		return &exitError{
			code: exitPartial,
			err:  fmt.Errorf("%d of %d runs failed", failed, len(results)),
		}
	}

	logger.InfoContext(ctx, "sweep complete")

	return nil
}

// notifyShutdown stops every supervised process on SIGINT or SIGTERM and
// cancels the returned context. A second signal exits immediately.
func notifyShutdown(
	parent context.Context,
	logger *slog.Logger,
	sup *supervisor.Supervisor,
) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigChan:
			logger.Warn("received signal, stopping all processes",
				slog.String("signal", sig.String()),
			)
			cancel()
			sup.Shutdown()
		case <-done:
			return
		}

		select {
		case <-sigChan:
			os.Exit(exitInterrupted)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		close(done)
		cancel()
	}
}

func newReportCmd(logger *slog.Logger) *cobra.Command {
	var (
		sf       sweepFlags
		formats  []string
		parallel int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render charts and plots.html from the sweep logs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, &sf)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("formats") {
				cfg.PlotFormats = formats
			}
			if cmd.Flags().Changed("parallel") {
				cfg.Parallel = parallel
			}

			return renderReport(cmd.Context(), logger, cfg)
		},
	}

	sf.register(cmd)

	flags := cmd.Flags()
	flags.StringSliceVar(&formats, "formats", nil,
		"Chart file formats: png, pdf, svg, jpg, eps (default png)")
	flags.IntVar(&parallel, "parallel", 1,
		"Number of runs rendered concurrently")

	return cmd
}

func renderReport(ctx context.Context, logger *slog.Logger, cfg config.Config) error {
	layout := cfg.Layout()
	keys := cfg.RunKeys()

	session, err := report.Open(layout.PlotsDir(), cfg.PlotFormats, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	gen := report.NewGenerator(layout, cfg.Linux(), cfg.Intervals(), session, cfg.Parallel, logger)

	rendered, err := gen.RenderAll(ctx, keys)
	if err != nil {
		return fmt.Errorf("render charts: %w", err)
	}

	ok := make(map[bench.RunKey]bool, len(rendered))
	failed := 0
	for _, r := range rendered {
		if r.Err != nil {
			failed++
			continue
		}
		ok[r.Key] = true
	}

	idx := report.NewIndex(keys, session.Formats(), func(k bench.RunKey) bool { return ok[k] })
	if err := report.WriteIndexFile(layout.IndexFile(), idx); err != nil {
		return err
	}

	logger.InfoContext(ctx, "report written",
		slog.String("index", layout.IndexFile()),
		slog.Int("charts", len(rendered)-failed),
	)

	if failed > 0 {
		return &exitError{
			code: exitPartial,
			err:  fmt.Errorf("%d of %d charts failed", failed, len(rendered)),
		}
	}

	return nil
}
