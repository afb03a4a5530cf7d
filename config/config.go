// Package config loads the sweep configuration. Values are layered:
// built-in defaults, then an optional YAML file, then CACHOOR_* environment
// variables. Command line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/weiihann/cachoor/bench"
	"github.com/weiihann/cachoor/telemetry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CACHOOR"

// Config describes one sweep and the report generated from it.
type Config struct {
	// Root is the working directory holding state/, logs/ and plots/. The
	// client runs inside it and reads its data/ inputs from there.
	Root string `yaml:"root" envconfig:"ROOT"`
	// BinDir holds one parity-<variant> binary per variant. A relative
	// BinDir is resolved against Root.
	BinDir   string `yaml:"bin_dir" envconfig:"BIN_DIR"`
	DBSubdir string `yaml:"db_subdir" envconfig:"DB_SUBDIR"`

	Variants     []string     `yaml:"variants" envconfig:"VARIANTS"`
	CacheSizesMB []int        `yaml:"cache_sizes_mb" envconfig:"CACHE_SIZES_MB"`
	Tasks        []bench.Task `yaml:"tasks" envconfig:"TASKS"`

	Timeout       time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	UsageInterval time.Duration `yaml:"usage_interval" envconfig:"USAGE_INTERVAL"`
	DiskInterval  time.Duration `yaml:"disk_interval" envconfig:"DISK_INTERVAL"`
	IOInterval    time.Duration `yaml:"io_interval" envconfig:"IO_INTERVAL"`

	// Platform selects the iotop flavour and log format: "linux" samples
	// the client process, anything else samples the whole system.
	Platform   string `yaml:"platform" envconfig:"PLATFORM"`
	DropCaches bool   `yaml:"drop_caches" envconfig:"DROP_CACHES"`
	Sudo       bool   `yaml:"sudo" envconfig:"SUDO"`

	PlotFormats []string `yaml:"plot_formats" envconfig:"PLOT_FORMATS"`
	Parallel    int      `yaml:"parallel" envconfig:"PARALLEL"`
}

// Default returns the configuration of the reference sweep.
func Default() Config {
	return Config{
		Root:     ".",
		BinDir:   "bin",
		DBSubdir: bench.DefaultDBSubdir,
		Variants: []string{
			"rocksdb5-tuning2",
			"rocksdb5-tuning",
			"rocksdb5",
			"default",
		},
		CacheSizesMB:  []int{128, 256, 512, 1024},
		Tasks:         []bench.Task{bench.TaskRestore, bench.TaskImport},
		Timeout:       4 * time.Hour,
		UsageInterval: time.Second,
		DiskInterval:  5 * time.Second,
		IOInterval:    5 * time.Second,
		Platform:      runtime.GOOS,
		DropCaches:    true,
		Sudo:          true,
		PlotFormats:   []string{"png"},
		Parallel:      1,
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped
// when path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}

	cfg.canonicalTasks()

	return cfg, cfg.Validate()
}

// canonicalTasks rewrites task names to the form ParseTask returns.
// Names that do not parse are left for Validate to report.
func (c *Config) canonicalTasks() {
	tasks := make([]bench.Task, len(c.Tasks))
	for i, t := range c.Tasks {
		if parsed, err := bench.ParseTask(string(t)); err == nil {
			t = parsed
		}
		tasks[i] = t
	}

	c.Tasks = tasks
}

// Resolve makes Root absolute and resolves a relative BinDir against it,
// so the paths handed to a client running inside Root stay valid.
func (c Config) Resolve() (Config, error) {
	root, err := filepath.Abs(c.Root)
	if err != nil {
		return c, fmt.Errorf("resolve root %s: %w", c.Root, err)
	}

	c.Root = root
	if !filepath.IsAbs(c.BinDir) {
		c.BinDir = filepath.Join(root, c.BinDir)
	}

	return c, nil
}

// Linux reports whether the per-process iotop flavour is used.
func (c Config) Linux() bool {
	return c.Platform == "linux"
}

// Layout returns the directory layout of the sweep.
func (c Config) Layout() bench.Layout {
	return bench.Layout{Root: c.Root, DBSubdir: c.DBSubdir}
}

// Intervals returns the sampling intervals the run logs are recorded at.
func (c Config) Intervals() telemetry.Intervals {
	return telemetry.Intervals{
		Usage: c.UsageInterval,
		Disk:  c.DiskInterval,
		IO:    c.IOInterval,
	}
}

// RunKeys enumerates every run of the sweep.
func (c Config) RunKeys() []bench.RunKey {
	return bench.Keys(c.Variants, c.Tasks, c.CacheSizesMB)
}

// Validate checks that the enumerations are usable.
func (c Config) Validate() error {
	var errs []error

	if len(c.Variants) == 0 {
		errs = append(errs, errors.New("no variants configured"))
	}

	for _, v := range c.Variants {
		if v == "" {
			errs = append(errs, errors.New("empty variant name"))
		}
	}

	if len(c.CacheSizesMB) == 0 {
		errs = append(errs, errors.New("no cache sizes configured"))
	}

	seen := make(map[int]struct{}, len(c.CacheSizesMB))
	for _, size := range c.CacheSizesMB {
		if size <= 0 {
			errs = append(errs, fmt.Errorf("cache size %d must be positive", size))
		}
		if _, ok := seen[size]; ok {
			errs = append(errs, fmt.Errorf("duplicate cache size %d", size))
		}
		seen[size] = struct{}{}
	}

	if len(c.Tasks) == 0 {
		errs = append(errs, errors.New("no tasks configured"))
	}

	for _, t := range c.Tasks {
		parsed, err := bench.ParseTask(string(t))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if parsed != t {
			errs = append(errs, fmt.Errorf("task %q must be written as %q", t, parsed))
		}
	}

	for name, d := range map[string]time.Duration{
		"timeout":        c.Timeout,
		"usage_interval": c.UsageInterval,
		"disk_interval":  c.DiskInterval,
		"io_interval":    c.IOInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	if c.Parallel < 1 {
		errs = append(errs, fmt.Errorf("parallel must be at least 1, got %d", c.Parallel))
	}

	return errors.Join(errs...)
}
