package config

import (
	"path/filepath"
	"runtime"
	"time"
)

const (
	DefaultProjectFile     = "CMakeLists.txt"
	DefaultToolchainPrefix = "arm-none-eabi-"
	DefaultRspEncoding     = "windows-1251"
	DefaultOutputName      = "MAIN"
	DefaultGracePeriod     = 200 * time.Millisecond

	ShellPosix      = "posix"
	ShellPowerShell = "powershell"
)

// DefaultShell returns the shell dialect native to the host.
func DefaultShell() string {
	if runtime.GOOS == "windows" {
		return ShellPowerShell
	}
	return ShellPosix
}

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// ProjectDefaultApplier handles project and output path defaults.
type ProjectDefaultApplier struct{}

func (ProjectDefaultApplier) Domain() string { return "project" }

func (ProjectDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Project.File == "" {
		cfg.Project.File = DefaultProjectFile
	}
	if abs, err := filepath.Abs(cfg.Project.File); err == nil {
		cfg.Project.File = abs
	}
	if cfg.Project.BaseDir == "" {
		cfg.Project.BaseDir = cfg.ProjectDir()
	}
	if cfg.Output.BuildDir == "" {
		cfg.Output.BuildDir = filepath.Join(cfg.ProjectDir(), "Build")
	}
	if cfg.Output.Name == "" {
		cfg.Output.Name = DefaultOutputName
	}
	return nil
}

// ToolchainDefaultApplier handles toolchain defaults.
type ToolchainDefaultApplier struct{}

func (ToolchainDefaultApplier) Domain() string { return "toolchain" }

func (ToolchainDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Toolchain.Prefix == "" {
		cfg.Toolchain.Prefix = DefaultToolchainPrefix
	}
	if cfg.Toolchain.RspEncoding == "" {
		cfg.Toolchain.RspEncoding = DefaultRspEncoding
	}
	// Dir stays empty when unset: binaries are then resolved through PATH.
	return nil
}

// BuildDefaultApplier handles execution engine defaults.
type BuildDefaultApplier struct{}

func (BuildDefaultApplier) Domain() string { return "build" }

func (BuildDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Build.Workers < 0 {
		cfg.Build.Workers = 0
	}
	if cfg.Build.Channels < 0 {
		cfg.Build.Channels = 0
	}
	if cfg.Build.Shell == "" {
		cfg.Build.Shell = DefaultShell()
	}
	if cfg.Build.GracePeriod == "" {
		cfg.Build.GracePeriod = DefaultGracePeriod.String()
	}
	if cfg.Build.LogFile == "" {
		cfg.Build.LogFile = filepath.Join(cfg.Output.BuildDir, "build.log")
	}
	if m := NormalizeRetryBackoff(string(cfg.Build.RetryBackoff)); m != "" {
		cfg.Build.RetryBackoff = m
	} else {
		cfg.Build.RetryBackoff = RetryBackoffLinear
	}
	if cfg.Build.RetryInitialDelay == "" {
		cfg.Build.RetryInitialDelay = "500ms"
	}
	if cfg.Build.RetryMaxDelay == "" {
		cfg.Build.RetryMaxDelay = "5s"
	}
	return nil
}

// ObservabilityDefaultApplier handles history, metrics and logging defaults.
type ObservabilityDefaultApplier struct{}

func (ObservabilityDefaultApplier) Domain() string { return "observability" }

func (ObservabilityDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.History.DBPath == "" {
		cfg.History.DBPath = filepath.Join(cfg.Output.BuildDir, "history.db")
	}
	if cfg.Metrics.Textfile == "" {
		cfg.Metrics.Textfile = filepath.Join(cfg.Output.BuildDir, "fwbuilder.prom")
	}
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	return nil
}

// defaultAppliers run in order; project paths come first since later domains derive from them.
var defaultAppliers = []DefaultApplier{
	ProjectDefaultApplier{},
	ToolchainDefaultApplier{},
	BuildDefaultApplier{},
	ObservabilityDefaultApplier{},
}

func applyDefaults(cfg *Config) error {
	for _, a := range defaultAppliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}

// Durations returns the parsed grace period and retry delays. Validate
// guarantees they parse.
func (b BuildConfig) Durations() (grace, initial, maxDelay time.Duration) {
	grace, _ = time.ParseDuration(b.GracePeriod)
	initial, _ = time.ParseDuration(b.RetryInitialDelay)
	maxDelay, _ = time.ParseDuration(b.RetryMaxDelay)
	return grace, initial, maxDelay
}
