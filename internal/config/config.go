package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "fwbuilder.yaml"

// Config represents the fwbuilder configuration file.
type Config struct {
	Project   ProjectConfig   `yaml:"project"`
	Toolchain ToolchainConfig `yaml:"toolchain"`
	Output    OutputConfig    `yaml:"output"`
	Build     BuildConfig     `yaml:"build"`
	History   HistoryConfig   `yaml:"history"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ProjectConfig locates the project description.
type ProjectConfig struct {
	File    string `yaml:"file"`               // CMakeLists-style project file
	BaseDir string `yaml:"base_dir,omitempty"` // substituted for ${BASE_DIR}; set(BASE_DIR ...) overrides it
	Clean   bool   `yaml:"clean"`              // wipe the build directory before building
}

// ToolchainConfig locates the cross compiler.
type ToolchainConfig struct {
	Dir         string `yaml:"dir,omitempty"`    // directory holding the gcc/objcopy binaries
	Prefix      string `yaml:"prefix,omitempty"` // e.g. arm-none-eabi-
	RspEncoding string `yaml:"rsp_encoding,omitempty"`
}

// OutputConfig names the build directory and link artifacts.
type OutputConfig struct {
	BuildDir string `yaml:"build_dir,omitempty"` // defaults to <project dir>/Build
	Name     string `yaml:"name,omitempty"`      // base name of elf/bin/hex
	SkipHex  bool   `yaml:"skip_hex"`            // leave out the hex extraction step
}

// BuildConfig tunes the execution engine.
type BuildConfig struct {
	Workers           int              `yaml:"workers,omitempty"`  // worker pool width; 0 = hardware concurrency (min 4)
	Channels          int              `yaml:"channels,omitempty"` // persistent shells; 0 = one per worker
	Shell             string           `yaml:"shell,omitempty"`    // posix|powershell
	GracePeriod       string           `yaml:"grace_period,omitempty"`
	Verbose           bool             `yaml:"verbose"`
	LogFile           string           `yaml:"log_file,omitempty"`
	ShellStartRetries int              `yaml:"shell_start_retries"`
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff,omitempty"`
	RetryInitialDelay string           `yaml:"retry_initial_delay,omitempty"`
	RetryMaxDelay     string           `yaml:"retry_max_delay,omitempty"`
}

// HistoryConfig controls the SQLite build history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path,omitempty"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile,omitempty"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

// ProjectDir returns the directory containing the project file.
func (c *Config) ProjectDir() string {
	return filepath.Dir(c.Project.File)
}

// Load reads a configuration file, expands environment variables, applies
// defaults and validates the result. Relative paths are resolved against the
// configuration file's directory.
func Load(configPath string) (*Config, error) {
	if loaded, err := loadEnvFiles(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	} else {
		slog.Debug("Loaded environment variables", "files", loaded)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithContext("path", configPath).
				Build()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}

	cfg, err := Parse([]byte(os.ExpandEnv(string(data))))
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(configPath))
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML without defaults or validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to unmarshal config").Build()
	}
	return &cfg, nil
}

// FromProjectFile builds a defaulted configuration for a bare project file,
// used when no configuration file exists.
func FromProjectFile(projectFile string) (*Config, error) {
	cfg := &Config{Project: ProjectConfig{File: projectFile}}
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	if c.Project.File == "" {
		c.Project.File = DefaultProjectFile
	}
	c.Project.File = abs(c.Project.File)
	c.Project.BaseDir = abs(c.Project.BaseDir)
	c.Toolchain.Dir = abs(c.Toolchain.Dir)
	c.Output.BuildDir = abs(c.Output.BuildDir)
	c.Build.LogFile = abs(c.Build.LogFile)
	c.History.DBPath = abs(c.History.DBPath)
	c.Metrics.Textfile = abs(c.Metrics.Textfile)
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ConfigError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", configPath)).
			WithContext("path", configPath).
			Build()
	}

	example := Config{
		Project: ProjectConfig{File: "CMakeLists.txt", Clean: false},
		Toolchain: ToolchainConfig{
			Dir:         "tools/gcc-arm-none-eabi/bin",
			Prefix:      DefaultToolchainPrefix,
			RspEncoding: DefaultRspEncoding,
		},
		Output: OutputConfig{BuildDir: "Build", Name: DefaultOutputName},
		Build: BuildConfig{
			Shell:             DefaultShell(),
			GracePeriod:       "200ms",
			ShellStartRetries: 0,
			RetryBackoff:      RetryBackoffLinear,
			RetryInitialDelay: "500ms",
			RetryMaxDelay:     "5s",
		},
		History: HistoryConfig{Enabled: true, DBPath: "Build/history.db"},
		Metrics: MetricsConfig{Enabled: false, Textfile: "Build/fwbuilder.prom"},
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal example config").Build()
	}
	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errors.FileSystemError("failed to create config directory").WithCause(err).Build()
		}
	}
	// #nosec G306 -- config file is not sensitive
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.FileSystemError("failed to write config file").
			WithCause(err).
			WithContext("path", configPath).
			Build()
	}
	return nil
}
