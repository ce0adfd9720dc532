package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fwbuilder.yaml")
	writeFile(t, path, "project:\n  file: fw/CMakeLists.txt\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	wantProject := filepath.Join(dir, "fw", "CMakeLists.txt")
	if cfg.Project.File != wantProject {
		t.Fatalf("project file %q, want %q", cfg.Project.File, wantProject)
	}
	if cfg.Project.BaseDir != filepath.Join(dir, "fw") {
		t.Fatalf("base dir %q", cfg.Project.BaseDir)
	}
	if cfg.Output.BuildDir != filepath.Join(dir, "fw", "Build") {
		t.Fatalf("build dir %q", cfg.Output.BuildDir)
	}
	if cfg.Build.LogFile != filepath.Join(cfg.Output.BuildDir, "build.log") {
		t.Fatalf("log file %q", cfg.Build.LogFile)
	}
	if cfg.Toolchain.Prefix != DefaultToolchainPrefix || cfg.Toolchain.RspEncoding != DefaultRspEncoding {
		t.Fatalf("toolchain defaults not applied: %+v", cfg.Toolchain)
	}
	grace, initial, maxDelay := cfg.Build.Durations()
	if grace != DefaultGracePeriod || initial != 500*time.Millisecond || maxDelay != 5*time.Second {
		t.Fatalf("durations %v %v %v", grace, initial, maxDelay)
	}
	if cfg.Build.RetryBackoff != RetryBackoffLinear {
		t.Fatalf("retry backoff %q", cfg.Build.RetryBackoff)
	}
	if cfg.Logging.Level != LogLevelInfo || cfg.Logging.Format != LogFormatText {
		t.Fatalf("logging defaults %+v", cfg.Logging)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("FW_TOOLCHAIN", "/opt/gcc/bin")
	dir := t.TempDir()
	path := filepath.Join(dir, "fwbuilder.yaml")
	writeFile(t, path, "toolchain:\n  dir: ${FW_TOOLCHAIN}\nbuild:\n  retry_backoff: EXPONENTIAL\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Toolchain.Dir != "/opt/gcc/bin" {
		t.Fatalf("toolchain dir %q", cfg.Toolchain.Dir)
	}
	if cfg.Build.RetryBackoff != RetryBackoffExponential {
		t.Fatalf("retry backoff %q", cfg.Build.RetryBackoff)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.HasCategory(err, errors.CategoryConfig) {
		t.Fatalf("expected config category, got %v", err)
	}
}

func TestValidationErrors(t *testing.T) {
	cases := map[string]string{
		"bad shell":     "build:\n  shell: cmd\n",
		"bad grace":     "build:\n  grace_period: soon\n",
		"bad encoding":  "toolchain:\n  rsp_encoding: klingon\n",
		"neg retries":   "build:\n  shell_start_retries: -1\n",
		"bad yaml type": "build:\n  workers: many\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "fwbuilder.yaml")
			writeFile(t, path, content)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestInitWritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fwbuilder.yaml")
	if err := Init(path, false); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := Init(path, false); err == nil {
		t.Fatalf("expected error when file exists without force")
	}
	if err := Init(path, true); err != nil {
		t.Fatalf("init with force: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	if cfg.Output.SkipHex || cfg.Output.BuildDir != filepath.Join(dir, "Build") {
		t.Fatalf("unexpected output config %+v", cfg.Output)
	}
}

func TestFromProjectFile(t *testing.T) {
	cfg, err := FromProjectFile(filepath.Join(t.TempDir(), "CMakeLists.txt"))
	if err != nil {
		t.Fatalf("from project: %v", err)
	}
	if cfg.Build.Shell != DefaultShell() {
		t.Fatalf("shell %q", cfg.Build.Shell)
	}
}

func TestNormalizers(t *testing.T) {
	if NormalizeRetryBackoff(" Fixed ") != RetryBackoffFixed {
		t.Fatalf("fixed")
	}
	if NormalizeRetryBackoff("random") != "" {
		t.Fatalf("unknown should be empty")
	}
	if NormalizeLogLevel("WARNING") != LogLevelWarn {
		t.Fatalf("warning alias")
	}
	if NormalizeLogFormat("JSON") != LogFormatJSON {
		t.Fatalf("json")
	}
}
