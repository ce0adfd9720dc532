package config

import (
	"fmt"
	"time"

	"golang.org/x/text/encoding/htmlindex"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// Validate checks a defaulted configuration.
func Validate(cfg *Config) error {
	v := &configurationValidator{config: cfg}
	return v.validate()
}

type configurationValidator struct {
	config *Config
}

func (cv *configurationValidator) validate() error {
	if err := cv.validateProject(); err != nil {
		return err
	}
	if err := cv.validateToolchain(); err != nil {
		return err
	}
	return cv.validateBuild()
}

func (cv *configurationValidator) validateProject() error {
	if cv.config.Project.File == "" {
		return errors.ValidationError("project.file is required").Build()
	}
	if cv.config.Output.Name == "" {
		return errors.ValidationError("output.name must not be empty").Build()
	}
	return nil
}

func (cv *configurationValidator) validateToolchain() error {
	if _, err := htmlindex.Get(cv.config.Toolchain.RspEncoding); err != nil {
		return errors.ValidationError(fmt.Sprintf("unknown toolchain.rsp_encoding %q", cv.config.Toolchain.RspEncoding)).
			WithCause(err).
			Build()
	}
	return nil
}

func (cv *configurationValidator) validateBuild() error {
	b := cv.config.Build
	switch b.Shell {
	case ShellPosix, ShellPowerShell:
	default:
		return errors.ValidationError(fmt.Sprintf("build.shell must be %q or %q, got %q", ShellPosix, ShellPowerShell, b.Shell)).Build()
	}
	if b.ShellStartRetries < 0 {
		return errors.ValidationError("build.shell_start_retries cannot be negative").Build()
	}
	for field, raw := range map[string]string{
		"build.grace_period":        b.GracePeriod,
		"build.retry_initial_delay": b.RetryInitialDelay,
		"build.retry_max_delay":     b.RetryMaxDelay,
	} {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return errors.ValidationError(fmt.Sprintf("invalid duration for %s: %q", field, raw)).WithCause(err).Build()
		}
		if d < 0 {
			return errors.ValidationError(fmt.Sprintf("%s cannot be negative", field)).Build()
		}
	}
	return nil
}
