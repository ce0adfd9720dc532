package build

import "errors"

// Reserved exit codes for failures that are not a toolchain exit status.
const (
	ExitOK               = 0
	ExitShellStartFailed = -2
	ExitInternal         = -3
	ExitCancelled        = -4
)

var (
	// ErrLinkStep is wrapped around failures generating the link command.
	ErrLinkStep = errors.New("fwbuilder: link step generation failed")
	// ErrEmptyPlan is returned when a plan has no compile commands.
	ErrEmptyPlan = errors.New("fwbuilder: nothing to compile")
)
