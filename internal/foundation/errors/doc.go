// Package errors provides the classified error primitives used across fwbuilder.
//
// A ClassifiedError carries a category (config, parse, shell, build, ...), a
// severity and a retry strategy next to the usual message and cause. Errors are
// created through the fluent ErrorBuilder:
//
//	err := errors.ShellError("failed to launch shell").
//		WithCause(startErr).
//		WithContext("shell", "sh").
//		Build()
//
// The CLIErrorAdapter maps categories to process exit codes for the command
// line front-end.
package errors
