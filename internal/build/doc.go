// Package build runs a firmware build: it fans the compile commands out as
// futures over a pool of persistent shells, fails fast on the first non-zero
// exit, and then runs the link, binary and hex steps in order on a single
// shell.
//
// Build is the entry point used by the CLI and the watch loop. Scheduler is
// the engine underneath it and can be driven directly with a hand-made Plan.
package build
