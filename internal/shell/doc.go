// Package shell implements the persistent command channel: a long-lived
// interactive shell that runs many commands without a process launch per
// command.
//
// Each command is written to the shell's stdin followed by a trailer that
// prints a sentinel and the command's exit status. A Framer splits the
// shell's stdout and stderr back into one Result per command. A Session
// accepts one command at a time and rejects overlapping calls; Pool hands
// out one Session per concurrent caller so the rejection never triggers in
// normal operation.
package shell
