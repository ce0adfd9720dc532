package shell

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/normalization"
)

const (
	// Sentinel marks the end of a command's stdout; the exit status follows it.
	Sentinel = "__END__"
	// Fence marks the end of a command's stderr.
	Fence = "__ERR_END__"
)

// Dialect describes how to launch a shell and how to frame a command for it.
type Dialect struct {
	Name    string
	Program string
	Args    []string
	frame   func(command string) string
}

// Frame returns the bytes written to stdin for command: the command itself
// followed by the stderr fence and the stdout sentinel with the exit status.
func (d Dialect) Frame(command string) string {
	return d.frame(command)
}

// Posix runs commands through `sh -s`. Each command runs in a subshell with
// stdin detached, so neither `exit` nor a stdin reader can disturb the
// channel.
func Posix() Dialect {
	return Dialect{
		Name:    "posix",
		Program: "sh",
		Args:    []string{"-s"},
		frame: func(command string) string {
			if strings.TrimSpace(command) == "" {
				command = ":"
			}
			return fmt.Sprintf("( %s\n) </dev/null\n__fw_rc=$?; echo '%s' >&2; echo \"%s $__fw_rc\"\n",
				command, Fence, Sentinel)
		},
	}
}

// PowerShell runs commands through a persistent powershell.exe reading from
// stdin. A command starting with a quoted program path is invoked with the
// call operator.
func PowerShell() Dialect {
	return Dialect{
		Name:    "powershell",
		Program: "powershell.exe",
		Args:    []string{"-NoLogo", "-NoProfile", "-NoExit", "-Command", "-"},
		frame: func(command string) string {
			if strings.HasPrefix(command, `"`) {
				command = "& " + command
			}
			// LASTEXITCODE is only set by native programs; cmdlets report through $?.
			return fmt.Sprintf("$global:LASTEXITCODE = $null\n%s\n"+
				"$__fw_ok = $?; $__fw_rc = if ($null -ne $LASTEXITCODE) { $LASTEXITCODE } elseif ($__fw_ok) { 0 } else { 1 }\n"+
				"[Console]::Error.WriteLine('%s'); Write-Output \"%s $__fw_rc\"\n",
				command, Fence, Sentinel)
		},
	}
}

var dialectNames = normalization.NewNormalizer(map[string]string{
	"posix":      "posix",
	"sh":         "posix",
	"powershell": "powershell",
	"pwsh":       "powershell",
}, "")

// DialectByName resolves a configured shell name.
func DialectByName(name string) (Dialect, error) {
	canonical, err := dialectNames.Parse(name)
	if err != nil {
		return Dialect{}, fmt.Errorf("unknown shell dialect: %w", err)
	}
	if canonical == "powershell" {
		return PowerShell(), nil
	}
	return Posix(), nil
}
