// Package command runs external programs such as tar and openssl.
//
// Callers depend on the Executor interface so tests can substitute a fake
// that records command lines instead of starting processes.
package command

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// An Executor runs a shell command line and returns its standard output.
// A command which cannot be started or exits with a non-zero status is an
// error. There is no timeout: a command that hangs blocks the caller.
type Executor interface {
	Execute(commandLine string) (string, error)
}

// Func adapts an ordinary function to the Executor interface.
type Func func(commandLine string) (string, error)

// Execute calls f(commandLine).
func (f Func) Execute(commandLine string) (string, error) {
	return f(commandLine)
}

// Shell is an Executor that runs command lines with /bin/sh.
type Shell struct {
	// Path to the shell. Defaults to /bin/sh.
	Path string
}

var _ Executor = Shell{}

// ExecutionError describes a command that failed.
type ExecutionError struct {
	Command string
	Stdout  string
	Stderr  string
	Err     error // the error from os/exec
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("Command failed to execute: [%s] caused by <STDERR = %s>",
		e.Command, joinLines(e.Stderr))
	if e.Stdout != "" {
		msg += " STDOUT = " + joinLines(e.Stdout)
	}
	return msg
}

// Unwrap returns the underlying os/exec error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func joinLines(s string) string {
	return strings.Join(strings.Split(strings.TrimRight(s, "\n"), "\n"), "; ")
}

// Execute runs commandLine and returns what it wrote to standard output.
// If the command fails the returned *ExecutionError has the captured
// standard error and standard output.
func (s Shell) Execute(commandLine string) (string, error) {
	shell := s.Path
	if shell == "" {
		shell = "/bin/sh"
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(shell, "-c", commandLine)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	log.Debugf("execute: %s", commandLine)
	err := cmd.Run()
	if err != nil {
		stderrText := stderr.String()
		if stderrText == "" {
			stderrText = err.Error()
		}
		return "", &ExecutionError{
			Command: commandLine,
			Stdout:  stdout.String(),
			Stderr:  stderrText,
			Err:     err,
		}
	}
	return stdout.String(), nil
}
