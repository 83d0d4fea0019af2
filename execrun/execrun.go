// Package execrun runs external backends. Adapters take a Runner so tests can
// replace process execution.
package execrun

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/shlex"
)

// Runner executes a command and returns what it wrote to stdout and stderr.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// Exec is the production Runner built on os/exec.
type Exec struct{}

func (Exec) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		// The kill signal is not the interesting cause.
		err = ctx.Err()
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

// DependencyError reports a backend binary that cannot be found.
type DependencyError struct {
	Name       string
	InstallURL string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s not found. Install from: %s", e.Name, e.InstallURL)
}

// LookPath checks that bin is executable, returning a DependencyError if not.
func LookPath(bin, installURL string) error {
	if _, err := exec.LookPath(bin); err != nil {
		return &DependencyError{Name: bin, InstallURL: installURL}
	}
	return nil
}

// SplitArgs splits a configured argument string without involving a shell.
func SplitArgs(command string) ([]string, error) {
	if strings.TrimSpace(command) == "" {
		return nil, nil
	}
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid argument syntax: %w", err)
	}
	return args, nil
}

// RejectShellMeta fails on arguments carrying shell metacharacters. exec does
// not interpret them, but they are never legitimate in configured backend args.
func RejectShellMeta(args []string) error {
	for _, arg := range args {
		if strings.ContainsAny(arg, "|&;`$()<>") {
			return fmt.Errorf("disallowed character found in argument: %s", arg)
		}
	}
	return nil
}
