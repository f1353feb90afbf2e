// Package command provides CommandRunner, a thin wrapper over os/exec that
// shells out to the HPC scheduler's CLI and captures its stdout.
package command

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rezkam/umbridge-gateway/internal/joberr"
)

// Runner runs shell command lines and captures their standard output;
// standard error is discarded.
// It is the gateway's sole boundary with the operating system's process
// table: both job submission and job cancellation go through it.
type Runner struct{}

// NewRunner constructs a Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run executes cmdline via "sh -c" in env (appended to the current
// process's environment) and returns its trimmed stdout. A failure to
// even start the shell is wrapped as joberr.SpawnFailed. Non-zero exit is
// not inspected here — callers rely on downstream parsing (empty id,
// missing URL file) to detect failure, because schedulers routinely exit
// zero on accepted submissions.
func (r *Runner) Run(ctx context.Context, cmdline string, env []string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", joberr.SpawnFailed{Cmd: cmdline, Err: err}
	}

	_ = cmd.Wait()

	return strings.TrimSpace(stdout.String()), nil
}
