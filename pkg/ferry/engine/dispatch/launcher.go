package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/ferry/pkg/ferry/core/domain/model"
	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
)

// JobSpec describes one job of a batch: where its artifacts live and the
// message its worker receives.
type JobSpec struct {
	ID         string
	RecordID   string
	Dir        string
	ResultPath string
	StdoutPath string
	StderrPath string
	Message    model.JobMessage
}

// Process is a launched worker.
type Process interface {
	// Wait blocks until the worker exits and returns its exit code. err is
	// non-nil only when the exit status could not be obtained.
	Wait() (exitCode int, err error)
	PID() int
}

// Launcher starts the worker of a job. The worker must stop when ctx is done.
type Launcher interface {
	Launch(ctx context.Context, job JobSpec) (Process, error)
}

// ProcessLauncher runs each job as an operating system process. The job
// message is written as JSON on the process's standard input, its output and
// error streams go to the job's log files, and "--result <path>" is appended
// to the arguments.
type ProcessLauncher struct {
	Command string
	Args    []string
	// Dir is the working directory; empty means the dispatcher's.
	Dir string
	// Env replaces the environment when non-nil.
	Env []string
}

// NewProcessLauncher creates a ProcessLauncher for command.
func NewProcessLauncher(command string, args ...string) *ProcessLauncher {
	return &ProcessLauncher{Command: command, Args: args}
}

// Launch implements Launcher.
func (l *ProcessLauncher) Launch(ctx context.Context, job JobSpec) (Process, error) {
	if l.Command == "" {
		return nil, exception.NewFerryError(exception.ValidationError, module, "worker command is not configured", nil)
	}
	payload, err := json.Marshal(job.Message)
	if err != nil {
		return nil, exception.NewFerryError(exception.ParseError, module, "failed to encode job message", err)
	}

	stdout, err := os.Create(job.StdoutPath)
	if err != nil {
		return nil, err
	}
	stderr, err := os.Create(job.StderrPath)
	if err != nil {
		stdout.Close()
		return nil, err
	}

	args := append(append([]string{}, l.Args...), "--result", job.ResultPath)
	cmd := exec.CommandContext(ctx, l.Command, args...)
	cmd.Dir = l.Dir
	cmd.Env = l.Env
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, exception.NewFerryErrorf(exception.CrashError, module, "failed to start worker for %s", job.ID, err)
	}
	return &osProcess{cmd: cmd, logs: []*os.File{stdout, stderr}}, nil
}

type osProcess struct {
	cmd  *exec.Cmd
	logs []*os.File
}

func (p *osProcess) PID() int { return p.cmd.Process.Pid }

func (p *osProcess) Wait() (int, error) {
	waitErr := p.cmd.Wait()
	var closeErr *multierror.Error
	for _, f := range p.logs {
		if err := f.Close(); err != nil {
			closeErr = multierror.Append(closeErr, err)
		}
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return -1, waitErr
		}
	}
	return p.cmd.ProcessState.ExitCode(), closeErr.ErrorOrNil()
}
