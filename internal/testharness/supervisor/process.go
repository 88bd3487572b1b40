package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ProcessError reports a subordinate process that failed.
type ProcessError struct {
	Name     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Name)
	if e.ExitCode > 0 {
		msg = fmt.Sprintf("%s exited with status %d", e.Name, e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += " (stderr: " + lastLine(s) + ")"
	}
	return msg
}

func (e *ProcessError) Unwrap() error { return e.Err }

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// CommandPublisher triggers the bridge by running a publisher command to
// completion.
type CommandPublisher struct {
	Command string
	Args    []string
	Env     []string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Publish runs the command and waits for it. A nonzero exit, a launch
// failure or the timeout yields a *ProcessError.
func (p *CommandPublisher) Publish(ctx context.Context) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	stderr := newTailBuffer(8 * 1024)
	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	cmd.Stderr = stderr
	if len(p.Env) > 0 {
		cmd.Env = append(cmd.Environ(), p.Env...)
	}

	start := time.Now()
	err := cmd.Run()
	if p.Logger != nil {
		p.Logger.Info("publisher finished", "command", p.Command, "duration", time.Since(start), "error", err)
	}
	if err == nil {
		return nil
	}

	perr := &ProcessError{Name: "publisher", ExitCode: -1, Stderr: stderr.String(), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		perr.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		perr.Err = fmt.Errorf("%w (%v)", ctxErr, err)
	}
	return perr
}
