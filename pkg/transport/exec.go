package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// ExecTransport shells out to the system ssh client, so host aliases,
// ProxyJump and agent forwarding all come from the user's ~/.ssh/config.
type ExecTransport struct {
	binary    string
	extraArgs []string
	logger    zerolog.Logger
}

// NewExecTransport returns a transport that runs `<binary> [extraArgs...] <host> <command>`.
func NewExecTransport(binary string, extraArgs []string, logger zerolog.Logger) *ExecTransport {
	if binary == "" {
		binary = "ssh"
	}
	return &ExecTransport{
		binary:    binary,
		extraArgs: extraArgs,
		logger:    logger,
	}
}

// Run executes command on host through the ssh binary.
func (t *ExecTransport) Run(ctx context.Context, host, command string, timeout time.Duration) (ExecResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := make([]string, 0, len(t.extraArgs)+2)
	args = append(args, t.extraArgs...)
	args = append(args, host, command)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	t.logger.Debug().Str("host", host).Str("binary", t.binary).Msg("Running remote command via ssh")

	err := cmd.Run()
	if err == nil {
		return ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.logger.Error().Str("host", host).Dur("timeout", timeout).Msg("Remote command timed out")
		return ExecResult{}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	// A cancelled caller kills ssh; its exit status says nothing about the remote side.
	if ctx.Err() != nil {
		return ExecResult{}, fmt.Errorf("remote command cancelled: %w", ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return ExecResult{
			ExitCode: exitErr.ExitCode(),
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
		}, nil
	}

	t.logger.Error().Err(err).Str("host", host).Msg("Failed to run ssh")
	return ExecResult{}, fmt.Errorf("failed to run %s: %w", t.binary, err)
}

// Close is a no-op; every Run spawns its own process.
func (t *ExecTransport) Close() error {
	return nil
}
