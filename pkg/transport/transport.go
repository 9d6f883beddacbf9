// Package transport runs command strings on a remote host identified by an
// ssh config alias.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a remote command exceeds its deadline.
var ErrTimeout = errors.New("remote command timed out")

// ExecResult carries the outcome of a command that ran to completion.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Transport runs a command string on host and waits at most timeout for it.
// A non-zero remote exit is reported through ExecResult, not as an error;
// the error is reserved for commands that could not run or timed out.
type Transport interface {
	Run(ctx context.Context, host, command string, timeout time.Duration) (ExecResult, error)
	Close() error
}
