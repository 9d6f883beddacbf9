package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benmeehan/vmdevice-agent/internal/constants"
	"github.com/benmeehan/vmdevice-agent/internal/models"
	"github.com/benmeehan/vmdevice-agent/pkg/transport"
	"github.com/rs/zerolog"
)

// Session is one connection to a remote host running the vm-device tool. It
// owns the cached sudo credential for that host; the credential lives only in
// memory and goes away with the Session.
type Session struct {
	host         string
	toolPath     string
	transport    transport.Transport
	dataTimeout  time.Duration
	primeTimeout time.Duration
	logger       zerolog.Logger

	mu         sync.RWMutex
	credential string
	generation uint64 // bumped on every credential change
}

// NewSession initializes a Session. Zero timeouts fall back to the defaults.
func NewSession(host, toolPath string, tr transport.Transport, dataTimeout, primeTimeout time.Duration, logger zerolog.Logger) *Session {
	if toolPath == "" {
		toolPath = constants.DefaultToolPath
	}
	if dataTimeout == 0 {
		dataTimeout = constants.DataCommandTimeout
	}
	if primeTimeout == 0 {
		primeTimeout = constants.PrimeTimeout
	}

	return &Session{
		host:         host,
		toolPath:     toolPath,
		transport:    tr,
		dataTimeout:  dataTimeout,
		primeTimeout: primeTimeout,
		logger:       logger.With().Str("host", host).Logger(),
	}
}

// Host returns the ssh host alias of the session.
func (s *Session) Host() string {
	return s.host
}

// HasCredential reports whether a sudo credential is cached.
func (s *Session) HasCredential() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential != ""
}

// Generation identifies the current credential. It changes whenever the
// credential is set or cleared.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// SetCredential caches credential and primes the remote sudo timestamp so
// later commands in the same remote session skip the password. The priming
// outcome is ignored.
func (s *Session) SetCredential(ctx context.Context, credential string) {
	s.mu.Lock()
	s.credential = credential
	s.generation++
	s.mu.Unlock()

	if credential == "" {
		return
	}

	command := pipeCredential(credential, "sudo -S -v")
	if _, err := s.transport.Run(ctx, s.host, command, s.primeTimeout); err != nil {
		s.logger.Debug().Err(err).Msg("Sudo priming failed")
	}
}

// ClearCredential drops the cached credential and invalidates the remote sudo
// timestamp. Failures of the invalidation are ignored.
func (s *Session) ClearCredential(ctx context.Context) {
	s.mu.Lock()
	s.credential = ""
	s.generation++
	s.mu.Unlock()

	if _, err := s.transport.Run(ctx, s.host, "sudo -k", s.primeTimeout); err != nil {
		s.logger.Debug().Err(err).Msg("Sudo invalidation failed")
	}
}

// Run performs exactly one remote invocation of the tool with args.
func (s *Session) Run(ctx context.Context, args []string, useSudo bool) models.RemoteCommandResult {
	command := s.buildCommand(args, useSudo)

	s.logger.Debug().Strs("args", args).Bool("sudo", useSudo).Msg("Running remote tool")

	output, err := s.transport.Run(ctx, s.host, command, s.dataTimeout)
	if err != nil {
		if errors.Is(err, transport.ErrTimeout) {
			return models.NewFailureResult(models.FailureTransport,
				fmt.Sprintf("command timed out after %s", s.dataTimeout))
		}
		return models.NewFailureResult(models.FailureTransport, err.Error())
	}

	if output.ExitCode != 0 {
		message := strings.TrimSpace(output.Stderr)
		if message == "" {
			message = fmt.Sprintf("remote command exited with status %d", output.ExitCode)
		}
		return models.NewFailureResult(models.FailureNonZeroExit, message)
	}

	payload := []byte(strings.TrimSpace(output.Stdout))
	if !json.Valid(payload) {
		s.logger.Warn().Strs("args", args).Msg("Remote tool printed invalid JSON")
		return models.NewParseFailureResult(constants.StatusParseFailed, output.Stdout)
	}
	return models.NewSuccessResult(payload)
}

// ListAttached runs `--list --json`.
func (s *Session) ListAttached(ctx context.Context) models.RemoteCommandResult {
	return s.Run(ctx, []string{constants.FlagList, constants.FlagJSON}, true)
}

// ListAvailable runs `--list-available --json`.
func (s *Session) ListAvailable(ctx context.Context) models.RemoteCommandResult {
	return s.Run(ctx, []string{constants.FlagListAvailable, constants.FlagJSON}, true)
}

// Attach runs `--attach vendor:product --json`.
func (s *Session) Attach(ctx context.Context, id models.DeviceID) models.RemoteCommandResult {
	return s.Run(ctx, []string{constants.FlagAttach, id.String(), constants.FlagJSON}, true)
}

// Detach runs `--detach vendor:product --json`.
func (s *Session) Detach(ctx context.Context, id models.DeviceID) models.RemoteCommandResult {
	return s.Run(ctx, []string{constants.FlagDetach, id.String(), constants.FlagJSON}, true)
}

// Reconnect runs `--reconnect vendor:product --json`.
func (s *Session) Reconnect(ctx context.Context, id models.DeviceID) models.RemoteCommandResult {
	return s.Run(ctx, []string{constants.FlagReconnect, id.String(), constants.FlagJSON}, true)
}

// buildCommand renders the remote shell command. The tool path is left
// unquoted so the remote shell expands "~".
func (s *Session) buildCommand(args []string, useSudo bool) string {
	invocation := s.toolPath
	if len(args) > 0 {
		invocation += " " + strings.Join(args, " ")
	}
	if !useSudo {
		return invocation
	}

	s.mu.RLock()
	credential := s.credential
	s.mu.RUnlock()

	if credential == "" {
		return "sudo " + invocation
	}
	return pipeCredential(credential, "sudo -S "+invocation)
}

// pipeCredential feeds credential to command on stdin. printf is a shell
// builtin, so the secret never shows up in the remote process list.
func pipeCredential(credential, command string) string {
	return "printf '%s\\n' " + shellQuote(credential) + " | " + command
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
