package services

import (
	"context"
	"strings"
	"sync"

	"github.com/benmeehan/vmdevice-agent/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Lower-cased sudo diagnostics. Keep both lists here so wording changes in
// sudo only touch this file.
var (
	credentialMissingPatterns = []string{
		"sudo: a password is required",
		"sudo: no tty present",
		"sudo: unable to",
		"is not in the sudoers file",
	}
	credentialWrongPatterns = []string{
		"try again",
		"incorrect password",
		"authentication failure",
	}
)

// Classification is the result of matching a failure message against the
// sudo patterns. Both flags are computed independently.
type Classification struct {
	CredentialMissing bool
	CredentialWrong   bool
}

// NeedsCredential reports whether a prompt could fix the failure.
func (c Classification) NeedsCredential() bool {
	return c.CredentialMissing || c.CredentialWrong
}

// ClassifyFailure matches errMsg case-insensitively against the sudo patterns.
func ClassifyFailure(errMsg string) Classification {
	if errMsg == "" {
		return Classification{}
	}
	lower := strings.ToLower(errMsg)
	return Classification{
		CredentialMissing: containsAny(lower, credentialMissingPatterns),
		CredentialWrong:   containsAny(lower, credentialWrongPatterns),
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// PromptReason tells the prompter why a credential is requested.
type PromptReason int

const (
	PromptCredentialMissing PromptReason = iota
	PromptCredentialWrong
)

func (r PromptReason) String() string {
	if r == PromptCredentialWrong {
		return "Incorrect sudo password. Please try again."
	}
	return "Enter your sudo password:"
}

// CredentialPrompter asks the user for a sudo credential. It blocks the
// calling worker until the user answers; ok is false when the user declines.
type CredentialPrompter interface {
	RequestCredential(ctx context.Context, host string, reason PromptReason) (credential string, ok bool)
}

// RemoteOperation is a single attempt of a logical operation.
type RemoteOperation func(ctx context.Context) models.RemoteCommandResult

// ElevationController wraps remote operations with the prompt-and-retry-once policy.
// Workers share one controller, so only one of them prompts at a time.
type ElevationController struct {
	session  *Session
	prompter CredentialPrompter
	logger   zerolog.Logger

	promptMu sync.Mutex
}

// NewElevationController initializes an ElevationController. A nil prompter
// disables prompting.
func NewElevationController(session *Session, prompter CredentialPrompter, logger zerolog.Logger) *ElevationController {
	return &ElevationController{
		session:  session,
		prompter: prompter,
		logger:   logger,
	}
}

// Execute runs op, and when the failure is a sudo credential problem, asks
// for a credential and runs op one more time. The second result is returned
// as is, whatever it says.
func (ec *ElevationController) Execute(ctx context.Context, name string, op RemoteOperation) models.RemoteCommandResult {
	logger := ec.logger.With().
		Str("operation", name).
		Str("operation_id", uuid.NewString()).
		Logger()
	return ec.attempt(ctx, logger, op, false)
}

func (ec *ElevationController) attempt(ctx context.Context, logger zerolog.Logger, op RemoteOperation, retry bool) models.RemoteCommandResult {
	generation := ec.session.Generation()
	result := op(ctx)
	if result.Success {
		logger.Debug().Bool("retry", retry).Msg("Remote operation succeeded")
		return result
	}

	classification := ClassifyFailure(result.Error)
	if !classification.NeedsCredential() || retry {
		if classification.CredentialWrong {
			logger.Warn().Bool("retry", retry).Msg("Sudo rejected the cached credential")
			ec.session.ClearCredential(ctx)
		}
		logger.Info().Bool("retry", retry).Str("error", result.Error).Msg("Remote operation failed")
		return result
	}

	if !ec.obtainCredential(ctx, logger, generation, classification) {
		return result
	}
	logger.Debug().Msg("Retrying with new sudo credential")
	return ec.attempt(ctx, logger, op, true)
}

// obtainCredential caches a credential for the retry and reports whether
// there is one. A failure observed with a credential that another worker has
// since replaced is retried with the replacement instead of prompting again.
func (ec *ElevationController) obtainCredential(ctx context.Context, logger zerolog.Logger, generation uint64, classification Classification) bool {
	ec.promptMu.Lock()
	defer ec.promptMu.Unlock()

	if ec.session.Generation() != generation && ec.session.HasCredential() {
		logger.Debug().Msg("Credential replaced during the attempt")
		return true
	}

	// Wrong is checked first and always clears the cache.
	if classification.CredentialWrong {
		logger.Warn().Msg("Sudo rejected the cached credential")
		ec.session.ClearCredential(ctx)
	}

	if ec.prompter == nil {
		return false
	}

	reason := PromptCredentialMissing
	if classification.CredentialWrong {
		reason = PromptCredentialWrong
	}

	credential, ok := ec.prompter.RequestCredential(ctx, ec.session.Host(), reason)
	if !ok || credential == "" {
		logger.Info().Msg("No sudo credential supplied")
		return false
	}

	ec.session.SetCredential(ctx, credential)
	return true
}
