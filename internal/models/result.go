package models

import (
	"encoding/json"
	"fmt"
)

// FailureKind classifies why a remote invocation failed.
type FailureKind string

const (
	FailureNone         FailureKind = ""
	FailureTransport    FailureKind = "transport_failure"
	FailureNonZeroExit  FailureKind = "remote_nonzero_exit"
	FailurePayloadParse FailureKind = "payload_parse_failure"
)

// RemoteCommandResult is the outcome of one remote invocation.
// Success is true exactly when Payload is set and Error is empty.
type RemoteCommandResult struct {
	Success   bool            `json:"success"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	RawOutput string          `json:"raw_output,omitempty"`
	Kind      FailureKind     `json:"kind,omitempty"`
}

// NewSuccessResult wraps a parsed payload.
func NewSuccessResult(payload []byte) RemoteCommandResult {
	return RemoteCommandResult{Success: true, Payload: json.RawMessage(payload)}
}

// NewFailureResult builds a failed result. An empty message is replaced so
// that a failure always carries a description.
func NewFailureResult(kind FailureKind, message string) RemoteCommandResult {
	if message == "" {
		message = fmt.Sprintf("remote command failed (%s)", kind)
	}
	return RemoteCommandResult{Kind: kind, Error: message}
}

// NewParseFailureResult keeps the unparsed output for diagnostics.
func NewParseFailureResult(message, rawOutput string) RemoteCommandResult {
	result := NewFailureResult(FailurePayloadParse, message)
	result.RawOutput = rawOutput
	return result
}

// Decode unmarshals the payload of a successful result into v.
func (r RemoteCommandResult) Decode(v any) error {
	if !r.Success {
		return fmt.Errorf("cannot decode failed result: %s", r.Error)
	}
	return json.Unmarshal(r.Payload, v)
}
