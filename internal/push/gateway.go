// Package push is the boundary to the external push provider. The provider is
// best-effort: each message in a batch gets its own Result and callers decide what
// to retry.
package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Outcome classifies the provider response for one message.
type Outcome string

const (
	OutcomeSent         Outcome = "sent"
	OutcomeInvalidToken Outcome = "invalid_token"
	OutcomeRejected     Outcome = "rejected"
	OutcomeTransient    Outcome = "transient"
)

// Message is a single push addressed to one registration token.
type Message struct {
	Token    string
	Platform string
	Title    string
	Body     string
	Data     map[string]string
}

// Result reports what happened to one Message.
type Result struct {
	Outcome    Outcome `json:"outcome"`
	MessageID  string  `json:"message_id,omitempty"`
	StatusCode int     `json:"status_code,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Permanent reports whether the message must not be retried.
func (r Result) Permanent() bool {
	return r.Outcome == OutcomeInvalidToken || r.Outcome == OutcomeRejected
}

// Err converts a failed result into a typed delivery error. It returns nil on success.
func (r Result) Err() error {
	switch r.Outcome {
	case OutcomeSent:
		return nil
	case OutcomeInvalidToken, OutcomeRejected:
		return &PermanentDeliveryError{StatusCode: r.StatusCode, Reason: r.Error, InvalidToken: r.Outcome == OutcomeInvalidToken}
	default:
		return &TransientDeliveryError{StatusCode: r.StatusCode, Reason: r.Error}
	}
}

// Gateway sends a batch of messages. Results are returned in input order. A non-nil
// error means the whole batch failed and no per-message result is available.
type Gateway interface {
	SendBatch(ctx context.Context, messages []Message) ([]Result, error)
}

// GatewayError is a batch-level provider failure.
type GatewayError struct {
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("push gateway: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("push gateway: %v", e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Misconfigured reports whether the provider refused the whole request because of the
// sender's project or credentials rather than any particular token.
func (e *GatewayError) Misconfigured() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// ResultFromError classifies a batch-level failure. Network errors, 5xx responses and
// misconfiguration (401, 403, 404) are transient, so no device is deactivated for a
// fault that is not its own; other 4xx responses are permanent rejections.
func ResultFromError(err error) Result {
	status := 0
	outcome := OutcomeTransient
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		status = gwErr.StatusCode
		if !gwErr.Misconfigured() {
			outcome = outcomeForStatus(status)
		}
	}
	return Result{
		Outcome:    outcome,
		StatusCode: status,
		Error:      err.Error(),
	}
}

func outcomeForStatus(status int) Outcome {
	switch {
	case status == http.StatusNotFound, status == http.StatusGone:
		return OutcomeInvalidToken
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return OutcomeTransient
	case status >= 400 && status < 500:
		return OutcomeRejected
	default:
		return OutcomeTransient
	}
}
