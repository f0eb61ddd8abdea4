package push

import "fmt"

// TransientDeliveryError is a network or 5xx failure that may succeed on retry.
type TransientDeliveryError struct {
	StatusCode int
	Reason     string
}

func (e *TransientDeliveryError) Error() string {
	return fmt.Sprintf("transient delivery failure (status %d): %s", e.StatusCode, e.Reason)
}

// PermanentDeliveryError is an invalid token or a 4xx rejection. It is never retried.
type PermanentDeliveryError struct {
	StatusCode   int
	Reason       string
	InvalidToken bool
}

func (e *PermanentDeliveryError) Error() string {
	if e.InvalidToken {
		return fmt.Sprintf("registration token invalid: %s", e.Reason)
	}
	return fmt.Sprintf("permanent delivery failure (status %d): %s", e.StatusCode, e.Reason)
}
