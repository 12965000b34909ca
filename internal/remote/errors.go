package remote

import "fmt"

// StatusError is a non-2xx response from the commit service. Message
// preserves the remote-supplied text where the body carried one.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("commit service returned status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("commit service returned status %d: %s", e.StatusCode, e.Message)
}

// RejectionError is a business rejection reported inside a 200 payload
// as {"success": false, "error": "..."}. This is not a transport fault.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("commit rejected: %s", e.Reason)
}

// DecodeError means the commit service answered 2xx but the body could
// not be parsed.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode commit response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
