package service

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"github.com/floradistro/pos-checkout/internal/domain"
	"github.com/floradistro/pos-checkout/internal/remote"
	"github.com/floradistro/pos-checkout/pkg/httpclient"
)

// Classify maps a raw commit failure into the closed error taxonomy.
//
// Ordering matters: cancellation and deadline causes are checked before
// generic transport errors, transport before response-parsing errors,
// and parsing before business rejections carried inside a 200 payload.
// A rejection like {"success": false, "error": "..."} is a Declined,
// never a NetworkError.
func Classify(err error) *domain.CommitError {
	if err == nil {
		return nil
	}

	// Already classified upstream (guard, preparer, state machine).
	var ce *domain.CommitError
	if errors.As(err, &ce) {
		return ce
	}

	// 1. Cancellation and deadline.
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Timeout(err)
	}
	if errors.Is(err, context.Canceled) {
		return domain.Cancelled(err)
	}

	// 2. Transport. Deadline-flavored net errors classify as timeouts
	// so the UI can suggest waiting rather than checking the cart.
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.Timeout(err)
		}
		return domain.NetworkError(err)
	}
	if errors.Is(err, httpclient.ErrCircuitOpen) {
		return domain.NetworkError(err)
	}

	// 3. Response parsing.
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return domain.NetworkError(err)
	}
	var decodeErr *remote.DecodeError
	if errors.As(err, &decodeErr) {
		return domain.NetworkError(err)
	}

	// 4. Business rejection inside a 200 payload.
	var rejection *remote.RejectionError
	if errors.As(err, &rejection) {
		return domain.Declined(rejection.Reason, err)
	}

	// 5. Non-2xx statuses: client errors are definitive rejections, and
	// the remote-supplied message takes precedence over generic text;
	// server errors are transient transport faults.
	var statusErr *remote.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
			return domain.Declined(statusErr.Message, err)
		}
		return domain.NetworkError(err)
	}

	return domain.NetworkError(err)
}
