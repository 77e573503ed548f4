// ABOUTME: Error taxonomy for remote store calls.
// ABOUTME: Classifies HTTP and transport failures into auth, not-found and transient errors.
package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/github"
	"github.com/pkg/errors"
)

// ErrNotFound means the remote document does not exist. Fetch translates it
// into a nil document; it never reaches callers of Store.
var ErrNotFound = errors.New("remote document not found")

// ErrUpsertInFlight is returned when another upsert is already running.
// The request is dropped, not queued.
var ErrUpsertInFlight = errors.New("remote upsert already in flight")

// AuthError reports a rejected or missing credential.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("remote rejected credentials (%d): %v", e.StatusCode, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransientError reports a failure worth retrying later. Network is set for
// transport failures, timeouts, rate limiting and 5xx responses.
type TransientError struct {
	StatusCode int
	Network    bool
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("remote unreachable: %v", e.Err)
	}
	return fmt.Sprintf("remote error (%d): %v", e.StatusCode, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsNetwork reports whether err is a network-class TransientError.
func IsNetwork(err error) bool {
	var te *TransientError
	return errors.As(err, &te) && te.Network
}

// classify maps a go-github error onto the taxonomy. A 404 becomes
// ErrNotFound; callers that cannot tolerate a missing document convert it.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return &TransientError{StatusCode: statusOf(rle.Response), Network: true, Err: errors.Wrap(err, op)}
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return &TransientError{StatusCode: statusOf(abuse.Response), Network: true, Err: errors.Wrap(err, op)}
	}

	var er *github.ErrorResponse
	if errors.As(err, &er) {
		return classifyStatus(op, statusOf(er.Response), err)
	}

	return &TransientError{Network: true, Err: errors.Wrap(err, op)}
}

func classifyStatus(op string, code int, err error) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &AuthError{StatusCode: code, Err: errors.Wrap(err, op)}
	case code == http.StatusNotFound:
		return errors.Wrap(ErrNotFound, op)
	default:
		network := code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
		return &TransientError{StatusCode: code, Network: network, Err: errors.Wrap(err, op)}
	}
}

// unexpected converts a 404 into a plain transient failure for calls where
// a missing resource is not a valid outcome.
func unexpected(err error) error {
	if errors.Is(err, ErrNotFound) {
		return &TransientError{StatusCode: http.StatusNotFound, Err: err}
	}
	return err
}

// contextErr classifies an error raised before any request was sent.
func contextErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &TransientError{Network: true, Err: ctx.Err()}
	}
	return err
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
