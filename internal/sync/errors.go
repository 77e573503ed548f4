// ABOUTME: Error types raised by sync passes.
// ABOUTME: StoreError marks local repository failures so they are surfaced, not retried.
package sync

import "errors"

// StoreError wraps a local repository failure inside a sync pass.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "local store: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsStoreError reports whether err came from the local repository.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
