// ABOUTME: ValidationError reports remote records skipped during reconciliation.
// ABOUTME: Skips are logged and collected but never abort the rest of the merge.
package merge

import (
	"fmt"

	"github.com/harperreed/gym/internal/models"
)

// ValidationError describes a remote record the merge could not use.
// RemoteID is zero when the whole document was rejected.
type ValidationError struct {
	Entity   models.EntityType
	RemoteID int64
	Reason   string
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Entity == "" {
		if e.Err != nil {
			return fmt.Sprintf("invalid remote document: %s: %v", e.Reason, e.Err)
		}
		return "invalid remote document: " + e.Reason
	}
	return fmt.Sprintf("skipped remote %s %d: %s", e.Entity, e.RemoteID, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
