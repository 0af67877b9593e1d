package tabular

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Table operations. Statement failures from the
// backing store are wrapped with operation context instead and can be
// unwrapped with errors.As to reach the pgx error.
var (
	// ErrMissingKey means a required key column was absent from both the
	// explicit key overrides and the row being operated on.
	ErrMissingKey = errors.New("missing key column")

	// ErrMultipleRows means a unique-key lookup matched more than one row.
	// This signals a data-integrity problem upstream, not a bug here.
	ErrMultipleRows = errors.New("multiple rows matched unique key")

	// ErrRowVanished means a row that was about to be deleted could not be
	// re-read. Something else removed it between the read and the delete.
	ErrRowVanished = errors.New("row vanished before delete")

	// ErrInvalidChangeType means the ledger was asked to record an
	// unrecognized change type. This is a programming error in the caller.
	ErrInvalidChangeType = errors.New("invalid change type")

	// ErrInvalidFilter means a Query filter had an unknown kind or was
	// missing a required part (column, values).
	ErrInvalidFilter = errors.New("invalid filter")
)

// missingKeyError wraps ErrMissingKey with the column that could not be
// resolved.
func missingKeyError(column string) error {
	return fmt.Errorf("%w: %q", ErrMissingKey, column)
}
