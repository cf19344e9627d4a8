package consolidator

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingBusinessKey marks a row without a resolvable ETC number.
	// The row is skipped; the batch continues.
	ErrMissingBusinessKey = errors.New("missing business key")

	// ErrMissingTemplateHint marks a row whose email-template column is
	// empty. It aborts the whole batch.
	ErrMissingTemplateHint = errors.New("missing email template")

	// ErrNoVehicles is raised by finalization for a record that has no
	// vehicles. Admission makes this unreachable.
	ErrNoVehicles = errors.New("customer record has no vehicles")
)

// RowError identifies the row that caused an admission error.
type RowError struct {
	BusinessKey string
	SourceFile  string
	Line        int
	Err         error
}

func (e *RowError) Error() string {
	if e.BusinessKey == "" {
		return fmt.Sprintf("%s row %d: %v", e.SourceFile, e.Line, e.Err)
	}
	return fmt.Sprintf("ETC %s in %s row %d: %v", e.BusinessKey, e.SourceFile, e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort the batch.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMissingTemplateHint) || errors.Is(err, ErrNoVehicles)
}
