package content

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed request parameter. Nothing has been queried when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Data integrity kinds reported as diagnostics.
const (
	KindMalformedRecurrence = "malformed-recurrence"
	KindMissingEventRecord  = "missing-event-record"
	KindOrphanedParent      = "orphaned-parent"
	KindParentCycle         = "parent-cycle"
	KindMalformedAttachment = "malformed-attachment"
	KindMissingAttachment   = "missing-attachment"
)

// DataIntegrityError describes inconsistent store data affecting a single item.
// The request still completes; the error is reported as a diagnostic.
type DataIntegrityError struct {
	ItemID int64
	Kind   string
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("item %d: %s: %s", e.ItemID, e.Kind, e.Reason)
}

// UpstreamUnavailableError wraps a failure of the content store.
type UpstreamUnavailableError struct {
	Op  string
	Err error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("content store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Err
}

func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsDataIntegrityError(err error) bool {
	var target *DataIntegrityError
	return errors.As(err, &target)
}

func IsUpstreamUnavailable(err error) bool {
	var target *UpstreamUnavailableError
	return errors.As(err, &target)
}
