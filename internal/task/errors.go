package task

import (
	"errors"
	"fmt"
)

var (
	// ErrParse covers malformed records and missing required fields.
	ErrParse = errors.New("parse error")
	// ErrDuplicateTaskID is returned when two records share an id.
	ErrDuplicateTaskID = errors.New("duplicate task id")
)

// ParseError wraps a record-level validation failure with its position in
// the plan so the caller can point at the offending record.
type ParseError struct {
	Kind  error
	Index int    // zero-based record position
	ID    string // task id if known
	Msg   string
}

func (e *ParseError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: record %d (%s): %s", e.Kind.Error(), e.Index, e.ID, e.Msg)
	}
	return fmt.Sprintf("%s: record %d: %s", e.Kind.Error(), e.Index, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Kind }

func parseErrorf(index int, id, format string, args ...any) error {
	return &ParseError{Kind: ErrParse, Index: index, ID: id, Msg: fmt.Sprintf(format, args...)}
}

func duplicateError(index int, id string) error {
	return &ParseError{Kind: ErrDuplicateTaskID, Index: index, ID: id, Msg: "id already declared"}
}
