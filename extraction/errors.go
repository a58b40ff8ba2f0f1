package extraction

import (
	"errors"
	"fmt"
)

var (
	// ErrUnparseableClause marks a clause that could not be split into its
	// three positional fields. The clause is dropped.
	ErrUnparseableClause = errors.New("extraction: unparseable clause")

	// ErrCompoundTime marks a report clause whose time field is not a
	// "<calc; predict>" pair.
	ErrCompoundTime = errors.New("extraction: malformed compound time literal")
)

// Field names a positional field of a clause.
type Field string

const (
	FieldClause   Field = "clause"
	FieldMachines Field = "machines"
	FieldKPIs     Field = "kpis"
	FieldTime     Field = "time"
)

// ClauseError describes why one clause was dropped.
type ClauseError struct {
	Index  int    // zero-based position of the clause in the blob
	Field  Field  // field that failed to parse
	Offset int    // byte offset inside the clause text
	Text   string // the clause text, for logging
	Reason string
}

func (e *ClauseError) Error() string {
	return fmt.Sprintf("clause %d: %s at offset %d: %s", e.Index, e.Field, e.Offset, e.Reason)
}

func (e *ClauseError) Unwrap() error { return ErrUnparseableClause }
