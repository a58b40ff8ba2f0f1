package query

import "fmt"

// ErrorCode is the batch-level degraded-input signal. A batch carries at most
// one; a later clause overwrites an earlier one.
type ErrorCode int

const (
	CodeNone             ErrorCode = 0
	CodeAllKpisRequested ErrorCode = 1
	CodeNoKpisMatched    ErrorCode = 2
)

func (c ErrorCode) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeAllKpisRequested:
		return "all_kpis_requested"
	case CodeNoKpisMatched:
		return "no_kpis_matched"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Message is the user-facing explanation appended to the answer.
func (c ErrorCode) Message() string {
	switch c {
	case CodeAllKpisRequested:
		return "You can't calculate/predict for all kpis, try again with less kpis."
	case CodeNoKpisMatched:
		return "You can't calculate/predict for no kpis, try again with at least one kpi."
	default:
		return ""
	}
}

// merge applies last-write-wins: a set code replaces the current one, an
// unset code leaves it alone.
func (c ErrorCode) merge(next ErrorCode) ErrorCode {
	if next != CodeNone {
		return next
	}
	return c
}
