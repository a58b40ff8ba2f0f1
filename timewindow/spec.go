package timewindow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidWindow marks a time expression that is malformed or
	// inconsistent with the query mode. The owning clause is dropped.
	ErrInvalidWindow = errors.New("timewindow: invalid window")
)

// SpecKind tags the variant held by a Spec.
type SpecKind int

const (
	SpecInvalid SpecKind = iota
	SpecNull
	SpecAbsolute
	SpecRelative
)

// Spec is a decoded time literal.
type Spec struct {
	Kind SpecKind

	// Absolute bounds, as written.
	Start string
	End   string

	// Relative expression.
	Direction Direction
	Amount    int
	Unit      Unit

	// Reason explains a SpecInvalid decode.
	Reason string
}

func invalidSpec(format string, args ...any) Spec {
	return Spec{Kind: SpecInvalid, Reason: fmt.Sprintf(format, args...)}
}

// MaxAmount caps N in a relative window. Larger values are rejected before
// any date arithmetic.
const MaxAmount = 10000

// Decode parses one time literal:
//
//	NULL
//	YYYY-MM-DD -> YYYY-MM-DD
//	<last|next, N, days|weeks|months>
//
// Surrounding quotes, whitespace and letter case are ignored. Decode never
// fails; unrecognised input yields SpecInvalid with a Reason.
func Decode(literal string) Spec {
	s := unquote(strings.TrimSpace(literal))
	switch {
	case s == "":
		return invalidSpec("empty time literal")
	case strings.EqualFold(s, "NULL"):
		return Spec{Kind: SpecNull}
	case strings.HasPrefix(s, "<"):
		return decodeRelative(s)
	case strings.Contains(s, "->"):
		start, end, _ := strings.Cut(s, "->")
		return Spec{
			Kind:  SpecAbsolute,
			Start: strings.TrimSpace(start),
			End:   strings.TrimSpace(end),
		}
	default:
		return invalidSpec("unrecognised time literal %q", s)
	}
}

func decodeRelative(s string) Spec {
	if !strings.HasSuffix(s, ">") {
		return invalidSpec("unterminated relative window %q", s)
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) != 3 {
		return invalidSpec("relative window %q needs 3 fields, got %d", s, len(parts))
	}
	for i := range parts {
		parts[i] = strings.ToLower(unquote(strings.TrimSpace(parts[i])))
	}

	var spec Spec
	spec.Kind = SpecRelative
	switch parts[0] {
	case "last", "past", "previous":
		spec.Direction = Last
	case "next", "following":
		spec.Direction = Next
	default:
		return invalidSpec("unknown direction %q", parts[0])
	}

	n, err := strconv.Atoi(parts[1])
	if err != nil || n < 0 {
		return invalidSpec("bad amount %q", parts[1])
	}
	if n > MaxAmount {
		return invalidSpec("amount %d exceeds %d", n, MaxAmount)
	}
	spec.Amount = n

	switch strings.TrimSuffix(parts[2], "s") {
	case "day":
		spec.Unit = Days
	case "week":
		spec.Unit = Weeks
	case "month":
		spec.Unit = Months
	default:
		return invalidSpec("unknown unit %q", parts[2])
	}
	return spec
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '\'' || first == '"' || first == '`') {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

// Resolve decodes literal and resolves it for mode against the reference
// date ref. An invalid or mode-inconsistent literal yields an Invalid window
// and an error wrapping ErrInvalidWindow.
func Resolve(literal string, mode Mode, ref time.Time) (Window, error) {
	return ResolveSpec(Decode(literal), mode, ref)
}

// ResolveSpec resolves an already decoded Spec.
func ResolveSpec(spec Spec, mode Mode, ref time.Time) (Window, error) {
	ref = Truncate(ref)
	switch spec.Kind {
	case SpecNull:
		if mode == Prediction {
			return ResolveDays(ref, Next, DefaultDays), nil
		}
		return ResolveDays(ref, Last, DefaultDays), nil
	case SpecAbsolute:
		return resolveAbsolute(spec, mode, ref)
	case SpecRelative:
		return resolveRelative(spec, mode, ref)
	default:
		return Window{}, fmt.Errorf("%w: %s", ErrInvalidWindow, spec.Reason)
	}
}

func resolveAbsolute(spec Spec, mode Mode, ref time.Time) (Window, error) {
	start, err := ParseDate(spec.Start)
	if err != nil {
		return Window{}, fmt.Errorf("%w: start %q: %v", ErrInvalidWindow, spec.Start, err)
	}
	end, err := ParseDate(spec.End)
	if err != nil {
		return Window{}, fmt.Errorf("%w: end %q: %v", ErrInvalidWindow, spec.End, err)
	}
	if end.Before(start) {
		return Window{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidWindow, spec.End, spec.Start)
	}

	ahead := daysBetween(ref, end)
	switch mode {
	case Prediction:
		if ahead <= 0 {
			return Window{}, fmt.Errorf("%w: prediction window ends on or before %s",
				ErrInvalidWindow, ref.Format(DateLayout))
		}
		return NewHorizon(ahead), nil
	default:
		if !start.Before(ref) {
			return Window{}, fmt.Errorf("%w: calculation window starts on or after %s",
				ErrInvalidWindow, ref.Format(DateLayout))
		}
		// Only the part before the reference date can be calculated.
		if ahead >= 0 {
			end = addDays(ref, -1)
		}
		return NewRange(start, end), nil
	}
}

func resolveRelative(spec Spec, mode Mode, ref time.Time) (Window, error) {
	if spec.Direction == Last && mode == Prediction {
		return Window{}, fmt.Errorf("%w: %q window in a prediction query", ErrInvalidWindow, spec.Direction)
	}
	if spec.Direction == Next && mode == Calculation {
		return Window{}, fmt.Errorf("%w: %q window in a calculation query", ErrInvalidWindow, spec.Direction)
	}
	if spec.Amount == 0 {
		return Window{}, fmt.Errorf("%w: zero-length window", ErrInvalidWindow)
	}
	if spec.Amount > MaxAmount {
		return Window{}, fmt.Errorf("%w: amount %d exceeds %d", ErrInvalidWindow, spec.Amount, MaxAmount)
	}

	var w Window
	switch spec.Unit {
	case Weeks:
		w = ResolveWeeks(ref, spec.Direction, spec.Amount)
	case Months:
		w = ResolveMonths(ref, spec.Direction, spec.Amount)
	default:
		w = ResolveDays(ref, spec.Direction, spec.Amount)
	}
	switch {
	case w.Kind == Horizon && w.Days <= 0:
		return Window{}, fmt.Errorf("%w: non-positive horizon %d", ErrInvalidWindow, w.Days)
	case w.Kind == Range && (w.End.Before(w.Start) || !w.End.Before(ref)):
		return Window{}, fmt.Errorf("%w: bad range %s", ErrInvalidWindow, w)
	}
	return w, nil
}
