package extraction

import (
	"fmt"
	"strings"
)

// Format renders clauses back into the tuple grammar, prefixed by Marker.
// Clauses produced by Parse survive a Format/Parse round trip.
func Format(clauses []Clause) string {
	var b strings.Builder
	b.WriteString(Marker)
	b.WriteByte(' ')
	for i, c := range clauses {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		writeList(&b, c.Machines)
		b.WriteString(", ")
		writeList(&b, c.KPIs)
		b.WriteString(", ")
		b.WriteString(c.Time)
		b.WriteByte(')')
	}
	return b.String()
}

func writeList(b *strings.Builder, items []string) {
	b.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		q := byte('\'')
		if strings.IndexByte(item, '\'') >= 0 {
			q = '"'
		}
		b.WriteByte(q)
		b.WriteString(item)
		b.WriteByte(q)
	}
	b.WriteByte(']')
}

// SplitCompound splits a report time literal "<calc; predict>" into its
// calculation and prediction halves. Either half may itself be a relative
// "<...>" expression, an absolute range or NULL.
func SplitCompound(literal string) (calc, predict string, err error) {
	s := strings.TrimSpace(literal)
	if len(s) < 2 || s[0] != '<' || s[len(s)-1] != '>' {
		return "", "", fmt.Errorf("%w: %q is not enclosed in <>", ErrCompoundTime, literal)
	}
	inner := s[1 : len(s)-1]

	depth := 0
	split := -1
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '<':
			depth++
		case '>':
			if i > 0 && inner[i-1] == '-' {
				continue
			}
			if depth > 0 {
				depth--
			}
		case ';':
			if depth == 0 {
				if split >= 0 {
					return "", "", fmt.Errorf("%w: %q has more than two parts", ErrCompoundTime, literal)
				}
				split = i
			}
		}
	}
	if split < 0 {
		return "", "", fmt.Errorf("%w: %q has no ';' separator", ErrCompoundTime, literal)
	}

	calc = strings.TrimSpace(inner[:split])
	predict = strings.TrimSpace(inner[split+1:])
	if calc == "" || predict == "" {
		return "", "", fmt.Errorf("%w: %q has an empty part", ErrCompoundTime, literal)
	}
	return calc, predict, nil
}
