// Package extraction parses the informal tuple grammar emitted by the
// extraction model:
//
//	OUTPUT: (['Machine A', 'Machine B'], ['kpi_x'], <last, 2, weeks>), (...)
//
// Each clause carries a machine list, a KPI list and a time literal. The
// producer is a language model, so the parser tolerates mixed quoting, stray
// whitespace, missing brackets and chatter around the tuples. A clause that
// cannot be read is dropped and reported; it never aborts the others.
package extraction

import (
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Marker is the label that precedes the tuple list.
const Marker = "OUTPUT:"

// Clause is one (machines, kpis, time) unit in blob order.
type Clause struct {
	Machines []string `json:"machines" yaml:"machines"`
	KPIs     []string `json:"kpis" yaml:"kpis"`
	Time     string   `json:"time" yaml:"time"`
}

// Parse splits blob into clauses. The returned error, when non-nil, is a
// *multierror.Error of *ClauseError values for dropped clauses; the clauses
// that did parse are returned regardless.
func Parse(blob string) ([]Clause, error) {
	var (
		clauses []Clause
		errs    *multierror.Error
	)
	for i, text := range splitClauses(stripMarker(blob)) {
		c, err := parseClause(text)
		if err != nil {
			err.Index = i
			err.Text = text
			errs = multierror.Append(errs, err)
			continue
		}
		clauses = append(clauses, c)
	}
	return clauses, errs.ErrorOrNil()
}

// stripMarker drops everything up to and including the last OUTPUT: label.
// Models sometimes echo the instructions before answering.
func stripMarker(blob string) string {
	for i := len(blob) - len(Marker); i >= 0; i-- {
		if strings.EqualFold(blob[i:i+len(Marker)], Marker) {
			return blob[i+len(Marker):]
		}
	}
	return blob
}

// splitClauses returns the text inside each top-level parenthesised group.
// Text between groups is ignored. A group left open runs until the next '('
// outside a list, or to the end of the input.
func splitClauses(s string) []string {
	var out []string
	i := strings.IndexByte(s, '(')
	for i >= 0 {
		end, next := groupEnd(s, i+1)
		out = append(out, s[i+1:end])
		if next < 0 {
			break
		}
		rel := strings.IndexByte(s[next:], '(')
		if rel < 0 {
			break
		}
		i = next + rel
	}
	return out
}

// groupEnd scans a group body starting at from. It returns where the body
// ends and where scanning resumes, or -1 when the input is exhausted. Lists
// never nest, so any '[' opens and any ']' closes the current list.
func groupEnd(s string, from int) (end, next int) {
	inList := false
	for i := from; i < len(s); i++ {
		switch c := s[i]; {
		case c == '[':
			inList = true
		case c == ']':
			inList = false
		case inList:
			// Identifiers may contain parentheses.
		case c == ')':
			return i, i + 1
		case c == '(':
			return i, i
		}
	}
	return len(s), -1
}

func parseClause(text string) (Clause, *ClauseError) {
	p := &parser{src: text}
	var c Clause

	machines, err := p.list(FieldMachines)
	if err != nil {
		return Clause{}, err
	}
	if err := p.expect(',', FieldMachines); err != nil {
		return Clause{}, err
	}
	kpis, err := p.list(FieldKPIs)
	if err != nil {
		return Clause{}, err
	}
	if err := p.expect(',', FieldKPIs); err != nil {
		return Clause{}, err
	}
	// A missing ')' leaves the separator comma on the literal.
	lit := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(p.rest()), ","))
	if lit == "" {
		return Clause{}, p.fail(FieldTime, "missing time literal")
	}

	c.Machines = machines
	c.KPIs = kpis
	c.Time = lit
	return c, nil
}
