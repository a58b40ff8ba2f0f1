// Package query turns parsed extraction clauses into the flat request records
// consumed by the calculation and prediction services.
package query

import (
	"fmt"
	"log/slog"

	"github.com/brunobiangulo/querygen/extraction"
	"github.com/brunobiangulo/querygen/timewindow"
	"github.com/brunobiangulo/querygen/vocab"
)

// Build turns one clause into records.
//
// A KPI list that is exactly ALL or NULL yields no records and the matching
// error code. An invalid time window yields no records and a non-nil error;
// that is a per-clause skip, not a batch failure.
func Build(c extraction.Clause, snap *vocab.Snapshot, mode timewindow.Mode) ([]Record, ErrorCode, error) {
	kpis := snap.SelectKPIs(c.KPIs)
	switch kpis.Kind {
	case vocab.All:
		return nil, CodeAllKpisRequested, nil
	case vocab.None:
		return nil, CodeNoKpisMatched, nil
	}

	window, err := timewindow.Resolve(c.Time, mode, snap.ReferenceDate())
	if err != nil {
		return nil, CodeNone, err
	}

	machines := snap.SelectMachines(c.Machines)
	if machines.Kind == vocab.All && mode == timewindow.Prediction {
		// The prediction service only takes concrete machines.
		machines = vocab.LiteralOf(snap.Machines()...)
	}

	var records []Record
	if machines.Kind == vocab.Literal {
		records = make([]Record, 0, len(machines.IDs)*len(kpis.IDs))
		for _, m := range machines.IDs {
			for _, k := range kpis.IDs {
				records = append(records, Record{Machine: m, KPI: k, Window: window})
			}
		}
		return records, CodeNone, nil
	}

	// NULL machines, or ALL machines for a calculation: one record per KPI
	// and the machine scope is left to the service.
	records = make([]Record, 0, len(kpis.IDs))
	for _, k := range kpis.IDs {
		records = append(records, Record{KPI: k, Window: window})
	}
	return records, CodeNone, nil
}

// Resolve parses blob and builds one batch for mode. It never fails: clauses
// that cannot be parsed or resolved are dropped and reported through
// Batch.Issues.
func Resolve(blob string, snap *vocab.Snapshot, mode timewindow.Mode) *Batch {
	b := newBatch(mode)

	clauses, err := extraction.Parse(blob)
	if err != nil {
		b.addIssue(err)
	}

	for _, c := range clauses {
		records, code, err := Build(c, snap, mode)
		if err != nil {
			b.addIssue(fmt.Errorf("clause %s: %w", c.Time, err))
			continue
		}
		b.Code = b.Code.merge(code)
		b.Records = append(b.Records, records...)
	}

	slog.Debug("query: batch resolved",
		"mode", mode, "clauses", len(clauses), "records", len(b.Records), "code", b.Code)
	return b
}
