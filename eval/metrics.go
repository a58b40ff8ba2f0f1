package eval

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/brunobiangulo/querygen"
	"github.com/brunobiangulo/querygen/query"
	"github.com/brunobiangulo/querygen/timewindow"
)

// key identifies a record by everything the downstream service sees.
func (r ExpectedRecord) key() string {
	if r.Horizon > 0 {
		return fmt.Sprintf("%s|%s|+%d", r.Machine, r.KPI, r.Horizon)
	}
	return fmt.Sprintf("%s|%s|%s..%s", r.Machine, r.KPI, r.Start, r.End)
}

func recordKey(r query.Record) string {
	if r.Window.Kind == timewindow.Horizon {
		return ExpectedRecord{Machine: r.Machine, KPI: r.KPI, Horizon: r.Window.Days}.key()
	}
	return ExpectedRecord{Machine: r.Machine, KPI: r.KPI, Start: r.Window.StartDate(), End: r.Window.EndDate()}.key()
}

// resultKeys returns the keys of every record in res across both batches.
func resultKeys(res *querygen.Result) mapset.Set[string] {
	keys := mapset.NewThreadUnsafeSet[string]()
	for _, b := range []*query.Batch{res.Calculation, res.Prediction} {
		if b == nil {
			continue
		}
		for _, r := range b.Records {
			keys.Add(recordKey(r))
		}
	}
	return keys
}

func expectedKeys(expected []ExpectedRecord) mapset.Set[string] {
	keys := mapset.NewThreadUnsafeSet[string]()
	for _, r := range expected {
		keys.Add(r.key())
	}
	return keys
}

// computeScores returns precision, recall and F1 of got against want. Two
// empty sets score 1 on all three: expecting nothing and producing nothing
// is correct.
func computeScores(want, got mapset.Set[string]) (precision, recall, f1 float64) {
	if want.Cardinality() == 0 && got.Cardinality() == 0 {
		return 1, 1, 1
	}
	hits := float64(want.Intersect(got).Cardinality())
	if got.Cardinality() > 0 {
		precision = hits / float64(got.Cardinality())
	}
	if want.Cardinality() > 0 {
		recall = hits / float64(want.Cardinality())
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}
