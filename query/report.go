package query

import (
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/brunobiangulo/querygen/extraction"
	"github.com/brunobiangulo/querygen/timewindow"
	"github.com/brunobiangulo/querygen/vocab"
)

// Report is the pair of batches produced for a report request.
type Report struct {
	Calculation *Batch
	Prediction  *Batch
	// Code is the prediction pass's code when set, otherwise the
	// calculation pass's.
	Code ErrorCode

	issues *multierror.Error
}

// Issues returns clauses dropped while splitting the report blob plus the
// issues of both passes, or nil.
func (r *Report) Issues() error {
	errs := r.issues
	if err := r.Calculation.Issues(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := r.Prediction.Issues(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// SplitReport rewrites a report blob, whose clauses carry "<calc; predict>"
// time literals, into two ordinary blobs sharing the machine and KPI lists.
// Clauses whose time literal does not split are dropped and returned as the
// error.
func SplitReport(blob string) (calcBlob, predictBlob string, err error) {
	var errs *multierror.Error

	clauses, perr := extraction.Parse(blob)
	if perr != nil {
		errs = multierror.Append(errs, perr)
	}

	calc := make([]extraction.Clause, 0, len(clauses))
	predict := make([]extraction.Clause, 0, len(clauses))
	for _, c := range clauses {
		ct, pt, err := extraction.SplitCompound(c.Time)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		calc = append(calc, extraction.Clause{Machines: c.Machines, KPIs: c.KPIs, Time: ct})
		predict = append(predict, extraction.Clause{Machines: c.Machines, KPIs: c.KPIs, Time: pt})
	}
	return extraction.Format(calc), extraction.Format(predict), errs.ErrorOrNil()
}

// ResolveReport splits blob and runs the calculation and prediction passes in
// parallel against the same snapshot. Like Resolve it never fails.
func ResolveReport(blob string, snap *vocab.Snapshot) *Report {
	r := &Report{}

	calcBlob, predictBlob, err := SplitReport(blob)
	if err != nil {
		r.issues = multierror.Append(r.issues, err)
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		r.Calculation = Resolve(calcBlob, snap, timewindow.Calculation)
	})
	wg.Go(func() {
		r.Prediction = Resolve(predictBlob, snap, timewindow.Prediction)
	})
	wg.Wait()

	// Passes are ordered calculation then prediction regardless of which
	// goroutine finished first.
	r.Code = r.Calculation.Code.merge(r.Prediction.Code)
	return r
}
