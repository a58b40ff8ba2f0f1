package query

import (
	"encoding/json"

	"github.com/hashicorp/go-multierror"

	"github.com/brunobiangulo/querygen/timewindow"
)

// Batch is the set of records produced from one extraction blob for one
// downstream service, plus the batch-level error code.
type Batch struct {
	Mode    timewindow.Mode
	Records []Record
	Code    ErrorCode

	issues *multierror.Error
}

func newBatch(mode timewindow.Mode) *Batch {
	return &Batch{Mode: mode, Records: []Record{}}
}

// Issues returns the non-fatal problems met while building the batch
// (dropped clauses, invalid windows) or nil. The records are valid either
// way.
func (b *Batch) Issues() error {
	return b.issues.ErrorOrNil()
}

func (b *Batch) addIssue(err error) {
	b.issues = multierror.Append(b.issues, err)
}

// Calculation returns the records in the calculation service's bare-list
// shape. Records that do not carry a Range are skipped.
func (b *Batch) Calculation() []CalculationRecord {
	out := make([]CalculationRecord, 0, len(b.Records))
	for _, r := range b.Records {
		if w, ok := r.Wire().(CalculationRecord); ok {
			out = append(out, w)
		}
	}
	return out
}

// Prediction returns the records in the prediction service's wrapped shape.
// Records that do not carry a Horizon are skipped.
func (b *Batch) Prediction() PredictionRequest {
	req := PredictionRequest{Value: make([]PredictionRecord, 0, len(b.Records))}
	for _, r := range b.Records {
		if w, ok := r.Wire().(PredictionRecord); ok {
			req.Value = append(req.Value, w)
		}
	}
	return req
}

// Payload returns the request body for the batch's downstream service.
func (b *Batch) Payload() any {
	if b.Mode == timewindow.Prediction {
		return b.Prediction()
	}
	return b.Calculation()
}

func (b *Batch) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Payload())
}

func (b *Batch) MarshalYAML() (any, error) {
	return b.Payload(), nil
}
