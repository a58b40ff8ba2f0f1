package query

import (
	"encoding/json"

	"github.com/brunobiangulo/querygen/timewindow"
)

// Record is the smallest unit sent to a downstream service. Machine is empty
// when the request applies to all or unspecified machines.
type Record struct {
	Machine string
	KPI     string
	Window  timewindow.Window
}

// CalculationRecord is the calculation service's wire shape.
type CalculationRecord struct {
	Machine    string `json:"Machine_Name,omitempty" yaml:"Machine_Name,omitempty"`
	KPI        string `json:"KPI_Name" yaml:"KPI_Name"`
	DateStart  string `json:"Date_Start" yaml:"Date_Start"`
	DateFinish string `json:"Date_Finish" yaml:"Date_Finish"`
}

// PredictionRecord is the prediction service's wire shape.
type PredictionRecord struct {
	Machine string `json:"Machine_Name,omitempty" yaml:"Machine_Name,omitempty"`
	KPI     string `json:"KPI_Name" yaml:"KPI_Name"`
	Horizon int    `json:"Date_prediction" yaml:"Date_prediction"`
}

// PredictionRequest wraps prediction records in the container the
// prediction service expects.
type PredictionRequest struct {
	Value []PredictionRecord `json:"value" yaml:"value"`
}

// Wire returns the record's downstream shape.
func (r Record) Wire() any {
	if r.Window.Kind == timewindow.Horizon {
		return PredictionRecord{Machine: r.Machine, KPI: r.KPI, Horizon: r.Window.Days}
	}
	return CalculationRecord{
		Machine:    r.Machine,
		KPI:        r.KPI,
		DateStart:  r.Window.StartDate(),
		DateFinish: r.Window.EndDate(),
	}
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Wire())
}
