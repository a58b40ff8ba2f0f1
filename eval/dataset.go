package eval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Dataset is a collection of test cases for evaluation.
type Dataset struct {
	Name string `json:"name" yaml:"name"`
	// ReferenceDate pins "today" for every test that does not set its own.
	ReferenceDate string     `json:"reference_date,omitempty" yaml:"reference_date,omitempty"`
	Tests         []TestCase `json:"tests" yaml:"tests"`
}

// TestCase defines a single evaluation question and the records a correct
// extraction resolves to.
type TestCase struct {
	Question      string           `json:"question" yaml:"question"`
	Label         string           `json:"label" yaml:"label"` // kpi_calc, predictions, report
	ReferenceDate string           `json:"reference_date,omitempty" yaml:"reference_date,omitempty"`
	Expected      []ExpectedRecord `json:"expected" yaml:"expected"`
	ExpectedCode  int              `json:"expected_code,omitempty" yaml:"expected_code,omitempty"`
	Category      string           `json:"category,omitempty" yaml:"category,omitempty"`
	Explanation   string           `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// ExpectedRecord is one record the resolution should contain. Calculation
// records set Start and End; prediction records set Horizon.
type ExpectedRecord struct {
	Machine string `json:"machine,omitempty" yaml:"machine,omitempty"`
	KPI     string `json:"kpi" yaml:"kpi"`
	Start   string `json:"start,omitempty" yaml:"start,omitempty"`
	End     string `json:"end,omitempty" yaml:"end,omitempty"`
	Horizon int    `json:"horizon,omitempty" yaml:"horizon,omitempty"`
}

// LoadDataset reads a dataset from a YAML or JSON file.
func LoadDataset(path string) (Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("reading dataset: %w", err)
	}
	var ds Dataset
	if err := yaml.Unmarshal(b, &ds); err != nil {
		return Dataset{}, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	if len(ds.Tests) == 0 {
		return Dataset{}, fmt.Errorf("dataset %s has no tests", path)
	}
	if ds.Name == "" {
		ds.Name = path
	}
	return ds, nil
}

// PlantDataset returns sample test cases against the assembly-line plant
// vocabulary (Assembly Machine 1-3, Laser Cutter; working_time, idle_time,
// consumption_avg) with today pinned to 2024-10-19.
func PlantDataset() Dataset {
	return Dataset{
		Name:          "Plant - KPI extraction",
		ReferenceDate: "2024-10-19",
		Tests: []TestCase{
			{
				Question: "What was the idle time of the laser cutter over the last 5 days?",
				Label:    "kpi_calc",
				Expected: []ExpectedRecord{
					{Machine: "Laser Cutter", KPI: "idle_time", Start: "2024-10-14", End: "2024-10-18"},
				},
				Category: "single",
			},
			{
				Question: "Working time of assembly machines in September",
				Label:    "kpi_calc",
				Expected: []ExpectedRecord{
					{Machine: "Assembly Machine 1", KPI: "working_time", Start: "2024-09-01", End: "2024-09-30"},
					{Machine: "Assembly Machine 2", KPI: "working_time", Start: "2024-09-01", End: "2024-09-30"},
					{Machine: "Assembly Machine 3", KPI: "working_time", Start: "2024-09-01", End: "2024-09-30"},
				},
				Category:    "machine-type",
				Explanation: "A machine type without a number expands to every machine of that type.",
			},
			{
				Question: "Average consumption of all machines yesterday",
				Label:    "kpi_calc",
				Expected: []ExpectedRecord{
					{KPI: "consumption_avg", Start: "2024-10-18", End: "2024-10-18"},
				},
				Category:    "all-machines",
				Explanation: "All machines in a calculation leaves the machine unset.",
			},
			{
				Question: "Predict the working time of assembly machine 2 for the next 10 days",
				Label:    "predictions",
				Expected: []ExpectedRecord{
					{Machine: "Assembly Machine 2", KPI: "working_time", Horizon: 10},
				},
				Category: "single",
			},
			{
				Question:     "Calculate every kpi for the laser cutter",
				Label:        "kpi_calc",
				ExpectedCode: 1,
				Category:     "error-code",
			},
			{
				Question: "Report on the laser cutter idle time for the last 5 days and the next 3 days",
				Label:    "report",
				Expected: []ExpectedRecord{
					{Machine: "Laser Cutter", KPI: "idle_time", Start: "2024-10-14", End: "2024-10-18"},
					{Machine: "Laser Cutter", KPI: "idle_time", Horizon: 3},
				},
				Category: "report",
			},
		},
	}
}
