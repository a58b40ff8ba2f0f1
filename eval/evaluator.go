// Package eval measures how well the extraction model turns questions into
// the right records: each test case runs through Engine.Generate and the
// resolved records are compared with the expected ones.
package eval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/querygen"
	"github.com/brunobiangulo/querygen/timewindow"
)

// Evaluator runs evaluation test sets against a QueryGen engine.
type Evaluator struct {
	engine      querygen.Engine
	concurrency int
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(engine querygen.Engine) *Evaluator {
	return &Evaluator{engine: engine, concurrency: 1}
}

// SetConcurrency sets how many test cases run at once.
func (e *Evaluator) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	e.concurrency = n
}

// Report holds the results of an evaluation run.
type Report struct {
	Dataset         string                      `json:"dataset"`
	TotalTests      int                         `json:"total_tests"`
	Passed          int                         `json:"passed"`
	Failed          int                         `json:"failed"`
	Errors          int                         `json:"errors"`
	Metrics         AggregateMetrics            `json:"metrics"`
	CategoryMetrics map[string]AggregateMetrics `json:"category_metrics,omitempty"`
	Results         []TestResult                `json:"results"`
	RunTime         time.Duration               `json:"run_time"`
	TokenUsage      TokenUsage                  `json:"token_usage"`
}

// TokenUsage aggregates LLM token consumption across an evaluation run.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AggregateMetrics holds averaged metrics across all tests.
type AggregateMetrics struct {
	AvgPrecision float64 `json:"avg_precision"`
	AvgRecall    float64 `json:"avg_recall"`
	AvgF1        float64 `json:"avg_f1"`
	CodeAccuracy float64 `json:"code_accuracy"`
}

// TestResult holds the result of a single test case.
type TestResult struct {
	Question     string   `json:"question"`
	Label        string   `json:"label"`
	Category     string   `json:"category,omitempty"`
	Extraction   string   `json:"extraction,omitempty"`
	Missing      []string `json:"missing,omitempty"`
	Unexpected   []string `json:"unexpected,omitempty"`
	Issues       []string `json:"issues,omitempty"`
	Precision    float64  `json:"precision"`
	Recall       float64  `json:"recall"`
	F1           float64  `json:"f1"`
	Code         int      `json:"code"`
	ExpectedCode int      `json:"expected_code"`
	CodeMatch    bool     `json:"code_match"`
	Passed       bool     `json:"passed"`
	Error        string   `json:"error,omitempty"`

	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalTokens      int   `json:"total_tokens"`
	ElapsedMs        int64 `json:"elapsed_ms"`
}

// Run evaluates every test case in dataset. Malformed test cases (unknown
// label, bad date) are returned as an error before anything runs; engine
// failures are recorded per test.
func (e *Evaluator) Run(ctx context.Context, dataset Dataset) (*Report, error) {
	if err := validateDataset(dataset); err != nil {
		return nil, err
	}

	start := time.Now()
	report := &Report{
		Dataset:         dataset.Name,
		TotalTests:      len(dataset.Tests),
		CategoryMetrics: make(map[string]AggregateMetrics),
		Results:         make([]TestResult, len(dataset.Tests)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, test := range dataset.Tests {
		g.Go(func() error {
			result := e.runTest(gctx, dataset, test)
			report.Results[i] = result

			status := "PASS"
			if !result.Passed {
				status = "FAIL"
			}
			if result.Error != "" {
				status = "ERROR"
			}
			slog.Info("eval: test complete",
				"test", i+1,
				"status", status,
				"f1", fmt.Sprintf("%.2f", result.F1),
				"tokens", result.TotalTokens,
				"elapsed_ms", result.ElapsedMs,
				"question", truncate(test.Question, 80))
			return nil
		})
	}
	_ = g.Wait()

	// Per-category accumulators
	catCounts := make(map[string]int)
	catSums := make(map[string]AggregateMetrics)
	metricsCount := 0

	for i, result := range report.Results {
		report.TokenUsage.PromptTokens += result.PromptTokens
		report.TokenUsage.CompletionTokens += result.CompletionTokens
		report.TokenUsage.TotalTokens += result.TotalTokens

		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
		}

		// Errors are excluded from the averages.
		if result.Error != "" {
			report.Errors++
			continue
		}

		metricsCount++
		report.Metrics = report.Metrics.add(result)

		if cat := dataset.Tests[i].Category; cat != "" {
			catCounts[cat]++
			catSums[cat] = catSums[cat].add(result)
		}
	}

	report.Metrics = report.Metrics.div(metricsCount)
	for cat, count := range catCounts {
		report.CategoryMetrics[cat] = catSums[cat].div(count)
	}

	report.RunTime = time.Since(start)
	return report, ctx.Err()
}

func (m AggregateMetrics) add(r TestResult) AggregateMetrics {
	m.AvgPrecision += r.Precision
	m.AvgRecall += r.Recall
	m.AvgF1 += r.F1
	if r.CodeMatch {
		m.CodeAccuracy++
	}
	return m
}

func (m AggregateMetrics) div(n int) AggregateMetrics {
	if n == 0 {
		return AggregateMetrics{}
	}
	f := float64(n)
	return AggregateMetrics{
		AvgPrecision: m.AvgPrecision / f,
		AvgRecall:    m.AvgRecall / f,
		AvgF1:        m.AvgF1 / f,
		CodeAccuracy: m.CodeAccuracy / f,
	}
}

func validateDataset(ds Dataset) error {
	var errs *multierror.Error
	for i, test := range ds.Tests {
		if _, err := querygen.ParseLabel(test.Label); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("test %d: %w", i+1, err))
		}
		if d := referenceDate(ds, test); d != "" {
			if _, err := timewindow.ParseDate(d); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("test %d: reference date %q: %w", i+1, d, err))
			}
		}
	}
	return errs.ErrorOrNil()
}

func referenceDate(ds Dataset, test TestCase) string {
	if test.ReferenceDate != "" {
		return test.ReferenceDate
	}
	return ds.ReferenceDate
}

func (e *Evaluator) runTest(ctx context.Context, ds Dataset, test TestCase) TestResult {
	testStart := time.Now()
	result := TestResult{
		Question:     test.Question,
		Label:        test.Label,
		Category:     test.Category,
		ExpectedCode: test.ExpectedCode,
	}

	label, _ := querygen.ParseLabel(test.Label)
	var opts []querygen.ResolveOption
	if d := referenceDate(ds, test); d != "" {
		t, _ := timewindow.ParseDate(d)
		opts = append(opts, querygen.WithReferenceDate(t))
	}

	res, err := e.engine.Generate(ctx, test.Question, label, opts...)
	if err != nil {
		result.Error = err.Error()
		result.ElapsedMs = time.Since(testStart).Milliseconds()
		return result
	}

	result.Extraction = res.Extraction
	result.Issues = res.Issues
	result.PromptTokens = res.PromptTokens
	result.CompletionTokens = res.CompletionTokens
	result.TotalTokens = res.TotalTokens
	result.Code = int(res.Code)
	result.CodeMatch = result.Code == test.ExpectedCode

	want := expectedKeys(test.Expected)
	got := resultKeys(res)
	result.Precision, result.Recall, result.F1 = computeScores(want, got)
	result.Missing = sorted(want.Difference(got).ToSlice())
	result.Unexpected = sorted(got.Difference(want).ToSlice())

	result.Passed = result.F1 == 1 && result.CodeMatch
	result.ElapsedMs = time.Since(testStart).Milliseconds()
	return result
}

// FormatReport renders a report for a terminal.
func FormatReport(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Evaluation Report: %s ===\n", r.Dataset)
	fmt.Fprintf(&b, "Total: %d | Passed: %d (%.1f%%) | Failed: %d | Errors: %d\n",
		r.TotalTests, r.Passed, passRate(r.Passed, r.TotalTests), r.Failed, r.Errors)
	fmt.Fprintf(&b, "Run time: %s\n\n", r.RunTime.Round(time.Millisecond))

	fmt.Fprintf(&b, "Aggregate Metrics:\n")
	fmt.Fprintf(&b, "  Precision:      %.2f\n", r.Metrics.AvgPrecision)
	fmt.Fprintf(&b, "  Recall:         %.2f\n", r.Metrics.AvgRecall)
	fmt.Fprintf(&b, "  F1:             %.2f\n", r.Metrics.AvgF1)
	fmt.Fprintf(&b, "  Code accuracy:  %.2f\n\n", r.Metrics.CodeAccuracy)

	fmt.Fprintf(&b, "Token Usage:\n")
	fmt.Fprintf(&b, "  Prompt:     %d\n", r.TokenUsage.PromptTokens)
	fmt.Fprintf(&b, "  Completion: %d\n", r.TokenUsage.CompletionTokens)
	fmt.Fprintf(&b, "  Total:      %d\n\n", r.TokenUsage.TotalTokens)

	// Per-category breakdown (sorted for deterministic output)
	if len(r.CategoryMetrics) > 0 {
		cats := make([]string, 0, len(r.CategoryMetrics))
		for cat := range r.CategoryMetrics {
			cats = append(cats, cat)
		}
		sort.Strings(cats)

		fmt.Fprintf(&b, "Per-Category Metrics:\n")
		for _, cat := range cats {
			m := r.CategoryMetrics[cat]
			fmt.Fprintf(&b, "  [%s] P=%.2f R=%.2f F1=%.2f Code=%.2f\n",
				cat, m.AvgPrecision, m.AvgRecall, m.AvgF1, m.CodeAccuracy)
		}
		fmt.Fprintln(&b)
	}

	for i, res := range r.Results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %d. (%s) %s\n", status, i+1, res.Label, res.Question)
		if res.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", res.Error)
			continue
		}
		fmt.Fprintf(&b, "  P=%.2f R=%.2f F1=%.2f code=%d/%d  (%dms)\n",
			res.Precision, res.Recall, res.F1, res.Code, res.ExpectedCode, res.ElapsedMs)
		for _, m := range res.Missing {
			fmt.Fprintf(&b, "  - missing    %s\n", m)
		}
		for _, u := range res.Unexpected {
			fmt.Fprintf(&b, "  - unexpected %s\n", u)
		}
	}

	return b.String()
}

func passRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total) * 100
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func sorted(s []string) []string {
	sort.Strings(s)
	return s
}
