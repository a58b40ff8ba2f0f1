// Package querygen turns extraction text, the tuple list a language model
// writes for a plant-operations question, into request batches for the KPI
// calculation and prediction services.
package querygen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/brunobiangulo/querygen/extractor"
	"github.com/brunobiangulo/querygen/llm"
	"github.com/brunobiangulo/querygen/ontology"
	"github.com/brunobiangulo/querygen/query"
	"github.com/brunobiangulo/querygen/store"
	"github.com/brunobiangulo/querygen/timewindow"
	"github.com/brunobiangulo/querygen/vocab"
)

// Engine is the main entry point for query generation.
type Engine interface {
	// Resolve turns extraction text into the batches for label.
	Resolve(ctx context.Context, label Label, text string, opts ...ResolveOption) (*Result, error)

	// Generate asks the chat model for extraction text answering question
	// and resolves it against the same vocabulary snapshot.
	Generate(ctx context.Context, question string, label Label, opts ...ResolveOption) (*Result, error)

	// Vocabulary returns the current machine and KPI identifiers.
	Vocabulary(ctx context.Context) (*Vocabulary, error)

	// ImportOntology replaces the stored vocabulary with the graph in path.
	ImportOntology(ctx context.Context, path string) (*ontology.ImportStats, error)

	// History returns the most recent logged resolutions, newest first.
	History(ctx context.Context, limit int) ([]store.QueryLog, error)

	// Store returns the underlying store for diagnostic access.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// Label names the downstream service a request is for.
type Label string

const (
	LabelKPICalc     Label = "kpi_calc"
	LabelPredictions Label = "predictions"
	LabelReport      Label = "report"
)

// ParseLabel accepts the three label names, ignoring case and surrounding
// space.
func ParseLabel(s string) (Label, error) {
	switch l := Label(strings.ToLower(strings.TrimSpace(s))); l {
	case LabelKPICalc, LabelPredictions, LabelReport:
		return l, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLabel, s)
	}
}

func (l Label) task() extractor.Task {
	switch l {
	case LabelPredictions:
		return extractor.TaskPrediction
	case LabelReport:
		return extractor.TaskReport
	default:
		return extractor.TaskCalculation
	}
}

// Result is the outcome of one resolution. Calculation is set for kpi_calc
// and report, Prediction for predictions and report.
type Result struct {
	RequestID     string          `json:"request_id" yaml:"request_id"`
	Label         Label           `json:"label" yaml:"label"`
	ReferenceDate string          `json:"reference_date" yaml:"reference_date"`
	Question      string          `json:"question,omitempty" yaml:"question,omitempty"`
	Extraction    string          `json:"extraction" yaml:"extraction"`
	Calculation   *query.Batch    `json:"calculation,omitempty" yaml:"calculation,omitempty"`
	Prediction    *query.Batch    `json:"prediction,omitempty" yaml:"prediction,omitempty"`
	Code          query.ErrorCode `json:"error_code" yaml:"error_code"`
	Message       string          `json:"message,omitempty" yaml:"message,omitempty"`
	Issues        []string        `json:"issues,omitempty" yaml:"issues,omitempty"`

	// Set by Generate.
	Steps            []extractor.Step `json:"steps,omitempty" yaml:"steps,omitempty"`
	ModelUsed        string           `json:"model_used,omitempty" yaml:"model_used,omitempty"`
	PromptTokens     int              `json:"prompt_tokens,omitempty" yaml:"prompt_tokens,omitempty"`
	CompletionTokens int              `json:"completion_tokens,omitempty" yaml:"completion_tokens,omitempty"`
	TotalTokens      int              `json:"total_tokens,omitempty" yaml:"total_tokens,omitempty"`
}

// Records returns the number of records across both batches.
func (r *Result) Records() int {
	n := 0
	if r.Calculation != nil {
		n += len(r.Calculation.Records)
	}
	if r.Prediction != nil {
		n += len(r.Prediction.Records)
	}
	return n
}

// Vocabulary is the identifier set resolutions are filtered against.
type Vocabulary struct {
	ReferenceDate string   `json:"reference_date" yaml:"reference_date"`
	Machines      []string `json:"machines" yaml:"machines"`
	KPIs          []string `json:"kpis" yaml:"kpis"`
}

// Option configures engine construction.
type Option func(*engineOptions)

type engineOptions struct {
	source vocab.Source
	chat   llm.Provider
}

// WithSource reads the vocabulary from src instead of the store.
func WithSource(src vocab.Source) Option {
	return func(o *engineOptions) { o.source = src }
}

// WithProvider uses chat instead of building a provider from Config.Chat.
func WithProvider(chat llm.Provider) Option {
	return func(o *engineOptions) { o.chat = chat }
}

// ResolveOption configures a single resolution.
type ResolveOption func(*resolveOptions)

type resolveOptions struct {
	requestID string
	question  string
	ref       time.Time
}

// WithRequestID tags the result and its log entry. A UUID is generated
// otherwise.
func WithRequestID(id string) ResolveOption {
	return func(o *resolveOptions) { o.requestID = id }
}

// WithQuestion records the question the extraction text answers.
func WithQuestion(q string) ResolveOption {
	return func(o *resolveOptions) { o.question = q }
}

// WithReferenceDate overrides the engine's reference date for one call.
func WithReferenceDate(t time.Time) ResolveOption {
	return func(o *resolveOptions) { o.ref = t }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg       Config
	store     *store.Store
	source    vocab.Source
	chat      llm.Provider
	extractor *extractor.Engine
	ref       time.Time
	closed    atomic.Bool
}

// New creates a new QueryGen engine with the given configuration.
func New(cfg Config, opts ...Option) (Engine, error) {
	options := &engineOptions{}
	for _, o := range opts {
		o(options)
	}

	ref := timewindow.Truncate(time.Now().UTC())
	if cfg.ReferenceDate != "" {
		t, err := timewindow.ParseDate(cfg.ReferenceDate)
		if err != nil {
			return nil, fmt.Errorf("%w: reference_date %q: %v", ErrInvalidConfig, cfg.ReferenceDate, err)
		}
		ref = t
	}

	dbPath := cfg.resolveDBPath()
	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	chat := options.chat
	if chat == nil && cfg.Chat.Provider != "" {
		c, err := llm.NewProvider(llm.Config{
			Provider: cfg.Chat.Provider,
			Model:    cfg.Chat.Model,
			BaseURL:  cfg.Chat.BaseURL,
			APIKey:   cfg.Chat.APIKey,
			Timeout:  cfg.Chat.Timeout,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("creating chat provider: %w", err)
		}
		chat = c
	}

	e := &engine{
		cfg:    cfg,
		store:  s,
		source: options.source,
		chat:   chat,
		ref:    ref,
	}
	if e.source == nil {
		e.source = s
	}
	if chat != nil {
		e.extractor = extractor.New(chat, extractor.Config{
			MaxRounds:   cfg.MaxRounds,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	}

	if cfg.OntologyPath != "" {
		if err := e.seedOntology(context.Background()); err != nil {
			s.Close()
			return nil, err
		}
	}

	slog.Info("querygen: engine ready", "db", dbPath, "reference_date", ref.Format(timewindow.DateLayout))
	return e, nil
}

// seedOntology imports cfg.OntologyPath when the store has no vocabulary.
func (e *engine) seedOntology(ctx context.Context) error {
	stats, err := e.store.DBStats(ctx)
	if err != nil {
		return fmt.Errorf("checking store: %w", err)
	}
	if stats.Machines > 0 || stats.KPIs > 0 {
		slog.Debug("querygen: store already has a vocabulary, skipping ontology import",
			"machines", stats.Machines, "kpis", stats.KPIs)
		return nil
	}
	if _, err := e.importOntology(ctx, e.cfg.OntologyPath); err != nil {
		return fmt.Errorf("seeding ontology: %w", err)
	}
	return nil
}

// Resolve turns extraction text into batches.
func (e *engine) Resolve(ctx context.Context, label Label, text string, opts ...ResolveOption) (*Result, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	if _, err := ParseLabel(string(label)); err != nil {
		return nil, err
	}
	o := e.resolveOptions(opts)

	snap, err := e.snapshot(ctx, o.ref)
	if err != nil {
		return nil, err
	}

	res := e.resolve(label, text, snap, o)
	e.logQuery(ctx, res)
	return res, nil
}

// Generate asks the chat model for extraction text, then resolves it.
func (e *engine) Generate(ctx context.Context, question string, label Label, opts ...ResolveOption) (*Result, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	if _, err := ParseLabel(string(label)); err != nil {
		return nil, err
	}
	if e.extractor == nil {
		return nil, ErrLLMUnavailable
	}
	o := e.resolveOptions(opts)
	o.question = question

	snap, err := e.snapshot(ctx, o.ref)
	if err != nil {
		return nil, err
	}

	x, err := e.extractor.Extract(ctx, question, label.task(), snap)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLLMRequestFailed, err)
	}

	res := e.resolve(label, x.Text, snap, o)
	res.Steps = x.Steps
	res.ModelUsed = x.ModelUsed
	res.PromptTokens = x.PromptTokens
	res.CompletionTokens = x.CompletionTokens
	res.TotalTokens = x.TotalTokens
	e.logQuery(ctx, res)
	return res, nil
}

func (e *engine) resolveOptions(opts []ResolveOption) *resolveOptions {
	o := &resolveOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.requestID == "" {
		o.requestID = uuid.NewString()
	}
	if o.ref.IsZero() {
		o.ref = e.ref
	}
	return o
}

// snapshot is the single blocking fetch of a resolution.
func (e *engine) snapshot(ctx context.Context, ref time.Time) (*vocab.Snapshot, error) {
	snap, err := vocab.Load(ctx, e.source, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}
	return snap, nil
}

// resolve runs the pure pipeline against snap.
func (e *engine) resolve(label Label, text string, snap *vocab.Snapshot, o *resolveOptions) *Result {
	res := &Result{
		RequestID:     o.requestID,
		Label:         label,
		ReferenceDate: snap.ReferenceDate().Format(timewindow.DateLayout),
		Question:      o.question,
		Extraction:    text,
	}

	var issues error
	switch label {
	case LabelKPICalc:
		b := query.Resolve(text, snap, timewindow.Calculation)
		res.Calculation, res.Code, issues = b, b.Code, b.Issues()
	case LabelPredictions:
		b := query.Resolve(text, snap, timewindow.Prediction)
		res.Prediction, res.Code, issues = b, b.Code, b.Issues()
	case LabelReport:
		r := query.ResolveReport(text, snap)
		res.Calculation, res.Prediction, res.Code, issues = r.Calculation, r.Prediction, r.Code, r.Issues()
	}
	res.Message = res.Code.Message()
	res.Issues = issueStrings(issues)

	for _, issue := range res.Issues {
		slog.Warn("querygen: clause dropped", "request_id", res.RequestID, "label", label, "issue", issue)
	}
	slog.Info("querygen: resolved", "request_id", res.RequestID, "label", label,
		"records", res.Records(), "error_code", res.Code, "issues", len(res.Issues))
	return res
}

// logQuery appends res to the audit log. Failures are logged, not returned.
func (e *engine) logQuery(ctx context.Context, res *Result) {
	if !e.cfg.LogQueries {
		return
	}
	payload := map[string]any{}
	if res.Calculation != nil {
		payload["calculation"] = res.Calculation
	}
	if res.Prediction != nil {
		payload["prediction"] = res.Prediction
	}
	err := e.store.LogQuery(ctx, store.QueryLog{
		RequestID:        res.RequestID,
		Label:            string(res.Label),
		Question:         res.Question,
		Extraction:       res.Extraction,
		ReferenceDate:    res.ReferenceDate,
		Records:          res.Records(),
		ErrorCode:        int(res.Code),
		Issues:           strings.Join(res.Issues, "\n"),
		Payload:          payload,
		ModelUsed:        res.ModelUsed,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		TotalTokens:      res.TotalTokens,
	})
	if err != nil {
		slog.Warn("querygen: failed to log query", "request_id", res.RequestID, "error", err)
	}
}

// Vocabulary returns the identifiers a resolution would see now.
func (e *engine) Vocabulary(ctx context.Context) (*Vocabulary, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	snap, err := e.snapshot(ctx, e.ref)
	if err != nil {
		return nil, err
	}
	return &Vocabulary{
		ReferenceDate: snap.ReferenceDate().Format(timewindow.DateLayout),
		Machines:      snap.Machines(),
		KPIs:          snap.KPIs(),
	}, nil
}

// ImportOntology loads path and replaces the stored vocabulary with it.
func (e *engine) ImportOntology(ctx context.Context, path string) (*ontology.ImportStats, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	return e.importOntology(ctx, path)
}

func (e *engine) importOntology(ctx context.Context, path string) (*ontology.ImportStats, error) {
	g, err := ontology.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("loading ontology %s: %w", path, err)
	}
	return ontology.Import(ctx, e.store, g)
}

// History returns recent logged resolutions.
func (e *engine) History(ctx context.Context, limit int) ([]store.QueryLog, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	return e.store.RecentQueries(ctx, limit)
}

// Store returns the underlying store.
func (e *engine) Store() *store.Store {
	return e.store
}

// Close shuts down the engine. Calling it twice is a no-op.
func (e *engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	return e.store.Close()
}

// issueStrings flattens a multierror into one message per issue.
func issueStrings(err error) []string {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
