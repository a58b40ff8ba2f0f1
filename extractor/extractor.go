// Package extractor asks a chat model to turn a natural-language question into
// extraction text, the tuple list the query package resolves. It runs up to
// three rounds: extraction, validation against the tuple grammar, and one
// refinement when validation finds problems.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/brunobiangulo/querygen/extraction"
	"github.com/brunobiangulo/querygen/llm"
	"github.com/brunobiangulo/querygen/timewindow"
	"github.com/brunobiangulo/querygen/vocab"
)

// Task selects the output grammar the model is asked for.
type Task int

const (
	TaskCalculation Task = iota
	TaskPrediction
	TaskReport
)

func (t Task) String() string {
	switch t {
	case TaskCalculation:
		return "calculation"
	case TaskPrediction:
		return "prediction"
	case TaskReport:
		return "report"
	default:
		return fmt.Sprintf("task(%d)", int(t))
	}
}

// Config holds extractor configuration.
type Config struct {
	// MaxRounds caps the rounds run; 3 allows one refinement.
	MaxRounds   int
	Temperature float64
	MaxTokens   int
}

// Extraction is the model output for one question.
type Extraction struct {
	Text             string   `json:"text"`
	Issues           []string `json:"issues,omitempty"`
	Steps            []Step   `json:"steps"`
	ModelUsed        string   `json:"model_used"`
	Rounds           int      `json:"rounds"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
}

// Step records a single round.
type Step struct {
	Round     int      `json:"round"`
	Action    string   `json:"action"`
	Prompt    string   `json:"prompt,omitempty"`
	Response  string   `json:"response,omitempty"`
	Issues    []string `json:"issues,omitempty"`
	Tokens    int      `json:"tokens,omitempty"`
	ElapsedMs int64    `json:"elapsed_ms,omitempty"`
}

// Engine runs the extraction rounds.
type Engine struct {
	chat llm.Provider
	cfg  Config
}

// New creates an extraction engine.
func New(chat llm.Provider, cfg Config) *Engine {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 3
	}
	return &Engine{chat: chat, cfg: cfg}
}

// Extract asks the model for extraction text answering question, using the
// vocabulary and reference date of snap. Only the round 1 call is fatal; a
// failed refinement keeps the round 1 answer.
func (e *Engine) Extract(ctx context.Context, question string, task Task, snap *vocab.Snapshot) (*Extraction, error) {
	out := &Extraction{}

	prompt := buildExtractionPrompt(question, task, snap)
	slog.Info("extractor: round 1 starting", "task", task,
		"machines", len(snap.Machines()), "kpis", len(snap.KPIs()))
	start := time.Now()

	resp, err := e.ask(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("extraction round: %w", err)
	}
	elapsed := time.Since(start)
	out.add(resp)
	out.Text = strings.TrimSpace(resp.Content)
	out.Steps = append(out.Steps, Step{
		Round:     1,
		Action:    "extraction",
		Prompt:    prompt,
		Response:  resp.Content,
		Tokens:    resp.TotalTokens,
		ElapsedMs: elapsed.Milliseconds(),
	})
	slog.Info("extractor: round 1 complete",
		"tokens", resp.TotalTokens, "elapsed", elapsed.Round(time.Millisecond))

	if e.cfg.MaxRounds < 2 {
		out.Rounds = len(out.Steps)
		return out, nil
	}

	// Round 2: validation
	issues := Validate(out.Text, task)
	out.Issues = issues
	out.Steps = append(out.Steps, Step{Round: 2, Action: "validation", Issues: issues})

	// Round 3: refinement
	if e.cfg.MaxRounds >= 3 && len(issues) > 0 {
		slog.Info("extractor: round 3 starting", "issues", len(issues))
		start = time.Now()
		refinement := buildRefinementPrompt(prompt, out.Text, issues)

		resp, err = e.ask(ctx, refinement)
		if err != nil {
			slog.Warn("extractor: refinement failed, keeping round 1 answer", "error", err)
			out.Rounds = len(out.Steps)
			return out, nil
		}
		elapsed = time.Since(start)
		out.add(resp)
		out.Text = strings.TrimSpace(resp.Content)
		out.Issues = Validate(out.Text, task)
		out.Steps = append(out.Steps, Step{
			Round:     3,
			Action:    "refinement",
			Prompt:    refinement,
			Response:  resp.Content,
			Issues:    out.Issues,
			Tokens:    resp.TotalTokens,
			ElapsedMs: elapsed.Milliseconds(),
		})
		slog.Info("extractor: round 3 complete",
			"tokens", resp.TotalTokens, "remaining_issues", len(out.Issues),
			"elapsed", elapsed.Round(time.Millisecond))
	}

	out.Rounds = len(out.Steps)
	return out, nil
}

func (e *Engine) ask(ctx context.Context, prompt string) (*llm.ChatResponse, error) {
	return e.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
}

func (x *Extraction) add(resp *llm.ChatResponse) {
	if resp.Model != "" {
		x.ModelUsed = resp.Model
	}
	x.PromptTokens += resp.PromptTokens
	x.CompletionTokens += resp.CompletionTokens
	x.TotalTokens += resp.TotalTokens
}

// Validate checks text against the tuple grammar for task and returns one
// message per problem. It does not look at identifiers: unknown names are
// dropped later by the vocabulary filter.
func Validate(text string, task Task) []string {
	var issues []string

	clauses, err := extraction.Parse(text)
	if err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				issues = append(issues, e.Error())
			}
		} else {
			issues = append(issues, err.Error())
		}
	}
	if len(clauses) == 0 && len(issues) == 0 {
		issues = append(issues, "no tuples found after "+extraction.Marker)
	}

	for i, c := range clauses {
		if task == TaskReport {
			calc, predict, err := extraction.SplitCompound(c.Time)
			if err != nil {
				issues = append(issues, fmt.Sprintf("tuple %d: %v", i, err))
				continue
			}
			issues = appendTimeIssue(issues, i, calc)
			issues = appendTimeIssue(issues, i, predict)
			continue
		}
		issues = appendTimeIssue(issues, i, c.Time)
	}
	return issues
}

func appendTimeIssue(issues []string, i int, literal string) []string {
	if spec := timewindow.Decode(literal); spec.Kind == timewindow.SpecInvalid {
		return append(issues, fmt.Sprintf("tuple %d: %s", i, spec.Reason))
	}
	return issues
}
