package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/querygen/llm"
	"github.com/brunobiangulo/querygen/vocab"
)

type fakeChat struct {
	replies []string
	errs    []error
	reqs    []llm.ChatRequest
}

func (f *fakeChat) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	i := len(f.reqs)
	f.reqs = append(f.reqs, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return &llm.ChatResponse{Content: reply, Model: "fake", PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}, nil
}

func testSnapshot() *vocab.Snapshot {
	return vocab.NewSnapshot(
		time.Date(2024, 10, 19, 0, 0, 0, 0, time.UTC),
		[]string{"Assembly Machine 1", "Laser Cutter"},
		[]string{"working_time", "idle_time"},
	)
}

func TestExtractFirstRoundAccepted(t *testing.T) {
	chat := &fakeChat{replies: []string{"OUTPUT: (['Laser Cutter'], ['idle_time'], <last, 2, weeks>)\n"}}
	x, err := New(chat, Config{}).Extract(context.Background(), "idle time of the laser cutter", TaskCalculation, testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, "OUTPUT: (['Laser Cutter'], ['idle_time'], <last, 2, weeks>)", x.Text)
	assert.Empty(t, x.Issues)
	assert.Equal(t, 2, x.Rounds)
	assert.Equal(t, "fake", x.ModelUsed)
	assert.Equal(t, 10, x.TotalTokens)
	require.Len(t, chat.reqs, 1)

	msgs := chat.reqs[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[1].Content, "TODAY is 2024-10-19")
	assert.Contains(t, msgs[1].Content, "LIST_1 (machines): ['Assembly Machine 1', 'Laser Cutter']")
	assert.Contains(t, msgs[1].Content, "LIST_2 (kpis): ['working_time', 'idle_time']")
	assert.Contains(t, msgs[1].Content, "yesterday is 2024-10-18 -> 2024-10-18")
	assert.Contains(t, msgs[1].Content, "tomorrow is 2024-10-20 -> 2024-10-20")
}

func TestExtractRefinesInvalidAnswer(t *testing.T) {
	chat := &fakeChat{replies: []string{
		"The laser cutter idled a lot.",
		"OUTPUT: (['Laser Cutter'], ['idle_time'], NULL)",
	}}
	x, err := New(chat, Config{MaxRounds: 3}).Extract(context.Background(), "idle time", TaskCalculation, testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, "OUTPUT: (['Laser Cutter'], ['idle_time'], NULL)", x.Text)
	assert.Empty(t, x.Issues)
	assert.Equal(t, 3, x.Rounds)
	assert.Equal(t, 20, x.TotalTokens)
	require.Len(t, chat.reqs, 2)
	assert.Contains(t, chat.reqs[1].Messages[1].Content, "YOUR PREVIOUS ANSWER:\nThe laser cutter idled a lot.")
	assert.NotEmpty(t, x.Steps[1].Issues)
}

func TestExtractRefinementFailureKeepsFirstAnswer(t *testing.T) {
	chat := &fakeChat{
		replies: []string{"OUTPUT: (['Laser Cutter'], ['idle_time'], <soon>)"},
		errs:    []error{nil, errors.New("connection reset")},
	}
	x, err := New(chat, Config{}).Extract(context.Background(), "idle time", TaskCalculation, testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, "OUTPUT: (['Laser Cutter'], ['idle_time'], <soon>)", x.Text)
	assert.NotEmpty(t, x.Issues)
	assert.Equal(t, 2, x.Rounds)
}

func TestExtractSingleRound(t *testing.T) {
	chat := &fakeChat{replies: []string{"nonsense"}}
	x, err := New(chat, Config{MaxRounds: 1}).Extract(context.Background(), "q", TaskPrediction, testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 1, x.Rounds)
	assert.Len(t, chat.reqs, 1)
}

func TestExtractFirstRoundError(t *testing.T) {
	boom := errors.New("unavailable")
	chat := &fakeChat{errs: []error{boom}}
	_, err := New(chat, Config{}).Extract(context.Background(), "q", TaskCalculation, testSnapshot())
	assert.ErrorIs(t, err, boom)
}

func TestExtractPassesSamplingSettings(t *testing.T) {
	chat := &fakeChat{replies: []string{"OUTPUT: (['ALL'], ['ALL'], NULL)"}}
	_, err := New(chat, Config{Temperature: 0.2, MaxTokens: 128}).Extract(context.Background(), "q", TaskCalculation, testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 0.2, chat.reqs[0].Temperature)
	assert.Equal(t, 128, chat.reqs[0].MaxTokens)
}

func TestPromptOutputFormatPerTask(t *testing.T) {
	snap := testSnapshot()

	report := buildExtractionPrompt("q", TaskReport, snap)
	assert.Contains(t, report, "<calculation window; prediction window>")
	assert.Contains(t, report, "<2024-09-01 -> 2024-09-30; <next, 2, weeks>>")

	pred := buildExtractionPrompt("q", TaskPrediction, snap)
	assert.Contains(t, pred, "Prediction windows lie in the future.")
	assert.NotContains(t, pred, "prediction window>")

	calc := buildExtractionPrompt("q", TaskCalculation, snap)
	assert.Contains(t, calc, "Calculation windows lie in the past.")
	assert.Contains(t, calc, "2024-09-01 -> 2024-09-30")
}

func TestPromptPreviousMonthAcrossYear(t *testing.T) {
	snap := vocab.NewSnapshot(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), nil, nil)
	p := buildExtractionPrompt("q", TaskCalculation, snap)
	assert.Contains(t, p, "2024-12-01 -> 2024-12-31")
	assert.Contains(t, p, "LIST_1 (machines): []")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		task   Task
		issues int
	}{
		{"valid calculation", "OUTPUT: (['A'], ['k'], 2024-10-01 -> 2024-10-05)", TaskCalculation, 0},
		{"valid relative", "OUTPUT: (['A'], ['k'], <next, 3, days>)", TaskPrediction, 0},
		{"no tuples", "I cannot help with that", TaskCalculation, 1},
		{"bad time", "OUTPUT: (['A'], ['k'], <whenever>)", TaskCalculation, 1},
		{"valid report", "OUTPUT: (['A'], ['k'], <<last, 1, weeks>; <next, 1, weeks>>)", TaskReport, 0},
		{"report missing split", "OUTPUT: (['A'], ['k'], <last, 1, weeks>)", TaskReport, 1},
		{"report bad half", "OUTPUT: (['A'], ['k'], <NULL; tomorrow>)", TaskReport, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := Validate(tt.text, tt.task)
			assert.Len(t, issues, tt.issues, strings.Join(issues, "; "))
		})
	}
}

func TestTaskString(t *testing.T) {
	assert.Equal(t, "report", TaskReport.String())
	assert.Equal(t, "task(9)", Task(9).String())
}
