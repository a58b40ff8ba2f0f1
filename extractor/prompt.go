package extractor

import (
	"fmt"
	"strings"
	"time"

	"github.com/brunobiangulo/querygen/timewindow"
	"github.com/brunobiangulo/querygen/vocab"
)

const systemPrompt = `You turn plant-operations questions into structured queries for a KPI engine.
You answer with a single line that starts with "OUTPUT:" followed by one or more tuples.
You never explain the answer and never add text after the tuples.
Identifiers must be copied exactly as they appear in the lists you are given.`

// buildExtractionPrompt renders the round 1 prompt: the user question, the
// snapshot vocabulary, the date anchors and the output grammar for task.
func buildExtractionPrompt(question string, task Task, snap *vocab.Snapshot) string {
	ref := snap.ReferenceDate()
	today := ref.Format(timewindow.DateLayout)
	yesterday := ref.AddDate(0, 0, -1).Format(timewindow.DateLayout)
	tomorrow := ref.AddDate(0, 0, 1).Format(timewindow.DateLayout)

	var b strings.Builder
	fmt.Fprintf(&b, "USER QUERY: %q\n\n", question)

	b.WriteString("INSTRUCTIONS:\n")
	fmt.Fprintf(&b, "TODAY is %s (%s).\n", today, ref.Weekday())
	b.WriteString("Dates in the user query are written DD/MM/YYYY; always write them as YYYY-MM-DD.\n")
	fmt.Fprintf(&b, "LIST_1 (machines): %s\n", quoteList(snap.Machines()))
	fmt.Fprintf(&b, "LIST_2 (kpis): %s\n\n", quoteList(snap.KPIs()))

	b.WriteString("RULES:\n")
	b.WriteString("1. Split the query into requests. Each request names machines from LIST_1, kpis from LIST_2 and a time window.\n")
	b.WriteString("2. A machine type without a number (e.g. \"assembly machines\") means every LIST_1 machine of that type.\n")
	b.WriteString("3. If the query asks for every machine or every kpi, write ['ALL'] for that list. If nothing in the list matches, write ['NULL'].\n")
	b.WriteString("4. The user may misspell names. Pick the closest identifier. When a kpi is ambiguous, prefer the one ending in _avg.\n")
	b.WriteString("5. A time window is either an exact range \"YYYY-MM-DD -> YYYY-MM-DD\" or a relative one <last|next, N, days|weeks|months>.\n")
	b.WriteString("   Write NULL when the query gives no window.\n")
	b.WriteString("   A named month is the range from its first to its last day.\n")
	fmt.Fprintf(&b, "   yesterday is %s -> %s, today is %s -> %s, tomorrow is %s -> %s.\n",
		yesterday, yesterday, today, today, tomorrow, tomorrow)
	b.WriteString("6. Requests that share the same window and kpis may be merged into one tuple.\n\n")

	b.WriteString("OUTPUT FORMAT:\n")
	b.WriteString(outputFormat(task, ref))
	return b.String()
}

func outputFormat(task Task, ref time.Time) string {
	first := time.Date(ref.Year(), ref.Month()-1, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	prevMonth := fmt.Sprintf("%s -> %s", first.Format(timewindow.DateLayout), last.Format(timewindow.DateLayout))

	var b strings.Builder
	switch task {
	case TaskReport:
		b.WriteString("OUTPUT: ([LIST_1 ids], [LIST_2 ids], <calculation window; prediction window>)\n")
		b.WriteString("The first half of the window is the past period the report describes. The second half is the future period it forecasts.\n")
		b.WriteString("Examples:\n")
		fmt.Fprintf(&b, "Report on the laser cutter's idle time for %s and the next two weeks\n", first.Month())
		fmt.Fprintf(&b, "OUTPUT: (['Laser Cutter'], ['idle_time'], <%s; <next, 2, weeks>>)\n", prevMonth)
		b.WriteString("Make a report on consumption of all machines, last 3 months and next month\n")
		b.WriteString("OUTPUT: (['ALL'], ['consumption'], <<last, 3, months>; <next, 1, months>>)\n")
	case TaskPrediction:
		b.WriteString("OUTPUT: ([LIST_1 ids], [LIST_2 ids], time window)\n")
		b.WriteString("Prediction windows lie in the future.\n")
		b.WriteString("Examples:\n")
		b.WriteString("Predict the working time of assembly machine 2 for the next 10 days\n")
		b.WriteString("OUTPUT: (['Assembly Machine 2'], ['working_time'], <next, 10, days>)\n")
		b.WriteString("Forecast idle time and consumption of every machine tomorrow\n")
		fmt.Fprintf(&b, "OUTPUT: (['ALL'], ['idle_time', 'consumption'], %s -> %s)\n",
			ref.AddDate(0, 0, 1).Format(timewindow.DateLayout), ref.AddDate(0, 0, 1).Format(timewindow.DateLayout))
	default:
		b.WriteString("OUTPUT: ([LIST_1 ids], [LIST_2 ids], time window)\n")
		b.WriteString("Calculation windows lie in the past.\n")
		b.WriteString("Examples:\n")
		fmt.Fprintf(&b, "What was the working time of the laser cutter in %s?\n", first.Month())
		fmt.Fprintf(&b, "OUTPUT: (['Laser Cutter'], ['working_time'], %s)\n", prevMonth)
		b.WriteString("Idle time of assembly machine 1 last week and consumption of all machines yesterday\n")
		fmt.Fprintf(&b, "OUTPUT: (['Assembly Machine 1'], ['idle_time'], <last, 1, weeks>), (['ALL'], ['consumption'], %s -> %s)\n",
			ref.AddDate(0, 0, -1).Format(timewindow.DateLayout), ref.AddDate(0, 0, -1).Format(timewindow.DateLayout))
	}
	return b.String()
}

// buildRefinementPrompt asks the model to rewrite an answer that failed
// validation.
func buildRefinementPrompt(original, answer string, issues []string) string {
	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\nYOUR PREVIOUS ANSWER:\n")
	b.WriteString(answer)
	b.WriteString("\n\nIt could not be read:\n")
	for _, issue := range issues {
		fmt.Fprintf(&b, "- %s\n", issue)
	}
	b.WriteString("\nAnswer again, following OUTPUT FORMAT exactly.")
	return b.String()
}

func quoteList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = "'" + id + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
