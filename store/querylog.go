package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// QueryLog represents a row in the query_log table.
type QueryLog struct {
	ID               int64       `json:"id,omitempty"`
	RequestID        string      `json:"request_id"`
	Label            string      `json:"label"`
	Question         string      `json:"question,omitempty"`
	Extraction       string      `json:"extraction"`
	ReferenceDate    string      `json:"reference_date"`
	Records          int         `json:"records"`
	ErrorCode        int         `json:"error_code"`
	Issues           string      `json:"issues,omitempty"`
	Payload          any         `json:"payload,omitempty"`
	ModelUsed        string      `json:"model_used,omitempty"`
	PromptTokens     int         `json:"prompt_tokens"`
	CompletionTokens int         `json:"completion_tokens"`
	TotalTokens      int         `json:"total_tokens"`
	CreatedAt        string      `json:"created_at,omitempty"`
}

// LogQuery writes an entry to the query audit log.
func (s *Store) LogQuery(ctx context.Context, q QueryLog) error {
	var payload any
	if q.Payload != nil {
		b, err := json.Marshal(q.Payload)
		if err != nil {
			return err
		}
		payload = string(b)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (request_id, label, question, extraction, reference_date, records,
			error_code, issues, payload, model_used, prompt_tokens, completion_tokens, total_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.RequestID, q.Label, nullString(q.Question), q.Extraction, q.ReferenceDate, q.Records,
		q.ErrorCode, nullString(q.Issues), payload, nullString(q.ModelUsed),
		q.PromptTokens, q.CompletionTokens, q.TotalTokens)
	return err
}

// RecentQueries returns up to limit log entries, newest first. The payload
// comes back as raw JSON.
func (s *Store) RecentQueries(ctx context.Context, limit int) ([]QueryLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, label, COALESCE(question, ''), extraction, reference_date, records,
			error_code, COALESCE(issues, ''), payload, COALESCE(model_used, ''),
			prompt_tokens, completion_tokens, total_tokens, created_at
		FROM query_log ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []QueryLog{}
	for rows.Next() {
		var q QueryLog
		var payload sql.NullString
		if err := rows.Scan(&q.ID, &q.RequestID, &q.Label, &q.Question, &q.Extraction,
			&q.ReferenceDate, &q.Records, &q.ErrorCode, &q.Issues, &payload, &q.ModelUsed,
			&q.PromptTokens, &q.CompletionTokens, &q.TotalTokens, &q.CreatedAt); err != nil {
			return nil, err
		}
		if payload.Valid {
			q.Payload = json.RawMessage(payload.String)
		}
		logs = append(logs, q)
	}
	return logs, rows.Err()
}
