package querygen

import "errors"

var (
	// ErrSnapshotUnavailable is returned when the vocabulary cannot be read
	// from the knowledge store. No batch is produced.
	ErrSnapshotUnavailable = errors.New("querygen: knowledge snapshot unavailable")

	// ErrUnknownLabel is returned for a request label other than kpi_calc,
	// predictions or report.
	ErrUnknownLabel = errors.New("querygen: unknown label")

	// ErrLLMUnavailable is returned when Generate is called on an engine
	// without a chat provider.
	ErrLLMUnavailable = errors.New("querygen: LLM provider unavailable")

	// ErrLLMRequestFailed is returned when the chat model request fails.
	ErrLLMRequestFailed = errors.New("querygen: LLM request failed")

	// ErrStoreClosed is returned when operating on a closed engine.
	ErrStoreClosed = errors.New("querygen: store is closed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("querygen: invalid configuration")
)
