package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/brunobiangulo/querygen"
	"github.com/brunobiangulo/querygen/ontology"
	"github.com/brunobiangulo/querygen/timewindow"
)

type handler struct {
	engine querygen.Engine
}

func newHandler(e querygen.Engine) *handler {
	return &handler{engine: e}
}

type resolveRequest struct {
	Label         string `json:"label"`
	Extraction    string `json:"extraction"`
	Question      string `json:"question,omitempty"`
	ReferenceDate string `json:"reference_date,omitempty"`
}

// POST /resolve
func (h *handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	label, opts, ok := h.parseCommon(w, r, req.Label, req.ReferenceDate)
	if !ok {
		return
	}
	if req.Question != "" {
		opts = append(opts, querygen.WithQuestion(req.Question))
	}

	res, err := h.engine.Resolve(r.Context(), label, req.Extraction, opts...)
	if err != nil {
		writeError(w, statusFor(err), "resolve failed")
		slog.Error("resolve error", "request_id", requestID(r.Context()), "error", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /generate
func (h *handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	label, opts, ok := h.parseCommon(w, r, req.Label, req.ReferenceDate)
	if !ok {
		return
	}

	res, err := h.engine.Generate(ctx, req.Question, label, opts...)
	if err != nil {
		writeError(w, statusFor(err), "generate failed")
		slog.Error("generate error", "request_id", requestID(r.Context()), "question", req.Question, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// parseCommon validates the label and reference date shared by /resolve and
// /generate. It writes the error response itself and reports false on
// failure.
func (h *handler) parseCommon(w http.ResponseWriter, r *http.Request, rawLabel, date string) (querygen.Label, []querygen.ResolveOption, bool) {
	label, err := querygen.ParseLabel(rawLabel)
	if err != nil {
		writeError(w, http.StatusBadRequest, "label must be kpi_calc, predictions or report")
		return "", nil, false
	}
	opts := []querygen.ResolveOption{querygen.WithRequestID(requestID(r.Context()))}
	if date != "" {
		t, err := timewindow.ParseDate(date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "reference_date must be YYYY-MM-DD")
			return "", nil, false
		}
		opts = append(opts, querygen.WithReferenceDate(t))
	}
	return label, opts, true
}

// GET /vocabulary
func (h *handler) handleVocabulary(w http.ResponseWriter, r *http.Request) {
	v, err := h.engine.Vocabulary(r.Context())
	if err != nil {
		writeError(w, statusFor(err), "failed to read vocabulary")
		slog.Error("vocabulary error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GET /history?limit=N
func (h *handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	entries, err := h.engine.History(r.Context(), limit)
	if err != nil {
		writeError(w, statusFor(err), "failed to read history")
		slog.Error("history error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queries": entries,
	})
}

// POST /ontology
// Accepts a multipart file upload or JSON with a server-side path.
func (h *handler) handleOntology(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	// Try multipart upload first
	if err := r.ParseMultipartForm(32 << 20); err == nil {
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()

			// The loader is chosen by extension, so keep it.
			ext := filepath.Ext(filepath.Base(header.Filename))
			dst, err := os.CreateTemp("", "ontology-*"+ext)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to process file")
				slog.Error("creating temp file", "error", err)
				return
			}
			tmpPath := dst.Name()
			defer os.Remove(tmpPath)
			if _, err := io.Copy(dst, file); err != nil {
				dst.Close()
				writeError(w, http.StatusInternalServerError, "failed to save file")
				slog.Error("saving uploaded file", "error", err)
				return
			}
			dst.Close()

			h.importOntology(ctx, w, tmpPath)
			return
		}
	}

	// Try JSON body with path
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'path'")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	// Validate that path is a real file (prevents directory traversal probing).
	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusBadRequest, "path must be an existing file")
		return
	}

	h.importOntology(ctx, w, absPath)
}

func (h *handler) importOntology(ctx context.Context, w http.ResponseWriter, path string) {
	stats, err := h.engine.ImportOntology(ctx, path)
	if err != nil {
		writeError(w, statusFor(err), "ontology import failed")
		slog.Error("ontology import error", "path", path, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, querygen.ErrUnknownLabel),
		errors.Is(err, ontology.ErrUnknownFormat),
		errors.Is(err, ontology.ErrEmptyGraph):
		return http.StatusBadRequest
	case errors.Is(err, querygen.ErrSnapshotUnavailable),
		errors.Is(err, querygen.ErrLLMUnavailable),
		errors.Is(err, querygen.ErrStoreClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, querygen.ErrLLMRequestFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
