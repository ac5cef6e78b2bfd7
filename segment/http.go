package segment

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/vizopt/history"
	"github.com/hazyhaar/vizopt/idgen"
	"github.com/hazyhaar/vizopt/shield"
)

// RegisterHTTP mounts the analysis and run history endpoints.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Post("/process-urls", s.handleProcessURLs)
	r.Get("/api/runs", s.handleListRuns)
	r.Get("/api/runs/{id}", s.handleGetRun)
	r.Get("/api/stats", s.handleStats)
}

func (s *Service) handleProcessURLs(w http.ResponseWriter, r *http.Request) {
	// The body is decoded whatever its Content-Type, so the limit is applied
	// here as well as in the JSON-only middleware.
	if r.Body != nil && s.cfg.Server.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	}
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, errors.New("Request body is required"))
		case errors.As(err, &maxErr):
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("Request body exceeds %d bytes", maxErr.Limit))
		default:
			writeError(w, http.StatusBadRequest, fmt.Errorf("Invalid JSON body: %w", err))
		}
		return
	}

	res, err := s.Analyze(r.Context(), req)
	if err != nil {
		writeAnalyzeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeAnalyzeError maps pipeline errors to responses. Validation and
// timeout messages are returned as is; anything else is a server error.
func writeAnalyzeError(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	switch kind {
	case KindValidation, KindTimeout:
		writeError(w, kind.HTTPStatus(), err)
	default:
		writeError(w, http.StatusInternalServerError, fmt.Errorf("Server error: %w", err))
	}
}

func (s *Service) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("run history is disabled"))
		return
	}
	runs, err := s.history.List(r.Context(), queryInt(r, "limit", history.DefaultLimit))
	if err != nil {
		shield.GetLogger(r.Context()).Error("segment: list runs", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Service) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("run history is disabled"))
		return
	}
	id, err := idgen.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, errors.New("run not found"))
		return
	}
	run, err := s.history.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, errors.New("run not found"))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// handleStats summarises stage durations over the last ?hours (default 24).
func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("stage metrics are disabled"))
		return
	}
	hours := queryInt(r, "hours", 24)
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	stats, err := s.metrics.Summary(r.Context(), since)
	if err != nil {
		shield.GetLogger(r.Context()).Error("segment: stage stats", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hours": hours, "stages": stats})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
