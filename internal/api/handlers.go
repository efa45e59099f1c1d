package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ppiankov/loreguard/internal/model"
	"github.com/ppiankov/loreguard/internal/storage"
)

// AnalyzeRequest is the body of POST /api/v1/analyze
type AnalyzeRequest struct {
	StoryContent      string `json:"storyContent"`
	BackstoryContent  string `json:"backstoryContent"`
	Track             string `json:"track,omitempty"`
	StoryID           string `json:"storyId,omitempty"`
	StoryFileName     string `json:"storyFileName,omitempty"`
	BackstoryFileName string `json:"backstoryFileName,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}

	var req AnalyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	report, err := s.runner.Run(r.Context(), model.AnalysisInput{
		StoryName:        req.StoryFileName,
		StoryContent:     req.StoryContent,
		BackstoryName:    req.BackstoryFileName,
		BackstoryContent: req.BackstoryContent,
		StoryID:          req.StoryID,
		Track:            req.Track,
	})
	if err != nil {
		status, message := statusFor(err)
		if status >= 500 {
			s.logger.Error("Analysis failed", zap.Error(err))
		}
		resp := errorResponse{Error: message}
		if report != nil {
			resp.JobID = report.Job.ID
		}
		respondJSON(w, status, resp)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusNotFound, "Job archive is disabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	jobs, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("Listing jobs failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusNotFound, "Job archive is disabled")
		return
	}

	id := chi.URLParam(r, "jobID")
	report, err := s.store.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		s.logger.Error("Loading job failed", zap.String("job_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// statusFor maps an analysis error to the HTTP status and client message
func statusFor(err error) (int, string) {
	var ae *model.AnalysisError
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError, "Unknown error"
	}

	message := ae.Message
	if strings.TrimSpace(message) == "" {
		message = "Unknown error"
	}

	switch ae.Kind {
	case model.ErrKindValidation:
		return http.StatusBadRequest, message
	case model.ErrKindRateLimit:
		return http.StatusTooManyRequests, message
	case model.ErrKindQuotaExhausted:
		return http.StatusPaymentRequired, message
	}
	return http.StatusInternalServerError, message
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
