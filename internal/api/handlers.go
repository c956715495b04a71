package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

type searchRequest struct {
	Query    string `json:"query" validate:"required"`
	Location string `json:"location"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	runID, err := s.deps.Crawler.Trigger(r.Context(), req.Query)
	switch {
	case errors.Is(err, pipeline.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, "URL must start with http(s).")
		return
	case errors.Is(err, pipeline.ErrBlockedHost):
		writeError(w, http.StatusBadRequest, "This domain is blocked.")
		return
	case errors.Is(err, pipeline.ErrCrawlInProgress):
		writeError(w, http.StatusConflict, "A crawl is already in progress.")
		return
	case err != nil:
		s.logger.Error("trigger crawl failed", zap.String("query", req.Query), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start crawl")
		return
	}
	s.logger.Info("crawl triggered", zap.String("run_id", runID), zap.String("url", req.Query), zap.String("location", req.Location))
	writeJSON(w, http.StatusOK, map[string]string{"status": "Started"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	crawling, err := s.deps.Crawler.Crawling(r.Context())
	if err != nil {
		s.logger.Error("read crawl status failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"crawling": crawling})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.deps.Store.ListJobs(r.Context())
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load jobs")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	env, err := pipeline.NewEnvelope(pipeline.TaskGenerateApplication, pipeline.GenerateApplicationRequest{JobID: jobID})
	if err == nil {
		ctx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
		err = s.deps.Queue.Enqueue(ctx, env)
		cancel()
	}
	if err != nil {
		s.logger.Error("enqueue generate_application failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "could not schedule generation")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, err := s.deps.Store.GetJob(r.Context(), jobID)
	if errors.Is(err, pipeline.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("load job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load job")
		return
	}
	if job.ApplicationDraft == nil || strings.TrimSpace(*job.ApplicationDraft) == "" {
		writeError(w, http.StatusNotFound, "no application draft found")
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, draftFilename(job.Title)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(*job.ApplicationDraft)); err != nil {
		s.logger.Warn("write draft failed", zap.Error(err))
	}
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9]+`)

func draftFilename(title string) string {
	slug := strings.Trim(unsafeFilename.ReplaceAllString(strings.ToLower(title), "_"), "_")
	if slug == "" {
		slug = "job"
	}
	return "Application_" + slug + ".md"
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteAllJobs(r.Context()); err != nil {
		s.logger.Error("delete jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	if err := s.deps.Store.DeleteProfile(r.Context()); err != nil && !errors.Is(err, pipeline.ErrNotFound) {
		s.logger.Error("delete profile failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	s.logger.Info("jobs and settings cleared")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
