package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/analysis"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

const maxCVBytes = 200 << 10

type experienceRequest struct {
	Company     string `json:"company" validate:"max=200"`
	Role        string `json:"role" validate:"max=200"`
	Duration    string `json:"duration" validate:"max=100"`
	Description string `json:"description" validate:"max=5000"`
}

type projectRequest struct {
	Name        string `json:"name" validate:"max=200"`
	TechStack   string `json:"tech_stack" validate:"max=500"`
	Description string `json:"description" validate:"max=5000"`
}

type cvRequest struct {
	Education  string              `json:"education" validate:"max=5000"`
	Experience []experienceRequest `json:"experience" validate:"max=50,dive"`
	Projects   []projectRequest    `json:"projects" validate:"max=50,dive"`
}

// settingsRequest accepts min_salary as number or text.
type settingsRequest struct {
	Role        string          `json:"role" validate:"max=200"`
	Skills      string          `json:"skills" validate:"max=2000"`
	MinSalary   json.RawMessage `json:"min_salary"`
	Location    string          `json:"location" validate:"max=200"`
	Preferences string          `json:"preferences" validate:"max=2000"`
	JobURLs     []string        `json:"job_urls" validate:"max=50,dive,http_url"`
	CV          cvRequest       `json:"cv_data"`
}

func (req settingsRequest) profile() pipeline.Profile {
	p := pipeline.Profile{
		Role:        req.Role,
		Skills:      req.Skills,
		MinSalary:   analysis.ParseSalary(req.MinSalary),
		Location:    req.Location,
		Preferences: req.Preferences,
		JobURLs:     append([]string{}, req.JobURLs...),
		CV: pipeline.CVData{
			Education:  req.CV.Education,
			Experience: make([]pipeline.Experience, 0, len(req.CV.Experience)),
			Projects:   make([]pipeline.Project, 0, len(req.CV.Projects)),
		},
	}
	for _, e := range req.CV.Experience {
		p.CV.Experience = append(p.CV.Experience, pipeline.Experience(e))
	}
	for _, pr := range req.CV.Projects {
		p.CV.Projects = append(p.CV.Projects, pipeline.Project(pr))
	}
	return p
}

func emptyProfile() pipeline.Profile {
	return pipeline.Profile{
		JobURLs: []string{},
		CV:      pipeline.CVData{Experience: []pipeline.Experience{}, Projects: []pipeline.Project{}},
	}
}

func (s *Server) loadProfile(r *http.Request) (pipeline.Profile, error) {
	profile, err := s.deps.Store.GetProfile(r.Context())
	if errors.Is(err, pipeline.ErrNotFound) {
		return emptyProfile(), nil
	}
	return profile, err
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	profile, err := s.loadProfile(r)
	if err != nil {
		s.logger.Error("load profile failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load settings")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) saveSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Store.SaveProfile(r.Context(), req.profile()); err != nil {
		s.logger.Error("save profile failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) deleteSettings(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Store.DeleteProfile(r.Context())
	if errors.Is(err, pipeline.ErrNotFound) {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		s.logger.Error("delete profile failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not delete settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type cvImportRequest struct {
	Text string `json:"text" validate:"required"`
}

func (s *Server) importCV(w http.ResponseWriter, r *http.Request) {
	if s.deps.CVParser == nil {
		writeError(w, http.StatusServiceUnavailable, "CV import is not configured")
		return
	}
	var req cvImportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCVBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	imported, err := s.deps.CVParser.ParseCV(r.Context(), req.Text)
	if err != nil {
		s.logger.Error("parse CV failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not process CV")
		return
	}
	stored, err := s.loadProfile(r)
	if err != nil {
		s.logger.Error("load profile failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load settings")
		return
	}
	merged := analysis.MergeCV(stored, imported)
	if err := s.deps.Store.SaveProfile(r.Context(), merged); err != nil {
		s.logger.Error("save profile failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": merged})
}
