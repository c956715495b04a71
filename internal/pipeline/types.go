// Package pipeline holds the shared domain types, task contract and
// interfaces of the job discovery pipeline.
package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus enumerates the lifecycle states of a discovered job.
type JobStatus string

const (
	// JobStatusOpen marks a scored job without a draft.
	JobStatusOpen JobStatus = "OPEN"
	// JobStatusCompleted marks a job whose application draft was generated.
	JobStatusCompleted JobStatus = "COMPLETED"
)

// Job is a discovered, AI-scored job posting.
type Job struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Company          string    `json:"company"`
	Description      string    `json:"description"`
	MatchScore       int       `json:"match_score"`
	Reasoning        string    `json:"reasoning"`
	ApplicationDraft *string   `json:"application_draft,omitempty"`
	URL              string    `json:"url"`
	Status           JobStatus `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	GenerationError  *string   `json:"generation_error,omitempty"`
}

// Experience is one work history entry of a CV.
type Experience struct {
	Company     string `json:"company"`
	Role        string `json:"role"`
	Duration    string `json:"duration"`
	Description string `json:"description"`
}

// Project is one portfolio entry of a CV.
type Project struct {
	Name        string `json:"name"`
	TechStack   string `json:"tech_stack"`
	Description string `json:"description"`
}

// CVData is the structured part of the user profile.
type CVData struct {
	Education  string       `json:"education"`
	Experience []Experience `json:"experience"`
	Projects   []Project    `json:"projects"`
}

// Profile is the singleton user profile jobs are scored against.
type Profile struct {
	Role        string   `json:"role"`
	Skills      string   `json:"skills"`
	MinSalary   int      `json:"min_salary"`
	Location    string   `json:"location"`
	Preferences string   `json:"preferences"`
	JobURLs     []string `json:"job_urls"`
	CV          CVData   `json:"cv_data"`
}

// Summary renders the profile as prompt context for scoring.
func (p Profile) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Role: %s\n", p.Role)
	fmt.Fprintf(&b, "Skills: %s\n", p.Skills)
	if p.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", p.Location)
	}
	if p.MinSalary > 0 {
		fmt.Fprintf(&b, "Minimum salary: %d\n", p.MinSalary)
	}
	if p.Preferences != "" {
		fmt.Fprintf(&b, "Preferences: %s\n", p.Preferences)
	}
	if cv := p.CV.Format(); cv != "" {
		b.WriteString("\n")
		b.WriteString(cv)
	}
	return strings.TrimSpace(b.String())
}

// Format lays the CV out as experience, projects and education sections.
func (c CVData) Format() string {
	var b strings.Builder
	if len(c.Experience) > 0 {
		b.WriteString("PROFESSIONAL EXPERIENCE:\n")
		for _, exp := range c.Experience {
			fmt.Fprintf(&b, "- %s at %s (%s): %s\n", exp.Role, exp.Company, exp.Duration, exp.Description)
		}
		b.WriteString("\n")
	}
	if len(c.Projects) > 0 {
		b.WriteString("PROJECTS:\n")
		for _, p := range c.Projects {
			fmt.Fprintf(&b, "- %s (Tech: %s): %s\n", p.Name, p.TechStack, p.Description)
		}
		b.WriteString("\n")
	}
	if strings.TrimSpace(c.Education) != "" {
		b.WriteString("EDUCATION:\n")
		b.WriteString(strings.TrimSpace(c.Education))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// Page is the rendered content of one fetched URL.
type Page struct {
	URL      string
	FinalURL string
	HTML     string
	Duration time.Duration
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
