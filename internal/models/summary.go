package models

import (
	"encoding/json"
	"time"
)

// PageOutcome is the per-page record aggregated into the run summary.
type PageOutcome struct {
	Page          string        `json:"page"`
	Blocks        int           `json:"blocks"`
	ProblemsSaved int           `json:"problems_saved"`
	Failed        bool          `json:"failed,omitempty"`
	Error         string        `json:"error,omitempty"`
	FetchMethod   FetchMethod   `json:"fetch_method,omitempty"`
	Elapsed       time.Duration `json:"elapsed_ms"`
}

// RunSummary is the user-visible result of one scraping run.
type RunSummary struct {
	RunID     string `json:"run_id"`
	ProjectID string `json:"project_id"`
	Subject   string `json:"subject,omitempty"`

	PagesProcessed int `json:"pages_processed"`
	ProblemsSaved  int `json:"problems_saved"`
	FailedPages    int `json:"failed_pages"`
	DegradedBlocks int `json:"degraded_blocks"`
	FailedImages   int `json:"failed_images"`

	Pages []PageOutcome `json:"pages"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ms"`
}

// Record folds a page outcome into the summary counters.
func (s *RunSummary) Record(out PageOutcome) {
	s.Pages = append(s.Pages, out)
	s.PagesProcessed++
	s.ProblemsSaved += out.ProblemsSaved
	if out.Failed {
		s.FailedPages++
	}
}

// ExitCode maps the summary onto the CLI contract: 0 full success,
// 1 partial (some pages failed but the run completed).
func (s *RunSummary) ExitCode() int {
	if s.FailedPages > 0 {
		return 1
	}
	return 0
}

// ToJSON serializes the summary for the run report file.
func (s *RunSummary) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
