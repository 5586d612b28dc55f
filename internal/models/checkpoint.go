package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// InitPage is the name of the unnumbered first page of a project.
// Numbered pages follow starting from 1.
const InitPage = "init"

// ScrapeCheckpoint records the last page whose problems were fully
// persisted. It is written strictly after the page's problems are saved
// and before advancing, which is what makes runs resumable: a crash
// between save and checkpoint costs at most one page of re-processing.
type ScrapeCheckpoint struct {
	ProjectID string `json:"project_id"`
	Subject   string `json:"subject,omitempty"`

	// LastPage is the last completed page ("init", "1", "2", ...).
	LastPage string `json:"last_page"`

	PagesDone     int `json:"pages_done"`
	ProblemsSaved int `json:"problems_saved"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCheckpoint creates the run-start checkpoint for a project. LastPage
// is empty until the init page completes.
func NewCheckpoint(projectID, subject string) *ScrapeCheckpoint {
	now := time.Now()
	return &ScrapeCheckpoint{
		ProjectID: projectID,
		Subject:   subject,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance marks a page as completed with the given number of saved problems.
func (c *ScrapeCheckpoint) Advance(page string, saved int) {
	c.LastPage = page
	c.PagesDone++
	c.ProblemsSaved += saved
	c.UpdatedAt = time.Now()
}

// NextPage returns the page that should be processed after the
// checkpointed one. An empty LastPage means the run starts at init.
func (c *ScrapeCheckpoint) NextPage() string {
	switch c.LastPage {
	case "":
		return InitPage
	case InitPage:
		return "1"
	default:
		var n int
		if _, err := fmt.Sscanf(c.LastPage, "%d", &n); err != nil {
			return InitPage
		}
		return fmt.Sprintf("%d", n+1)
	}
}

// ToJSON serializes the checkpoint for the file-backed store.
func (c *ScrapeCheckpoint) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// FromJSON restores a checkpoint from its serialized form.
func (c *ScrapeCheckpoint) FromJSON(data []byte) error {
	return json.Unmarshal(data, c)
}

// CheckpointFilename names the checkpoint file for a project.
func CheckpointFilename(projectID string) string {
	return fmt.Sprintf("checkpoint_%s.json", projectID)
}
