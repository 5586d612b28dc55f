package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Clean1ines/iXe/internal/models"
)

// Reporter writes run reports and per-page debug artifacts under the
// run's output directory. Artifacts are diagnostic only; a write failure
// is logged and never fails the run.
type Reporter struct {
	outputDir string
	projectID string
}

// NewReporter creates a reporter rooted at outputDir for a project.
func NewReporter(outputDir, projectID string) *Reporter {
	return &Reporter{outputDir: outputDir, projectID: projectID}
}

// WriteSummary stores the final run summary as JSON and returns its path.
func (r *Reporter) WriteSummary(summary *models.RunSummary) (string, error) {
	reportsDir := filepath.Join(r.outputDir, r.projectID, "reports")
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}

	data, err := summary.ToJSON()
	if err != nil {
		return "", fmt.Errorf("marshal run summary: %w", err)
	}

	path := filepath.Join(reportsDir, fmt.Sprintf("run_%s.json", summary.StartedAt.Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write run summary: %w", err)
	}
	return path, nil
}

// SnapshotPage dumps rendered page markup for offline diagnosis of a
// processing failure.
func (r *Reporter) SnapshotPage(page, html string) {
	debugDir := filepath.Join(r.outputDir, r.projectID, "debug")
	if err := os.MkdirAll(debugDir, 0755); err != nil {
		Warnf("debug snapshot dir: %v", err)
		return
	}
	path := filepath.Join(debugDir, fmt.Sprintf("page_%s.html", page))
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		Warnf("debug snapshot write [%s]: %v", path, err)
		return
	}
	Debugf("debug snapshot written: %s", path)
}

// failureEntry is one line of the structured failure log.
type failureEntry struct {
	Time    time.Time `json:"time"`
	Page    string    `json:"page"`
	Stage   string    `json:"stage"`
	Subject string    `json:"subject,omitempty"`
	Error   string    `json:"error"`
}

// LogFailure appends a structured failure record for a page to the
// failure log (one JSON object per line).
func (r *Reporter) LogFailure(page, stage, subject string, failure error) {
	debugDir := filepath.Join(r.outputDir, r.projectID, "debug")
	if err := os.MkdirAll(debugDir, 0755); err != nil {
		Warnf("failure log dir: %v", err)
		return
	}

	entry := failureEntry{
		Time:    time.Now(),
		Page:    page,
		Stage:   stage,
		Subject: subject,
		Error:   failure.Error(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Warnf("failure log marshal: %v", err)
		return
	}

	path := filepath.Join(debugDir, "failures.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		Warnf("failure log open: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		Warnf("failure log write: %v", err)
	}
}
