package models

import (
	"fmt"
	"strings"
	"time"
)

// SchemaVersion tags every persisted Problem record so downstream
// consumers can detect incompatible shape changes.
const SchemaVersion = "ixe.problem/v1"

// FetchMethod records which path produced the page markup.
type FetchMethod string

const (
	FetchDirect   FetchMethod = "direct"
	FetchRendered FetchMethod = "rendered"
)

// Image is a downloaded asset referenced by a problem block.
// LocalPath stays empty when the download failed; the original URL is
// always preserved so a later run can retry.
type Image struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	LocalPath string `json:"local_path,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	MIMEType  string `json:"mime_type,omitempty"`
}

// Downloaded reports whether the asset made it to disk.
func (i Image) Downloaded() bool {
	return i.LocalPath != ""
}

// ProblemMeta carries provenance and classification codes for a problem.
type ProblemMeta struct {
	KESCodes     []string      `json:"kes_codes,omitempty"`
	KOSCodes     []string      `json:"kos_codes,omitempty"`
	Difficulty   string        `json:"difficulty,omitempty"`
	FetchMethod  FetchMethod   `json:"fetch_method"`
	RenderTime   time.Duration `json:"render_time_ms"`
	FetchedAt    time.Time     `json:"fetched_at"`
	BlockIndex   int           `json:"block_index"`
	MathDegraded bool          `json:"math_degraded,omitempty"`
}

// Problem is the unit of scraper output: one exam task extracted from
// one qblock, immutable once assembled by the orchestrator.
type Problem struct {
	ProblemID     string      `json:"problem_id"`
	ProjectID     string      `json:"project_id"`
	Page          string      `json:"page"`
	SourceURL     string      `json:"source_url"`
	Text          string      `json:"text"`
	MathText      string      `json:"math_text,omitempty"`
	HTML          string      `json:"html"`
	Images        []Image     `json:"images,omitempty"`
	AnswerType    string      `json:"answer_type"`
	Answer        string      `json:"answer,omitempty"`
	Meta          ProblemMeta `json:"metadata"`
	SchemaVersion string      `json:"schema_version"`
	CreatedAt     time.Time   `json:"created_at"`
}

// ProblemID derives the stable identifier for a block. The site exposes a
// per-task GUID; when it is missing the block index keeps ids unique
// within the page.
func ProblemID(page, guid string, blockIndex int) string {
	if guid == "" {
		return fmt.Sprintf("%s_%d", page, blockIndex)
	}
	return fmt.Sprintf("%s_%d_%s", page, blockIndex, guid)
}

// Validate checks the invariants a problem must satisfy before it is
// handed to the persistence collaborator.
func (p *Problem) Validate() error {
	if p.ProblemID == "" {
		return fmt.Errorf("problem: empty problem_id")
	}
	if p.ProjectID == "" {
		return fmt.Errorf("problem %s: empty project_id", p.ProblemID)
	}
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("problem %s: empty text", p.ProblemID)
	}
	if p.SchemaVersion == "" {
		return fmt.Errorf("problem %s: missing schema version", p.ProblemID)
	}
	for _, img := range p.Images {
		if img.URL == "" {
			return fmt.Errorf("problem %s: image without source URL", p.ProblemID)
		}
	}
	return nil
}
