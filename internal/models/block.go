package models

import "time"

// Block is the transient pairing of a header fragment and a content
// fragment produced by the extractor. It is consumed to build exactly
// one Problem and is never persisted directly.
type Block struct {
	// GUID is the identifier embedded in the header element id
	// (div id="i<GUID>"), empty when the marker carries none.
	GUID string

	// TaskID is the human-visible task code from span.canselect.
	TaskID string

	// FormID is extracted from the answer-submission button, used by
	// the site to address the answer form for this task.
	FormID string

	// Index is the zero-based position of the block on its page.
	Index int

	HeaderHTML  string
	ContentHTML string
}

// PageContext carries everything the orchestrator needs to know about
// the page a set of blocks came from.
type PageContext struct {
	ProjectID string
	Subject   string
	Page      string
	URL       string
	AssetsDir string

	FetchMethod FetchMethod
	RenderTime  time.Duration
	FetchedAt   time.Time
}
