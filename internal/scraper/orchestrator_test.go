package scraper

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Clean1ines/iXe/internal/classify"
	"github.com/Clean1ines/iXe/internal/models"
	"github.com/Clean1ines/iXe/internal/normalize"
)

func newTestOrchestrator() *Orchestrator {
	return NewOrchestrator(
		NewExtractor(),
		normalize.NewNormalizer(0),
		nil, // no asset downloads in unit tests
		classify.NewService(),
		2,
	)
}

func TestProcessPage(t *testing.T) {
	pc := models.PageContext{
		ProjectID:   "PROJ1",
		Page:        "1",
		URL:         "https://example.org/bank/questions.php?proj=PROJ1&page=1",
		FetchMethod: models.FetchRendered,
		RenderTime:  2 * time.Second,
		FetchedAt:   time.Now().UTC(),
	}

	problems, stats, err := newTestOrchestrator().ProcessPage(context.Background(), samplePage, pc)
	if err != nil {
		t.Fatalf("ProcessPage: %v", err)
	}
	if stats.Blocks != 2 {
		t.Errorf("Blocks = %d, want 2", stats.Blocks)
	}
	if len(problems) != 2 {
		t.Fatalf("got %d problems, want 2", len(problems))
	}

	first := problems[0]
	if first.ProblemID != "1_0_AB12CD34EF56" {
		t.Errorf("ProblemID = %q, want 1_0_AB12CD34EF56", first.ProblemID)
	}
	if first.ProjectID != "PROJ1" {
		t.Errorf("ProjectID = %q", first.ProjectID)
	}
	if !strings.Contains(first.Text, "Первая задача") {
		t.Errorf("Text = %q, want task text", first.Text)
	}
	if first.Meta.FetchMethod != models.FetchRendered {
		t.Errorf("FetchMethod = %q, want rendered", first.Meta.FetchMethod)
	}
	if first.SchemaVersion != models.SchemaVersion {
		t.Errorf("SchemaVersion = %q", first.SchemaVersion)
	}
	if first.AnswerType == "" {
		t.Error("AnswerType not derived")
	}

	// Document order survives concurrent processing.
	if problems[1].Meta.BlockIndex != 1 {
		t.Errorf("second problem BlockIndex = %d, want 1", problems[1].Meta.BlockIndex)
	}
}

func TestProcessPageEmpty(t *testing.T) {
	problems, stats, err := newTestOrchestrator().ProcessPage(context.Background(),
		`<body><div id="main">ничего не найдено</div></body>`, models.PageContext{Page: "99"})
	if err != nil {
		t.Fatalf("ProcessPage: %v", err)
	}
	if len(problems) != 0 || stats.Blocks != 0 {
		t.Errorf("got %d problems, %d blocks; want 0, 0", len(problems), stats.Blocks)
	}
}

func TestProcessPageAbsorbsBlockFailure(t *testing.T) {
	// The second block has no visible text, so validation rejects it;
	// the first must still come through.
	page := `<body>
	<div id="iAABB11"><span class="canselect">T1</span></div>
	<div class="qblock">Нормальная задача</div>
	<div id="iCCDD22"><span class="canselect">T2</span></div>
	<div class="qblock"><script>only script</script></div>
	</body>`

	pc := models.PageContext{ProjectID: "PROJ1", Page: "3"}
	problems, stats, err := newTestOrchestrator().ProcessPage(context.Background(), page, pc)
	if err != nil {
		t.Fatalf("ProcessPage: %v", err)
	}
	if stats.Blocks != 2 {
		t.Errorf("Blocks = %d, want 2", stats.Blocks)
	}
	if stats.FailedBlocks != 1 {
		t.Errorf("FailedBlocks = %d, want 1", stats.FailedBlocks)
	}
	if len(problems) != 1 {
		t.Fatalf("got %d problems, want 1", len(problems))
	}
	if !strings.Contains(problems[0].Text, "Нормальная задача") {
		t.Errorf("wrong surviving problem: %q", problems[0].Text)
	}
}
