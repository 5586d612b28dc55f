package scraper

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Clean1ines/iXe/internal/classify"
	"github.com/Clean1ines/iXe/internal/models"
	"github.com/Clean1ines/iXe/internal/normalize"
	"github.com/Clean1ines/iXe/internal/utils"
)

// Classifier derives task metadata from a block.
type Classifier interface {
	Classify(block models.Block) classify.Result
}

// PageStats summarizes one processed page for the run report.
type PageStats struct {
	Blocks       int
	FailedBlocks int
	Degraded     int
	FailedImages int
}

// Orchestrator turns one rendered page into persisted-ready problems:
// extract blocks, then per block normalize text, derive metadata and
// download assets. Blocks are independent, so they run concurrently;
// a failed block is dropped and logged, never fatal for the page.
type Orchestrator struct {
	extractor  *Extractor
	normalizer *normalize.Normalizer
	downloader *AssetDownloader
	classifier Classifier
	workers    int
}

// NewOrchestrator wires the processing stages. workers bounds per-block
// concurrency; values below 1 fall back to 1.
func NewOrchestrator(ex *Extractor, n *normalize.Normalizer, d *AssetDownloader, c Classifier, workers int) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		extractor:  ex,
		normalizer: n,
		downloader: d,
		classifier: c,
		workers:    workers,
	}
}

// ProcessPage extracts and processes every block on the page. The
// returned slice preserves document order regardless of which worker
// finished first.
func (o *Orchestrator) ProcessPage(ctx context.Context, pageHTML string, pc models.PageContext) ([]models.Problem, PageStats, error) {
	blocks, err := o.extractor.ExtractBlocks(pageHTML)
	if err != nil {
		return nil, PageStats{}, err
	}

	stats := PageStats{Blocks: len(blocks)}
	if len(blocks) == 0 {
		return nil, stats, nil
	}

	results := make([]*models.Problem, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i, block := range blocks {
		i, block := i, block
		g.Go(func() error {
			p, err := o.processBlock(gctx, block, pc)
			if err != nil {
				utils.Errorf("page %s block %d (%s): %v", pc.Page, block.Index, block.GUID, err)
				return nil
			}
			results[i] = p
			return nil
		})
	}
	// Workers swallow their own errors, so the only wait failure is
	// group-context cancellation.
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	if ctx.Err() != nil {
		return nil, stats, ctx.Err()
	}

	problems := make([]models.Problem, 0, len(blocks))
	for _, p := range results {
		if p == nil {
			stats.FailedBlocks++
			continue
		}
		if p.Meta.MathDegraded {
			stats.Degraded++
		}
		for _, img := range p.Images {
			if !img.Downloaded() {
				stats.FailedImages++
			}
		}
		problems = append(problems, *p)
	}
	return problems, stats, nil
}

// processBlock runs the per-block pipeline.
func (o *Orchestrator) processBlock(ctx context.Context, block models.Block, pc models.PageContext) (*models.Problem, error) {
	norm, err := o.normalizer.Normalize(block)
	if err != nil {
		return nil, err
	}

	meta := models.ProblemMeta{
		FetchMethod:  pc.FetchMethod,
		RenderTime:   pc.RenderTime,
		FetchedAt:    pc.FetchedAt,
		BlockIndex:   block.Index,
		MathDegraded: norm.Degraded,
	}

	var answerType string
	if o.classifier != nil {
		cr := o.classifier.Classify(block)
		meta.KESCodes = cr.KESCodes
		meta.Difficulty = cr.Difficulty
		answerType = cr.AnswerType
	}

	var images []models.Image
	if o.downloader != nil {
		images = o.downloader.DownloadImages(ctx, block, pc)
	}

	p := &models.Problem{
		ProblemID:     models.ProblemID(pc.Page, block.GUID, block.Index),
		ProjectID:     pc.ProjectID,
		Page:          pc.Page,
		SourceURL:     pc.URL,
		Text:          norm.Text,
		MathText:      norm.MathText,
		HTML:          norm.HTML,
		Images:        images,
		AnswerType:    answerType,
		Meta:          meta,
		SchemaVersion: models.SchemaVersion,
		CreatedAt:     time.Now().UTC(),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
