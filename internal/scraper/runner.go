package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/Clean1ines/iXe/internal/models"
	"github.com/Clean1ines/iXe/internal/utils"
)

// PageFetcher retrieves one question page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// PageProcessor turns one fetched page into problems.
type PageProcessor interface {
	ProcessPage(ctx context.Context, pageHTML string, pc models.PageContext) ([]models.Problem, PageStats, error)
}

// ProblemStore persists problems and answers existence queries.
type ProblemStore interface {
	Exists(ctx context.Context, problemID string) (bool, error)
	Save(ctx context.Context, p *models.Problem) error
}

// CheckpointStore persists page-loop progress.
type CheckpointStore interface {
	Load(projectID string) (*models.ScrapeCheckpoint, error)
	Save(cp *models.ScrapeCheckpoint) error
}

// RunOptions are the per-invocation knobs on top of the config.
type RunOptions struct {
	ProjectID string
	Subject   string

	// Resume continues from the stored checkpoint instead of the
	// beginning.
	Resume bool

	// AssetsDir is where downloaded images land.
	AssetsDir string

	// Progress enables the terminal progress bar.
	Progress bool
}

// Runner drives the page loop for one project: init, 1, 2, ... until
// the known last page, a run of empty pages, or cancellation. Pages are
// strictly sequential; concurrency lives below, in per-block
// processing.
type Runner struct {
	cfg         models.ScrapeConfig
	fetcher     PageFetcher
	processor   PageProcessor
	store       ProblemStore
	checkpoints CheckpointStore
	reporter    *utils.Reporter
}

// NewRunner wires the run loop.
func NewRunner(cfg models.ScrapeConfig, f PageFetcher, p PageProcessor, store ProblemStore, cps CheckpointStore, rep *utils.Reporter) *Runner {
	return &Runner{
		cfg:         cfg,
		fetcher:     f,
		processor:   p,
		store:       store,
		checkpoints: cps,
		reporter:    rep,
	}
}

// Run executes the page loop and returns the run summary. The summary
// is valid even when err is non-nil: cancellation mid-run still reports
// the pages that completed.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*models.RunSummary, error) {
	cp, err := r.loadCheckpoint(opts)
	if err != nil {
		return nil, err
	}

	summary := &models.RunSummary{
		RunID:     uuid.NewString(),
		ProjectID: opts.ProjectID,
		Subject:   opts.Subject,
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		summary.FinishedAt = time.Now().UTC()
		summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)
		if r.reporter != nil {
			if path, werr := r.reporter.WriteSummary(summary); werr != nil {
				utils.Warnf("run report: %v", werr)
			} else {
				utils.Infof("run report written: %s", path)
			}
		}
	}()

	bar := r.newProgressBar(opts)
	page := cp.NextPage()
	emptyStreak := 0

	for {
		if err := ctx.Err(); err != nil {
			utils.Warnf("run cancelled at page %s", page)
			return summary, err
		}
		if r.cfg.TotalPages > 0 && pageNumber(page) > r.cfg.TotalPages {
			utils.Infof("reached last page (%d), stopping", r.cfg.TotalPages)
			break
		}

		outcome, stats := r.processOnePage(ctx, page, opts)
		summary.Record(outcome)
		summary.DegradedBlocks += stats.Degraded
		summary.FailedImages += stats.FailedImages
		if bar != nil {
			_ = bar.Add(1)
		}

		// The checkpoint only advances for pages that completed; a
		// failed page must be retried by the next run.
		if !outcome.Failed {
			cp.Advance(page, outcome.ProblemsSaved)
			if err := r.checkpoints.Save(cp); err != nil {
				return summary, fmt.Errorf("save checkpoint after page %s: %w", page, err)
			}
		}

		// A failed or contentless page counts toward the empty streak;
		// the bank pads the tail of every project with empty pages.
		if outcome.ProblemsSaved == 0 && outcome.Blocks == 0 {
			emptyStreak++
			if emptyStreak >= r.cfg.MaxEmptyPages {
				utils.Infof("%d consecutive empty pages, stopping at page %s", emptyStreak, page)
				break
			}
		} else {
			emptyStreak = 0
		}

		page = nextPage(page)
	}

	utils.Infof("run complete: %d pages, %d problems saved, %d failed pages",
		summary.PagesProcessed, summary.ProblemsSaved, summary.FailedPages)
	return summary, nil
}

// processOnePage fetches, processes and persists a single page. All
// failures are absorbed into the outcome.
func (r *Runner) processOnePage(ctx context.Context, page string, opts RunOptions) (models.PageOutcome, PageStats) {
	start := time.Now()
	outcome := models.PageOutcome{Page: page}

	pageURL := r.pageURL(opts.ProjectID, page)
	utils.Infof("processing page %s [%s]", page, pageURL)

	res, err := r.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		outcome.Failed = true
		outcome.Error = err.Error()
		outcome.Elapsed = time.Since(start)
		utils.Errorf("page %s fetch failed: %v", page, err)
		if r.reporter != nil {
			r.reporter.LogFailure(page, "fetch", opts.Subject, err)
		}
		return outcome, PageStats{}
	}
	outcome.FetchMethod = res.Method

	pc := models.PageContext{
		ProjectID:   opts.ProjectID,
		Subject:     opts.Subject,
		Page:        page,
		URL:         pageURL,
		AssetsDir:   opts.AssetsDir,
		FetchMethod: res.Method,
		RenderTime:  res.Latency,
		FetchedAt:   time.Now().UTC(),
	}

	problems, stats, err := r.processor.ProcessPage(ctx, string(res.Body), pc)
	if err != nil {
		outcome.Failed = true
		outcome.Error = err.Error()
		outcome.Elapsed = time.Since(start)
		utils.Errorf("page %s processing failed: %v", page, err)
		if r.reporter != nil {
			r.reporter.LogFailure(page, "process", opts.Subject, err)
			r.reporter.SnapshotPage(page, string(res.Body))
		}
		return outcome, stats
	}
	outcome.Blocks = stats.Blocks

	saved, err := r.persist(ctx, problems)
	outcome.ProblemsSaved = saved
	if err != nil {
		outcome.Failed = true
		outcome.Error = err.Error()
		utils.Errorf("page %s persistence failed after %d saves: %v", page, saved, err)
		if r.reporter != nil {
			r.reporter.LogFailure(page, "persist", opts.Subject, err)
		}
	}

	outcome.Elapsed = time.Since(start)
	utils.Infof("page %s done: %d blocks, %d saved (%s, %s)",
		page, stats.Blocks, saved, res.Method, outcome.Elapsed.Round(time.Millisecond))
	return outcome, stats
}

// persist saves problems one by one, skipping ids already stored.
func (r *Runner) persist(ctx context.Context, problems []models.Problem) (int, error) {
	saved := 0
	for i := range problems {
		p := &problems[i]
		exists, err := r.store.Exists(ctx, p.ProblemID)
		if err != nil {
			return saved, fmt.Errorf("exists %s: %w", p.ProblemID, err)
		}
		if exists {
			utils.Debugf("problem %s already stored, skipping", p.ProblemID)
			continue
		}
		if err := r.store.Save(ctx, p); err != nil {
			return saved, fmt.Errorf("save %s: %w", p.ProblemID, err)
		}
		saved++
	}
	return saved, nil
}

// loadCheckpoint returns the checkpoint the run starts from.
func (r *Runner) loadCheckpoint(opts RunOptions) (*models.ScrapeCheckpoint, error) {
	if opts.Resume {
		cp, err := r.checkpoints.Load(opts.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
		if cp != nil {
			utils.Infof("resuming project %s from page %s (%d problems saved so far)",
				opts.ProjectID, cp.NextPage(), cp.ProblemsSaved)
			return cp, nil
		}
		utils.Infof("no checkpoint for project %s, starting fresh", opts.ProjectID)
	}
	return models.NewCheckpoint(opts.ProjectID, opts.Subject), nil
}

// pageURL builds the questions URL for one page. The init page carries
// no page parameter.
func (r *Runner) pageURL(projectID, page string) string {
	q := url.Values{}
	q.Set("proj", projectID)
	if page != models.InitPage {
		q.Set("page", page)
	}
	return r.cfg.BaseURL + "?" + q.Encode()
}

func (r *Runner) newProgressBar(opts RunOptions) *progressbar.ProgressBar {
	if !opts.Progress {
		return nil
	}
	total := int64(-1)
	if r.cfg.TotalPages > 0 {
		total = int64(r.cfg.TotalPages + 1) // numbered pages plus init
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(fmt.Sprintf("project %s", opts.ProjectID)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
}

// nextPage advances the page name: init precedes "1".
func nextPage(page string) string {
	if page == models.InitPage {
		return "1"
	}
	return fmt.Sprintf("%d", pageNumber(page)+1)
}

// pageNumber maps a page name onto the numeric axis; init is 0.
func pageNumber(page string) int {
	if page == models.InitPage {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(page, "%d", &n); err != nil {
		return 0
	}
	return n
}

// ErrNoProject is returned by discovery helpers when a project id
// cannot be found for the requested subject.
var ErrNoProject = errors.New("project not found")
