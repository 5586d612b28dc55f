package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/Clean1ines/iXe/internal/browser"
	"github.com/Clean1ines/iXe/internal/classify"
	"github.com/Clean1ines/iXe/internal/config"
	"github.com/Clean1ines/iXe/internal/normalize"
	"github.com/Clean1ines/iXe/internal/scraper"
	"github.com/Clean1ines/iXe/internal/storage"
	"github.com/Clean1ines/iXe/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Exit codes: 0 success, 1 partial (some pages failed), 2 fatal.
const (
	exitOK      = 0
	exitPartial = 1
	exitFatal   = 2
)

var (
	// global flags
	configFile string
	logLevel   string

	// run flags
	projectID   string
	subject     string
	resume      bool
	outputDir   string
	totalPages  int
	rateLimit   float64
	renderers   int
	storeKind   string
	noProgress  bool
)

var rootCmd = &cobra.Command{
	Use:   "ixescrape",
	Short: "Exam task bank scraper",
	Long: `ixescrape crawls the FIPI open task bank, renders its
script-built question pages in a headless browser, extracts the tasks
with their formulas and images, and stores them as clean structured
records.

A run is resumable: progress is checkpointed after every persisted
page, so an interrupted run continues with --resume.

Version: ` + Version + `
Build time: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logCfg := cfg.Logging
		if logLevel != "" {
			logCfg.Level = logLevel
		}
		if err := utils.InitLogger(logCfg); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return err
		}
		applyFlags(cfg)

		if err := validateRunFlags(cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		code, err := run(ctx, cfg)
		if err != nil {
			utils.Error(err, "run failed")
		}
		os.Exit(code)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ixescrape %s (built %s)\n", Version, BuildTime)
	},
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List subjects and their project ids from the bank index",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return err
		}
		projects, err := scraper.DiscoverProjects(cfg.Scrape.SubjectsURL, cfg.Scrape.UserAgent, cfg.Scrape.InsecureTLS)
		if err != nil {
			return err
		}
		for name, id := range projects {
			fmt.Printf("%s\t%s\n", id, name)
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file path")
	pf.StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	f := rootCmd.Flags()
	f.StringVarP(&projectID, "proj", "p", "", "project id to scrape")
	f.StringVarP(&subject, "subject", "s", "", "subject name, resolved to a project id via the bank index")
	f.BoolVarP(&resume, "resume", "r", false, "continue from the stored checkpoint")
	f.StringVarP(&outputDir, "output", "o", "", "output directory (overrides config)")
	f.IntVar(&totalPages, "pages", 0, "known last page number, 0 for unbounded")
	f.Float64Var(&rateLimit, "rate", 0, "max requests per second (overrides config)")
	f.IntVar(&renderers, "renderers", 0, "browser pool size (overrides config)")
	f.StringVar(&storeKind, "store", "", "problem store backend: sqlite or jsonl")
	f.BoolVar(&noProgress, "no-progress", false, "disable the progress bar")

	rootCmd.AddCommand(versionCmd, projectsCmd)
}

// applyFlags folds explicit CLI overrides into the loaded config.
func applyFlags(cfg *config.Config) {
	if outputDir != "" {
		cfg.Output.Dir = outputDir
		cfg.Output.DBPath = filepath.Join(outputDir, "problems.db")
		cfg.Output.CheckpointDir = filepath.Join(outputDir, "checkpoints")
	}
	if totalPages > 0 {
		cfg.Scrape.TotalPages = totalPages
	}
	if rateLimit > 0 {
		cfg.Scrape.MaxRequestsPerSec = rateLimit
	}
	if renderers > 0 {
		cfg.Scrape.MaxConcurrentRenderers = renderers
	}
	if storeKind != "" {
		cfg.Output.Store = storeKind
	}
}

// run wires the pipeline and executes the page loop.
func run(ctx context.Context, cfg *config.Config) (int, error) {
	proj := projectID
	if proj == "" && subject != "" {
		projects, err := scraper.DiscoverProjects(cfg.Scrape.SubjectsURL, cfg.Scrape.UserAgent, cfg.Scrape.InsecureTLS)
		if err != nil {
			return exitFatal, fmt.Errorf("discover projects: %w", err)
		}
		proj, err = scraper.ResolveProject(projects, subject)
		if err != nil {
			return exitFatal, err
		}
		utils.Infof("subject %q resolved to project %s", subject, proj)
	}

	// Browser and pool.
	b, err := browser.Launch(cfg.Scrape.Headless)
	if err != nil {
		return exitFatal, fmt.Errorf("launch browser: %w", err)
	}
	defer b.Close()

	monitor := browser.NewMonitor(browser.DefaultMonitorConfig())
	monitor.Start(5 * time.Second)
	defer monitor.Stop()

	pool, err := browser.NewPool(b.TabFactory(), cfg.Scrape.MaxConcurrentRenderers,
		browser.WithMonitor(monitor))
	if err != nil {
		return exitFatal, fmt.Errorf("browser pool: %w", err)
	}
	defer pool.CloseAll()

	renderer := browser.NewRenderer(pool)
	limiter := rate.NewLimiter(rate.Limit(cfg.Scrape.MaxRequestsPerSec), 1)
	wait := browser.WaitCondition{
		Selector: "div.qblock",
		Settle:   time.Duration(cfg.Scrape.SettleDelayMS) * time.Millisecond,
	}

	fetcher := scraper.NewFetcher(scraper.FetcherConfig{
		Limiter:       limiter,
		Renderer:      renderer,
		Wait:          wait,
		ContentMarker: "qblock",
		UserAgent:     cfg.Scrape.UserAgent,
		FetchTimeout:  time.Duration(cfg.Scrape.FetchTimeoutSec) * time.Second,
		RenderTimeout: time.Duration(cfg.Scrape.RenderTimeoutSec) * time.Second,
		InsecureTLS:   cfg.Scrape.InsecureTLS,
	})

	downloader := scraper.NewAssetDownloader(scraper.DownloaderConfig{
		Limiter:     limiter,
		UserAgent:   cfg.Scrape.UserAgent,
		Timeout:     time.Duration(cfg.Scrape.FetchTimeoutSec) * time.Second,
		InsecureTLS: cfg.Scrape.InsecureTLS,
	})

	orchestrator := scraper.NewOrchestrator(
		scraper.NewExtractor(),
		normalize.NewNormalizer(0),
		downloader,
		classify.NewService(),
		cfg.Scrape.MaxConcurrentRenderers,
	)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return exitFatal, err
	}
	defer closeStore()

	checkpoints, err := storage.NewFileCheckpointStore(cfg.Output.CheckpointDir)
	if err != nil {
		return exitFatal, err
	}

	reporter := utils.NewReporter(cfg.Output.Dir, proj)
	runner := scraper.NewRunner(cfg.Scrape, fetcher, orchestrator, store, checkpoints, reporter)

	summary, err := runner.Run(ctx, scraper.RunOptions{
		ProjectID: proj,
		Subject:   subject,
		Resume:    resume,
		AssetsDir: filepath.Join(cfg.Output.Dir, proj, "assets"),
		Progress:  !noProgress,
	})
	if err != nil {
		if summary != nil && summary.PagesProcessed > 0 {
			return exitPartial, err
		}
		return exitFatal, err
	}
	return summary.ExitCode(), nil
}

// openStore picks the configured problem store backend.
func openStore(cfg *config.Config) (scraper.ProblemStore, func(), error) {
	switch cfg.Output.Store {
	case config.StoreJSONL:
		path := filepath.Join(cfg.Output.Dir, "problems.jsonl")
		s, err := storage.OpenJSONLStore(path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		s, err := storage.OpenSQLiteStore(cfg.Output.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}
}
