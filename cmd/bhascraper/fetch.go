package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bhascraper/pkg/auth"
	"bhascraper/pkg/bha"
	"bhascraper/pkg/cache"
	"bhascraper/pkg/config"
	"bhascraper/pkg/daterange"
	errs "bhascraper/pkg/errors"
	"bhascraper/pkg/logger"
	"bhascraper/pkg/pipeline"
	"bhascraper/pkg/storage"
	"bhascraper/pkg/token"
	"bhascraper/pkg/ui"
	"bhascraper/pkg/ui/tui"

	"github.com/spf13/cobra"
)

var (
	// Fetch command flags
	fromDate           string
	toDate             string
	outDir             string
	noCache            bool
	includeHorses      bool
	includeRacecourses bool
	resumeRun          bool
	forceRestart       bool
	noCheckpoint       bool
	concurrent         int
	maxRetries         int
	rateLimit          int
	tokenStore         string
	showBrowser        bool
	useTUI             bool
	notify             bool
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch fixtures, races and results for a date range",
	Long: `Fetch every fixture in a date range together with its races and results.

Months are processed in order. Within a month the fixture list is paged, the
races of each fixture inside the range are fetched, then the results of every
race are fetched concurrently. With --horses every horse that ran is fetched
once per run.

Documents are written one file per document under --out, or as NDJSON to
stdout with --out -. A checkpoint is kept per range so an interrupted run can
be continued with --resume.`,
	Example: `  # One week of results into ./bha-data
  bhascraper fetch --from 2024-03-01 --to 2024-03-07

  # A season with horse profiles, streamed as NDJSON
  bhascraper fetch --from 2023-04-22 --to 2024-04-20 --horses --out - > season.ndjson

  # Continue an interrupted run
  bhascraper fetch --from 2023-04-22 --to 2024-04-20 --resume

  # Bypass the response cache and watch progress in the dashboard
  bhascraper fetch --from 2024-03-01 --to 2024-03-31 --no-cache --tui`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fromDate, "from", "", "first day, YYYY-MM-DD (required)")
	fetchCmd.Flags().StringVar(&toDate, "to", "", "last day, YYYY-MM-DD (required)")
	fetchCmd.Flags().StringVarP(&outDir, "out", "o", "bha-data", "output directory, or - for NDJSON on stdout")
	fetchCmd.Flags().BoolVar(&noCache, "no-cache", false, "always fetch from the network")
	fetchCmd.Flags().BoolVar(&includeHorses, "horses", false, "also fetch every horse that ran")
	fetchCmd.Flags().BoolVar(&includeRacecourses, "racecourses", false, "also fetch the racecourse list")
	fetchCmd.Flags().BoolVar(&resumeRun, "resume", false, "resume from the last checkpoint")
	fetchCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "discard an existing checkpoint and start over")
	fetchCmd.Flags().BoolVar(&noCheckpoint, "no-checkpoint", false, "do not record progress")
	fetchCmd.Flags().IntVar(&concurrent, "concurrent", 0, "concurrent result and horse fetches (default from config)")
	fetchCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "attempts per request (default from config)")
	fetchCmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "requests per minute (default from config)")
	fetchCmd.Flags().StringVar(&tokenStore, "token-store", "", "token persistence: none, keyring, file or auto")
	fetchCmd.Flags().BoolVar(&showBrowser, "show-browser", false, "run the token browser with a visible window")
	fetchCmd.Flags().BoolVar(&useTUI, "tui", false, "interactive dashboard instead of a progress line")
	fetchCmd.Flags().BoolVar(&notify, "notify", false, "desktop notification when the run ends")

	_ = fetchCmd.MarkFlagRequired("from")
	_ = fetchCmd.MarkFlagRequired("to")
	fetchCmd.MarkFlagsMutuallyExclusive("resume", "force-restart")
}

// fetchFlags builds the config override map from the fetch flags
func fetchFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if noCache {
		flags["no-cache"] = true
	}
	if includeHorses {
		flags["include-horses"] = true
	}
	if includeRacecourses {
		flags["include-racecourses"] = true
	}
	if concurrent > 0 {
		flags["concurrency"] = concurrent
	}
	if maxRetries > 0 {
		flags["max-retries"] = maxRetries
	}
	if rateLimit > 0 {
		flags["requests-per-minute"] = rateLimit
	}
	if tokenStore != "" {
		flags["token-store"] = tokenStore
	}
	if showBrowser {
		flags["headless"] = false
	}
	return flags
}

func runFetch(cmd *cobra.Command, args []string) error {
	r, err := daterange.Parse(fromDate, toDate)
	if err != nil {
		return err
	}

	cfg, log, err := loadConfig(fetchFlags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, target, err := openSink(outDir, os.Stdout)
	if err != nil {
		return err
	}

	ui.PrintBanner()
	ui.PrintInfo("Range", r.String())
	ui.PrintInfo("Output", target)

	var (
		summary *pipeline.Summary
		runErr  error
	)
	if useTUI {
		summary, runErr = fetchWithDashboard(ctx, cfg, r, sink)
	} else {
		summary, runErr = fetchWithProgress(ctx, cfg, log, r, sink)
	}

	if summary != nil {
		printSummary(ui.Out, summary)
	}
	if notify {
		notifyOutcome(ui.NewNotifier(), r, summary, runErr)
	}
	if runErr != nil {
		printHint(runErr)
		return runErr
	}
	ui.PrintSuccess("Fetch complete")
	return nil
}

func fetchWithProgress(ctx context.Context, cfg *config.Config, log logger.Logger, r daterange.Range, sink storage.Sink) (*pipeline.Summary, error) {
	var observer pipeline.Observer
	var progress *ui.Progress
	if !ui.Quiet {
		progress = ui.NewProgress(ui.Out, r.String(), verbose)
		observer = progress
	}

	p, err := newPipeline(cfg, log, sink, observer)
	if err != nil {
		return nil, err
	}

	summary, err := p.Run(ctx, r)
	if progress != nil && err == nil {
		progress.Complete()
	}
	return summary, err
}

// fetchWithDashboard runs the pipeline in the background while the
// dashboard owns the terminal. Logs are routed into the dashboard.
func fetchWithDashboard(ctx context.Context, cfg *config.Config, r daterange.Range, sink storage.Sink) (*pipeline.Summary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var months []string
	for _, m := range pipeline.Months(r) {
		months = append(months, m.String())
	}
	dash := tui.NewTUI(r.String(), months, cancel)

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	log := logger.NewWithWriter(dash.LogWriter(), level)
	logger.SetLogger(log)

	p, err := newPipeline(cfg, log, sink, dash)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		summary *pipeline.Summary
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		s, err := p.Run(runCtx, r)
		dash.Finish(err)
		done <- outcome{s, err}
	}()

	if err := dash.Start(); err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("dashboard failed: %w", err)
	}

	// The dashboard may exit first when the user quits
	cancel()
	res := <-done
	return res.summary, res.err
}

// newPipeline wires cache, client, token capture and token store into a
// Pipeline
func newPipeline(cfg *config.Config, log logger.Logger, sink storage.Sink, observer pipeline.Observer) (*pipeline.Pipeline, error) {
	var clientOpts []bha.Option
	if cfg.Cache.Enabled {
		c, err := cache.New(cfg.Cache.Directory, cache.WithMemory(cfg.Cache.MemoryEntries))
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, bha.WithCache(c))
	}
	client := bha.NewClient(cfg, log, clientOpts...)

	dataDir, err := config.DataDir()
	if err != nil {
		return nil, err
	}

	store, err := auth.NewManager(cfg.Token.Store, dataDir, cfg.Token.MaxAge, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	opts := pipeline.OptionsFromConfig(cfg)
	if !noCheckpoint {
		opts.CheckpointDir = dataDir
	}
	opts.Resume = resumeRun
	opts.ForceRestart = forceRestart

	acquirer := token.NewAcquirer(token.NewChromeBrowser(cfg), log)

	return pipeline.New(client, acquirer, sink, opts, log,
		pipeline.WithTokenStore(store),
		pipeline.WithObserver(observer),
	), nil
}

// openSink returns the sink for --out and a description of where documents
// go. "-" streams NDJSON to stdout and moves terminal output to stderr.
func openSink(out string, stdout io.Writer) (storage.Sink, string, error) {
	if out == "-" {
		ui.Out = os.Stderr
		return storage.NewNDJSONSink(stdout), "stdout (NDJSON)", nil
	}

	ds, err := storage.NewDirSink(out)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open output directory: %w", err)
	}
	return ds, ds.Dir(), nil
}

func printSummary(w io.Writer, s *pipeline.Summary) {
	if ui.Quiet {
		return
	}
	fmt.Fprintln(w)
	ui.PrintHighlight("Summary")
	rows := []struct {
		label string
		value interface{}
	}{
		{"Range", s.Range},
		{"Months", fmt.Sprintf("%d fetched, %d resumed, %d total", s.MonthsCompleted, s.MonthsResumed, s.Months)},
		{"Fixtures", s.Fixtures},
		{"Races", s.Races},
		{"Results", s.Results},
		{"Horses", s.Horses},
		{"Documents", s.Documents},
		{"Skipped", s.Skipped},
		{"Token captures", s.TokenCaptures},
		{"Token refreshes", s.TokenRefreshes},
		{"Duration", s.Duration.Round(time.Second).String()},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "  %-16s %v\n", row.label+":", row.value)
	}
}

func notifyOutcome(n *ui.Notifier, r daterange.Range, s *pipeline.Summary, err error) {
	if err != nil {
		n.SendError("Fetch failed", fmt.Sprintf("%s: %v", r, err))
		return
	}
	docs := 0
	if s != nil {
		docs = s.Documents
	}
	n.SendSuccess("Fetch complete", fmt.Sprintf("%s: %d documents", r, docs))
}

// printHint suggests a next step for failures the user can act on
func printHint(err error) {
	switch {
	case errors.Is(err, pipeline.ErrCheckpointExists):
		ui.PrintWarning("A checkpoint exists for this range. Use --resume to continue or --force-restart to start over")
	case errors.Is(err, token.ErrLaunch):
		ui.PrintWarning("Chrome could not be started. Install it or set token.chrome_path in the config")
	case errs.IsType(err, errs.ErrorTypeTokenCapture):
		ui.PrintWarning("No bearer token could be captured. Try --show-browser, or copy one by hand: bhascraper token guide")
	case errs.IsType(err, errs.ErrorTypeAuthExpired):
		ui.PrintWarning("The API kept rejecting fresh tokens. Clear stored tokens with: bhascraper token clear")
	case errors.Is(err, context.Canceled):
		ui.PrintWarning("Interrupted. Rerun with --resume to continue from the last completed month")
	}
}
