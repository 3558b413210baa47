package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shotcheck/internal/config"
	"github.com/xkilldash9x/shotcheck/internal/diffview"
	"github.com/xkilldash9x/shotcheck/internal/imagestore"
	"github.com/xkilldash9x/shotcheck/internal/observability"
	"github.com/xkilldash9x/shotcheck/internal/perceptual"
	"github.com/xkilldash9x/shotcheck/internal/renderer"
	"github.com/xkilldash9x/shotcheck/internal/reporting"
	"github.com/xkilldash9x/shotcheck/internal/suite"
	"github.com/xkilldash9x/shotcheck/internal/uirepo"
	"github.com/xkilldash9x/shotcheck/internal/visual"
)

type runFlags struct {
	baseURL            string
	printLogs          bool
	storeInUITestsRepo bool
	headless           bool
	format             string
	output             string
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [suite files...]",
		Short: "Run screenshot suites against a headless browser",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg, f); err != nil {
				return err
			}
			return runSuites(cmd.Context(), cfg, args, cmd.OutOrStdout(), observability.GetLogger())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.baseURL, "base-url", "", "URL relative page urls resolve against (overrides screenshots.base_url)")
	flags.BoolVar(&f.printLogs, "print-logs", false, "print page logs after passing screenshot checks")
	flags.BoolVar(&f.storeInUITestsRepo, "store-in-ui-tests-repo", false, "write processed and diff screenshots into the UI tests repository")
	flags.BoolVar(&f.headless, "headless", true, "run the browser without a window")
	flags.StringVarP(&f.format, "format", "f", "", "report format: text, json or sarif (overrides report.format)")
	flags.StringVarP(&f.output, "output", "o", "", "report destination, a file path or stdout (overrides report.output)")
	return cmd
}

// applyRunFlags overrides configuration with flags the user actually set and
// validates the result again.
func applyRunFlags(cmd *cobra.Command, cfg config.Interface, f runFlags) error {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.SetScreenshotsBaseURL(f.baseURL)
	}
	if flags.Changed("print-logs") {
		cfg.SetScreenshotsPrintLogs(f.printLogs)
	}
	if flags.Changed("store-in-ui-tests-repo") {
		cfg.SetScreenshotsStoreInUITestsRepo(f.storeInUITestsRepo)
	}
	if flags.Changed("headless") {
		cfg.SetBrowserHeadless(f.headless)
	}
	if flags.Changed("format") {
		cfg.SetReportFormat(f.format)
	}
	if flags.Changed("output") {
		cfg.SetReportOutput(f.output)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration after flag overrides: %w", err)
	}
	return nil
}

// runSuites wires the browser, image store and diff client together and runs
// every suite file in order against one page.
func runSuites(ctx context.Context, cfg config.Interface, paths []string, out io.Writer, logger *zap.Logger) error {
	sc := cfg.Screenshots()

	suites := make([]*suite.Suite, 0, len(paths))
	for _, path := range paths {
		s, err := suite.Load(path, sc.BaseDirectory)
		if err != nil {
			return err
		}
		suites = append(suites, s)
	}

	layout := imagestore.Layout{
		ExpectedDir:  sc.ExpectedDir,
		ProcessedDir: sc.ProcessedDir,
		DiffDir:      sc.DiffDir,
	}
	var repoHead string
	if sc.StoreInUITestsRepo {
		info, err := uirepo.Resolve(sc.UITestsDir)
		if err != nil {
			return err
		}
		layout.RepoRoot = info.Root
		repoHead = info.Head
		logger.Info("Storing screenshots in UI tests repository.",
			zap.String("root", info.Root), zap.String("branch", info.Branch))
	}

	fs := afero.NewOsFs()
	store := imagestore.New(fs, layout)
	diff := perceptual.NewPixelClient(fs, cfg.Diff().PixelThreshold, logger)

	reporter, err := reporting.New(cfg.Report().Format, cfg.Report().Output, logger, Version)
	if err != nil {
		return err
	}

	chrome, err := renderer.NewChrome(ctx, cfg.Browser(), sc.BaseURL, fs, logger)
	if err != nil {
		_ = reporter.Close()
		return err
	}
	defer chrome.Close()

	engine, err := visual.New(visual.Deps{
		Renderer: chrome,
		Store:    store,
		Diff:     diff,
		Failures: visual.NewFailureLog(),
		Options:  visual.Options{PrintLogs: sc.PrintLogs},
		Logger:   logger,
		Out:      out,
	})
	if err != nil {
		_ = reporter.Close()
		return err
	}

	runner := suite.NewRunner(engine, chrome, suite.RunnerOptions{
		CaptureTimeout: cfg.Browser().CaptureTimeout,
		RepoHead:       repoHead,
	}, logger)

	var generator *diffview.Generator
	if cfg.Diff().GenerateImages {
		generator = diffview.NewGenerator(store, diff, cfg.Diff().Concurrency, logger)
	}

	failed := 0
	for _, s := range suites {
		res, runErr := runner.Run(ctx, s)
		if generator != nil && len(res.Failures) > 0 && runErr == nil {
			attachDiffImages(ctx, generator, res, logger)
		}
		if err := reporter.Write(res); err != nil {
			logger.Error("Failed to write suite result.", zap.Error(err))
		}
		failed += res.Failed()
		if runErr != nil {
			_ = reporter.Close()
			return fmt.Errorf("suite %s interrupted: %w", s.Title, runErr)
		}
	}

	if err := reporter.Close(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d", ErrChecksFailed, failed)
	}
	return nil
}

func attachDiffImages(ctx context.Context, gen *diffview.Generator, res *suite.Result, logger *zap.Logger) {
	artifacts, err := gen.Generate(ctx, res.Failures)
	if err != nil {
		logger.Warn("Diff image generation interrupted.", zap.Error(err))
	}
	for _, art := range artifacts {
		if art.Skipped || art.Err != nil || art.DiffPath == "" {
			continue
		}
		if res.DiffImages == nil {
			res.DiffImages = make(map[string]string)
		}
		res.DiffImages[art.Test.Name] = art.DiffPath
	}
}
