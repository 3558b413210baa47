package suite

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shotcheck/internal/renderer"
	"github.com/xkilldash9x/shotcheck/internal/visual"
)

// CheckResult is the verdict of one check.
type CheckResult struct {
	Name        string        `json:"name"`
	Kind        CheckKind     `json:"kind"`
	Screen      string        `json:"screen,omitempty"`
	Passed      bool          `json:"passed"`
	FailureKind string        `json:"failure_kind,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Diagnostic  string        `json:"diagnostic,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Result summarises one suite run.
type Result struct {
	RunID     string                  `json:"run_id"`
	Title     string                  `json:"title"`
	RepoHead  string                  `json:"repo_head,omitempty"`
	StartedAt time.Time               `json:"started_at"`
	Duration  time.Duration           `json:"duration"`
	Checks    []CheckResult           `json:"checks"`
	Failures  []visual.ScreenshotTest `json:"failures"`
	// DiffImages maps failed screen names to rendered diff images.
	DiffImages map[string]string `json:"diff_images,omitempty"`
}

// Failed counts failing checks.
func (r *Result) Failed() int {
	n := 0
	for _, c := range r.Checks {
		if !c.Passed {
			n++
		}
	}
	return n
}

type RunnerOptions struct {
	// CaptureTimeout bounds each check. Zero means no limit beyond ctx.
	CaptureTimeout time.Duration
	// RepoHead stamps results with the UI tests repository commit.
	RepoHead string
}

// Runner executes suites one check at a time against a single page.
type Runner struct {
	engine *visual.Engine
	page   renderer.Renderer
	opts   RunnerOptions
	logger *zap.Logger
}

func NewRunner(engine *visual.Engine, page renderer.Renderer, opts RunnerOptions, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{engine: engine, page: page, opts: opts, logger: logger.Named("suite")}
}

// Run executes every check of s in order. It only returns an error when ctx
// is cancelled; check failures are reported in the Result.
func (r *Runner) Run(ctx context.Context, s *Suite) (*Result, error) {
	eng := r.engine.WithSuite(visual.Suite{Title: s.Title, BaseDirectory: s.BaseDirectory})
	res := &Result{
		RunID:     uuid.NewString(),
		Title:     s.Title,
		RepoHead:  r.opts.RepoHead,
		StartedAt: time.Now(),
	}
	logger := r.logger.With(zap.String("run_id", res.RunID), zap.String("suite", s.Title))
	logger.Info("Running suite.", zap.Int("checks", len(s.Checks)))

	before := len(eng.Failures().Entries())
	for _, check := range s.Checks {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		cr := r.runCheck(ctx, eng, s, check)
		if cr.Passed {
			logger.Info("Check passed.", zap.String("check", cr.Name))
		} else {
			logger.Warn("Check failed.", zap.String("check", cr.Name), zap.String("reason", cr.Reason))
		}
		res.Checks = append(res.Checks, cr)
	}

	res.Failures = eng.Failures().Entries()[before:]
	res.Duration = time.Since(res.StartedAt)
	logger.Info("Suite finished.", zap.Int("failed", res.Failed()), zap.Duration("duration", res.Duration))
	return res, ctx.Err()
}

func (r *Runner) runCheck(ctx context.Context, eng *visual.Engine, s *Suite, check Check) CheckResult {
	cr := CheckResult{Name: check.DisplayName(), Kind: check.Kind()}
	start := time.Now()

	if r.opts.CaptureTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.CaptureTimeout)
		defer cancel()
	}
	r.page.ResetLogs()

	url := check.URL
	if url == "" {
		url = s.URL
	}

	var err error
	switch check.Kind() {
	case KindScreenshot:
		screen := eng.ScreenshotName(check.Screen)
		cr.Screen = screen
		baseline := screen
		if check.Baseline != "" {
			baseline = eng.ScreenshotName(check.Baseline)
		}
		err = eng.Verify(ctx, visual.Capture{
			Screen:   screen,
			Baseline: baseline,
			Selector: check.Selector,
			Setup:    Setup(url, check.Steps),
		})
	case KindContains, KindNotContains:
		selector, negate := check.Contains, false
		if check.Kind() == KindNotContains {
			selector, negate = check.NotContains, true
		}
		if check.Screen != "" {
			cr.Screen = eng.ScreenshotName(check.Screen)
		}
		err = eng.Contains(ctx, visual.Containment{
			URL:      url,
			Selector: selector,
			Screen:   check.Screen,
			Negate:   negate,
			Setup:    Setup("", check.Steps),
		})
	}

	cr.Duration = time.Since(start)
	if err == nil {
		cr.Passed = true
		return cr
	}
	cr.Reason = err.Error()
	if f, ok := visual.AsFailure(err); ok {
		cr.FailureKind = f.Kind().String()
		cr.Diagnostic = f.Diagnostic()
	} else {
		cr.FailureKind = "usage"
	}
	return cr
}
