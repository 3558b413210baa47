package reporting

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/shotcheck/internal/suite"
)

// TextReporter prints each run as it is written, followed by a totals line
// on Close.
type TextReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	runs   []*suite.Result
}

func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{writer: writer}
}

func (r *TextReporter) Write(result *suite.Result) error {
	if result == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs = append(r.runs, result)
	var b strings.Builder
	fmt.Fprintf(&b, "%s (run %s", result.Title, result.RunID)
	if result.RepoHead != "" {
		fmt.Fprintf(&b, ", ui tests at %.12s", result.RepoHead)
	}
	b.WriteString(")\n")

	for _, c := range result.Checks {
		if c.Passed {
			fmt.Fprintf(&b, "  ok    %s (%s)\n", c.Name, c.Duration.Round(time.Millisecond))
			continue
		}
		fmt.Fprintf(&b, "  FAIL  %s [%s]\n", c.Name, c.FailureKind)
		detail := c.Diagnostic
		if detail == "" {
			detail = c.Reason
		}
		for _, line := range strings.Split(strings.TrimRight(detail, "\n"), "\n") {
			b.WriteString("        " + line + "\n")
		}
	}

	if len(result.DiffImages) > 0 {
		screens := make([]string, 0, len(result.DiffImages))
		for screen := range result.DiffImages {
			screens = append(screens, screen)
		}
		sort.Strings(screens)
		b.WriteString("  diff images:\n")
		for _, screen := range screens {
			fmt.Fprintf(&b, "    %s: %s\n", screen, result.DiffImages[screen])
		}
	}

	if _, err := io.WriteString(r.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write text report: %w", err)
	}
	return nil
}

func (r *TextReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := summarize(r.runs)
	_, writeErr := fmt.Fprintf(r.writer, "\n%d suites, %d checks, %d failed\n", s.Suites, s.Checks, s.Failed)
	closeErr := r.writer.Close()

	if writeErr != nil {
		return fmt.Errorf("failed to write text report: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
