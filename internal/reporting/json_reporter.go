package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shotcheck/internal/suite"
)

// Summary totals a report.
type Summary struct {
	Suites       int `json:"suites"`
	Checks       int `json:"checks"`
	Failed       int `json:"failed"`
	FailureLog   int `json:"failure_log"`
	DiffsWritten int `json:"diffs_written"`
}

// Document is the JSON report layout.
type Document struct {
	Tool        string          `json:"tool"`
	Version     string          `json:"version"`
	GeneratedAt time.Time       `json:"generated_at"`
	Summary     Summary         `json:"summary"`
	Runs        []*suite.Result `json:"runs"`
}

// JSONReporter buffers results and writes a single document on Close.
// It is safe for concurrent use.
type JSONReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	logger *zap.Logger
	doc    Document
}

func NewJSONReporter(writer io.WriteCloser, logger *zap.Logger, toolVersion string) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		logger: logger.Named("json_reporter"),
		doc: Document{
			Tool:    ToolName,
			Version: toolVersion,
			Runs:    []*suite.Result{},
		},
	}
}

func (r *JSONReporter) Write(result *suite.Result) error {
	if result == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.Runs = append(r.doc.Runs, result)
	return nil
}

func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.doc.GeneratedAt = time.Now().UTC()
	r.doc.Summary = summarize(r.doc.Runs)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(&r.doc)
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode JSON report", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode JSON output: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Debug("Wrote JSON report", zap.Int("runs", len(r.doc.Runs)))
	return nil
}

func summarize(runs []*suite.Result) Summary {
	s := Summary{Suites: len(runs)}
	for _, run := range runs {
		s.Checks += len(run.Checks)
		s.Failed += run.Failed()
		s.FailureLog += len(run.Failures)
		s.DiffsWritten += len(run.DiffImages)
	}
	return s
}
