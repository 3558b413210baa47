package reporting

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shotcheck/internal/reporting/sarif"
	"github.com/xkilldash9x/shotcheck/internal/suite"
	"github.com/xkilldash9x/shotcheck/internal/visual"
)

// ruleHelp describes every failure kind a check can report.
var ruleHelp = map[string]string{
	visual.KindCapture.String():            "The page could not be set up or captured.",
	visual.KindMissingArtifact.String():    "No screenshot was generated, or no expected screenshot exists.",
	visual.KindVisualMismatch.String():     "The captured screenshot differs from the expected screenshot.",
	visual.KindStructuralMismatch.String(): "The page did not contain, or unexpectedly contained, an element.",
	visual.KindDiff.String():               "The screenshots could not be compared.",
	"usage":                                "The check was not configured correctly.",
}

// SARIFReporter writes failed checks as SARIF results, one run per suite,
// so CI code scanning can annotate them. It is safe for concurrent use.
type SARIFReporter struct {
	mu          sync.Mutex
	writer      io.WriteCloser
	logger      *zap.Logger
	toolVersion string
	log         *sarif.Log
}

func NewSARIFReporter(writer io.WriteCloser, logger *zap.Logger, toolVersion string) *SARIFReporter {
	return &SARIFReporter{
		writer:      writer,
		logger:      logger.Named("sarif_reporter"),
		toolVersion: toolVersion,
		log: &sarif.Log{
			Version: sarif.Version,
			Schema:  sarif.Schema,
			Runs:    []*sarif.Run{},
		},
	}
}

func (r *SARIFReporter) Write(result *suite.Result) error {
	if result == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	run := &sarif.Run{
		Tool: &sarif.Tool{Driver: &sarif.ToolComponent{
			Name:           ToolName,
			Version:        pString(r.toolVersion),
			InformationURI: pString(ToolInfoURI),
			Rules:          []*sarif.ReportingDescriptor{},
		}},
		AutomationDetails: &sarif.AutomationDetails{ID: result.Title + "/", GUID: result.RunID},
		Results:           []*sarif.Result{},
	}

	rules := make(map[string]bool)
	for _, check := range result.Checks {
		if check.Passed {
			continue
		}
		ruleID := ruleID(check.FailureKind)
		if !rules[ruleID] {
			rules[ruleID] = true
			run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, newRule(ruleID, check.FailureKind))
		}

		msg := check.Reason
		if check.Diagnostic != "" {
			msg = check.Diagnostic
		}
		res := &sarif.Result{
			RuleID:     ruleID,
			Message:    &sarif.Message{Text: pString(msg)},
			Level:      sarif.LevelError,
			Locations:  locations(result, check),
			Properties: sarif.PropertyBag{"check": check.Name, "kind": string(check.Kind)},
		}
		if diff, ok := result.DiffImages[check.Screen]; ok {
			res.Properties["diffImage"] = filepath.ToSlash(diff)
		}
		run.Results = append(run.Results, res)
	}

	r.log.Runs = append(r.log.Runs, run)
	r.logger.Debug("Added suite to SARIF log",
		zap.String("suite", result.Title),
		zap.Int("results", len(run.Results)))
	return nil
}

// Close encodes the log and closes the output writer.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(r.log)
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Info("Wrote SARIF report", zap.Int("runs", len(r.log.Runs)))
	return nil
}

func ruleID(failureKind string) string {
	if failureKind == "" {
		failureKind = "unknown"
	}
	return "SHOTCHECK-" + strings.ToUpper(strings.ReplaceAll(failureKind, "_", "-"))
}

func newRule(id, failureKind string) *sarif.ReportingDescriptor {
	help, ok := ruleHelp[failureKind]
	if !ok {
		help = "The check failed."
	}
	return &sarif.ReportingDescriptor{
		ID:               id,
		Name:             pString(failureKind),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(help)},
		Help: &sarif.MultiformatMessageString{
			Text:     pString(help),
			Markdown: pString(fmt.Sprintf("**%s**\n\n%s", failureKind, help)),
		},
	}
}

// locations points at the screenshots of a failed screenshot check.
func locations(result *suite.Result, check suite.CheckResult) []*sarif.Location {
	if check.Screen == "" {
		return nil
	}
	for _, test := range result.Failures {
		if test.Name != check.Screen {
			continue
		}
		var locs []*sarif.Location
		if test.ProcessedPath != "" {
			locs = append(locs, artifact(test.ProcessedPath, "Generated screenshot"))
		}
		if test.ExpectedPath != "" {
			locs = append(locs, artifact(test.ExpectedPath, "Expected screenshot"))
		}
		return locs
	}
	return nil
}

func artifact(path, label string) *sarif.Location {
	return &sarif.Location{
		PhysicalLocation: &sarif.PhysicalLocation{
			ArtifactLocation: &sarif.ArtifactLocation{URI: pString(filepath.ToSlash(path))},
		},
		Message: &sarif.Message{Text: pString(label)},
	}
}

// pString returns a pointer to s for optional SARIF fields.
func pString(s string) *string {
	return &s
}
