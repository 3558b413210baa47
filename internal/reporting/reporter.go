// Package reporting writes suite run results in machine and human readable formats.
package reporting

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/xkilldash9x/shotcheck/internal/suite"
)

const (
	ToolName    = "shotcheck"
	ToolInfoURI = "https://github.com/xkilldash9x/shotcheck"
)

// Reporter defines the interface for writing run results to an output.
type Reporter interface {
	// Write records the result of one suite run.
	Write(result *suite.Result) error
	// Close finalizes the report and closes the underlying output.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format ("text", "json" or "sarif") writing to
// outputPath. An empty path or "stdout" writes to standard output.
func New(format, outputPath string, logger *zap.Logger, toolVersion string) (Reporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch format {
	case "text", "json", "sarif":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return newReporter(format, writer, logger, toolVersion), nil
}

func newReporter(format string, writer io.WriteCloser, logger *zap.Logger, toolVersion string) Reporter {
	switch format {
	case "json":
		return NewJSONReporter(writer, logger, toolVersion)
	case "sarif":
		return NewSARIFReporter(writer, logger, toolVersion)
	default:
		return NewTextReporter(writer)
	}
}
