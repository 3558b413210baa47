package visual

import (
	"path/filepath"
	"strings"
)

// diagnosticIndent lines detail rows up under the test runner's failure title.
const diagnosticIndent = "     "

// FormatLogs renders page logs for a failure diagnostic. It returns "" when
// there are no logs; otherwise a blank separator line, a header and one
// indented entry per log, without a trailing newline.
func FormatLogs(pageLogs []string, indent string) string {
	if len(pageLogs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(indent)
	b.WriteString("Rendering logs:")
	for _, msg := range pageLogs {
		b.WriteString("\n")
		b.WriteString(indent)
		b.WriteString("  ")
		b.WriteString(strings.ReplaceAll(msg, "\n", "\n"+indent+"  "))
	}
	return b.String()
}

// rendererDiagnostic is used when the renderer itself failed. url may be
// empty when the page never loaded.
func rendererDiagnostic(message, url string, pageLogs []string) string {
	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\n" + diagnosticIndent)
	if url != "" {
		b.WriteString("Url to reproduce: " + url)
	}
	b.WriteString(FormatLogs(pageLogs, diagnosticIndent))
	return b.String()
}

// screenshotDiagnostic is used for every failed screenshot comparison.
func screenshotDiagnostic(message, url, processed, expected string, pageLogs []string) string {
	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\n")
	b.WriteString(diagnosticIndent + "Url to reproduce: " + url + "\n")
	b.WriteString(diagnosticIndent + "Generated screenshot: " + processed + "\n")
	b.WriteString(diagnosticIndent + "Expected screenshot: " + expected + "\n")
	b.WriteString(FormatLogs(pageLogs, diagnosticIndent))
	return b.String()
}

// containmentDiagnostic points at the debug screenshot, or at how to get one.
func containmentDiagnostic(message, url, capturePath string, pageLogs []string) string {
	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\n")
	if url != "" {
		b.WriteString(diagnosticIndent + "Url to reproduce: " + url + "\n")
	}
	b.WriteString("\n")
	if capturePath != "" {
		b.WriteString(diagnosticIndent + "View the captured screenshot at '" + capturePath + "'.")
	} else {
		b.WriteString(diagnosticIndent + "NOTE: No screenshot name was supplied to this containment check. " +
			"If a screenshot name is given, the screenshot will be saved so you can debug this failure.")
	}
	b.WriteString(FormatLogs(pageLogs, diagnosticIndent))
	return b.String()
}

// artifactLocation is the absolute path of a found artifact, or the expected
// location marked as missing.
func artifactLocation(found, candidate string) string {
	if found == "" {
		return candidate + " (not found)"
	}
	if abs, err := filepath.Abs(found); err == nil {
		return abs
	}
	return found
}
