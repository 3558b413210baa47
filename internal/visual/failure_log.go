package visual

import "sync"

// ScreenshotTest records one capture attempt. Empty ExpectedPath or
// ProcessedPath means that artifact did not exist after the capture.
type ScreenshotTest struct {
	Name          string `json:"name"`
	ExpectedPath  string `json:"expected_path,omitempty"`
	ProcessedPath string `json:"processed_path,omitempty"`
	BaseDirectory string `json:"base_directory"`
}

// FailureLog is the ordered list of failed screenshot comparisons of a run.
// Appends are serialised, so concurrent engines may share one log.
type FailureLog struct {
	mu      sync.Mutex
	entries []ScreenshotTest
	seen    map[string]struct{}
}

func NewFailureLog() *FailureLog {
	return &FailureLog{seen: make(map[string]struct{})}
}

// Add appends test unless a test with the same name and base directory is
// already recorded. It reports whether the test was added.
func (l *FailureLog) Add(test ScreenshotTest) bool {
	key := test.BaseDirectory + "\x00" + test.Name

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen == nil {
		l.seen = make(map[string]struct{})
	}
	if _, dup := l.seen[key]; dup {
		return false
	}
	l.seen[key] = struct{}{}
	l.entries = append(l.entries, test)
	return true
}

// Entries returns a copy of the recorded failures in insertion order.
func (l *FailureLog) Entries() []ScreenshotTest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ScreenshotTest, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *FailureLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
