package visual

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/xkilldash9x/shotcheck/internal/perceptual"
	"github.com/xkilldash9x/shotcheck/internal/renderer"
)

// fakeRenderer is a scripted page. Capture writes shot to the destination
// when shot is non-nil.
type fakeRenderer struct {
	mu         sync.Mutex
	fs         afero.Fs
	url        string
	logs       []string
	shot       []byte
	captureErr error
	loadErr    error
	present    map[string]bool
	calls      []string
}

var _ renderer.Renderer = (*fakeRenderer)(nil)

func (r *fakeRenderer) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *fakeRenderer) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *fakeRenderer) Load(_ context.Context, url string) error {
	r.record("load:" + url)
	if r.loadErr != nil {
		return r.loadErr
	}
	r.mu.Lock()
	r.url = url
	r.mu.Unlock()
	return nil
}

func (r *fakeRenderer) Click(_ context.Context, selector string) error {
	r.record("click:" + selector)
	return nil
}

func (r *fakeRenderer) SendKeys(_ context.Context, selector, text string) error {
	r.record("type:" + selector + "=" + text)
	return nil
}

func (r *fakeRenderer) Evaluate(_ context.Context, script string, _ interface{}) error {
	r.record("eval:" + script)
	return nil
}

func (r *fakeRenderer) WaitVisible(_ context.Context, selector string) error {
	r.record("wait:" + selector)
	return nil
}

func (r *fakeRenderer) Sleep(_ context.Context, d time.Duration) error {
	r.record("sleep:" + d.String())
	return nil
}

func (r *fakeRenderer) SetViewport(context.Context, int, int) error {
	r.record("viewport")
	return nil
}

func (r *fakeRenderer) Capture(_ context.Context, dest, selector string) error {
	r.record("capture:" + dest + "|" + selector)
	if r.captureErr != nil {
		return r.captureErr
	}
	if dest == "" || r.shot == nil {
		return nil
	}
	return afero.WriteFile(r.fs, dest, r.shot, 0o644)
}

func (r *fakeRenderer) Contains(_ context.Context, selector string) (bool, error) {
	r.record("contains:" + selector)
	return r.present[selector], nil
}

func (r *fakeRenderer) CurrentURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url
}

func (r *fakeRenderer) PageLogs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.logs...)
}

func (r *fakeRenderer) ResetLogs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = nil
}

// fakeDiff returns a fixed result and remembers what it was asked.
type fakeDiff struct {
	mu       sync.Mutex
	mismatch perceptual.Mismatch
	err      error
	calls    [][2]string
}

var _ perceptual.Client = (*fakeDiff)(nil)

func (d *fakeDiff) Compare(_ context.Context, uriA, uriB string) (perceptual.Mismatch, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, [2]string{uriA, uriB})
	return d.mismatch, d.err
}

func (d *fakeDiff) Calls() [][2]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][2]string(nil), d.calls...)
}

// countingFs counts how often each path is opened.
type countingFs struct {
	afero.Fs
	mu    sync.Mutex
	opens map[string]int
}

func newCountingFs(fs afero.Fs) *countingFs {
	return &countingFs{Fs: fs, opens: make(map[string]int)}
}

func (c *countingFs) count(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens[name]++
}

func (c *countingFs) Opens(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens[name]
}

func (c *countingFs) Open(name string) (afero.File, error) {
	c.count(name)
	return c.Fs.Open(name)
}

func (c *countingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	c.count(name)
	return c.Fs.OpenFile(name, flag, perm)
}
