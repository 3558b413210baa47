package suite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/xkilldash9x/shotcheck/internal/renderer"
)

type fakePage struct {
	mu     sync.Mutex
	fs     afero.Fs
	url    string
	shot   []byte
	logs   []string
	resets int
	failOn string
	calls  []string
}

var _ renderer.Renderer = (*fakePage)(nil)

func newFakePage(fs afero.Fs) *fakePage {
	return &fakePage{fs: fs, shot: []byte("png")}
}

func (p *fakePage) do(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	if call == p.failOn {
		return errors.New("failed: " + call)
	}
	return nil
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) Load(_ context.Context, url string) error {
	if err := p.do("load:" + url); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *fakePage) Click(_ context.Context, sel string) error { return p.do("click:" + sel) }

func (p *fakePage) SendKeys(_ context.Context, sel, text string) error {
	return p.do("type:" + sel + "=" + text)
}

func (p *fakePage) Evaluate(_ context.Context, script string, _ interface{}) error {
	return p.do("eval:" + script)
}

func (p *fakePage) WaitVisible(_ context.Context, sel string) error { return p.do("wait:" + sel) }

func (p *fakePage) Sleep(_ context.Context, d time.Duration) error { return p.do("sleep:" + d.String()) }

func (p *fakePage) SetViewport(_ context.Context, w, h int) error {
	return p.do(fmt.Sprintf("viewport:%dx%d", w, h))
}

func (p *fakePage) Capture(ctx context.Context, dest, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.do("capture:" + dest); err != nil {
		return err
	}
	if dest == "" {
		return nil
	}
	return afero.WriteFile(p.fs, dest, p.shot, 0o644)
}

func (p *fakePage) Contains(_ context.Context, selector string) (bool, error) {
	return selector == ".widget", p.do("contains:" + selector)
}

func (p *fakePage) CurrentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) PageLogs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.logs...)
}

func (p *fakePage) ResetLogs() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logs = nil
	p.resets++
}
