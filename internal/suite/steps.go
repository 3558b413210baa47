package suite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/shotcheck/internal/renderer"
)

// Step is one page interaction. Exactly one field is set.
type Step struct {
	Load        string        `mapstructure:"load" yaml:"load,omitempty"`
	Click       string        `mapstructure:"click" yaml:"click,omitempty"`
	Type        *TypeStep     `mapstructure:"type" yaml:"type,omitempty"`
	WaitVisible string        `mapstructure:"wait_visible" yaml:"wait_visible,omitempty"`
	Sleep       time.Duration `mapstructure:"sleep" yaml:"sleep,omitempty"`
	Evaluate    string        `mapstructure:"evaluate" yaml:"evaluate,omitempty"`
	Viewport    *ViewportStep `mapstructure:"viewport" yaml:"viewport,omitempty"`
}

type TypeStep struct {
	Selector string `mapstructure:"selector" yaml:"selector"`
	Text     string `mapstructure:"text" yaml:"text"`
}

type ViewportStep struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{
		s.Load != "",
		s.Click != "",
		s.Type != nil,
		s.WaitVisible != "",
		s.Sleep != 0,
		s.Evaluate != "",
		s.Viewport != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

func (s Step) validate() error {
	if n := s.actions(); n != 1 {
		return fmt.Errorf("a step needs exactly one action, found %d", n)
	}
	switch {
	case s.Sleep < 0:
		return errors.New("sleep must not be negative")
	case s.Type != nil && s.Type.Selector == "":
		return errors.New("type needs a selector")
	case s.Viewport != nil && (s.Viewport.Width <= 0 || s.Viewport.Height <= 0):
		return errors.New("viewport width and height must be positive")
	}
	return nil
}

// Apply performs the step on page.
func (s Step) Apply(ctx context.Context, page renderer.Page) error {
	switch {
	case s.Load != "":
		return page.Load(ctx, s.Load)
	case s.Click != "":
		return page.Click(ctx, s.Click)
	case s.Type != nil:
		return page.SendKeys(ctx, s.Type.Selector, s.Type.Text)
	case s.WaitVisible != "":
		return page.WaitVisible(ctx, s.WaitVisible)
	case s.Sleep > 0:
		return page.Sleep(ctx, s.Sleep)
	case s.Evaluate != "":
		return page.Evaluate(ctx, s.Evaluate, nil)
	case s.Viewport != nil:
		return page.SetViewport(ctx, s.Viewport.Width, s.Viewport.Height)
	}
	return nil
}

// Setup chains steps into one setup function, optionally loading url first.
func Setup(url string, steps []Step) renderer.SetupFunc {
	if url == "" && len(steps) == 0 {
		return renderer.NoSetup
	}
	return func(ctx context.Context, page renderer.Page) error {
		if url != "" {
			if err := page.Load(ctx, url); err != nil {
				return err
			}
		}
		for i, st := range steps {
			if err := st.Apply(ctx, page); err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
		}
		return nil
	}
}
