// Package suite loads YAML suites of screenshot and containment checks and
// runs them against a single page.
package suite

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// Suite is a titled, ordered list of checks sharing one base directory.
type Suite struct {
	Title string `mapstructure:"title" yaml:"title"`
	// BaseDirectory holds the suite's screenshot directories. Relative paths
	// are resolved against the suite file's directory.
	BaseDirectory string `mapstructure:"base_directory" yaml:"base_directory"`
	// URL is loaded by checks that do not name their own.
	URL    string  `mapstructure:"url" yaml:"url"`
	Checks []Check `mapstructure:"checks" yaml:"checks"`
}

// Check is a containment check when Contains or NotContains is set, where
// Screen optionally names a debug screenshot. Otherwise it is a screenshot
// check of Screen.
type Check struct {
	Name        string `mapstructure:"name" yaml:"name"`
	URL         string `mapstructure:"url" yaml:"url"`
	Screen      string `mapstructure:"screen" yaml:"screen"`
	Baseline    string `mapstructure:"baseline" yaml:"baseline"`
	Selector    string `mapstructure:"selector" yaml:"selector"`
	Contains    string `mapstructure:"contains" yaml:"contains"`
	NotContains string `mapstructure:"not_contains" yaml:"not_contains"`
	Steps       []Step `mapstructure:"steps" yaml:"steps"`
}

// CheckKind names what a check asserts.
type CheckKind string

const (
	KindScreenshot  CheckKind = "screenshot"
	KindContains    CheckKind = "contains"
	KindNotContains CheckKind = "not_contains"
)

func (c Check) Kind() CheckKind {
	switch {
	case c.Contains != "":
		return KindContains
	case c.NotContains != "":
		return KindNotContains
	default:
		return KindScreenshot
	}
}

// DisplayName is Name, falling back to what the check looks at.
func (c Check) DisplayName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.Kind() == KindContains:
		return "contains " + c.Contains
	case c.Kind() == KindNotContains:
		return "not contains " + c.NotContains
	default:
		return c.Screen
	}
}

// Load reads a suite file. The format follows the file extension (yaml, json
// or toml). A suite without base_directory uses defaultBase, or the suite
// file's directory when defaultBase is empty.
func Load(path, defaultBase string) (*Suite, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading suite file %s: %w", path, err)
	}

	var s Suite
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error decoding suite file %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	switch {
	case s.BaseDirectory == "" && defaultBase != "":
		s.BaseDirectory = defaultBase
	case s.BaseDirectory == "":
		s.BaseDirectory = dir
	case !filepath.IsAbs(s.BaseDirectory):
		s.BaseDirectory = filepath.Join(dir, s.BaseDirectory)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid suite %s: %w", path, err)
	}
	return &s, nil
}

// Validate reports every problem with the suite at once.
func (s *Suite) Validate() error {
	var errs []error
	if s.Title == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if len(s.Checks) == 0 {
		errs = append(errs, errors.New("at least one check is required"))
	}
	for i, c := range s.Checks {
		if err := c.validate(); err != nil {
			errs = append(errs, fmt.Errorf("check %d (%s): %w", i+1, c.DisplayName(), err))
		}
	}
	return errors.Join(errs...)
}

func (c Check) validate() error {
	switch {
	case c.Contains != "" && c.NotContains != "":
		return errors.New("contains and not_contains are mutually exclusive")
	case c.Kind() == KindScreenshot && c.Screen == "":
		return errors.New("one of screen, contains or not_contains must be set")
	}
	if c.Kind() != KindScreenshot && (c.Baseline != "" || c.Selector != "") {
		return errors.New("baseline and selector only apply to screenshot checks")
	}
	for i, st := range c.Steps {
		if err := st.validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}
