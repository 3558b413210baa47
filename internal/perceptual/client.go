// Package perceptual measures how visually different two screenshots are.
package perceptual

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
)

// Mismatch is the outcome of one perceptual comparison.
type Mismatch struct {
	// Percentage of differing pixels in the union of both images, 0..100.
	Percentage  float64
	DiffPixels  int
	TotalPixels int
}

// String renders the percentage exactly, without rounding.
func (m Mismatch) String() string {
	return strconv.FormatFloat(m.Percentage, 'f', -1, 64)
}

// Client compares two images addressed by file URIs.
type Client interface {
	Compare(ctx context.Context, uriA, uriB string) (Mismatch, error)
}

// FileURI converts a filesystem path into a file:// URI.
func FileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}

// PathFromURI extracts the filesystem path from a file:// URI.
func PathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid image uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported image uri scheme %q in %q", u.Scheme, uri)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("remote file uri %q is not supported", uri)
	}
	return filepath.FromSlash(u.Path), nil
}
