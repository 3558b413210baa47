// Package diffview renders diff images for failed screenshot comparisons so
// a reviewer can see what changed.
package diffview

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/shotcheck/internal/imagestore"
	"github.com/xkilldash9x/shotcheck/internal/perceptual"
	"github.com/xkilldash9x/shotcheck/internal/visual"
)

// DiffWriter renders the difference between two images to dest.
type DiffWriter interface {
	WriteDiff(ctx context.Context, uriA, uriB, dest string) (perceptual.Mismatch, error)
}

// Artifact is the outcome for one failed test. Err is set when no diff image
// could be rendered; Skipped when the test lacks one of its screenshots.
type Artifact struct {
	Test     visual.ScreenshotTest
	DiffPath string
	Mismatch perceptual.Mismatch
	Skipped  bool
	Err      error
}

type Generator struct {
	store       *imagestore.Store
	writer      DiffWriter
	concurrency int
	logger      *zap.Logger
}

func NewGenerator(store *imagestore.Store, writer DiffWriter, concurrency int, logger *zap.Logger) *Generator {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		store:       store,
		writer:      writer,
		concurrency: concurrency,
		logger:      logger.Named("diffview"),
	}
}

// Generate renders <diff dir>/<name>.png for every entry that has both a
// processed and an expected screenshot. A failing entry does not stop the
// others; only cancellation of ctx aborts the batch. Artifacts keep the order
// of entries.
func (g *Generator) Generate(ctx context.Context, entries []visual.ScreenshotTest) ([]Artifact, error) {
	artifacts := make([]Artifact, len(entries))

	eg, groupCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)

	for i, entry := range entries {
		artifacts[i].Test = entry
		if entry.ExpectedPath == "" || entry.ProcessedPath == "" {
			artifacts[i].Skipped = true
			continue
		}

		i, entry := i, entry
		eg.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			artifacts[i] = g.render(groupCtx, entry)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return artifacts, err
	}
	if err := ctx.Err(); err != nil {
		return artifacts, err
	}
	return artifacts, nil
}

func (g *Generator) render(ctx context.Context, entry visual.ScreenshotTest) Artifact {
	art := Artifact{Test: entry, DiffPath: g.store.DiffPath(entry.BaseDirectory, entry.Name)}

	if err := g.store.EnsureDir(g.store.DiffDir(entry.BaseDirectory)); err != nil {
		art.Err = err
		return art
	}

	m, err := g.writer.WriteDiff(ctx,
		perceptual.FileURI(entry.ProcessedPath),
		perceptual.FileURI(entry.ExpectedPath),
		art.DiffPath)
	if err != nil {
		g.logger.Warn("Could not render diff image.", zap.String("screen", entry.Name), zap.Error(err))
		art.Err = fmt.Errorf("diff for %s: %w", entry.Name, err)
		return art
	}

	art.Mismatch = m
	g.logger.Info("Diff image written.", zap.String("screen", entry.Name), zap.String("path", art.DiffPath))
	return art
}
