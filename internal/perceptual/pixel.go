package perceptual

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"

	"github.com/orisano/pixelmatch"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var diffColor = color.RGBA{R: 255, A: 255}

// PixelClient is a Client backed by pixelmatch. It reads images through fs so
// it sees the same files the renderer wrote.
type PixelClient struct {
	fs        afero.Fs
	threshold float64
	logger    *zap.Logger
}

var _ Client = (*PixelClient)(nil)

// NewPixelClient creates a PixelClient. threshold is pixelmatch's per-pixel
// colour distance (0..1); it absorbs encoding noise, not real differences.
func NewPixelClient(fs afero.Fs, threshold float64, logger *zap.Logger) *PixelClient {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &PixelClient{fs: fs, threshold: threshold, logger: logger.Named("perceptual")}
}

type compareResult struct {
	mismatch Mismatch
	diff     image.Image
	err      error
}

// Compare decodes both images and counts differing pixels. The comparison runs
// on its own goroutine so a cancelled ctx releases the caller immediately.
func (c *PixelClient) Compare(ctx context.Context, uriA, uriB string) (Mismatch, error) {
	res, err := c.run(ctx, uriA, uriB, false)
	if err != nil {
		return Mismatch{}, err
	}
	c.logger.Debug("Perceptual comparison complete.",
		zap.String("a", uriA),
		zap.String("b", uriB),
		zap.Int("diff_pixels", res.mismatch.DiffPixels),
		zap.String("mismatch", res.mismatch.String()))
	return res.mismatch, nil
}

// WriteDiff renders a diff image of the two inputs to dest as PNG.
func (c *PixelClient) WriteDiff(ctx context.Context, uriA, uriB, dest string) (Mismatch, error) {
	res, err := c.run(ctx, uriA, uriB, true)
	if err != nil {
		return Mismatch{}, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, res.diff); err != nil {
		return Mismatch{}, fmt.Errorf("failed to encode diff image: %w", err)
	}
	if err := afero.WriteFile(c.fs, dest, buf.Bytes(), 0o644); err != nil {
		return Mismatch{}, fmt.Errorf("failed to write diff image %s: %w", dest, err)
	}
	return res.mismatch, nil
}

func (c *PixelClient) run(ctx context.Context, uriA, uriB string, withDiff bool) (compareResult, error) {
	if err := ctx.Err(); err != nil {
		return compareResult{}, err
	}

	done := make(chan compareResult, 1)
	go func() {
		a, err := c.load(uriA)
		if err != nil {
			done <- compareResult{err: err}
			return
		}
		b, err := c.load(uriB)
		if err != nil {
			done <- compareResult{err: err}
			return
		}
		done <- c.compare(a, b, withDiff)
	}()

	select {
	case <-ctx.Done():
		return compareResult{}, ctx.Err()
	case res := <-done:
		return res, res.err
	}
}

func (c *PixelClient) load(uri string) (image.Image, error) {
	path, err := PathFromURI(uri)
	if err != nil {
		return nil, err
	}
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

// compare matches the overlapping region with pixelmatch; pixels only one of
// the images covers always count as different.
func (c *PixelClient) compare(a, b image.Image, withDiff bool) compareResult {
	ba, bb := a.Bounds(), b.Bounds()
	width, height := max(ba.Dx(), bb.Dx()), max(ba.Dy(), bb.Dy())
	overlapW, overlapH := min(ba.Dx(), bb.Dx()), min(ba.Dy(), bb.Dy())

	total := width * height
	if total == 0 {
		return compareResult{diff: image.NewRGBA(image.Rect(0, 0, 0, 0))}
	}
	diffPixels := total - overlapW*overlapH

	var canvas *image.RGBA
	if withDiff {
		canvas = image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: diffColor}, image.Point{}, draw.Src)
	}

	if overlapW > 0 && overlapH > 0 {
		na, nb := normalize(a, overlapW, overlapH), normalize(b, overlapW, overlapH)

		opts := []pixelmatch.MatchOption{pixelmatch.Threshold(c.threshold)}
		var out image.Image
		if withDiff {
			opts = append(opts, pixelmatch.WriteTo(&out))
		}

		n, err := pixelmatch.MatchPixel(na, nb, opts...)
		if err != nil {
			return compareResult{err: fmt.Errorf("pixel comparison failed: %w", err)}
		}
		diffPixels += n

		if withDiff && out != nil {
			draw.Copy(canvas, image.Point{}, out, out.Bounds(), draw.Src, nil)
		}
	}

	res := compareResult{
		mismatch: Mismatch{
			Percentage:  float64(diffPixels) * 100 / float64(total),
			DiffPixels:  diffPixels,
			TotalPixels: total,
		},
	}
	if withDiff {
		res.diff = canvas
	}
	return res
}

// normalize copies the top-left w x h region of img onto an origin-anchored RGBA.
func normalize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	o := img.Bounds().Min
	draw.Copy(dst, image.Point{}, img, image.Rect(o.X, o.Y, o.X+w, o.Y+h), draw.Src, nil)
	return dst
}
