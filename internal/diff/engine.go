// File: internal/diff/engine.go
// Package diff turns two page rasters into a quantitative difference metric
// and a highlight visualization. The pixel classifier follows the
// pixelmatch family: perceptual color distance in YIQ space, with optional
// exclusion of anti-aliasing artifacts.
package diff

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"

	"go.uber.org/zap"

	"github.com/karstlabs/vizdiff/internal/config"
	"github.com/karstlabs/vizdiff/internal/errs"
)

// maxYIQDelta is the largest color distance the YIQ metric can produce
// (pure white against pure black). Thresholds scale against it.
const maxYIQDelta = 35215.0

// Highlight colors and the dimming factor for unchanged pixels.
const (
	dimAlpha = 0.1
)

var (
	changedColor = [3]uint8{255, 0, 0}
	aaColor      = [3]uint8{255, 255, 0}
)

// Metrics summarizes one comparison. Derived once, never mutated.
type Metrics struct {
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	TotalPixels     int     `json:"totalPixels"`
	ChangedPixels   int     `json:"changedPixels"`
	MismatchPercent float64 `json:"mismatchPercent"`
	SimilarityScore float64 `json:"ssimScore"`
	Threshold       float64 `json:"threshold"`
	IncludeAA       bool    `json:"includeAA"`
}

// Result is the full outcome of a diff: the metrics plus the PNG-encoded
// highlight raster.
type Result struct {
	Metrics Metrics
	Raster  []byte
}

// Engine compares two encoded rasters pixel by pixel.
type Engine struct {
	cfg    config.DiffConfig
	logger *zap.Logger
}

// NewEngine creates an Engine with the given comparison parameters.
func NewEngine(cfg config.DiffConfig, logger *zap.Logger) *Engine {
	if cfg.Threshold < 0 {
		cfg.Threshold = 0
	}
	if cfg.Threshold > 1 {
		cfg.Threshold = 1
	}
	return &Engine{cfg: cfg, logger: logger.Named("diff")}
}

// Compare decodes both buffers, crops them to their shared top-left
// rectangle, classifies every pixel, and returns metrics plus the encoded
// diff raster. A threshold of 0 demands exact equality; 1 accepts any
// difference. Raising the threshold never increases the changed count.
func (e *Engine) Compare(bufA, bufB []byte) (*Result, error) {
	imgA, err := e.decode(bufA, "A")
	if err != nil {
		return nil, err
	}
	imgB, err := e.decode(bufB, "B")
	if err != nil {
		return nil, err
	}

	w := imgA.Rect.Dx()
	if bw := imgB.Rect.Dx(); bw < w {
		w = bw
	}
	h := imgA.Rect.Dy()
	if bh := imgB.Rect.Dy(); bh < h {
		h = bh
	}
	a := cropTopLeft(imgA, w, h)
	b := cropTopLeft(imgB, w, h)

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	changed := e.classify(a, b, out, w, h)

	total := w * h
	mismatch := 100 * float64(changed) / float64(total)

	var encoded bytes.Buffer
	if err := png.Encode(&encoded, out); err != nil {
		return nil, errs.Wrap(errs.KindImageProcessing, "diff", "failed to encode diff raster", err)
	}

	e.logger.Debug("Comparison complete.",
		zap.Int("width", w), zap.Int("height", h),
		zap.Int("changed_pixels", changed),
		zap.Float64("mismatch_percent", mismatch))

	return &Result{
		Metrics: Metrics{
			Width:           w,
			Height:          h,
			TotalPixels:     total,
			ChangedPixels:   changed,
			MismatchPercent: mismatch,
			SimilarityScore: 1 - mismatch/100,
			Threshold:       e.cfg.Threshold,
			IncludeAA:       e.cfg.IncludeAA,
		},
		Raster: encoded.Bytes(),
	}, nil
}

// classify walks every shared pixel, writes the highlight raster into out,
// and returns the changed-pixel count.
func (e *Engine) classify(a, b, out *image.NRGBA, w, h int) int {
	maxDelta := maxYIQDelta * e.cfg.Threshold * e.cfg.Threshold
	changed := 0

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pos := (y*w + x) * 4
			delta := colorDelta(a.Pix, b.Pix, pos, pos, false)

			if abs(delta) <= maxDelta {
				drawDimmed(out.Pix, a.Pix, pos)
				continue
			}
			if !e.cfg.IncludeAA && (antialiased(a, x, y, w, h, b) || antialiased(b, x, y, w, h, a)) {
				drawPixel(out.Pix, pos, aaColor)
				continue
			}
			drawPixel(out.Pix, pos, changedColor)
			changed++
		}
	}
	return changed
}

// decode parses an encoded raster and validates its dimensions against the
// configured bounds.
func (e *Engine) decode(buf []byte, label string) (*image.NRGBA, error) {
	if len(buf) == 0 {
		return nil, errs.New(errs.KindImageProcessing, "diff",
			fmt.Sprintf("image %s buffer is empty", label))
	}
	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, errs.Wrap(errs.KindImageProcessing, "diff",
			fmt.Sprintf("failed to decode image %s", label), err)
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w <= 0 || h <= 0 {
		return nil, errs.New(errs.KindImageProcessing, "diff",
			fmt.Sprintf("image %s has zero area (%dx%d)", label, w, h))
	}
	if w > e.cfg.MaxWidth || h > e.cfg.MaxHeight {
		return nil, errs.New(errs.KindImageProcessing, "diff",
			fmt.Sprintf("image %s dimensions %dx%d exceed the %dx%d limit",
				label, w, h, e.cfg.MaxWidth, e.cfg.MaxHeight))
	}

	nrgba, ok := img.(*image.NRGBA)
	if !ok || !nrgba.Rect.Min.Eq(image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Rect, img, img.Bounds().Min, draw.Src)
	}
	return nrgba, nil
}

// cropTopLeft copies the w×h top-left rectangle into a fresh tightly-packed
// buffer so pixel offsets are a plain (y*w+x)*4.
func cropTopLeft(img *image.NRGBA, w, h int) *image.NRGBA {
	if img.Rect.Dx() == w && img.Rect.Dy() == h && img.Stride == w*4 {
		return img
	}
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Rect, img, image.Point{}, draw.Src)
	return out
}

// colorDelta computes the perceptual distance between two pixels in YIQ
// space, after blending semi-transparent pixels against white. When yOnly is
// set it returns just the brightness delta, used by the anti-aliasing
// detector. The sign of the full delta encodes whether the pixel darkened
// or lightened.
func colorDelta(pixA, pixB []uint8, posA, posB int, yOnly bool) float64 {
	r1, g1, b1, a1 := float64(pixA[posA]), float64(pixA[posA+1]), float64(pixA[posA+2]), float64(pixA[posA+3])
	r2, g2, b2, a2 := float64(pixB[posB]), float64(pixB[posB+1]), float64(pixB[posB+2]), float64(pixB[posB+3])

	if a1 == a2 && r1 == r2 && g1 == g2 && b1 == b2 {
		return 0
	}

	if a1 < 255 {
		a1 /= 255
		r1 = blend(r1, a1)
		g1 = blend(g1, a1)
		b1 = blend(b1, a1)
	}
	if a2 < 255 {
		a2 /= 255
		r2 = blend(r2, a2)
		g2 = blend(g2, a2)
		b2 = blend(b2, a2)
	}

	dy := rgb2y(r1, g1, b1) - rgb2y(r2, g2, b2)
	if yOnly {
		return dy
	}
	di := rgb2i(r1, g1, b1) - rgb2i(r2, g2, b2)
	dq := rgb2q(r1, g1, b1) - rgb2q(r2, g2, b2)

	delta := 0.5053*dy*dy + 0.299*di*di + 0.1957*dq*dq
	if dy > 0 {
		return -delta
	}
	return delta
}

// antialiased reports whether the pixel at (x1,y1) looks like an
// anti-aliasing artifact: a brightness gradient between its darkest and
// brightest neighbors where at least one extreme has many identical
// siblings in both images.
func antialiased(img *image.NRGBA, x1, y1, w, h int, other *image.NRGBA) bool {
	x0 := max(x1-1, 0)
	y0 := max(y1-1, 0)
	x2 := min(x1+1, w-1)
	y2 := min(y1+1, h-1)
	pos := (y1*w + x1) * 4

	zeroes := 0
	if x1 == x0 || x1 == x2 || y1 == y0 || y1 == y2 {
		zeroes = 1
	}
	var minDelta, maxDelta float64
	var minX, minY, maxX, maxY int

	for x := x0; x <= x2; x++ {
		for y := y0; y <= y2; y++ {
			if x == x1 && y == y1 {
				continue
			}
			delta := colorDelta(img.Pix, img.Pix, pos, (y*w+x)*4, true)
			switch {
			case delta == 0:
				zeroes++
				if zeroes > 2 {
					return false
				}
			case delta < minDelta:
				minDelta, minX, minY = delta, x, y
			case delta > maxDelta:
				maxDelta, maxX, maxY = delta, x, y
			}
		}
	}

	if minDelta == 0 || maxDelta == 0 {
		return false
	}

	return (hasManySiblings(img, minX, minY, w, h) && hasManySiblings(other, minX, minY, w, h)) ||
		(hasManySiblings(img, maxX, maxY, w, h) && hasManySiblings(other, maxX, maxY, w, h))
}

// hasManySiblings reports whether more than two of a pixel's neighbors are
// exactly its color.
func hasManySiblings(img *image.NRGBA, x1, y1, w, h int) bool {
	x0 := max(x1-1, 0)
	y0 := max(y1-1, 0)
	x2 := min(x1+1, w-1)
	y2 := min(y1+1, h-1)
	pos := (y1*w + x1) * 4

	zeroes := 0
	if x1 == x0 || x1 == x2 || y1 == y0 || y1 == y2 {
		zeroes = 1
	}
	for x := x0; x <= x2; x++ {
		for y := y0; y <= y2; y++ {
			if x == x1 && y == y1 {
				continue
			}
			p := (y*w + x) * 4
			if img.Pix[pos] == img.Pix[p] &&
				img.Pix[pos+1] == img.Pix[p+1] &&
				img.Pix[pos+2] == img.Pix[p+2] &&
				img.Pix[pos+3] == img.Pix[p+3] {
				zeroes++
			}
			if zeroes > 2 {
				return true
			}
		}
	}
	return false
}

// drawDimmed writes a washed-out grayscale rendition of the source pixel,
// keeping unchanged regions legible but visually recessive.
func drawDimmed(out, src []uint8, pos int) {
	gray := rgb2y(float64(src[pos]), float64(src[pos+1]), float64(src[pos+2]))
	val := uint8(blend(gray, dimAlpha*float64(src[pos+3])/255))
	out[pos] = val
	out[pos+1] = val
	out[pos+2] = val
	out[pos+3] = 255
}

func drawPixel(out []uint8, pos int, c [3]uint8) {
	out[pos] = c[0]
	out[pos+1] = c[1]
	out[pos+2] = c[2]
	out[pos+3] = 255
}

// blend composites a channel against a white background.
func blend(c, a float64) float64 {
	return 255 + (c-255)*a
}

func rgb2y(r, g, b float64) float64 { return r*0.29889531 + g*0.58662247 + b*0.11448223 }
func rgb2i(r, g, b float64) float64 { return r*0.59597799 - g*0.27417610 - b*0.32180189 }
func rgb2q(r, g, b float64) float64 { return r*0.21147017 - g*0.52261711 + b*0.31114694 }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
