// Package adcapture screenshots individual detected ad elements, trying
// progressively cheaper-to-fail strategies until one produces an image.
package adcapture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/privacy-observatory/crawler/internal/storage"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func safeFilename(s string) string {
	if s == "" {
		return "unknown"
	}
	return unsafeFilenameChars.ReplaceAllString(s, "_")
}

// Config controls where and how many ad screenshots get written.
type Config struct {
	OutputDir    string
	MaxCaptures  int
	CropFallback bool
}

// Capturer screenshots ad elements detected by the ads package.
type Capturer struct {
	cfg Config
}

// NewCapturer builds a Capturer writing under cfg.OutputDir.
func NewCapturer(cfg Config) *Capturer {
	return &Capturer{cfg: cfg}
}

// CaptureAll screenshots up to cfg.MaxCaptures of the given elements,
// returning one storage.AdCapture per attempt (failed attempts are recorded
// too, with an empty ImagePath, so the dataset reflects what couldn't be
// captured as well as what could).
func (c *Capturer) CaptureAll(ctx context.Context, elements []storage.AdElement, domain string, mode storage.ConsentMode) []storage.AdCapture {
	if len(elements) == 0 {
		return nil
	}

	dir := filepath.Join(c.cfg.OutputDir, safeFilename(domain))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil
	}

	limit := len(elements)
	if c.cfg.MaxCaptures > 0 && limit > c.cfg.MaxCaptures {
		limit = c.cfg.MaxCaptures
	}

	captures := make([]storage.AdCapture, 0, limit)
	for i := 0; i < limit; i++ {
		captures = append(captures, c.captureOne(ctx, elements[i], i, dir, domain, mode))
	}
	return captures
}

func (c *Capturer) captureOne(ctx context.Context, el storage.AdElement, index int, dir, domain string, mode storage.ConsentMode) storage.AdCapture {
	network := safeFilename(el.NetworkDomain)
	filename := fmt.Sprintf("%s__%s__ad_%03d__%s__%dx%d.png", safeFilename(domain), mode, index, network, el.Width, el.Height)
	path := filepath.Join(dir, filename)

	if el.FrameURL != "" {
		if tryFrameElementScreenshot(ctx, el, path) {
			return storage.AdCapture{ElementIndex: index, ImagePath: path, CaptureMethod: "frame_element", Width: el.Width, Height: el.Height}
		}
	}

	if tryElementScreenshot(ctx, el, path) {
		return storage.AdCapture{ElementIndex: index, ImagePath: path, CaptureMethod: "element_locator", Width: el.Width, Height: el.Height}
	}

	if c.cfg.CropFallback {
		if tryCropFallback(ctx, el, path) {
			return storage.AdCapture{ElementIndex: index, ImagePath: path, CaptureMethod: "crop_fallback", Width: el.Width, Height: el.Height}
		}
	}

	return storage.AdCapture{ElementIndex: index, ImagePath: "", CaptureMethod: "failed", Width: el.Width, Height: el.Height}
}

// tryFrameElementScreenshot screenshots the iframe element identified by
// el.Selector, the CSS selector the ads package recorded for the match. A
// selector with a "frame:" prefix is skipped.
func tryFrameElementScreenshot(ctx context.Context, el storage.AdElement, path string) bool {
	var buf []byte
	selector := el.Selector
	if strings.HasPrefix(selector, "frame:") {
		return false // no stable CSS handle; fall through to the next strategy
	}
	err := chromedp.Run(ctx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Sleep(300*time.Millisecond),
		chromedp.Screenshot(selector, &buf, chromedp.NodeVisible, chromedp.ByQuery),
	)
	if err != nil || len(buf) == 0 {
		return false
	}
	return os.WriteFile(path, buf, 0o644) == nil
}

func tryElementScreenshot(ctx context.Context, el storage.AdElement, path string) bool {
	var buf []byte
	err := chromedp.Run(ctx,
		chromedp.ScrollIntoView(el.Selector, chromedp.ByQuery),
		chromedp.Sleep(200*time.Millisecond),
		chromedp.Screenshot(el.Selector, &buf, chromedp.NodeVisible, chromedp.ByQuery),
	)
	if err != nil || len(buf) == 0 {
		return false
	}
	return os.WriteFile(path, buf, 0o644) == nil
}

// tryCropFallback takes a full-viewport screenshot and crops the ad's
// bounding box out of it with the standard library - no pack example
// imports an image-manipulation library, and cropping a decoded PNG is a
// short pixel-copy loop into an image.RGBA, so this is the one place this
// module reaches past the example corpus's dependency set.
func tryCropFallback(ctx context.Context, el storage.AdElement, path string) bool {
	var fullBuf []byte
	// quality 100 makes chromedp capture PNG; any lower value yields JPEG.
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&fullBuf, 100)); err != nil {
		return false
	}

	img, err := png.Decode(bytes.NewReader(fullBuf))
	if err != nil {
		return false
	}

	bounds := img.Bounds()
	x1, y1 := el.X, el.Y
	if x1 < 0 {
		x1 = 0
	}
	if y1 < 0 {
		y1 = 0
	}
	x2 := x1 + el.Width
	y2 := y1 + el.Height
	if x2 > bounds.Dx() {
		x2 = bounds.Dx()
	}
	if y2 > bounds.Dy() {
		y2 = bounds.Dy()
	}
	if x2 <= x1 || y2 <= y1 {
		return false
	}

	cropRect := image.Rect(x1, y1, x2, y2)
	cropped := image.NewRGBA(cropRect)
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			cropped.Set(x, y, img.At(x, y))
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return false
	}
	defer f.Close()
	return png.Encode(f, cropped) == nil
}
