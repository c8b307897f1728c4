// Package browser owns the chromedp allocator shared by a crawl run and
// hands out one freshly isolated tab context per task.
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/privacy-observatory/crawler/internal/config"
)

// Browser holds the single allocator context a Scheduler run shares across
// every task. Each task gets its own chromedp.NewContext tab from it, which
// is chromedp's unit of cookie/cache/storage isolation.
type Browser struct {
	cfg         config.BrowserConfig
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// New builds the shared allocator context from cfg.
func New(cfg *config.Config) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Crawler.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("safebrowsing-disable-auto-update", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-features", "TranslateUI"),
		chromedp.Flag("window-size", fmt.Sprintf("%d,%d", cfg.Browser.Viewport.Width, cfg.Browser.Viewport.Height)),
	)
	if cfg.Browser.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.Browser.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Browser{cfg: cfg.Browser, allocCtx: allocCtx, allocCancel: allocCancel}, nil
}

// Close tears down the shared allocator, killing every tab it ever spawned.
func (b *Browser) Close() {
	if b.allocCancel != nil {
		b.allocCancel()
	}
}

// NewTab creates a fresh, fully isolated browsing context: no cookies,
// cache, or storage are shared with any previous tab. It applies the
// configured locale, timezone, geolocation, and viewport, and installs a
// dialog auto-dismisser so a stray alert/confirm/prompt never blocks the
// task. The caller owns the returned cancel func and must call it on every
// exit path.
func (b *Browser) NewTab(ctx context.Context) (context.Context, context.CancelFunc, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.allocCtx)

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if _, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			go chromedp.Run(tabCtx, page.HandleJavaScriptDialog(false))
		}
	})

	err := chromedp.Run(tabCtx,
		emulation.SetLocaleOverride(b.cfg.Locale),
		emulation.SetTimezoneOverride(b.cfg.Timezone),
		emulation.SetGeolocationOverride().
			WithLatitude(b.cfg.Geolocation.Lat).
			WithLongitude(b.cfg.Geolocation.Long).
			WithAccuracy(1),
		chromedp.EmulateViewport(int64(b.cfg.Viewport.Width), int64(b.cfg.Viewport.Height)),
	)
	if err != nil {
		tabCancel()
		return nil, nil, fmt.Errorf("prepare tab context: %w", err)
	}

	return tabCtx, tabCancel, nil
}
