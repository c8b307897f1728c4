// Package ads detects ad-slot-shaped DOM elements, measures them against
// IAB standard sizes, and attributes them to an ad network where possible.
package ads

import (
	_ "embed"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/privacy-observatory/crawler/internal/storage"
)

//go:embed detector.js
var detectorScript string

// Selectors matching known ad-slot patterns: standard ad-network markup,
// generic ad-container naming conventions, and a handful of regional ad
// networks observed alongside the global ones.
var Selectors = []string{
	// Google Ads
	"ins.adsbygoogle", "[id^='google_ads_']", "[id^='div-gpt-ad']",
	"div[data-google-query-id]", "div[data-ad-slot]",
	"iframe[id^='google_ads_iframe']", "iframe[src*='doubleclick.net']", "iframe[src*='googlesyndication']",
	// Generic ad containers (id patterns)
	"[id*='ad-container']", "[id*='ad-wrapper']", "[id*='ad-slot']",
	"[id*='ad_container']", "[id*='ad_wrapper']", "[id*='ad_slot']",
	"[id*='advert']", "[id*='banner-ad']", "[id*='sponsor']",
	"[id*='adsense']", "[id*='adform']", "[id*='dfp']",
	// Generic ad containers (class patterns)
	"[class*='ad-container']", "[class*='ad-wrapper']", "[class*='ad-slot']",
	"[class*='ad-unit']", "[class*='advert']", "[class*='banner-ad']",
	"[class*='sponsored']", "[class*='commercial']",
	// Regional ad-tech markup
	"[class*='reklama']", "[class*='inzerce']",
	"[id*='sklik']", "iframe[src*='sklik']", "iframe[src*='r2b2']",
	"iframe[src*='imedia']", "iframe[src*='sssp.cz']", "iframe[src*='ad.seznam.cz']",
	// Data attribute patterns
	"[data-ad]", "[data-ad-slot]", "[data-ad-unit]",
	"[data-advertisement]", "[data-sponsor]", "[data-adservice]",
	// Header bidding
	"[id^='pb-slot']", "[class*='prebid']",
	// Other ad networks
	"iframe[src*='adform']", "iframe[src*='amazon-adsystem']", "iframe[src*='criteo']",
	"iframe[src*='taboola']", "iframe[src*='outbrain']",
	// Generic iframe ad patterns
	"iframe[src*='/ads/']", "iframe[src*='adserver']",
}

// iabSize names an IAB standard creative size.
type iabSize struct {
	w, h int
	name string
}

var iabStandardSizes = []iabSize{
	{728, 90, "leaderboard"}, {300, 250, "medium_rectangle"}, {160, 600, "wide_skyscraper"},
	{120, 600, "skyscraper"}, {300, 600, "half_page"}, {320, 50, "mobile_leaderboard"},
	{320, 100, "large_mobile_banner"}, {970, 250, "billboard"}, {970, 90, "large_leaderboard"},
	{300, 50, "mobile_banner"}, {468, 60, "full_banner"}, {234, 60, "half_banner"},
	{336, 280, "large_rectangle"}, {250, 250, "square"}, {180, 150, "rectangle"},
	{300, 1050, "portrait"}, {580, 400, "netboard"}, {480, 120, "superboard"},
}

// adNetworkPatterns maps a substring found in an iframe src/id/class to the
// ad network it signals.
var adNetworkPatterns = []struct{ pattern, network string }{
	{"googlesyndication", "Google"}, {"doubleclick", "Google"}, {"googleadservices", "Google"},
	{"google_ads", "Google"}, {"adform", "Adform"}, {"sklik", "Seznam.cz"},
	{"ad.seznam", "Seznam.cz"}, {"sssp.cz", "Seznam.cz"}, {"imedia", "Seznam.cz"},
	{"r2b2", "R2B2"}, {"criteo", "Criteo"}, {"amazon-adsystem", "Amazon"},
	{"taboola", "Taboola"}, {"outbrain", "Outbrain"}, {"facebook.com/plugins/ad", "Meta"},
}

// Config tunes ad detection thresholds.
type Config struct {
	MinWidth      int
	MinHeight     int
	IABTolerancePct float64
}

// DefaultConfig matches the observatory's reference tuning.
func DefaultConfig() Config {
	return Config{MinWidth: 20, MinHeight: 20, IABTolerancePct: 5}
}

// Detector scans the DOM for ad elements.
type Detector struct {
	cfg       Config
	tolerance float64
}

// NewDetector builds a Detector from cfg.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg, tolerance: cfg.IABTolerancePct / 100.0}
}

type rawAd struct {
	Selector  string `json:"selector"`
	TagName   string `json:"tagName"`
	ID        string `json:"id"`
	ClassName string `json:"className"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Visible   bool   `json:"visible"`
	IframeSrc string `json:"iframeSrc"`
}

// Result is the outcome of one detection pass: the elements found plus
// density/prevalence stats used in the per-session report.
type Result struct {
	Elements       []storage.AdElement
	TotalCount     int
	VisibleCount   int
	AdDensity      float64 // fraction of viewport area covered by visible ads
	TotalAreaPx    int
	IABStandardCount int
}

// Detect scans the page's DOM for ad elements. Call after the dwell period
// so lazy-loaded and deferred ad slots have had a chance to render.
func (d *Detector) Detect(ctx context.Context) (Result, error) {
	selectorsJSON, _ := json.Marshal(Selectors)
	expr := fmt.Sprintf("(%s)(%q)", detectorScript, string(selectorsJSON))

	var raws []rawAd
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &raws)); err != nil {
		return Result{}, fmt.Errorf("ad detection script: %w", err)
	}

	var viewport struct{ W, H int }
	if err := chromedp.Run(ctx, chromedp.Evaluate(`({W: window.innerWidth, H: window.innerHeight})`, &viewport)); err != nil {
		viewport.W, viewport.H = 1920, 1080
	}
	viewportArea := viewport.W * viewport.H
	if viewportArea == 0 {
		viewportArea = 1920 * 1080
	}

	elements := make([]storage.AdElement, 0, len(raws))
	seen := make(map[string]struct{})
	totalArea := 0
	visibleCount := 0
	iabCount := 0

	for _, raw := range raws {
		if raw.Width < d.cfg.MinWidth || raw.Height < d.cfg.MinHeight {
			continue
		}
		key := fmt.Sprintf("%d,%d,%d,%d", raw.X, raw.Y, raw.Width, raw.Height)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		network := d.detectAdNetwork(raw.IframeSrc, raw.ID, raw.ClassName)
		sizeMatch := d.matchIABSize(raw.Width, raw.Height)

		frameURL := ""
		if raw.TagName == "iframe" {
			frameURL = raw.IframeSrc
		}

		elements = append(elements, storage.AdElement{
			Selector:      raw.Selector,
			FrameURL:      frameURL,
			NetworkDomain: network,
			X:             raw.X,
			Y:             raw.Y,
			Width:         raw.Width,
			Height:        raw.Height,
			IABSizeMatch:  sizeMatch,
			DetectionRule: "css_selector",
		})
		if raw.Visible {
			totalArea += raw.Width * raw.Height
			visibleCount++
		}
		if sizeMatch != "" {
			iabCount++
		}
	}

	return Result{
		Elements:         elements,
		TotalCount:       len(elements),
		VisibleCount:     visibleCount,
		AdDensity:        float64(totalArea) / float64(viewportArea),
		TotalAreaPx:      totalArea,
		IABStandardCount: iabCount,
	}, nil
}

func (d *Detector) matchIABSize(w, h int) string {
	if w <= 0 || h <= 0 {
		return ""
	}
	for _, size := range iabStandardSizes {
		if withinTolerance(w, size.w, d.tolerance) && withinTolerance(h, size.h, d.tolerance) {
			return fmt.Sprintf("%dx%d", size.w, size.h)
		}
	}
	return ""
}

func withinTolerance(actual, standard int, tolerance float64) bool {
	if standard == 0 {
		return false
	}
	diff := actual - standard
	if diff < 0 {
		diff = -diff
	}
	return float64(diff)/float64(standard) <= tolerance
}

func (d *Detector) detectAdNetwork(iframeSrc, id, class string) string {
	combined := strings.ToLower(iframeSrc + " " + id + " " + class)
	for _, p := range adNetworkPatterns {
		if strings.Contains(combined, p.pattern) {
			return p.network
		}
	}
	return ""
}

// IsAdFrameDomain reports whether a frame URL belongs to a known ad
// network by substring match against adFrameDomains. Detect does not call
// it; detection covers only the CSS-selector scan, not the frame tree.
func IsAdFrameDomain(frameURL string) bool {
	lower := strings.ToLower(frameURL)
	for _, domain := range adFrameDomains {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}

var adFrameDomains = []string{
	"googlesyndication", "doubleclick", "appnexus", "rubiconproject", "criteo",
	"adform", "amazon-adsystem", "taboola", "outbrain", "sklik", "sssp.cz",
	"r2b2", "imedia", "ad.seznam", "adnxs", "pubmatic", "openx", "smartadserver",
	"casalemedia", "indexexchange", "33across", "yieldmo", "sharethrough",
}
