// Package engine drives one (site, consent mode) task to completion
// through a fixed sequence of phases against a freshly isolated browser tab.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/privacy-observatory/crawler/internal/adcapture"
	"github.com/privacy-observatory/crawler/internal/ads"
	"github.com/privacy-observatory/crawler/internal/browser"
	"github.com/privacy-observatory/crawler/internal/classifier"
	"github.com/privacy-observatory/crawler/internal/config"
	"github.com/privacy-observatory/crawler/internal/consent"
	"github.com/privacy-observatory/crawler/internal/fingerprint"
	"github.com/privacy-observatory/crawler/internal/storage"
	"github.com/privacy-observatory/crawler/internal/urlutil"
)

// ProgressFunc is fired from inside a running task so a Scheduler-level
// progress display can render per-task phase updates. Must be safe to call
// from concurrent tasks.
type ProgressFunc func(taskKey, phase, detail string)

// Engine drives individual crawl tasks, sharing one browser allocator and
// one set of stateless collaborators (classifier, consent cascade, ad/
// fingerprint detectors) across every task it runs.
type Engine struct {
	cfg        *config.Config
	br         *browser.Browser
	trackers   *classifier.TrackerDB
	resClassif *classifier.ResourceClassifier
	resolver   *consent.Resolver
	fpDetector *fingerprint.Detector
	adDetector *ads.Detector
	capturer   *adcapture.Capturer
	onProgress ProgressFunc
}

// New builds an Engine that shares br and the given collaborators across
// every Run call.
func New(cfg *config.Config, br *browser.Browser, trackers *classifier.TrackerDB, onProgress ProgressFunc) *Engine {
	return &Engine{
		cfg:        cfg,
		br:         br,
		trackers:   trackers,
		resClassif: classifier.NewResourceClassifier(trackers),
		resolver: consent.NewResolver(consent.Patterns{
			Accept: cfg.ConsentPatterns.Accept,
			Reject: cfg.ConsentPatterns.Reject,
		}),
		fpDetector: fingerprint.NewDetector(trackers),
		adDetector: ads.NewDetector(ads.Config{
			MinWidth:        cfg.Ads.MinWidth,
			MinHeight:       cfg.Ads.MinHeight,
			IABTolerancePct: cfg.Ads.IABTolerancePct,
		}),
		capturer: adcapture.NewCapturer(adcapture.Config{
			OutputDir:    cfg.Output.ScreenshotDir,
			MaxCaptures:  cfg.AdCapture.MaxCaptures,
			CropFallback: cfg.AdCapture.CropFallback,
		}),
		onProgress: onProgress,
	}
}

// taskState accumulates per-task observations as the state machine runs.
// It is never shared across tasks, but its request slice is written from
// the chromedp CDP event goroutine (attachNetworkListeners) while the main
// task goroutine reads it at COLLECTING, so mu guards every access.
type taskState struct {
	task         storage.Task
	siteDomain   string
	mu           sync.Mutex
	requests     []storage.RequestRecord
	requestIndex map[network.RequestID]int
	preConsentCookies map[string]struct{}
	consentInfo  storage.ConsentInfo
	consentDoneAt time.Time
}

// snapshotRequests returns a copy of the requests collected so far, safe to
// use after network listeners have stopped mutating the underlying slice.
func (st *taskState) snapshotRequests() []storage.RequestRecord {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]storage.RequestRecord, len(st.requests))
	copy(out, st.requests)
	return out
}

// markConsentDone records when the consent decision resolved, guarded by the
// same mutex the network listener reads it through.
func (st *taskState) markConsentDone(t time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.consentDoneAt = t
}

func (s *Engine) progress(key storage.ConsentMode, site string, phase, detail string) {
	if s.onProgress == nil {
		return
	}
	s.onProgress(fmt.Sprintf("%s:%s", site, key), phase, detail)
}

// Run drives task to completion, returning the full Observation. It never
// returns a transport error on ordinary crawl failure — instead it reports
// the failure via Observation.Session.Status/ErrorMessage, matching the
// engine's "no retry re-enters the same state machine instance" contract:
// retries are the Scheduler's job, on a fresh Engine.Run call.
func (e *Engine) Run(ctx context.Context, task storage.Task) storage.Observation {
	started := time.Now()
	st := &taskState{
		task:         task,
		siteDomain:   urlutil.RegisteredDomain(task.Site.Domain),
		requestIndex: make(map[network.RequestID]int),
	}

	session := storage.CrawlSession{
		SiteID:      task.Site.ID,
		ConsentMode: task.ConsentMode,
		StartedAt:   started,
	}

	obs := storage.Observation{Session: session}

	tabCtx, cancel, err := e.br.NewTab(ctx)
	if err != nil {
		obs.Session.Status = storage.StatusError
		obs.Session.ErrorMessage = fmt.Sprintf("init tab: %v", err)
		obs.Session.FinishedAt = time.Now()
		return obs
	}
	defer cancel()

	pageTimeout := e.cfg.Crawler.PageTimeout
	if pageTimeout <= 0 {
		pageTimeout = 45 * time.Second
	}

	if e.cfg.Fingerprinting.Enabled {
		if err := fingerprint.InjectMonitoring(tabCtx); err != nil {
			obs.Session.Status = storage.StatusError
			obs.Session.ErrorMessage = fmt.Sprintf("inject fingerprint monitoring: %v", err)
			obs.Session.FinishedAt = time.Now()
			return obs
		}
	}

	e.attachNetworkListeners(tabCtx, st)
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		obs.Session.Status = storage.StatusError
		obs.Session.ErrorMessage = fmt.Sprintf("enable network tracking: %v", err)
		obs.Session.FinishedAt = time.Now()
		return obs
	}

	// NAVIGATING
	e.progress(task.ConsentMode, task.Site.Domain, "navigating", task.Site.URL)
	navStart := time.Now()
	navCtx, navCancel := context.WithTimeout(tabCtx, pageTimeout)
	navErr := chromedp.Run(navCtx, chromedp.Navigate(task.Site.URL), chromedp.WaitReady("body", chromedp.ByQuery))
	navCancel()
	loadTimeMS := time.Since(navStart).Milliseconds()
	if navErr != nil {
		obs.Session.Status = storage.StatusTimeout
		obs.Session.ErrorMessage = fmt.Sprintf("navigation: %v", navErr)
		obs.Session.FinishedAt = time.Now()
		obs.Session.DurationMS = time.Since(started).Milliseconds()
		obs.Session.LoadTimeMS = loadTimeMS
		obs.Requests = st.snapshotRequests()
		return obs
	}

	// PRE_CONSENT_SNAPSHOT
	e.progress(task.ConsentMode, task.Site.Domain, "pre_consent_snapshot", "")
	chromedp.Run(tabCtx, chromedp.Sleep(2*time.Second))
	st.preConsentCookies = e.cookieKeySet(tabCtx)

	// CONSENTING
	e.progress(task.ConsentMode, task.Site.Domain, "consenting", string(task.ConsentMode))
	if task.ConsentMode != storage.ConsentIgnore {
		consentTimeout := e.cfg.Crawler.ConsentTimeout
		if consentTimeout <= 0 {
			consentTimeout = 15 * time.Second
		}
		consentCtx, consentCancel := context.WithTimeout(tabCtx, consentTimeout)
		info, cErr := e.resolver.Resolve(consentCtx, task.ConsentMode)
		consentCancel()
		if cErr == nil {
			st.consentInfo = info
		}
	}
	st.markConsentDone(time.Now())

	// POST_CONSENT_DWELL — only if consent handling took action.
	if st.consentInfo.Found {
		e.dwellInChunks(tabCtx, task.ConsentMode, task.Site.Domain, "post_consent_dwell", durationMS(e.cfg.Crawler.PostConsentWaitMS, 60*time.Second))
	}

	// SCROLLING
	e.progress(task.ConsentMode, task.Site.Domain, "scrolling", "")
	e.scroll(tabCtx)

	// FINAL_DWELL
	e.dwellInChunks(tabCtx, task.ConsentMode, task.Site.Domain, "final_dwell", durationMS(e.cfg.Crawler.FinalDwellMS, 15*time.Second))

	// COLLECTING
	e.progress(task.ConsentMode, task.Site.Domain, "collecting", "")
	if e.cfg.Fingerprinting.Enabled {
		events, severity, fpErr := e.fpDetector.Collect(tabCtx, started, st.consentDoneAt)
		if fpErr == nil {
			obs.FingerprintEvents = events
			fpSummary := fingerprint.Summarize(events, severity)
			obs.Session.FPSeverity = fpSummary.Severity
			obs.Session.FPEventCount = fpSummary.EventCount
			obs.Session.FPCanvas = fpSummary.CanvasDetected
			obs.Session.FPWebGL = fpSummary.WebGLDetected
			obs.Session.FPAudio = fpSummary.AudioDetected
			obs.Session.FPFont = fpSummary.FontDetected
			obs.Session.FPNavigator = fpSummary.NavigatorDetected
			obs.Session.FPStorage = fpSummary.StorageDetected
			obs.Session.FPUniqueAPIs = fpSummary.UniqueAPIs
			obs.Session.FPUniqueEntities = fpSummary.UniqueEntities
		}
	}

	if e.cfg.Ads.Enabled {
		adResult, adErr := e.adDetector.Detect(tabCtx)
		if adErr == nil {
			obs.AdElements = adResult.Elements
			obs.Session.AdCount = adResult.TotalCount
			obs.Session.AdVisibleCount = adResult.VisibleCount
			obs.Session.AdDensity = adResult.AdDensity
			obs.Session.AdTotalAreaPx = adResult.TotalAreaPx
			obs.Session.AdIABStandardCount = adResult.IABStandardCount
		}
		if e.cfg.AdCapture.Enabled && len(obs.AdElements) > 0 {
			obs.AdCaptures = e.capturer.CaptureAll(tabCtx, obs.AdElements, st.siteDomain, task.ConsentMode)
			obs.Session.AdCapturesTotal = len(obs.AdCaptures)
			for _, c := range obs.AdCaptures {
				if c.ImagePath == "" {
					obs.Session.AdCapturesFailed++
				}
			}
		}
	}

	obs.Cookies = e.collectCookies(tabCtx, st)

	var finalURL, pageTitle string
	chromedp.Run(tabCtx, chromedp.Location(&finalURL))
	chromedp.Run(tabCtx, chromedp.Title(&pageTitle))

	var screenshotPath string
	if e.cfg.Crawler.Screenshot {
		screenshotPath = e.captureScreenshot(tabCtx, st.siteDomain, task.ConsentMode)
	}

	obs.Requests = st.snapshotRequests()
	obs.Session.Status = storage.StatusSuccess
	obs.Session.FinalURL = finalURL
	obs.Session.PageTitle = pageTitle
	obs.Session.ScreenshotPath = screenshotPath
	obs.Session.FinishedAt = time.Now()
	obs.Session.DurationMS = time.Since(started).Milliseconds()
	obs.Session.LoadTimeMS = loadTimeMS
	obs.Session.ConsentOutcome = st.consentInfo.Strategy
	if !st.consentInfo.Found {
		obs.Session.ConsentOutcome = "none_found"
	}
	obs.Session.ConsentBannerDetected = st.consentInfo.Found
	obs.Session.ConsentCMP = st.consentInfo.CMPName
	obs.Session.ConsentButtonText = st.consentInfo.ButtonText
	obs.Session.ConsentActionTaken = st.consentInfo.Found && st.consentInfo.ActionTaken != "" && st.consentInfo.ActionTaken != "none"
	obs.Session.ConsentLatencyMS = st.consentInfo.LatencyMS
	obs.Session.RequestCount = len(obs.Requests)
	obs.Session.CookieCount = len(obs.Cookies)
	for _, r := range obs.Requests {
		obs.Session.TotalBytes += r.BodySize
		if r.IsThirdParty {
			obs.Session.ThirdPartyRequests++
		}
	}
	for _, c := range obs.Cookies {
		if c.IsTrackingCookie {
			obs.Session.TrackingCookiesSet++
		}
	}

	weight := classifier.Aggregate(obs.Requests)
	obs.Session.RWContentFirstPartyBytes = weight.ContentFirstParty
	obs.Session.RWCDNBytes = weight.CDN
	obs.Session.RWTrackerBytes = weight.Tracker
	obs.Session.RWAdBytes = weight.Ad
	obs.Session.RWFunctionalThirdBytes = weight.FunctionalThird
	obs.Session.RWUnknownThirdBytes = weight.UnknownThird

	return obs
}

// captureScreenshot writes a full-page screenshot to the configured output
// directory and returns its path, or "" if the capture failed.
func (e *Engine) captureScreenshot(ctx context.Context, domain string, mode storage.ConsentMode) string {
	var buf []byte
	// quality 100 makes chromedp capture PNG; any lower value yields JPEG.
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return ""
	}
	if err := os.MkdirAll(e.cfg.Output.ScreenshotDir, 0o755); err != nil {
		return ""
	}
	path := filepath.Join(e.cfg.Output.ScreenshotDir, fmt.Sprintf("%s_%s.png", domain, mode))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return ""
	}
	return path
}

func durationMS(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// dwellInChunks waits total in ~5s increments, firing a progress callback
// each chunk, so a long dwell period still produces visible activity.
func (e *Engine) dwellInChunks(ctx context.Context, mode storage.ConsentMode, site, phase string, total time.Duration) {
	const chunk = 5 * time.Second
	remaining := total
	for remaining > 0 {
		step := chunk
		if remaining < step {
			step = remaining
		}
		chromedp.Run(ctx, chromedp.Sleep(step))
		remaining -= step
		e.progress(mode, site, phase, remaining.String()+" remaining")
	}
}

func (e *Engine) scroll(ctx context.Context) {
	n := 4
	delay := e.cfg.Crawler.ScrollDelay
	if delay <= 0 {
		delay = 1500 * time.Millisecond
	}
	for i := 0; i < n; i++ {
		chromedp.Run(ctx,
			chromedp.Evaluate(`window.scrollBy(0, window.innerHeight/2)`, nil),
			chromedp.Sleep(delay),
		)
	}
}

// attachNetworkListeners records a RequestRecord the moment a request is
// sent, then fills in response fields when the matching response arrives.
func (e *Engine) attachNetworkListeners(ctx context.Context, st *taskState) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		st.mu.Lock()
		defer st.mu.Unlock()
		switch evt := ev.(type) {
		case *network.EventRequestWillBeSent:
			domain := urlutil.RegisteredDomain(hostOf(evt.Request.URL))
			isThirdParty := domain != "" && domain != st.siteDomain
			category, trackerEntity := e.resClassif.Classify(isThirdParty, domain)
			rec := storage.RequestRecord{
				URL:              evt.Request.URL,
				Method:           evt.Request.Method,
				ResourceType:     strings.ToLower(string(evt.Type)),
				IsThirdParty:     isThirdParty,
				RequestDomain:    domain,
				Category:         category,
				TrackerEntity:    trackerEntity,
				WasBeforeConsent: st.consentDoneAt.IsZero(),
				Timestamp:        time.Now(),
			}
			st.requests = append(st.requests, rec)
			st.requestIndex[evt.RequestID] = len(st.requests) - 1
		case *network.EventResponseReceived:
			if idx, ok := st.requestIndex[evt.RequestID]; ok && idx < len(st.requests) {
				st.requests[idx].StatusCode = int(evt.Response.Status)
				st.requests[idx].MimeType = evt.Response.MimeType
			}
		case *network.EventLoadingFinished:
			if idx, ok := st.requestIndex[evt.RequestID]; ok && idx < len(st.requests) {
				st.requests[idx].BodySize = int64(evt.EncodedDataLength)
			}
		}
	})
}

func hostOf(rawURL string) string {
	if idx := strings.Index(rawURL, "://"); idx != -1 {
		rest := rawURL[idx+3:]
		if slash := strings.IndexAny(rest, "/?#"); slash != -1 {
			rest = rest[:slash]
		}
		if at := strings.LastIndex(rest, "@"); at != -1 {
			rest = rest[at+1:]
		}
		return rest
	}
	return ""
}

func (e *Engine) cookieKeySet(ctx context.Context) map[string]struct{} {
	cookies, err := readCookies(ctx)
	if err != nil {
		return map[string]struct{}{}
	}
	set := make(map[string]struct{}, len(cookies))
	for _, c := range cookies {
		set[c.Name+"\x00"+c.Domain] = struct{}{}
	}
	return set
}

func (e *Engine) collectCookies(ctx context.Context, st *taskState) []storage.CookieRecord {
	raws, err := readCookies(ctx)
	if err != nil {
		return nil
	}
	out := make([]storage.CookieRecord, 0, len(raws))
	for _, c := range raws {
		_, before := st.preConsentCookies[c.Name+"\x00"+c.Domain]
		domain := urlutil.RegisteredDomain(c.Domain)
		isThirdParty := domain != "" && domain != st.siteDomain
		entity, _ := e.trackers.Classify(domain)
		isTracking := e.trackers.IsTrackingCookie(c.Name, domain)

		h := sha256.Sum256([]byte(c.Value))
		rec := storage.CookieRecord{
			Name:             c.Name,
			Domain:           c.Domain,
			Path:             c.Path,
			ValueHash:        hex.EncodeToString(h[:]),
			IsSession:        c.Session,
			IsSecure:         c.Secure,
			IsHTTPOnly:       c.HTTPOnly,
			SameSite:         string(c.SameSite),
			IsThirdParty:     isThirdParty,
			WasBeforeConsent: before,
			IsTrackingCookie: isTracking,
			TrackerEntity:    entity,
		}
		if c.Expires > 0 {
			exp := time.Unix(int64(c.Expires), 0)
			rec.ExpiresAt = &exp
			rec.LifetimeDays = time.Until(exp).Hours() / 24
		}
		out = append(out, rec)
	}
	return out
}

type rawCookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	Session  bool
	SameSite network.CookieSameSite
	Expires  float64
}

func readCookies(ctx context.Context) ([]rawCookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	out := make([]rawCookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, rawCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			Session:  c.Session,
			SameSite: c.SameSite,
			Expires:  c.Expires,
		})
	}
	return out, nil
}
