// Package fingerprint instruments a page for browser-fingerprinting
// detection and classifies what it observes once the dwell period ends.
package fingerprint

import (
	_ "embed"
	"context"
	"regexp"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/privacy-observatory/crawler/internal/classifier"
	"github.com/privacy-observatory/crawler/internal/storage"
	"github.com/privacy-observatory/crawler/internal/urlutil"
)

//go:embed fingerprint.js
var initScript string

// activeAPIs are the fingerprinting vectors that extract high-entropy
// render-dependent signals (as opposed to passively reading navigator
// properties analytics scripts check anyway).
var activeAPIs = map[string]struct{}{"canvas": {}, "webgl": {}, "audio": {}}

var stackURLPattern = regexp.MustCompile(`https?://([^/\s:]+)`)

type rawEvent struct {
	API       string  `json:"api"`
	Method    string  `json:"method"`
	Timestamp float64 `json:"timestamp"`
	Stack     string  `json:"stack"`
	Details   string  `json:"details"`
}

// Detector instruments pages and classifies their fingerprint-API usage.
type Detector struct {
	trackers *classifier.TrackerDB
}

// NewDetector builds a Detector that attributes fingerprinting calls made
// from third-party scripts to the tracker database's known entities.
func NewDetector(trackers *classifier.TrackerDB) *Detector {
	return &Detector{trackers: trackers}
}

// InjectMonitoring installs the instrumentation script so it runs before any
// page script, including the target site's own first script tag. Must be
// called before chromedp.Navigate.
func InjectMonitoring(ctx context.Context) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(initScript).Do(ctx)
		return err
	}))
}

// Collect reads back the fingerprinting events accumulated since injection
// and classifies their severity. consentResolvedAt splits events into
// before/after the consent decision so a session can report whether
// fingerprinting started before the visitor had a chance to object.
func (d *Detector) Collect(ctx context.Context, sessionStart, consentResolvedAt time.Time) ([]storage.FingerprintEvent, storage.FingerprintSeverity, error) {
	var raws []rawEvent
	if err := chromedp.Run(ctx, chromedp.Evaluate(`window.__fpLog || []`, &raws)); err != nil {
		return nil, storage.FingerprintNone, err
	}

	events := make([]storage.FingerprintEvent, 0, len(raws))
	apisSeen := make(map[string]struct{})
	callCounts := make(map[[2]string]int) // (api, method) -> count

	for _, raw := range raws {
		apisSeen[raw.API] = struct{}{}
		callCounts[[2]string{raw.API, raw.Method}]++

		ts := sessionStart
		if raw.Timestamp > 0 {
			ts = time.UnixMilli(int64(raw.Timestamp))
		}

		category := raw.API
		scriptURL := extractDomainFromStack(raw.Stack)
		var trackerEntity string
		if scriptURL != "" {
			// Normalize to the registered domain so the same script host
			// groups consistently whether it's cdn.example.com or www.example.com.
			if reg := urlutil.RegisteredDomain(scriptURL); reg != "" {
				scriptURL = reg
			}
			trackerEntity, _ = d.trackers.Classify(scriptURL)
		}
		events = append(events, storage.FingerprintEvent{
			APIName:          raw.API + "." + raw.Method,
			Category:         category,
			ScriptURL:        scriptURL,
			TrackerEntity:    trackerEntity,
			CallCount:        1,
			WasBeforeConsent: ts.Before(consentResolvedAt),
			Timestamp:        ts,
		})
	}

	return collapseByAPIMethod(events), classifySeverity(apisSeen, len(raws)), nil
}

// Summary is the per-session denormalization of a Collect call: which API
// families were reached, how severe the overall fingerprinting behavior is,
// and how many distinct APIs/tracker entities were involved.
type Summary struct {
	Severity       storage.FingerprintSeverity
	EventCount     int
	CanvasDetected bool
	WebGLDetected  bool
	AudioDetected  bool
	FontDetected   bool
	NavigatorDetected bool
	StorageDetected bool
	UniqueAPIs     int
	UniqueEntities int
}

// Summarize reduces the (already collapsed) events Collect returned into the
// session-level counters persisted alongside the raw fingerprint_events rows.
func Summarize(events []storage.FingerprintEvent, severity storage.FingerprintSeverity) Summary {
	s := Summary{Severity: severity}
	apis := make(map[string]struct{})
	entities := make(map[string]struct{})

	for _, e := range events {
		s.EventCount += e.CallCount
		apis[e.APIName] = struct{}{}
		if e.TrackerEntity != "" {
			entities[e.TrackerEntity] = struct{}{}
		}
		switch e.Category {
		case "canvas":
			s.CanvasDetected = true
		case "webgl":
			s.WebGLDetected = true
		case "audio":
			s.AudioDetected = true
		case "font":
			s.FontDetected = true
		case "navigator":
			s.NavigatorDetected = true
		case "storage":
			s.StorageDetected = true
		}
	}

	s.UniqueAPIs = len(apis)
	s.UniqueEntities = len(entities)
	return s
}

// collapseByAPIMethod merges duplicate (api, method) rows recorded at
// different timestamps into a single row with an incremented call count,
// keeping the earliest timestamp (relevant to the before/after-consent
// split already computed per-event above).
func collapseByAPIMethod(events []storage.FingerprintEvent) []storage.FingerprintEvent {
	type key struct {
		api   string
		before bool
	}
	merged := make(map[key]*storage.FingerprintEvent)
	order := make([]key, 0, len(events))

	for _, e := range events {
		k := key{api: e.APIName, before: e.WasBeforeConsent}
		if existing, ok := merged[k]; ok {
			existing.CallCount++
			continue
		}
		ev := e
		merged[k] = &ev
		order = append(order, k)
	}

	out := make([]storage.FingerprintEvent, 0, len(order))
	for _, k := range order {
		out = append(out, *merged[k])
	}
	return out
}

func extractDomainFromStack(stack string) string {
	if stack == "" {
		return ""
	}
	matches := stackURLPattern.FindAllStringSubmatch(stack, -1)
	for _, m := range matches {
		if len(m) > 1 && m[1] != "" {
			return m[1]
		}
	}
	return ""
}

// classifySeverity mirrors the footprint observatory's rubric: no events is
// none, only passive navigator/font/storage reads is passive, one active
// technique (canvas, webgl, or audio) is active, and two or more combined is
// aggressive - a strong signal of deliberate device-identification rather
// than incidental capability checks.
func classifySeverity(apis map[string]struct{}, eventCount int) storage.FingerprintSeverity {
	if eventCount == 0 {
		return storage.FingerprintNone
	}

	activeCount := 0
	for api := range apis {
		if _, ok := activeAPIs[api]; ok {
			activeCount++
		}
	}

	switch {
	case activeCount == 0:
		return storage.FingerprintPassive
	case activeCount >= 2:
		return storage.FingerprintAggressive
	default:
		return storage.FingerprintActive
	}
}
