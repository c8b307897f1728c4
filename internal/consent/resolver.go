package consent

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/privacy-observatory/crawler/internal/storage"
)

//go:embed consent.js
var consentScript string

// jsOutcome mirrors the JSON object every consent.js strategy returns.
type jsOutcome struct {
	Found    bool   `json:"found"`
	Strategy string `json:"strategy"`
	CMP      string `json:"cmp"`
	Action   string `json:"action"`
	Text     string `json:"text"`
}

// Strategy is one cascade step in resolving a consent banner. It returns a
// non-nil outcome only when it found and handled something; returning (nil,
// nil) means "nothing here, try the next strategy".
type Strategy interface {
	Name() string
	Probe(ctx context.Context, mode storage.ConsentMode) (*jsOutcome, error)
}

// Patterns holds the locale-specific button-label phrases the text-matching
// strategies search for, on top of the package defaults.
type Patterns struct {
	Accept []string
	Reject []string
}

// Resolver runs the consent cascade against the active tab.
type Resolver struct {
	patterns Patterns
	strategies []Strategy
}

// NewResolver builds a Resolver with the default strategy cascade, in the
// order cheapest/most-specific to broadest/last-resort.
func NewResolver(patterns Patterns) *Resolver {
	accept := append(append([]string{}, defaultAcceptTexts...), patterns.Accept...)
	reject := append(append([]string{}, defaultRejectTexts...), patterns.Reject...)

	r := &Resolver{patterns: Patterns{Accept: accept, Reject: reject}}
	r.strategies = []Strategy{
		knownCMPStrategy{},
		shadowDOMStrategy{},
		cmpIframeStrategy{},
		seznamCWLStrategy{},
		textMatchStrategy{patterns: r.patterns},
		textMatchIframeStrategy{patterns: r.patterns},
		genericBannerStrategy{},
		fullPageScanStrategy{patterns: r.patterns},
		didomiAPIStrategy{},
		nestedIframeStrategy{patterns: r.patterns},
		okLastResortStrategy{},
	}
	return r
}

// Resolve runs the cascade once and returns the first strategy's outcome
// that actually found and acted on a banner. IGNORE mode never calls this;
// the engine skips consent handling entirely for that mode.
func (r *Resolver) Resolve(ctx context.Context, mode storage.ConsentMode) (storage.ConsentInfo, error) {
	if mode == storage.ConsentIgnore {
		return storage.ConsentInfo{Found: false}, nil
	}

	start := time.Now()
	// ensure the helper script is present in the page before we probe it
	if err := chromedp.Run(ctx, chromedp.Evaluate(consentScript, nil)); err != nil {
		return storage.ConsentInfo{}, fmt.Errorf("install consent helpers: %w", err)
	}

	for _, strat := range r.strategies {
		// OK-last-resort only makes sense for ACCEPT.
		if _, ok := strat.(okLastResortStrategy); ok && mode != storage.ConsentAccept {
			continue
		}
		outcome, err := strat.Probe(ctx, mode)
		if err != nil {
			continue // a single strategy erroring (e.g. detached frame) shouldn't abort the cascade
		}
		if outcome == nil || !outcome.Found {
			continue
		}
		// A banner that was detected but whose button could not be clicked
		// is not recorded; the cascade moves on to the next strategy.
		if outcome.Action != "accept" && outcome.Action != "reject" {
			continue
		}
		return storage.ConsentInfo{
			Found:       true,
			Strategy:    outcome.Strategy,
			CMPName:     outcome.CMP,
			ActionTaken: outcome.Action,
			ButtonText:  outcome.Text,
			LatencyMS:   time.Since(start).Milliseconds(),
		}, nil
	}

	return storage.ConsentInfo{Found: false}, nil
}

func evalJSON(ctx context.Context, expr string) (*jsOutcome, error) {
	var raw string
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &raw)); err != nil {
		return nil, err
	}
	var out jsOutcome
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func marshalList(patterns []string) string {
	b, _ := json.Marshal(patterns)
	return string(b)
}

// --- Strategy implementations ---

type knownCMPStrategy struct{}

func (knownCMPStrategy) Name() string { return "known_cmp" }

func (knownCMPStrategy) Probe(ctx context.Context, mode storage.ConsentMode) (*jsOutcome, error) {
	wantAccept := mode == storage.ConsentAccept
	for _, cmp := range knownCMPs {
		expr := fmt.Sprintf("__consentTryCMP(%q, %q, %q, %q, %t)", cmp.name, cmp.detectSelector, cmp.acceptSelector, cmp.rejectSelector, wantAccept)
		out, err := evalJSON(ctx, expr)
		if err != nil {
			continue
		}
		if out.Found {
			return out, nil
		}
	}
	return nil, nil
}

type shadowDOMStrategy struct{}

func (shadowDOMStrategy) Name() string { return "shadow_dom" }

func (shadowDOMStrategy) Probe(ctx context.Context, mode storage.ConsentMode) (*jsOutcome, error) {
	wantAccept := mode == storage.ConsentAccept
	for _, cmp := range knownCMPs {
		expr := fmt.Sprintf("__consentTryShadow(%q, %q, %q, %q, %t)", cmp.name, cmp.detectSelector, cmp.acceptSelector, cmp.rejectSelector, wantAccept)
		out, err := evalJSON(ctx, expr)
		if err != nil {
			continue
		}
		if out.Found {
			return out, nil
		}
	}
	return nil, nil
}

type cmpIframeStrategy struct{}

func (cmpIframeStrategy) Name() string { return "cmp_iframe" }

func (cmpIframeStrategy) Probe(ctx context.Context, mode storage.ConsentMode) (*jsOutcome, error) {
	wantAccept := mode == storage.ConsentAccept
	for _, cmp := range knownCMPs {
		expr := fmt.Sprintf("__consentTryIframeCMP(%q, %q, %q, %q, %t)", cmp.name, cmp.detectSelector, cmp.acceptSelector, cmp.rejectSelector, wantAccept)
		out, err := evalJSON(ctx, expr)
		if err != nil {
			continue
		}
		if out.Found {
			return out, nil
		}
	}
	return nil, nil
}

// seznamCWLStrategy implements the two-step Seznam Consent Widget Library
// flow: open the settings panel, then confirm the explicit accept/reject
// choice on the panel that appears.
type seznamCWLStrategy struct{}

func (seznamCWLStrategy) Name() string { return "seznam_cwl" }

func (seznamCWLStrategy) Probe(ctx context.Context, mode storage.ConsentMode) (*jsOutcome, error) {
	step1, err := evalJSON(ctx, "__consentTrySeznamCWLStep1()")
	if err != nil || step1 == nil || !step1.Found {
		return nil, err
	}
	if step1.Action == "none" {
		return step1, nil
	}
	// give the settings panel a moment to render
	if err := chromedp.Run(ctx, chromedp.Sleep(300*time.Millisecond)); err != nil {
		return nil, err
	}
	wantAccept := mode == storage.ConsentAccept
	step2, err := evalJSON(ctx, fmt.Sprintf("__consentTrySeznamCWLStep2(%t)", wantAccept))
	if err != nil {
		return nil, err
	}
	if step2 != nil && step2.Found {
		return step2, nil
	}
	return step1, nil
}

type textMatchStrategy struct{ patterns Patterns }

func (textMatchStrategy) Name() string { return "text_match" }

func (s textMatchStrategy) Probe(ctx context.Context, mode storage.ConsentMode) (*jsOutcome, error) {
	wantAccept := mode == storage.ConsentAccept
	texts := s.patterns.Reject
	if wantAccept {
		texts = s.patterns.Accept
	}
	return evalJSON(ctx, fmt.Sprintf("__consentTryTextMatch(%q, %t)", marshalList(texts), wantAccept))
}

type textMatchIframeStrategy struct{ patterns Patterns }

func (textMatchIframeStrategy) Name() string { return "text_match_iframe" }

func (s textMatchIframeStrategy) Probe(ctx context.Context, mode storage.ConsentMode) (*jsOutcome, error) {
	texts := s.patterns.Reject
	if mode == storage.ConsentAccept {
		texts = s.patterns.Accept
	}
	return evalJSON(ctx, fmt.Sprintf("__consentTryTextMatchIframe(%q)", marshalList(texts)))
}

type genericBannerStrategy struct{}

func (genericBannerStrategy) Name() string { return "generic_banner" }

func (genericBannerStrategy) Probe(ctx context.Context, mode storage.ConsentMode) (*jsOutcome, error) {
	return evalJSON(ctx, fmt.Sprintf("__consentTryGenericBanner(%t)", mode == storage.ConsentAccept))
}

type fullPageScanStrategy struct{ patterns Patterns }

func (fullPageScanStrategy) Name() string { return "full_page_scan" }

func (s fullPageScanStrategy) Probe(ctx context.Context, mode storage.ConsentMode) (*jsOutcome, error) {
	wantAccept := mode == storage.ConsentAccept
	texts := s.patterns.Reject
	if wantAccept {
		texts = s.patterns.Accept
	}
	return evalJSON(ctx, fmt.Sprintf("__consentTryFullPageScan(%q, %t)", marshalList(texts), wantAccept))
}

type didomiAPIStrategy struct{}

func (didomiAPIStrategy) Name() string { return "didomi_api" }

func (didomiAPIStrategy) Probe(ctx context.Context, mode storage.ConsentMode) (*jsOutcome, error) {
	return evalJSON(ctx, fmt.Sprintf("__consentTryDidomiAPI(%t)", mode == storage.ConsentAccept))
}

type nestedIframeStrategy struct{ patterns Patterns }

func (nestedIframeStrategy) Name() string { return "nested_iframe" }

func (s nestedIframeStrategy) Probe(ctx context.Context, mode storage.ConsentMode) (*jsOutcome, error) {
	wantAccept := mode == storage.ConsentAccept
	texts := s.patterns.Reject
	if wantAccept {
		texts = s.patterns.Accept
	}
	return evalJSON(ctx, fmt.Sprintf("__consentTryNestedIframe(%q, %t)", marshalList(texts), wantAccept))
}

type okLastResortStrategy struct{}

func (okLastResortStrategy) Name() string { return "ok_last_resort" }

func (okLastResortStrategy) Probe(ctx context.Context, mode storage.ConsentMode) (*jsOutcome, error) {
	return evalJSON(ctx, "__consentTryOKLastResort()")
}
