package classifier

import (
	"strings"

	"github.com/privacy-observatory/crawler/internal/storage"
)

// cdnDomains serve first-party-looking content (fonts, JS libraries) from
// infrastructure that is not itself tracking the visitor.
var cdnDomains = map[string]struct{}{
	"cdnjs.cloudflare.com":    {},
	"fonts.googleapis.com":    {},
	"fonts.gstatic.com":       {},
	"cdn.jsdelivr.net":        {},
	"unpkg.com":               {},
	"ajax.googleapis.com":     {},
	"maxcdn.bootstrapcdn.com": {},
	"stackpath.bootstrapcdn.com": {},
	"code.jquery.com":         {},
}

var cdnPatterns = []string{
	"cloudfront.net",
	"akamaized.net",
	"akamai.net",
	"fastly.net",
	"azureedge.net",
	"cloudflare.com",
}

var functionalThirdPartyDomains = map[string]struct{}{
	"recaptcha.net":         {},
	"hcaptcha.com":          {},
	"stripe.com":            {},
	"paypal.com":            {},
	"braintreegateway.com":  {},
	"gstatic.com":           {},
	"twimg.com":             {},
}

var functionalThirdPartyPatterns = []string{
	"maps.google",
	"maps.googleapis",
	"recaptcha",
	"hcaptcha",
}

var adDomainPatterns = []string{
	"doubleclick.net",
	"googlesyndication.com",
	"googleadservices.com",
	"amazon-adsystem.com",
	"adnxs.com",
	"adsrvr.org",
}

// ResourceClassifier assigns each network request a storage.ResourceCategory
// and tallies byte totals per category so a crawl session can answer "how
// much bandwidth does tracking actually consume?".
type ResourceClassifier struct {
	trackers *TrackerDB
}

// NewResourceClassifier builds a classifier backed by the given tracker
// database.
func NewResourceClassifier(trackers *TrackerDB) *ResourceClassifier {
	return &ResourceClassifier{trackers: trackers}
}

// Classify assigns a category to a single request. domain should already be
// the request's registered domain (see urlutil.RegisteredDomain).
func (c *ResourceClassifier) Classify(isThirdParty bool, domain string) (storage.ResourceCategory, string) {
	if !isThirdParty {
		return storage.ResourceContentFirstParty, ""
	}

	entity, category := c.trackers.Classify(domain)

	switch category {
	case "advertising":
		return storage.ResourceAd, entity
	case "analytics", "fingerprinting", "social":
		return storage.ResourceTracker, entity
	}

	if _, ok := cdnDomains[domain]; ok {
		return storage.ResourceCDN, entity
	}
	for _, pattern := range cdnPatterns {
		if strings.Contains(domain, pattern) {
			return storage.ResourceCDN, entity
		}
	}

	for fd := range functionalThirdPartyDomains {
		if domain == fd || strings.HasSuffix(domain, "."+fd) {
			return storage.ResourceFunctionalThird, entity
		}
	}
	for _, pattern := range functionalThirdPartyPatterns {
		if strings.Contains(domain, pattern) {
			return storage.ResourceFunctionalThird, entity
		}
	}

	for _, pattern := range adDomainPatterns {
		if strings.Contains(domain, pattern) {
			return storage.ResourceAd, entity
		}
	}

	if entity != "" {
		return storage.ResourceTracker, entity
	}
	return storage.ResourceUnknownThird, ""
}

// WeightSummary holds byte totals per resource category across a session.
type WeightSummary struct {
	TotalBytes       int64
	ContentFirstParty int64
	CDN              int64
	Tracker          int64
	Ad               int64
	FunctionalThird  int64
	UnknownThird     int64
}

// Aggregate sums response bytes across requests, bucketed by category.
func Aggregate(requests []storage.RequestRecord) WeightSummary {
	var s WeightSummary
	for _, r := range requests {
		s.TotalBytes += r.BodySize
		switch r.Category {
		case storage.ResourceContentFirstParty:
			s.ContentFirstParty += r.BodySize
		case storage.ResourceCDN:
			s.CDN += r.BodySize
		case storage.ResourceTracker:
			s.Tracker += r.BodySize
		case storage.ResourceAd:
			s.Ad += r.BodySize
		case storage.ResourceFunctionalThird:
			s.FunctionalThird += r.BodySize
		default:
			s.UnknownThird += r.BodySize
		}
	}
	return s
}
