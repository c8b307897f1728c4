// Package classifier identifies tracking entities and categorizes network
// requests by the role they play in a page's privacy footprint.
package classifier

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/privacy-observatory/crawler/internal/urlutil"
)

// trackerEntry pairs a tracker's human-readable owner with a rough category.
type trackerEntry struct {
	entity   string
	category string // advertising, analytics, social, fingerprinting, cdn, other
}

// builtinTrackers is the seed tracker database: domain -> owning entity and
// category. Kept small and well-known rather than exhaustive; TrackerDB.LoadDisconnect
// can extend it with a Disconnect.me-format services.json at runtime.
var builtinTrackers = map[string]trackerEntry{
	// Google
	"google-analytics.com":  {"Google", "analytics"},
	"googletagmanager.com":  {"Google", "analytics"},
	"googleadservices.com":  {"Google", "advertising"},
	"googlesyndication.com": {"Google", "advertising"},
	"doubleclick.net":       {"Google", "advertising"},
	"googletagservices.com": {"Google", "advertising"},
	"google.com":            {"Google", "analytics"},
	"googleapis.com":        {"Google", "cdn"},
	"gstatic.com":           {"Google", "cdn"},
	"youtube.com":           {"Google", "social"},
	"ytimg.com":             {"Google", "cdn"},
	"ggpht.com":             {"Google", "cdn"},
	"googlevideo.com":       {"Google", "cdn"},
	"googleusercontent.com": {"Google", "cdn"},
	// Meta / Facebook
	"facebook.com":          {"Meta", "social"},
	"facebook.net":          {"Meta", "advertising"},
	"fbcdn.net":             {"Meta", "cdn"},
	"instagram.com":         {"Meta", "social"},
	"connect.facebook.net":  {"Meta", "social"},
	"fbsbx.com":             {"Meta", "social"},
	// Microsoft
	"bing.com":     {"Microsoft", "advertising"},
	"msn.com":      {"Microsoft", "advertising"},
	"microsoft.com": {"Microsoft", "analytics"},
	"clarity.ms":   {"Microsoft", "analytics"},
	"msecnd.net":   {"Microsoft", "cdn"},
	// Amazon
	"amazon-adsystem.com": {"Amazon", "advertising"},
	"amazonaws.com":       {"Amazon", "cdn"},
	"cloudfront.net":      {"Amazon", "cdn"},
	// Twitter / X
	"twitter.com": {"Twitter/X", "social"},
	"t.co":        {"Twitter/X", "social"},
	"twimg.com":   {"Twitter/X", "cdn"},
	// Adobe
	"demdex.net":  {"Adobe", "advertising"},
	"omtrdc.net":  {"Adobe", "analytics"},
	"2o7.net":     {"Adobe", "analytics"},
	"adobe.com":   {"Adobe", "analytics"},
	"typekit.net": {"Adobe", "cdn"},
	// Criteo
	"criteo.com": {"Criteo", "advertising"},
	"criteo.net": {"Criteo", "advertising"},
	// Taboola / Outbrain
	"taboola.com":  {"Taboola", "advertising"},
	"outbrain.com": {"Outbrain", "advertising"},
	// AppNexus / Xandr / The Trade Desk
	"adnxs.com":   {"Xandr", "advertising"},
	"adsrvr.org":  {"The Trade Desk", "advertising"},
	// Hotjar / HubSpot
	"hotjar.com":     {"Hotjar", "analytics"},
	"hubspot.com":    {"HubSpot", "analytics"},
	"hsforms.com":    {"HubSpot", "analytics"},
	"hs-analytics.net": {"HubSpot", "analytics"},
	// Quantcast / Oracle
	"quantserve.com": {"Quantcast", "advertising"},
	"quantcount.com": {"Quantcast", "analytics"},
	"bluekai.com":    {"Oracle", "advertising"},
	"addthis.com":    {"Oracle", "social"},
	// Cloudflare
	"cloudflare.com":          {"Cloudflare", "cdn"},
	"cloudflareinsights.com":  {"Cloudflare", "analytics"},
	// New Relic / Sentry
	"newrelic.com": {"New Relic", "analytics"},
	"nr-data.net":  {"New Relic", "analytics"},
	"sentry.io":    {"Sentry", "analytics"},
	// Pinterest / LinkedIn / Snap / TikTok / Yandex
	"pinimg.com":      {"Pinterest", "social"},
	"pinterest.com":   {"Pinterest", "social"},
	"linkedin.com":    {"LinkedIn", "social"},
	"licdn.com":       {"LinkedIn", "cdn"},
	"snapchat.com":    {"Snap", "social"},
	"sc-static.net":   {"Snap", "cdn"},
	"tiktok.com":      {"TikTok", "social"},
	"byteoversea.com": {"TikTok", "analytics"},
	"yandex.ru":       {"Yandex", "analytics"},
	"mc.yandex.ru":    {"Yandex", "analytics"},
	// Regional trackers prevalent in Central European observatories
	"sklik.cz":             {"Seznam.cz", "advertising"},
	"imedia.cz":            {"Seznam.cz", "advertising"},
	"im.cz":                {"Seznam.cz", "advertising"},
	"sssp.cz":              {"Seznam.cz", "advertising"},
	"seznam.cz":            {"Seznam.cz", "analytics"},
	"toplist.cz":           {"Seznam.cz", "analytics"},
	"heureka.cz":           {"Heureka Group", "analytics"},
	"glami.cz":             {"Heureka Group", "analytics"},
	"glami.eco":            {"Heureka Group", "analytics"},
	"gemius.com":           {"Gemius", "analytics"},
	"gemius.pl":            {"Gemius", "analytics"},
	"gemiuscdn.com":        {"Gemius", "analytics"},
	"adform.net":           {"Adform", "advertising"},
	"adform.com":           {"Adform", "advertising"},
	"adformdsp.net":        {"Adform", "advertising"},
	"r2b2.cz":              {"R2B2", "advertising"},
	"r2b2.io":              {"R2B2", "advertising"},
	"impressionmedia.cz":   {"Impression Media", "advertising"},
	"netmonitor.cz":        {"Mediaresearch", "analytics"},
	"mediaresearch.cz":     {"Mediaresearch", "analytics"},
	"zbozi.cz":             {"Seznam.cz", "analytics"},
	"smartsupp.com":        {"Smartsupp", "analytics"},
	"exponea.com":          {"Bloomreach", "analytics"},
	"bloomreach.com":       {"Bloomreach", "analytics"},
}

// trackingCookiePatterns are cookie name prefixes strongly associated with
// cross-site tracking, independent of which domain set them.
var trackingCookiePatterns = []string{
	"_ga", "_gid", "_gat", "_gcl_au", "_gac_",
	"IDE", "NID", "DSID", "1P_JAR", "ANID", "CONSENT",
	"_fbp", "_fbc", "fr", "datr", "sb",
	"_uetsid", "_uetvid", "MUID", "_clck", "_clsk",
	"_hjid", "_hjSession", "_hjSessionUser", "_hjAbsoluteSessionInProgress",
	"hubspotutk", "__hssc", "__hssrc", "__hstc",
	"__utm",
	"cto_bundle", "cto_bidid",
	"s_cc", "s_sq", "s_vi",
	"sid", "lps",
	"_pk_id", "_pk_ses",
}

// TrackerDB classifies domains as known tracking entities. The zero value is
// not usable; construct with NewTrackerDB.
type TrackerDB struct {
	lookup map[string]trackerEntry
}

// NewTrackerDB returns a TrackerDB seeded with the built-in entries.
func NewTrackerDB() *TrackerDB {
	db := &TrackerDB{lookup: make(map[string]trackerEntry, len(builtinTrackers))}
	for domain, entry := range builtinTrackers {
		db.lookup[domain] = entry
	}
	return db
}

// disconnectFile is the shape of a Disconnect.me-style services.json:
// category -> [ {entity: {owner_label: [domains...]}} ].
type disconnectFile map[string][]map[string]map[string][]string

// LoadDisconnect extends the database with entries from a Disconnect.me
// services.json file. Missing or malformed files are reported but never
// fatal; the built-in table remains usable either way.
func (db *TrackerDB) LoadDisconnect(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var parsed disconnectFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	for category, entries := range parsed {
		for _, entry := range entries {
			for entityName, domainSets := range entry {
				for _, domains := range domainSets {
					for _, domain := range domains {
						if strings.Contains(domain, ".") {
							db.lookup[domain] = trackerEntry{entity: entityName, category: strings.ToLower(category)}
						}
					}
				}
			}
		}
	}
	return nil
}

// Classify resolves a domain to its owning tracking entity and category by
// trying an exact match, then the registered (public-suffix-aware) domain,
// then each successively shorter label suffix. Returns ("", "") when unknown.
func (db *TrackerDB) Classify(domain string) (entity, category string) {
	domain = strings.ToLower(strings.TrimPrefix(domain, "."))
	if entry, ok := db.lookup[domain]; ok {
		return entry.entity, entry.category
	}

	if reg := urlutil.RegisteredDomain(domain); reg != "" {
		if entry, ok := db.lookup[reg]; ok {
			return entry.entity, entry.category
		}
	}

	parts := strings.Split(domain, ".")
	for i := 1; i < len(parts); i++ {
		parent := strings.Join(parts[i:], ".")
		if entry, ok := db.lookup[parent]; ok {
			return entry.entity, entry.category
		}
	}
	return "", ""
}

// IsTrackingCookie reports whether a cookie is likely used for cross-site
// tracking, by name pattern or by the reputation of its setting domain.
func (db *TrackerDB) IsTrackingCookie(name, domain string) bool {
	if isTrackingCookieName(name) {
		return true
	}
	entity, _ := db.Classify(domain)
	return entity != ""
}

// DomainCount returns how many domains the database currently recognizes.
func (db *TrackerDB) DomainCount() int {
	return len(db.lookup)
}

func isTrackingCookieName(name string) bool {
	lower := strings.ToLower(name)
	for _, pattern := range trackingCookiePatterns {
		p := strings.ToLower(pattern)
		if lower == p || strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
