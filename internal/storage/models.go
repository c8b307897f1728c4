// Package storage provides data persistence for crawl results.
package storage

import "time"

// ConsentMode describes how the crawler should interact with a site's
// cookie-consent banner during a crawl task.
type ConsentMode string

const (
	ConsentIgnore ConsentMode = "ignore"
	ConsentAccept ConsentMode = "accept"
	ConsentReject ConsentMode = "reject"
)

// CrawlStatus describes the terminal outcome of a crawl task.
type CrawlStatus string

const (
	StatusSuccess CrawlStatus = "success"
	StatusTimeout CrawlStatus = "timeout"
	StatusError   CrawlStatus = "error"
	StatusBlocked CrawlStatus = "blocked"
)

// FingerprintSeverity classifies how aggressively a page fingerprints the browser.
type FingerprintSeverity string

const (
	FingerprintNone       FingerprintSeverity = "none"
	FingerprintPassive    FingerprintSeverity = "passive"
	FingerprintActive     FingerprintSeverity = "active"
	FingerprintAggressive FingerprintSeverity = "aggressive"
)

// ResourceCategory buckets a network request by its role and ownership
// relative to the site being crawled.
type ResourceCategory string

const (
	ResourceContentFirstParty ResourceCategory = "content_1p"
	ResourceCDN               ResourceCategory = "cdn"
	ResourceTracker           ResourceCategory = "tracker"
	ResourceAd                ResourceCategory = "ad"
	ResourceFunctionalThird   ResourceCategory = "functional_3p"
	ResourceUnknownThird      ResourceCategory = "unknown_3p"
)

// Site is a row in the fixed site list the observatory crawls.
type Site struct {
	ID        int64     `json:"id"`
	Domain    string    `json:"domain"`
	URL       string    `json:"url"`
	Rank      int       `json:"rank,omitempty"`
	Category  string    `json:"category,omitempty"`
	Country   string    `json:"country,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
}

// Task is a unit of work: one site visited under one consent mode.
type Task struct {
	Site        Site
	ConsentMode ConsentMode
	Attempt     int
}

// CrawlSession records one (site, consent mode) visit and its outcome. Most
// fields below are denormalizations of the child tables (requests, cookies,
// fingerprint_events, ad_elements, ad_captures), derived once at write time
// so the dataset can be queried per-session without joining every child
// table for common aggregates.
type CrawlSession struct {
	ID              int64       `json:"id"`
	SiteID          int64       `json:"site_id"`
	ConsentMode     ConsentMode `json:"consent_mode"`
	Status          CrawlStatus `json:"status"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      time.Time   `json:"finished_at"`
	DurationMS      int64       `json:"duration_ms"`
	LoadTimeMS      int64       `json:"load_time_ms"` // time to navigate + reach a ready DOM, distinct from the full task duration
	FinalURL        string      `json:"final_url"`
	PageTitle       string      `json:"page_title,omitempty"`
	ScreenshotPath  string      `json:"screenshot_path,omitempty"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	ConsentOutcome  string      `json:"consent_outcome,omitempty"` // strategy name that resolved the banner, or "none_found"
	ConsentLatencyMS int64      `json:"consent_latency_ms,omitempty"`

	ConsentBannerDetected bool   `json:"consent_banner_detected"`
	ConsentCMP            string `json:"consent_cmp,omitempty"`
	ConsentButtonText     string `json:"consent_button_text,omitempty"`
	ConsentActionTaken    bool   `json:"consent_action_taken"`

	TotalBytes         int64 `json:"total_bytes"`
	RequestCount       int   `json:"request_count"`
	ThirdPartyRequests int   `json:"third_party_requests"`
	CookieCount        int   `json:"cookie_count"`
	TrackingCookiesSet int   `json:"tracking_cookies_set"`
	RetryCount         int   `json:"retry_count"`

	FPSeverity        FingerprintSeverity `json:"fp_severity,omitempty"`
	FPEventCount      int                 `json:"fp_event_count"`
	FPCanvas          bool                `json:"fp_canvas"`
	FPWebGL           bool                `json:"fp_webgl"`
	FPAudio           bool                `json:"fp_audio"`
	FPFont            bool                `json:"fp_font"`
	FPNavigator       bool                `json:"fp_navigator"`
	FPStorage         bool                `json:"fp_storage"`
	FPUniqueAPIs      int                 `json:"fp_unique_apis"`
	FPUniqueEntities  int                 `json:"fp_unique_entities"`

	AdCount            int     `json:"ad_count"`
	AdVisibleCount     int     `json:"ad_visible_count"`
	AdDensity          float64 `json:"ad_density"`
	AdTotalAreaPx      int     `json:"ad_total_area_px"`
	AdIABStandardCount int     `json:"ad_iab_standard_count"`
	AdCapturesTotal    int     `json:"ad_captures_total"`
	AdCapturesFailed   int     `json:"ad_captures_failed"`

	RWContentFirstPartyBytes int64 `json:"rw_content_1p_bytes"`
	RWCDNBytes               int64 `json:"rw_cdn_bytes"`
	RWTrackerBytes           int64 `json:"rw_tracker_bytes"`
	RWAdBytes                int64 `json:"rw_ad_bytes"`
	RWFunctionalThirdBytes   int64 `json:"rw_functional_3p_bytes"`
	RWUnknownThirdBytes      int64 `json:"rw_unknown_3p_bytes"`
}

// Observation is the full in-memory result of one crawl task before it is
// flattened into the relational tables below.
type Observation struct {
	Session          CrawlSession
	Requests         []RequestRecord
	Cookies          []CookieRecord
	FingerprintEvents []FingerprintEvent
	AdElements       []AdElement
	AdCaptures       []AdCapture
}

// RequestRecord is one network request observed by the renderer during a
// single crawl session.
type RequestRecord struct {
	ID              int64            `json:"id"`
	SessionID       int64            `json:"session_id"`
	URL             string           `json:"url"`
	Method          string           `json:"method"`
	ResourceType    string           `json:"resource_type"` // document, script, stylesheet, image, xhr, fetch, font, media, other
	StatusCode      int              `json:"status_code,omitempty"`
	MimeType        string           `json:"mime_type,omitempty"`
	BodySize        int64            `json:"body_size"`
	IsThirdParty    bool             `json:"is_third_party"`
	RequestDomain   string           `json:"request_domain"`
	Category        ResourceCategory `json:"category"`
	TrackerEntity   string           `json:"tracker_entity,omitempty"`
	WasBeforeConsent bool            `json:"was_before_consent"`
	Timestamp       time.Time        `json:"timestamp"`
}

// CookieRecord is one cookie observed in the browser's cookie jar at the end
// of a crawl session. Values are never stored in the clear.
type CookieRecord struct {
	ID               int64     `json:"id"`
	SessionID        int64     `json:"session_id"`
	Name             string    `json:"name"`
	Domain           string    `json:"domain"`
	Path             string    `json:"path"`
	ValueHash        string    `json:"value_hash"` // SHA-256 of the cookie value
	IsSession        bool      `json:"is_session"`
	IsSecure         bool      `json:"is_secure"`
	IsHTTPOnly       bool      `json:"is_http_only"`
	SameSite         string    `json:"same_site,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	LifetimeDays     float64   `json:"lifetime_days,omitempty"`
	IsThirdParty     bool      `json:"is_third_party"`
	WasBeforeConsent bool      `json:"was_before_consent"`
	IsTrackingCookie bool      `json:"is_tracking_cookie"`
	TrackerEntity    string    `json:"tracker_entity,omitempty"`
}

// ConsentInfo captures which cascade strategy resolved the banner, if any.
type ConsentInfo struct {
	Found        bool   `json:"found"`
	Strategy     string `json:"strategy,omitempty"`
	CMPName      string `json:"cmp_name,omitempty"`
	ActionTaken  string `json:"action_taken,omitempty"` // accept, reject, none
	ButtonText   string `json:"button_text,omitempty"`
	LatencyMS    int64  `json:"latency_ms,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// FingerprintEvent records one call into a fingerprinting-sensitive browser
// API captured by the instrumented page.
type FingerprintEvent struct {
	ID               int64     `json:"id"`
	SessionID        int64     `json:"session_id"`
	APIName          string    `json:"api_name"` // e.g. canvas.toDataURL, navigator.plugins, AudioContext
	Category         string    `json:"category"` // canvas, webgl, audio, font, navigator, storage
	ScriptURL        string    `json:"script_url,omitempty"`
	TrackerEntity    string    `json:"tracker_entity,omitempty"`
	CallCount        int       `json:"call_count"`
	WasBeforeConsent bool      `json:"was_before_consent"`
	Timestamp        time.Time `json:"timestamp"`
}

// AdElement is one ad-slot-shaped DOM element detected on the page.
type AdElement struct {
	ID            int64  `json:"id"`
	SessionID     int64  `json:"session_id"`
	Selector      string `json:"selector"`
	FrameURL      string `json:"frame_url,omitempty"`
	NetworkDomain string `json:"network_domain,omitempty"`
	X             int    `json:"x,omitempty"`
	Y             int    `json:"y,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	IABSizeMatch  string `json:"iab_size_match,omitempty"`
	DetectionRule string `json:"detection_rule"` // which selector/pattern matched
}

// AdCapture is a screenshot of one detected ad element. ElementIndex refers
// to the element's position within the Observation.AdElements slice it was
// captured alongside - the database layer resolves it to a row id once the
// parent element has been inserted.
type AdCapture struct {
	ID            int64  `json:"id"`
	ElementIndex  int    `json:"-"`
	SessionID     int64  `json:"session_id"`
	ImagePath     string `json:"image_path"`
	CaptureMethod string `json:"capture_method"` // frame_element, element_locator, crop_fallback, or failed (no image)
	Width         int    `json:"width"`
	Height        int    `json:"height"`
}
