package storage

// Schema contains SQL statements to create database tables.
const Schema = `
-- Sites table: the fixed list of domains under observation
CREATE TABLE IF NOT EXISTS sites (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    domain TEXT NOT NULL UNIQUE,
    url TEXT NOT NULL,
    rank INTEGER,
    category TEXT,
    country TEXT,
    first_seen DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sites_domain ON sites(domain);

-- Crawl sessions table: one row per (site, consent mode) visit. Most
-- columns past consent_latency_ms are denormalizations of the child
-- tables, derived once at write time.
CREATE TABLE IF NOT EXISTS crawl_sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site_id INTEGER NOT NULL REFERENCES sites(id),
    consent_mode TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    duration_ms INTEGER,
    load_time_ms INTEGER,
    final_url TEXT,
    page_title TEXT,
    screenshot_path TEXT,
    error_message TEXT,
    consent_outcome TEXT,
    consent_latency_ms INTEGER,
    consent_banner_detected BOOLEAN DEFAULT 0,
    consent_cmp TEXT,
    consent_button_text TEXT,
    consent_action_taken BOOLEAN DEFAULT 0,
    total_bytes INTEGER DEFAULT 0,
    request_count INTEGER DEFAULT 0,
    third_party_requests INTEGER DEFAULT 0,
    cookie_count INTEGER DEFAULT 0,
    tracking_cookies_set INTEGER DEFAULT 0,
    retry_count INTEGER DEFAULT 0,
    -- Phase 2: fingerprinting
    fp_severity TEXT,
    fp_event_count INTEGER DEFAULT 0,
    fp_canvas BOOLEAN DEFAULT 0,
    fp_webgl BOOLEAN DEFAULT 0,
    fp_audio BOOLEAN DEFAULT 0,
    fp_font BOOLEAN DEFAULT 0,
    fp_navigator BOOLEAN DEFAULT 0,
    fp_storage BOOLEAN DEFAULT 0,
    fp_unique_apis INTEGER DEFAULT 0,
    fp_unique_entities INTEGER DEFAULT 0,
    -- Phase 2: ad detection
    ad_count INTEGER DEFAULT 0,
    ad_visible_count INTEGER DEFAULT 0,
    ad_density REAL DEFAULT 0.0,
    ad_total_area_px INTEGER DEFAULT 0,
    ad_iab_standard_count INTEGER DEFAULT 0,
    -- Phase 2: ad capture
    ad_captures_total INTEGER DEFAULT 0,
    ad_captures_failed INTEGER DEFAULT 0,
    -- Phase 2: resource weight
    rw_content_1p_bytes INTEGER DEFAULT 0,
    rw_cdn_bytes INTEGER DEFAULT 0,
    rw_tracker_bytes INTEGER DEFAULT 0,
    rw_ad_bytes INTEGER DEFAULT 0,
    rw_functional_3p_bytes INTEGER DEFAULT 0,
    rw_unknown_3p_bytes INTEGER DEFAULT 0,
    UNIQUE(site_id, consent_mode)
);

CREATE INDEX IF NOT EXISTS idx_sessions_site ON crawl_sessions(site_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON crawl_sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_consent_mode ON crawl_sessions(consent_mode);

-- Requests table: every network request observed during a session
CREATE TABLE IF NOT EXISTS requests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL REFERENCES crawl_sessions(id),
    url TEXT NOT NULL,
    method TEXT,
    resource_type TEXT,
    status_code INTEGER,
    mime_type TEXT,
    body_size INTEGER DEFAULT 0,
    is_third_party BOOLEAN DEFAULT 0,
    request_domain TEXT,
    category TEXT,
    tracker_entity TEXT,
    was_before_consent BOOLEAN DEFAULT 0,
    timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_requests_session ON requests(session_id);
CREATE INDEX IF NOT EXISTS idx_requests_domain ON requests(request_domain);
CREATE INDEX IF NOT EXISTS idx_requests_category ON requests(category);
CREATE INDEX IF NOT EXISTS idx_requests_tracker ON requests(tracker_entity);

-- Cookies table: the final cookie jar state at session end
CREATE TABLE IF NOT EXISTS cookies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL REFERENCES crawl_sessions(id),
    name TEXT NOT NULL,
    domain TEXT NOT NULL,
    path TEXT,
    value_hash TEXT,
    is_session BOOLEAN DEFAULT 0,
    is_secure BOOLEAN DEFAULT 0,
    is_http_only BOOLEAN DEFAULT 0,
    same_site TEXT,
    expires_at DATETIME,
    lifetime_days REAL,
    is_third_party BOOLEAN DEFAULT 0,
    was_before_consent BOOLEAN DEFAULT 0,
    is_tracking_cookie BOOLEAN DEFAULT 0,
    tracker_entity TEXT
);

CREATE INDEX IF NOT EXISTS idx_cookies_session ON cookies(session_id);
CREATE INDEX IF NOT EXISTS idx_cookies_domain ON cookies(domain);
CREATE INDEX IF NOT EXISTS idx_cookies_tracking ON cookies(is_tracking_cookie);
CREATE INDEX IF NOT EXISTS idx_cookies_name ON cookies(name);

-- Fingerprinting events table: one row per instrumented API reached
CREATE TABLE IF NOT EXISTS fingerprint_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL REFERENCES crawl_sessions(id),
    api_name TEXT NOT NULL,
    category TEXT,
    script_url TEXT,
    tracker_entity TEXT,
    call_count INTEGER DEFAULT 1,
    was_before_consent BOOLEAN DEFAULT 0,
    timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_fp_session ON fingerprint_events(session_id);
CREATE INDEX IF NOT EXISTS idx_fp_api ON fingerprint_events(api_name);
CREATE INDEX IF NOT EXISTS idx_fp_category ON fingerprint_events(category);

-- Ad elements table: ad-slot-shaped elements detected on the page
CREATE TABLE IF NOT EXISTS ad_elements (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL REFERENCES crawl_sessions(id),
    selector TEXT,
    frame_url TEXT,
    network_domain TEXT,
    x INTEGER,
    y INTEGER,
    width INTEGER,
    height INTEGER,
    iab_size_match TEXT,
    detection_rule TEXT
);

CREATE INDEX IF NOT EXISTS idx_ads_session ON ad_elements(session_id);
CREATE INDEX IF NOT EXISTS idx_ads_domain ON ad_elements(network_domain);

-- Ad captures table: screenshots of detected ad elements
CREATE TABLE IF NOT EXISTS ad_captures (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ad_element_id INTEGER NOT NULL REFERENCES ad_elements(id),
    session_id INTEGER NOT NULL REFERENCES crawl_sessions(id),
    image_path TEXT NOT NULL,
    capture_method TEXT,
    width INTEGER,
    height INTEGER
);

CREATE INDEX IF NOT EXISTS idx_captures_session ON ad_captures(session_id);
CREATE INDEX IF NOT EXISTS idx_captures_element ON ad_captures(ad_element_id);
`

// ViewsSchema contains convenience views over the raw tables, mirroring the
// aggregate queries the CLI summary and report tooling run most often.
const ViewsSchema = `
CREATE VIEW IF NOT EXISTS v_session_summary AS
SELECT
    s.domain,
    cs.consent_mode,
    cs.status,
    cs.request_count,
    cs.cookie_count,
    cs.total_bytes,
    cs.consent_outcome
FROM crawl_sessions cs
JOIN sites s ON s.id = cs.site_id;

CREATE VIEW IF NOT EXISTS v_tracker_prevalence AS
SELECT
    tracker_entity,
    COUNT(DISTINCT session_id) AS session_count,
    COUNT(*) AS request_count
FROM requests
WHERE tracker_entity IS NOT NULL AND tracker_entity != ''
GROUP BY tracker_entity
ORDER BY session_count DESC;

CREATE VIEW IF NOT EXISTS v_consent_mode_deltas AS
SELECT
    s.domain,
    MAX(CASE WHEN cs.consent_mode = 'ignore' THEN cs.request_count END) AS ignore_requests,
    MAX(CASE WHEN cs.consent_mode = 'accept' THEN cs.request_count END) AS accept_requests,
    MAX(CASE WHEN cs.consent_mode = 'reject' THEN cs.request_count END) AS reject_requests,
    MAX(CASE WHEN cs.consent_mode = 'ignore' THEN cs.cookie_count END) AS ignore_cookies,
    MAX(CASE WHEN cs.consent_mode = 'accept' THEN cs.cookie_count END) AS accept_cookies,
    MAX(CASE WHEN cs.consent_mode = 'reject' THEN cs.cookie_count END) AS reject_cookies
FROM crawl_sessions cs
JOIN sites s ON s.id = cs.site_id
GROUP BY s.domain;
`
