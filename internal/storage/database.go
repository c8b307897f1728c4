package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Database handles all database operations.
type Database struct {
	db        *sql.DB
	mu        sync.RWMutex
	batchSize int

	// Prepared statements cache
	stmts map[string]*sql.Stmt
}

// NewDatabase creates a new database connection.
func NewDatabase(path string) (*Database, error) {
	// SQLite connection with optimizations
	dsn := fmt.Sprintf("%s?_journal=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	database := &Database{
		db:        db,
		batchSize: 100,
		stmts:     make(map[string]*sql.Stmt),
	}

	return database, nil
}

// Initialize creates tables and views.
func (d *Database) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if _, err := d.db.Exec(ViewsSchema); err != nil {
		return fmt.Errorf("failed to create views: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	for _, stmt := range d.stmts {
		stmt.Close()
	}
	return d.db.Close()
}

// --- Site Operations ---

// UpsertSite inserts a site or refreshes its metadata if it is already known.
func (d *Database) UpsertSite(site *Site) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.db.Exec(`
		INSERT INTO sites (domain, url, rank, category, country)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			url = excluded.url,
			rank = excluded.rank,
			category = excluded.category,
			country = excluded.country
	`, site.Domain, site.URL, site.Rank, site.Category, site.Country)

	if err != nil {
		return 0, err
	}

	if id, err := result.LastInsertId(); err == nil && id > 0 {
		return id, nil
	}

	var id int64
	if err := d.db.QueryRow(`SELECT id FROM sites WHERE domain = ?`, site.Domain).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// --- Crawl session operations ---

// HasSession reports whether a (site, consent mode) task has already run to
// a successful completion, for --resume.
func (d *Database) HasSession(siteID int64, mode ConsentMode) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var count int
	err := d.db.QueryRow(`
		SELECT COUNT(*) FROM crawl_sessions
		WHERE site_id = ? AND consent_mode = ? AND status = ?
	`, siteID, mode, StatusSuccess).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveCrawlResult persists a completed observation transactionally: the
// session row plus every request, cookie, fingerprint event, ad element, and
// ad capture it collected. A partial write never lands - either the whole
// observation commits or none of it does.
func (d *Database) SaveCrawlResult(obs *Observation) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	sess := obs.Session
	// LastInsertId is not updated when the upsert below takes its UPDATE
	// path, so an existing session's id is looked up first.
	var priorID int64
	err = tx.QueryRow(`SELECT id FROM crawl_sessions WHERE site_id = ? AND consent_mode = ?`,
		sess.SiteID, sess.ConsentMode).Scan(&priorID)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	res, err := tx.Exec(`
		INSERT INTO crawl_sessions (
			site_id, consent_mode, status, started_at, finished_at, duration_ms, load_time_ms,
			final_url, page_title, screenshot_path, error_message, consent_outcome, consent_latency_ms,
			consent_banner_detected, consent_cmp, consent_button_text, consent_action_taken,
			total_bytes, request_count, third_party_requests, cookie_count, tracking_cookies_set, retry_count,
			fp_severity, fp_event_count, fp_canvas, fp_webgl, fp_audio, fp_font, fp_navigator, fp_storage,
			fp_unique_apis, fp_unique_entities,
			ad_count, ad_visible_count, ad_density, ad_total_area_px, ad_iab_standard_count,
			ad_captures_total, ad_captures_failed,
			rw_content_1p_bytes, rw_cdn_bytes, rw_tracker_bytes, rw_ad_bytes,
			rw_functional_3p_bytes, rw_unknown_3p_bytes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(site_id, consent_mode) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			duration_ms = excluded.duration_ms,
			load_time_ms = excluded.load_time_ms,
			final_url = excluded.final_url,
			page_title = excluded.page_title,
			screenshot_path = excluded.screenshot_path,
			error_message = excluded.error_message,
			consent_outcome = excluded.consent_outcome,
			consent_latency_ms = excluded.consent_latency_ms,
			consent_banner_detected = excluded.consent_banner_detected,
			consent_cmp = excluded.consent_cmp,
			consent_button_text = excluded.consent_button_text,
			consent_action_taken = excluded.consent_action_taken,
			total_bytes = excluded.total_bytes,
			request_count = excluded.request_count,
			third_party_requests = excluded.third_party_requests,
			cookie_count = excluded.cookie_count,
			tracking_cookies_set = excluded.tracking_cookies_set,
			retry_count = excluded.retry_count,
			fp_severity = excluded.fp_severity,
			fp_event_count = excluded.fp_event_count,
			fp_canvas = excluded.fp_canvas,
			fp_webgl = excluded.fp_webgl,
			fp_audio = excluded.fp_audio,
			fp_font = excluded.fp_font,
			fp_navigator = excluded.fp_navigator,
			fp_storage = excluded.fp_storage,
			fp_unique_apis = excluded.fp_unique_apis,
			fp_unique_entities = excluded.fp_unique_entities,
			ad_count = excluded.ad_count,
			ad_visible_count = excluded.ad_visible_count,
			ad_density = excluded.ad_density,
			ad_total_area_px = excluded.ad_total_area_px,
			ad_iab_standard_count = excluded.ad_iab_standard_count,
			ad_captures_total = excluded.ad_captures_total,
			ad_captures_failed = excluded.ad_captures_failed,
			rw_content_1p_bytes = excluded.rw_content_1p_bytes,
			rw_cdn_bytes = excluded.rw_cdn_bytes,
			rw_tracker_bytes = excluded.rw_tracker_bytes,
			rw_ad_bytes = excluded.rw_ad_bytes,
			rw_functional_3p_bytes = excluded.rw_functional_3p_bytes,
			rw_unknown_3p_bytes = excluded.rw_unknown_3p_bytes
	`, sess.SiteID, sess.ConsentMode, sess.Status, sess.StartedAt, sess.FinishedAt, sess.DurationMS, sess.LoadTimeMS,
		sess.FinalURL, sess.PageTitle, sess.ScreenshotPath, sess.ErrorMessage, sess.ConsentOutcome, sess.ConsentLatencyMS,
		sess.ConsentBannerDetected, sess.ConsentCMP, sess.ConsentButtonText, sess.ConsentActionTaken,
		sess.TotalBytes, sess.RequestCount, sess.ThirdPartyRequests, sess.CookieCount, sess.TrackingCookiesSet, sess.RetryCount,
		sess.FPSeverity, sess.FPEventCount, sess.FPCanvas, sess.FPWebGL, sess.FPAudio, sess.FPFont, sess.FPNavigator, sess.FPStorage,
		sess.FPUniqueAPIs, sess.FPUniqueEntities,
		sess.AdCount, sess.AdVisibleCount, sess.AdDensity, sess.AdTotalAreaPx, sess.AdIABStandardCount,
		sess.AdCapturesTotal, sess.AdCapturesFailed,
		sess.RWContentFirstPartyBytes, sess.RWCDNBytes, sess.RWTrackerBytes, sess.RWAdBytes,
		sess.RWFunctionalThirdBytes, sess.RWUnknownThirdBytes)
	if err != nil {
		return 0, fmt.Errorf("insert crawl session: %w", err)
	}

	sessionID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if priorID != 0 {
		sessionID = priorID
		// Re-running a resumed task replaces its prior children.
		if _, err := tx.Exec(`DELETE FROM requests WHERE session_id = ?`, sessionID); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(`DELETE FROM cookies WHERE session_id = ?`, sessionID); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(`DELETE FROM fingerprint_events WHERE session_id = ?`, sessionID); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(`DELETE FROM ad_captures WHERE session_id = ?`, sessionID); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(`DELETE FROM ad_elements WHERE session_id = ?`, sessionID); err != nil {
			return 0, err
		}
	}

	if err := insertRequests(tx, sessionID, obs.Requests); err != nil {
		return 0, err
	}
	if err := insertCookies(tx, sessionID, obs.Cookies); err != nil {
		return 0, err
	}
	if err := insertFingerprintEvents(tx, sessionID, obs.FingerprintEvents); err != nil {
		return 0, err
	}
	adIDByIndex, err := insertAdElements(tx, sessionID, obs.AdElements)
	if err != nil {
		return 0, err
	}
	if err := insertAdCaptures(tx, sessionID, obs.AdCaptures, adIDByIndex); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return sessionID, nil
}

func insertRequests(tx *sql.Tx, sessionID int64, requests []RequestRecord) error {
	if len(requests) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`
		INSERT INTO requests (
			session_id, url, method, resource_type, status_code, mime_type, body_size,
			is_third_party, request_domain, category, tracker_entity, was_before_consent, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range requests {
		if _, err := stmt.Exec(sessionID, r.URL, r.Method, r.ResourceType, r.StatusCode, r.MimeType, r.BodySize,
			r.IsThirdParty, r.RequestDomain, r.Category, r.TrackerEntity, r.WasBeforeConsent, r.Timestamp); err != nil {
			return fmt.Errorf("insert request: %w", err)
		}
	}
	return nil
}

func insertCookies(tx *sql.Tx, sessionID int64, cookies []CookieRecord) error {
	if len(cookies) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`
		INSERT INTO cookies (
			session_id, name, domain, path, value_hash, is_session, is_secure, is_http_only,
			same_site, expires_at, lifetime_days, is_third_party, was_before_consent,
			is_tracking_cookie, tracker_entity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range cookies {
		if _, err := stmt.Exec(sessionID, c.Name, c.Domain, c.Path, c.ValueHash, c.IsSession, c.IsSecure,
			c.IsHTTPOnly, c.SameSite, c.ExpiresAt, c.LifetimeDays, c.IsThirdParty, c.WasBeforeConsent,
			c.IsTrackingCookie, c.TrackerEntity); err != nil {
			return fmt.Errorf("insert cookie: %w", err)
		}
	}
	return nil
}

func insertFingerprintEvents(tx *sql.Tx, sessionID int64, events []FingerprintEvent) error {
	if len(events) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`
		INSERT INTO fingerprint_events (session_id, api_name, category, script_url, tracker_entity, call_count, was_before_consent, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(sessionID, e.APIName, e.Category, e.ScriptURL, e.TrackerEntity, e.CallCount, e.WasBeforeConsent, e.Timestamp); err != nil {
			return fmt.Errorf("insert fingerprint event: %w", err)
		}
	}
	return nil
}

// insertAdElements returns the DB-assigned id for each element, indexed the
// same way as the input slice, so ad captures can be wired to their parent.
func insertAdElements(tx *sql.Tx, sessionID int64, elements []AdElement) ([]int64, error) {
	if len(elements) == 0 {
		return nil, nil
	}
	stmt, err := tx.Prepare(`
		INSERT INTO ad_elements (session_id, selector, frame_url, network_domain, x, y, width, height, iab_size_match, detection_rule)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]int64, len(elements))
	for i, e := range elements {
		res, err := stmt.Exec(sessionID, e.Selector, e.FrameURL, e.NetworkDomain, e.X, e.Y, e.Width, e.Height, e.IABSizeMatch, e.DetectionRule)
		if err != nil {
			return nil, fmt.Errorf("insert ad element: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func insertAdCaptures(tx *sql.Tx, sessionID int64, captures []AdCapture, adIDByIndex []int64) error {
	if len(captures) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`
		INSERT INTO ad_captures (ad_element_id, session_id, image_path, capture_method, width, height)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range captures {
		if c.ElementIndex < 0 || c.ElementIndex >= len(adIDByIndex) {
			return fmt.Errorf("insert ad capture: element index %d out of range", c.ElementIndex)
		}
		adElementID := adIDByIndex[c.ElementIndex]
		if _, err := stmt.Exec(adElementID, sessionID, c.ImagePath, c.CaptureMethod, c.Width, c.Height); err != nil {
			return fmt.Errorf("insert ad capture: %w", err)
		}
	}
	return nil
}

// --- Stats ---

// Stats summarizes the dataset collected so far, for the CLI's final report.
type Stats struct {
	SiteCount      int
	SessionCount   int
	SuccessCount   int
	ErrorCount     int
	RequestCount   int
	CookieCount    int
	TrackerDomains int
}

// GetStats computes dataset-wide aggregates.
func (d *Database) GetStats() (*Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := &Stats{}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM sites`).Scan(&stats.SiteCount); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM crawl_sessions`).Scan(&stats.SessionCount); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM crawl_sessions WHERE status = ?`, StatusSuccess).Scan(&stats.SuccessCount); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM crawl_sessions WHERE status != ?`, StatusSuccess).Scan(&stats.ErrorCount); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM requests`).Scan(&stats.RequestCount); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM cookies`).Scan(&stats.CookieCount); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(DISTINCT tracker_entity) FROM requests WHERE tracker_entity != ''`).Scan(&stats.TrackerDomains); err != nil {
		return nil, err
	}
	return stats, nil
}
