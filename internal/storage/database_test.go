package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/privacy-observatory/crawler/internal/testutil"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	path := filepath.Join(t.TempDir(), "observatory.db")
	db, err := NewDatabase(path)
	testutil.MustNotFail(t, err)
	testutil.MustNotFail(t, db.Initialize())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertSiteInsertsThenUpdates(t *testing.T) {
	db := newTestDB(t)

	site := &Site{Domain: "example.cz", URL: "https://example.cz", Category: "news", Rank: 10}
	id1, err := db.UpsertSite(site)
	testutil.MustNotFail(t, err)
	testutil.Assert(t, id1 > 0).Named("first id positive").IsTrue()

	site2 := &Site{Domain: "example.cz", URL: "https://example.cz/", Category: "media", Rank: 5}
	id2, err := db.UpsertSite(site2)
	testutil.MustNotFail(t, err)

	testutil.Assert(t, int(id2)).Named("upsert keeps the same row id").Equals(int(id1))
}

func TestHasSessionFalseBeforeAnyResult(t *testing.T) {
	db := newTestDB(t)
	site := &Site{Domain: "example.cz", URL: "https://example.cz"}
	id, err := db.UpsertSite(site)
	testutil.MustNotFail(t, err)

	has, err := db.HasSession(id, ConsentAccept)
	testutil.MustNotFail(t, err)
	testutil.Assert(t, has).Named("has session").IsFalse()
}

func TestSaveCrawlResultRoundTrip(t *testing.T) {
	db := newTestDB(t)
	site := &Site{Domain: "example.cz", URL: "https://example.cz"}
	siteID, err := db.UpsertSite(site)
	testutil.MustNotFail(t, err)

	now := time.Now()
	obs := &Observation{
		Session: CrawlSession{
			SiteID:         siteID,
			ConsentMode:    ConsentAccept,
			Status:         StatusSuccess,
			StartedAt:      now,
			FinishedAt:     now.Add(5 * time.Second),
			DurationMS:     5000,
			FinalURL:       "https://example.cz/",
			ConsentOutcome: "known_cmp",
			RequestCount:   1,
			CookieCount:    1,
		},
		Requests: []RequestRecord{
			{URL: "https://example.cz/", Method: "GET", ResourceType: "document", BodySize: 2048, RequestDomain: "example.cz", Category: ResourceContentFirstParty, Timestamp: now},
		},
		Cookies: []CookieRecord{
			{Name: "session", Domain: "example.cz", ValueHash: "deadbeef", IsSession: true},
		},
		AdElements: []AdElement{
			{Selector: "#ad-1", X: 10, Y: 20, Width: 300, Height: 250, IABSizeMatch: "medium_rectangle", DetectionRule: "iab_size"},
		},
	}

	sessionID, err := db.SaveCrawlResult(obs)
	testutil.MustNotFail(t, err)
	testutil.Assert(t, sessionID > 0).Named("session id positive").IsTrue()

	has, err := db.HasSession(siteID, ConsentAccept)
	testutil.MustNotFail(t, err)
	testutil.Assert(t, has).Named("has session after success").IsTrue()
}

func TestSaveCrawlResultFailedDoesNotCountAsHasSession(t *testing.T) {
	db := newTestDB(t)
	site := &Site{Domain: "fails.cz", URL: "https://fails.cz"}
	siteID, err := db.UpsertSite(site)
	testutil.MustNotFail(t, err)

	obs := &Observation{
		Session: CrawlSession{
			SiteID:       siteID,
			ConsentMode:  ConsentReject,
			Status:       StatusTimeout,
			StartedAt:    time.Now(),
			FinishedAt:   time.Now(),
			ErrorMessage: "page load timeout",
		},
	}
	_, err = db.SaveCrawlResult(obs)
	testutil.MustNotFail(t, err)

	has, err := db.HasSession(siteID, ConsentReject)
	testutil.MustNotFail(t, err)
	testutil.Assert(t, has).Named("timeout does not satisfy resume").IsFalse()
}
