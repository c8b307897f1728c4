package classifier

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/privacy-observatory/crawler/internal/testutil"
)

func TestTrackerDBClassifyBuiltin(t *testing.T) {
	db := NewTrackerDB()

	entity, category := db.Classify("doubleclick.net")
	testutil.Assert(t, entity).Named("entity").Equals("Google")
	testutil.Assert(t, category).Named("category").Equals("advertising")

	entity, category = db.Classify("www.google-analytics.com")
	testutil.Assert(t, entity).Named("entity").Equals("Google")
	testutil.Assert(t, category).Named("category").Equals("analytics")
}

func TestTrackerDBClassifyUnknown(t *testing.T) {
	db := NewTrackerDB()
	entity, category := db.Classify("example-never-tracked.test")
	testutil.Assert(t, entity).Named("entity").IsEmpty()
	testutil.Assert(t, category).Named("category").IsEmpty()
}

func TestTrackerDBLoadDisconnect(t *testing.T) {
	db := NewTrackerDB()

	data := map[string][]map[string]map[string][]string{
		"Advertising": {
			{"ExampleAdCo": {"exampleadco.com": {"exampleadco.com", "cdn.exampleadco.com"}}},
		},
	}
	raw, err := json.Marshal(data)
	testutil.MustNotFail(t, err)

	path := filepath.Join(t.TempDir(), "services.json")
	testutil.MustNotFail(t, os.WriteFile(path, raw, 0o644))
	testutil.MustNotFail(t, db.LoadDisconnect(path))

	entity, category := db.Classify("cdn.exampleadco.com")
	testutil.Assert(t, entity).Named("entity").Equals("ExampleAdCo")
	testutil.Assert(t, category).Named("category").Equals("advertising")
}

func TestTrackerDBLoadDisconnectMissingFile(t *testing.T) {
	db := NewTrackerDB()
	before := db.DomainCount()

	err := db.LoadDisconnect(filepath.Join(t.TempDir(), "does-not-exist.json"))
	testutil.AssertError(t, err).HasError()
	testutil.Assert(t, db.DomainCount()).Named("domain count").Equals(before)
}

func TestIsTrackingCookieByName(t *testing.T) {
	db := NewTrackerDB()
	testutil.Assert(t, db.IsTrackingCookie("_ga", "example.com")).Named("_ga tracking").IsTrue()
	testutil.Assert(t, db.IsTrackingCookie("session_id", "example.com")).Named("session_id tracking").IsFalse()
}

func TestIsTrackingCookieByDomainReputation(t *testing.T) {
	db := NewTrackerDB()
	testutil.Assert(t, db.IsTrackingCookie("anything", "doubleclick.net")).Named("known-entity domain").IsTrue()
}
