package progress

import (
	"testing"
	"time"

	"github.com/privacy-observatory/crawler/internal/storage"
	"github.com/privacy-observatory/crawler/internal/testutil"
)

func TestFormatDuration(t *testing.T) {
	testutil.Assert(t, formatDuration(5)).Named("seconds").Equals("5s")
	testutil.Assert(t, formatDuration(65)).Named("minutes").Equals("1m 5s")
	testutil.Assert(t, formatDuration(3725)).Named("hours").Equals("1h 2m")
}

func TestBar(t *testing.T) {
	testutil.Assert(t, bar(0, 10, 10)).Named("empty bar").Equals("[----------]")
	testutil.Assert(t, bar(10, 10, 10)).Named("full bar").Equals("[##########]")
	testutil.Assert(t, bar(5, 10, 10)).Named("half bar").Equals("[#####-----]")
	testutil.Assert(t, bar(0, 0, 4)).Named("zero total").Equals("[    ]")
}

func TestUpdateAndRemoveTrackActiveSet(t *testing.T) {
	d := New(10, false)
	d.Update("example.com:accept", "NAVIGATING", "")
	d.Update("other.com:reject", "SCROLLING", "detail")

	testutil.Assert(t, len(d.order)).Named("active count").Equals(2)

	d.Remove("example.com:accept")
	testutil.Assert(t, len(d.order)).Named("active count after remove").Equals(1)
	_, stillPresent := d.active["example.com:accept"]
	testutil.Assert(t, stillPresent).Named("removed key gone").IsFalse()
}

func TestPrintResultUpdatesTotals(t *testing.T) {
	d := New(1, false)
	site := storage.Site{Domain: "example.com", Category: "news"}
	obs := storage.Observation{
		Session: storage.CrawlSession{Status: storage.StatusSuccess, DurationMS: 1200},
		Requests: []storage.RequestRecord{
			{IsThirdParty: true}, {IsThirdParty: false},
		},
		Cookies: []storage.CookieRecord{
			{IsTrackingCookie: true}, {IsTrackingCookie: false},
		},
	}

	d.PrintResult(obs, site, storage.ConsentAccept)

	testutil.Assert(t, d.completed).Named("completed count").Equals(1)
	testutil.Assert(t, int(d.totalRequests)).Named("total requests").Equals(2)
	testutil.Assert(t, d.total3P).Named("third-party requests").Equals(1)
	testutil.Assert(t, d.totalCookies).Named("total cookies").Equals(2)
	testutil.Assert(t, d.totalTracking).Named("tracking cookies").Equals(1)
	testutil.Assert(t, d.errors).Named("errors").Equals(0)
}

func TestPrintResultCountsErrorsOnNonSuccessStatus(t *testing.T) {
	d := New(1, false)
	site := storage.Site{Domain: "slow.com"}
	obs := storage.Observation{Session: storage.CrawlSession{Status: storage.StatusTimeout}}

	d.PrintResult(obs, site, storage.ConsentIgnore)

	testutil.Assert(t, d.errors).Named("errors").Equals(1)
}

func TestNewStartsTimerImmediately(t *testing.T) {
	d := New(5, false)
	if time.Since(d.startTime) < 0 {
		t.Fatal("start time should not be in the future")
	}
}
