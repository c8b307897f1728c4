package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/privacy-observatory/crawler/internal/config"
	"github.com/privacy-observatory/crawler/internal/storage"
	"github.com/privacy-observatory/crawler/internal/testutil"
)

func newTestStore(t *testing.T) *storage.Database {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sched.db")
	db, err := storage.NewDatabase(path)
	testutil.MustNotFail(t, err)
	testutil.MustNotFail(t, db.Initialize())
	t.Cleanup(func() { db.Close() })
	return db
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Crawler.Concurrency = 4
	cfg.Crawler.InterSiteDelayMS = 0
	cfg.Crawler.MaxRetries = 1
	return cfg
}

func upsertSites(t *testing.T, store *storage.Database, domains ...string) []storage.Site {
	t.Helper()
	var out []storage.Site
	for _, d := range domains {
		site := storage.Site{Domain: d, URL: "https://" + d}
		id, err := store.UpsertSite(&site)
		testutil.MustNotFail(t, err)
		site.ID = id
		out = append(out, site)
	}
	return out
}

func TestSchedulerRunsEveryTaskInCartesianProduct(t *testing.T) {
	store := newTestStore(t)
	sitesList := upsertSites(t, store, "a.cz", "b.cz")
	modes := []storage.ConsentMode{storage.ConsentIgnore, storage.ConsentAccept}

	var calls int32
	run := func(ctx context.Context, task storage.Task) storage.Observation {
		atomic.AddInt32(&calls, 1)
		return storage.Observation{Session: storage.CrawlSession{
			SiteID: task.Site.ID, ConsentMode: task.ConsentMode, Status: storage.StatusSuccess,
		}}
	}

	sched := New(testConfig(), store, run, nil)
	stats := sched.Run(context.Background(), sitesList, modes, false)

	testutil.Assert(t, int(calls)).Named("run invocations").Equals(4)
	testutil.Assert(t, int(stats.Succeeded)).Named("succeeded").Equals(4)
	testutil.Assert(t, int(stats.Failed)).Named("failed").Equals(0)
	testutil.Assert(t, stats.TotalTasks).Named("total tasks").Equals(4)
}

func TestSchedulerResumeSkipsCompletedSessions(t *testing.T) {
	store := newTestStore(t)
	sitesList := upsertSites(t, store, "done.cz")
	modes := []storage.ConsentMode{storage.ConsentAccept}

	_, err := store.SaveCrawlResult(&storage.Observation{Session: storage.CrawlSession{
		SiteID: sitesList[0].ID, ConsentMode: storage.ConsentAccept, Status: storage.StatusSuccess,
	}})
	testutil.MustNotFail(t, err)

	var calls int32
	run := func(ctx context.Context, task storage.Task) storage.Observation {
		atomic.AddInt32(&calls, 1)
		return storage.Observation{Session: storage.CrawlSession{Status: storage.StatusSuccess}}
	}

	sched := New(testConfig(), store, run, nil)
	stats := sched.Run(context.Background(), sitesList, modes, true)

	testutil.Assert(t, int(calls)).Named("run invocations").Equals(0)
	testutil.Assert(t, int(stats.Skipped)).Named("skipped").Equals(1)
}

func TestSchedulerRetriesUntilSuccessOrMaxRetries(t *testing.T) {
	store := newTestStore(t)
	sitesList := upsertSites(t, store, "flaky.cz")
	modes := []storage.ConsentMode{storage.ConsentReject}

	cfg := testConfig()
	cfg.Crawler.MaxRetries = 2

	var mu sync.Mutex
	attempts := 0
	run := func(ctx context.Context, task storage.Task) storage.Observation {
		mu.Lock()
		attempts++
		attempt := attempts
		mu.Unlock()
		status := storage.StatusError
		if attempt >= 2 {
			status = storage.StatusSuccess
		}
		return storage.Observation{Session: storage.CrawlSession{Status: status}}
	}

	sched := New(cfg, store, run, nil)
	stats := sched.Run(context.Background(), sitesList, modes, false)

	mu.Lock()
	defer mu.Unlock()
	testutil.Assert(t, attempts).Named("attempts").Equals(2)
	testutil.Assert(t, int(stats.Succeeded)).Named("succeeded").Equals(1)
	testutil.Assert(t, int(stats.Retried)).Named("retried").Equals(1)
}

func TestSchedulerGivesUpAfterMaxRetries(t *testing.T) {
	store := newTestStore(t)
	sitesList := upsertSites(t, store, "always-fails.cz")
	modes := []storage.ConsentMode{storage.ConsentIgnore}

	cfg := testConfig()
	cfg.Crawler.MaxRetries = 1

	run := func(ctx context.Context, task storage.Task) storage.Observation {
		return storage.Observation{Session: storage.CrawlSession{Status: storage.StatusError, ErrorMessage: "boom"}}
	}

	sched := New(cfg, store, run, nil)
	stats := sched.Run(context.Background(), sitesList, modes, false)

	testutil.Assert(t, int(stats.Failed)).Named("failed").Equals(1)
	testutil.Assert(t, int(stats.Succeeded)).Named("succeeded").Equals(0)
}

func TestSchedulerEmitsLifecycleEvents(t *testing.T) {
	store := newTestStore(t)
	sitesList := upsertSites(t, store, "evented.cz")
	modes := []storage.ConsentMode{storage.ConsentAccept}

	var mu sync.Mutex
	var events []string
	onEvent := func(taskKey, event, detail string) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	}

	run := func(ctx context.Context, task storage.Task) storage.Observation {
		return storage.Observation{Session: storage.CrawlSession{Status: storage.StatusSuccess}}
	}

	sched := New(testConfig(), store, run, onEvent)
	sched.Run(context.Background(), sitesList, modes, false)

	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, e := range events {
		if e == "succeeded" {
			found = true
		}
	}
	testutil.Assert(t, found).Named("succeeded event emitted").IsTrue()
}

func TestSchedulerRunRespectsContextCancellation(t *testing.T) {
	store := newTestStore(t)
	sitesList := upsertSites(t, store, "cancel.cz")
	modes := []storage.ConsentMode{storage.ConsentAccept}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := func(ctx context.Context, task storage.Task) storage.Observation {
		return storage.Observation{Session: storage.CrawlSession{Status: storage.StatusError}}
	}

	cfg := testConfig()
	cfg.Crawler.MaxRetries = 5
	sched := New(cfg, store, run, nil)

	done := make(chan struct{})
	go func() {
		sched.Run(ctx, sitesList, modes, false)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not return promptly after context cancellation")
	}
}
