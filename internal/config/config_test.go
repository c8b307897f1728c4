package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/privacy-observatory/crawler/internal/testutil"
)

func TestDefaultConfigMatchesReferenceTuning(t *testing.T) {
	cfg := DefaultConfig()
	testutil.MustNotFail(t, cfg.Validate())

	testutil.Assert(t, cfg.Crawler.Concurrency).Named("concurrency").Equals(8)
	testutil.Assert(t, cfg.Crawler.MaxRetries).Named("max retries").Equals(3)
	testutil.Assert(t, cfg.Crawler.Headless).Named("headless").IsTrue()
	testutil.Assert(t, cfg.Crawler.Screenshot).Named("screenshot").IsFalse()
	testutil.Assert(t, cfg.Browser.Locale).Named("locale").Equals("cs-CZ")
	testutil.Assert(t, cfg.Browser.Timezone).Named("timezone").Equals("Europe/Prague")
	testutil.Assert(t, cfg.Browser.Viewport.Width).Named("viewport width").Equals(1920)
	testutil.Assert(t, cfg.Ads.MinWidth).Named("ads min width").Equals(20)
	testutil.Assert(t, cfg.AdCapture.MaxCaptures).Named("ad capture max").Equals(20)

	if cfg.Crawler.PageTimeout != 45*time.Second {
		t.Fatalf("expected page timeout 45s, got %s", cfg.Crawler.PageTimeout)
	}
	if cfg.Crawler.PostConsentWait != 60*time.Second {
		t.Fatalf("expected post-consent wait 60s, got %s", cfg.Crawler.PostConsentWait)
	}
}

func TestValidateClampsDegenerateValues(t *testing.T) {
	cfg := &Config{}
	testutil.MustNotFail(t, cfg.Validate())

	testutil.Assert(t, cfg.Crawler.Concurrency).Named("concurrency floor").Equals(1)
	testutil.Assert(t, cfg.Crawler.MaxRetries).Named("max retries floor").Equals(0)
	testutil.Assert(t, cfg.Database.Path).Named("default db path").Equals("observatory.db")
	testutil.Assert(t, cfg.AdCapture.MaxCaptures).Named("default max captures").Equals(20)
	testutil.Assert(t, cfg.Browser.Viewport.Width).Named("default viewport width").Equals(1920)
}

func TestLoadOverridesDefaultsFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlBody := []byte(`
crawler:
  concurrency: 2
  headless: false
database:
  path: custom.db
`)
	testutil.MustNotFail(t, os.WriteFile(path, yamlBody, 0o644))

	cfg, err := Load(path)
	testutil.MustNotFail(t, err)

	testutil.Assert(t, cfg.Crawler.Concurrency).Named("concurrency").Equals(2)
	testutil.Assert(t, cfg.Crawler.Headless).Named("headless").IsFalse()
	testutil.Assert(t, cfg.Database.Path).Named("db path").Equals("custom.db")
	// Untouched sections retain defaults.
	testutil.Assert(t, cfg.Browser.Locale).Named("locale default retained").Equals("cs-CZ")
}

func TestSaveRoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Crawler.Concurrency = 16

	path := filepath.Join(t.TempDir(), "out.yaml")
	testutil.MustNotFail(t, cfg.Save(path))

	loaded, err := Load(path)
	testutil.MustNotFail(t, err)
	testutil.Assert(t, loaded.Crawler.Concurrency).Named("round-tripped concurrency").Equals(16)
}

func TestCloneDoesNotAliasSlices(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.ConsentPatterns.Accept[0] = "mutated"

	if cfg.ConsentPatterns.Accept[0] == "mutated" {
		t.Fatal("Clone aliased the Accept slice with the original config")
	}
}
