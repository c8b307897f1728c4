// Package config defines crawler configuration: the YAML document loaded at
// startup, its defaults, and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CrawlerConfig holds timing, concurrency, and retry knobs for the engine
// and scheduler.
type CrawlerConfig struct {
	Concurrency       int  `yaml:"concurrency"`
	PageTimeoutMS     int  `yaml:"page_timeout_ms"`
	ConsentTimeoutMS  int  `yaml:"consent_timeout_ms"`
	PostConsentWaitMS int  `yaml:"post_consent_wait_ms"`
	FinalDwellMS      int  `yaml:"final_dwell_ms"`
	ScrollDelayMS     int  `yaml:"scroll_delay_ms"`
	InterSiteDelayMS  int  `yaml:"inter_site_delay_ms"`
	MaxRetries        int  `yaml:"max_retries"`
	Screenshot        bool `yaml:"screenshot"`
	Headless          bool `yaml:"headless"`

	// PageTimeout etc. expose the millisecond fields above as time.Duration
	// for the rest of the module; computed by Validate, never serialized.
	PageTimeout       time.Duration `yaml:"-"`
	ConsentTimeout    time.Duration `yaml:"-"`
	PostConsentWait   time.Duration `yaml:"-"`
	FinalDwell        time.Duration `yaml:"-"`
	ScrollDelay       time.Duration `yaml:"-"`
	InterSiteDelay    time.Duration `yaml:"-"`
}

// GeoLocation pins the emulated browser location.
type GeoLocation struct {
	Lat  float64 `yaml:"lat"`
	Long float64 `yaml:"long"`
}

// Viewport sets the emulated browser window size.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// BrowserConfig controls the emulated environment of every crawl context.
type BrowserConfig struct {
	Locale      string      `yaml:"locale"`
	Timezone    string      `yaml:"timezone"`
	Geolocation GeoLocation `yaml:"geolocation"`
	Viewport    Viewport    `yaml:"viewport"`
	UserAgent   string      `yaml:"user_agent"`
}

// DatabaseConfig names the SQLite file the Store writes to.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// OutputConfig names the filesystem directories the crawl writes assets to.
type OutputConfig struct {
	ExportDir     string `yaml:"export_dir"`
	ScreenshotDir string `yaml:"screenshot_dir"`
}

// ConsentPatternsConfig is the two ordered phrase lists the Consent Resolver
// matches against clickable element text.
type ConsentPatternsConfig struct {
	Accept []string `yaml:"accept"`
	Reject []string `yaml:"reject"`
}

// FingerprintingConfig toggles and tunes the fingerprint observer.
type FingerprintingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AdsConfig toggles and tunes ad detection.
type AdsConfig struct {
	Enabled        bool    `yaml:"enabled"`
	MinWidth       int     `yaml:"min_width"`
	MinHeight      int     `yaml:"min_height"`
	IABTolerancePct float64 `yaml:"iab_tolerance_pct"`
}

// AdCaptureConfig toggles and tunes ad screenshot capture.
type AdCaptureConfig struct {
	Enabled      bool `yaml:"enabled"`
	MaxCaptures  int  `yaml:"max_captures"`
	CropFallback bool `yaml:"crop_fallback"`
}

// ResourceWeightConfig toggles byte-weight aggregation.
type ResourceWeightConfig struct {
	Enabled          bool `yaml:"enabled"`
	MeasureBodySize  bool `yaml:"measure_body_size"`
}

// Config is the top-level document loaded from the YAML config file.
type Config struct {
	Crawler         CrawlerConfig         `yaml:"crawler"`
	Browser         BrowserConfig         `yaml:"browser"`
	Database        DatabaseConfig        `yaml:"database"`
	Output          OutputConfig          `yaml:"output"`
	ConsentPatterns ConsentPatternsConfig `yaml:"consent_patterns"`
	SitesFile       string                `yaml:"sites_file"`
	Fingerprinting  FingerprintingConfig  `yaml:"fingerprinting"`
	Ads             AdsConfig             `yaml:"ads"`
	AdCapture       AdCaptureConfig       `yaml:"ad_capture"`
	ResourceWeight  ResourceWeightConfig  `yaml:"resource_weight"`
}

var defaultAcceptPhrases = []string{
	"accept all", "accept cookies", "i agree", "agree", "allow all", "allow cookies",
	"souhlasím", "souhlasit se vším", "přijmout vše", "přijmout všechny",
}

var defaultRejectPhrases = []string{
	"reject all", "decline", "reject cookies", "necessary only", "only necessary",
	"odmítnout", "odmítnout vše", "pouze nezbytné",
}

// DefaultConfig returns a Config with the observatory's reference tuning.
func DefaultConfig() *Config {
	return &Config{
		Crawler: CrawlerConfig{
			Concurrency:       8,
			PageTimeoutMS:     45000,
			ConsentTimeoutMS:  15000,
			PostConsentWaitMS: 60000,
			FinalDwellMS:      15000,
			ScrollDelayMS:     1500,
			InterSiteDelayMS:  1000,
			MaxRetries:        3,
			Screenshot:        false,
			Headless:          true,
		},
		Browser: BrowserConfig{
			Locale:      "cs-CZ",
			Timezone:    "Europe/Prague",
			Geolocation: GeoLocation{Lat: 50.0755, Long: 14.4378},
			Viewport:    Viewport{Width: 1920, Height: 1080},
		},
		Database: DatabaseConfig{Path: "observatory.db"},
		Output: OutputConfig{
			ExportDir:     "export",
			ScreenshotDir: "screenshots",
		},
		ConsentPatterns: ConsentPatternsConfig{
			Accept: defaultAcceptPhrases,
			Reject: defaultRejectPhrases,
		},
		SitesFile: "sites.csv",
		Fingerprinting: FingerprintingConfig{
			Enabled: true,
		},
		Ads: AdsConfig{
			Enabled:        true,
			MinWidth:       20,
			MinHeight:      20,
			IABTolerancePct: 5,
		},
		AdCapture: AdCaptureConfig{
			Enabled:      true,
			MaxCaptures:  20,
			CropFallback: true,
		},
		ResourceWeight: ResourceWeightConfig{
			Enabled:         true,
			MeasureBodySize: false,
		},
	}
}

// Validate fills in the duration fields derived from the millisecond config
// keys and clamps values that would otherwise produce a degenerate crawl.
func (c *Config) Validate() error {
	if c.Crawler.Concurrency < 1 {
		c.Crawler.Concurrency = 1
	}
	if c.Crawler.MaxRetries < 0 {
		c.Crawler.MaxRetries = 0
	}
	if c.Crawler.PageTimeoutMS <= 0 {
		c.Crawler.PageTimeoutMS = 45000
	}
	if c.Crawler.ConsentTimeoutMS <= 0 {
		c.Crawler.ConsentTimeoutMS = 15000
	}

	c.Crawler.PageTimeout = time.Duration(c.Crawler.PageTimeoutMS) * time.Millisecond
	c.Crawler.ConsentTimeout = time.Duration(c.Crawler.ConsentTimeoutMS) * time.Millisecond
	c.Crawler.PostConsentWait = time.Duration(c.Crawler.PostConsentWaitMS) * time.Millisecond
	c.Crawler.FinalDwell = time.Duration(c.Crawler.FinalDwellMS) * time.Millisecond
	c.Crawler.ScrollDelay = time.Duration(c.Crawler.ScrollDelayMS) * time.Millisecond
	c.Crawler.InterSiteDelay = time.Duration(c.Crawler.InterSiteDelayMS) * time.Millisecond

	if c.Browser.Viewport.Width <= 0 {
		c.Browser.Viewport.Width = 1920
	}
	if c.Browser.Viewport.Height <= 0 {
		c.Browser.Viewport.Height = 1080
	}
	if c.Database.Path == "" {
		c.Database.Path = "observatory.db"
	}
	if c.AdCapture.MaxCaptures <= 0 {
		c.AdCapture.MaxCaptures = 20
	}
	if c.Ads.IABTolerancePct <= 0 {
		c.Ads.IABTolerancePct = 5
	}
	return nil
}

// Load reads and parses a YAML config file, applying defaults for any key
// left unset and then validating the result. Unknown keys are ignored by
// yaml.v3's default unmarshal-into-struct behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration back out as YAML, for recording the
// effective config alongside a run's output.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Clone returns a deep copy so presets and per-run overrides never alias
// the caller's config.
func (c *Config) Clone() *Config {
	clone := *c

	clone.ConsentPatterns.Accept = append([]string(nil), c.ConsentPatterns.Accept...)
	clone.ConsentPatterns.Reject = append([]string(nil), c.ConsentPatterns.Reject...)

	return &clone
}
