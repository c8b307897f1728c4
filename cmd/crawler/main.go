// Command crawler runs the privacy observatory crawl: every configured site
// visited once per consent mode, recording network requests, cookies,
// fingerprinting probes, and ad placements into a SQLite dataset.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/privacy-observatory/crawler/internal/browser"
	"github.com/privacy-observatory/crawler/internal/classifier"
	"github.com/privacy-observatory/crawler/internal/config"
	"github.com/privacy-observatory/crawler/internal/engine"
	"github.com/privacy-observatory/crawler/internal/progress"
	"github.com/privacy-observatory/crawler/internal/scheduler"
	"github.com/privacy-observatory/crawler/internal/sites"
	"github.com/privacy-observatory/crawler/internal/storage"
)

var (
	configPath     string
	sitesPath      string
	concurrency    int
	modesFlag      string
	limit          int
	headed         bool
	verbose        bool
	resume         bool
	noColor        bool
	noFingerprint  bool
	noAds          bool
	noAdCapture    bool
	adCaptureLimit int
	measureBody    bool
)

var rootCmd = &cobra.Command{
	Use:   "crawler",
	Short: "Privacy Observatory Crawler",
	Long:  "Drives a headless browser across a site list under IGNORE/ACCEPT/REJECT consent modes and records each page's tracking footprint.",
	RunE:  runCrawl,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	rootCmd.Flags().StringVar(&sitesPath, "sites", "", "path to the site list CSV (overrides config)")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 0, "override crawler.concurrency")
	rootCmd.Flags().StringVar(&modesFlag, "modes", "ignore,accept,reject", "comma-separated consent modes to run")
	rootCmd.Flags().IntVar(&limit, "limit", 0, "only crawl the first N sites (0 = all)")
	rootCmd.Flags().BoolVar(&headed, "headed", false, "run with a visible browser window")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.Flags().BoolVar(&resume, "resume", false, "skip (site, mode) tasks that already have a stored session")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors in progress output")
	rootCmd.Flags().BoolVar(&noFingerprint, "no-fingerprint", false, "disable fingerprinting probe collection")
	rootCmd.Flags().BoolVar(&noAds, "no-ads", false, "disable ad element detection")
	rootCmd.Flags().BoolVar(&noAdCapture, "no-ad-capture", false, "disable ad screenshot capture")
	rootCmd.Flags().IntVar(&adCaptureLimit, "ad-capture-limit", 0, "override ad_capture.max_captures")
	rootCmd.Flags().BoolVar(&measureBody, "measure-body-size", false, "force resource_weight.measure_body_size on")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	modes, err := parseModes(modesFlag)
	if err != nil {
		return err
	}

	siteList, err := loadSites(cfg)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Printf("loaded %d sites from %s\n", len(siteList), cfg.SitesFile)
	}

	store, err := storage.NewDatabase(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	if err := store.Initialize(); err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	for i := range siteList {
		id, err := store.UpsertSite(&siteList[i])
		if err != nil {
			return fmt.Errorf("register site %s: %w", siteList[i].Domain, err)
		}
		siteList[i].ID = id
	}

	br, err := browser.New(cfg)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer br.Close()

	trackers := classifier.NewTrackerDB()

	display := progress.New(len(siteList)*len(modes), !noColor)
	display.PrintHeader(len(siteList), cfg.Crawler.Concurrency, cfg.Crawler.PostConsentWaitMS, cfg.Crawler.Headless, modes)

	eng := engine.New(cfg, br, trackers, func(taskKey, phase, detail string) {
		display.Update(taskKey, phase, detail)
	})

	sched := scheduler.New(cfg, store, eng.Run, func(taskKey, event, detail string) {
		if event == "succeeded" || event == "failed" || event == "skipped" {
			display.Remove(taskKey)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nreceived interrupt, finishing in-flight tasks...")
		cancel()
	}()

	stats := sched.Run(ctx, siteList, modes, resume)
	if verbose {
		fmt.Printf("scheduler stats: %d/%d succeeded, %d failed, %d skipped, %d retried, elapsed %s\n",
			stats.Succeeded, stats.TotalTasks, stats.Failed, stats.Skipped, stats.Retried, stats.ElapsedTime)
	}

	display.PrintSummary(cfg.Database.Path)
	return nil
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	if sitesPath != "" {
		cfg.SitesFile = sitesPath
	}
	if concurrency > 0 {
		cfg.Crawler.Concurrency = concurrency
	}
	if headed {
		cfg.Crawler.Headless = false
	}
	if noFingerprint {
		cfg.Fingerprinting.Enabled = false
	}
	if noAds {
		cfg.Ads.Enabled = false
	}
	if noAdCapture {
		cfg.AdCapture.Enabled = false
	}
	if adCaptureLimit > 0 {
		cfg.AdCapture.MaxCaptures = adCaptureLimit
	}
	if measureBody {
		cfg.ResourceWeight.MeasureBodySize = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadSites(cfg *config.Config) ([]storage.Site, error) {
	siteList, err := sites.LoadCSV(cfg.SitesFile)
	if err != nil {
		return nil, fmt.Errorf("load sites: %w", err)
	}
	if limit > 0 && limit < len(siteList) {
		siteList = siteList[:limit]
	}
	return siteList, nil
}

func parseModes(raw string) ([]storage.ConsentMode, error) {
	var modes []storage.ConsentMode
	for _, name := range strings.Split(raw, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		switch storage.ConsentMode(name) {
		case storage.ConsentIgnore, storage.ConsentAccept, storage.ConsentReject:
			modes = append(modes, storage.ConsentMode(name))
		default:
			return nil, fmt.Errorf("unknown consent mode %q", name)
		}
	}
	if len(modes) == 0 {
		return nil, fmt.Errorf("no consent modes given")
	}
	return modes, nil
}
