// Package progress renders a live terminal status line and per-task result
// lines for a crawl run: a progress bar, ETA, running totals, and up to
// three currently active tasks.
package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/privacy-observatory/crawler/internal/storage"
)

const (
	dim     = "\033[2m"
	bold    = "\033[1m"
	green   = "\033[32m"
	yellow  = "\033[33m"
	red     = "\033[31m"
	cyan    = "\033[36m"
	magenta = "\033[35m"
	reset   = "\033[0m"
	clearLn = "\033[2K\r"
)

var modeColor = map[storage.ConsentMode]string{
	storage.ConsentIgnore: dim,
	storage.ConsentAccept: cyan,
	storage.ConsentReject: magenta,
}

// Display is a live, thread-safe progress display for a crawl run.
type Display struct {
	mu sync.Mutex

	total     int
	completed int
	errors    int

	totalRequests int64
	totalCookies  int
	total3P       int
	totalTracking int

	bannersDetected int
	bannersActed    int

	startTime time.Time
	useColor  bool
	active    map[string]string
	order     []string
}

// New builds a Display for a run of totalTasks tasks.
func New(totalTasks int, useColor bool) *Display {
	return &Display{
		total:     totalTasks,
		startTime: time.Now(),
		useColor:  useColor,
		active:    make(map[string]string),
	}
}

func (d *Display) c(code, text string) string {
	if !d.useColor {
		return text
	}
	return code + text + reset
}

func formatDuration(secs float64) string {
	if secs < 60 {
		return fmt.Sprintf("%ds", int(secs))
	}
	if secs < 3600 {
		return fmt.Sprintf("%dm %ds", int(secs)/60, int(secs)%60)
	}
	h := int(secs) / 3600
	m := (int(secs) % 3600) / 60
	return fmt.Sprintf("%dh %dm", h, m)
}

func bar(current, total, width int) string {
	if total == 0 {
		return "[" + strings.Repeat(" ", width) + "]"
	}
	filled := width * current / total
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// statusLine builds the single-line status summary. Caller must hold d.mu.
func (d *Display) statusLine() string {
	elapsed := time.Since(d.startTime).Seconds()
	var rate, eta float64
	if elapsed > 0 {
		rate = float64(d.completed) / elapsed
	}
	if rate > 0 {
		eta = float64(d.total-d.completed) / rate
	}
	pct := 0.0
	if d.total > 0 {
		pct = float64(d.completed) / float64(d.total) * 100
	}

	parts := []string{
		fmt.Sprintf("%s %5.1f%%", bar(d.completed, d.total, 20), pct),
		fmt.Sprintf("%d/%d done", d.completed, d.total),
	}
	if d.errors > 0 {
		parts = append(parts, d.c(red, fmt.Sprintf("%d err", d.errors)))
	}
	parts = append(parts, fmt.Sprintf("ETA %s", formatDuration(eta)))

	if n := len(d.order); n > 0 {
		shown := d.order
		suffix := ""
		if n > 3 {
			shown = d.order[:3]
			suffix = fmt.Sprintf(" +%d", n-3)
		}
		names := make([]string, len(shown))
		for i, key := range shown {
			names[i] = key + " " + d.active[key]
		}
		parts = append(parts, d.c(dim, "active: "+strings.Join(names, ", ")+suffix))
	}

	return strings.Join(parts, "  ")
}

// Update reports that a task identified by key has entered phase, with an
// optional free-form detail string.
func (d *Display) Update(key, phase, detail string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	text := phase
	if detail != "" {
		text += " " + detail
	}
	if _, exists := d.active[key]; !exists {
		d.order = append(d.order, key)
	}
	d.active[key] = text

	fmt.Print(clearLn + d.statusLine())
}

// Remove clears a task from the active set, e.g. once it finishes.
func (d *Display) Remove(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(key)
}

func (d *Display) removeLocked(key string) {
	if _, ok := d.active[key]; !ok {
		return
	}
	delete(d.active, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// PrintResult prints one completed task's result line and refreshes the
// status line beneath it. It updates the running totals used by PrintSummary.
func (d *Display) PrintResult(obs storage.Observation, site storage.Site, mode storage.ConsentMode) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.removeLocked(fmt.Sprintf("%s:%s", site.Domain, mode))
	d.completed++

	reqCount := len(obs.Requests)
	thirdParty := 0
	for _, r := range obs.Requests {
		if r.IsThirdParty {
			thirdParty++
		}
	}
	cookieCount := len(obs.Cookies)
	tracking := 0
	for _, c := range obs.Cookies {
		if c.IsTrackingCookie {
			tracking++
		}
	}

	d.totalRequests += int64(reqCount)
	d.total3P += thirdParty
	d.totalCookies += cookieCount
	d.totalTracking += tracking

	if obs.Session.Status != storage.StatusSuccess {
		d.errors++
	}

	consentOutcome := obs.Session.ConsentOutcome
	bannerDetected := consentOutcome != "" && consentOutcome != "none_found"
	actionTaken := bannerDetected && mode != storage.ConsentIgnore
	if bannerDetected {
		d.bannersDetected++
		if actionTaken {
			d.bannersActed++
		}
	}

	var status string
	switch obs.Session.Status {
	case storage.StatusSuccess:
		status = d.c(green, "OK")
	case storage.StatusTimeout:
		status = d.c(yellow, "TIMEOUT")
	default:
		status = d.c(red, "ERROR")
	}

	modeStr := d.c(modeColor[mode], string(mode))

	catStr := ""
	if site.Category != "" {
		catStr = d.c(dim, "["+site.Category+"]")
	}

	consentStr := ""
	if bannerDetected {
		if actionTaken {
			consentStr = d.c(green, " banner:"+consentOutcome)
		} else {
			consentStr = d.c(yellow, " banner:"+consentOutcome+"(no click)")
		}
	} else if mode != storage.ConsentIgnore {
		consentStr = d.c(dim, " no banner")
	}

	reqStr := fmt.Sprintf("%4d req", reqCount)
	if thirdParty > 0 {
		reqStr += d.c(yellow, fmt.Sprintf(" (%d 3p)", thirdParty))
	} else {
		reqStr += d.c(dim, " (0 3p)")
	}

	cookStr := fmt.Sprintf("%2d cookies", cookieCount)
	if tracking > 0 {
		cookStr += d.c(red, fmt.Sprintf(" (%d trk)", tracking))
	} else {
		cookStr += d.c(dim, " (0 trk)")
	}

	elapsed := time.Duration(obs.Session.DurationMS) * time.Millisecond

	fmt.Print(clearLn)
	fmt.Printf("  %s %-8s %-28s %-8s %-14s %s  %s%s  %s\n",
		d.c(dim, fmt.Sprintf("%4d.", d.completed)),
		status, site.Domain, modeStr, catStr, reqStr, cookStr, consentStr,
		d.c(dim, formatDuration(elapsed.Seconds())),
	)

	fmt.Print(d.statusLine())
}

// PrintHeader prints the crawl-run banner before any task has started.
func (d *Display) PrintHeader(sitesCount, concurrency, postConsentWaitMS int, headless bool, modes []storage.ConsentMode) {
	d.mu.Lock()
	defer d.mu.Unlock()

	modeNames := make([]string, len(modes))
	for i, m := range modes {
		modeNames[i] = string(m)
	}

	fmt.Println()
	fmt.Println("  " + d.c(bold, "PRIVACY OBSERVATORY CRAWLER"))
	fmt.Println("  " + d.c(dim, strings.Repeat("=", 60)))
	fmt.Printf("  Sites: %d  |  Modes: %s  |  Tasks: %d\n", sitesCount, strings.Join(modeNames, ", "), d.total)
	fmt.Printf("  Concurrency: %d  |  Post-consent dwell: %ds  |  Headless: %t\n",
		concurrency, postConsentWaitMS/1000, headless)
	fmt.Println("  " + d.c(dim, strings.Repeat("-", 60)))
	fmt.Println()
}

// PrintSummary prints the final run totals and the database path they were
// written to.
func (d *Display) PrintSummary(dbPath string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime).Seconds()
	fmt.Println()
	fmt.Println()
	fmt.Println("  " + d.c(bold, "CRAWL COMPLETE"))
	fmt.Println("  " + d.c(dim, strings.Repeat("=", 60)))
	fmt.Println()
	fmt.Printf("  Duration        %s\n", formatDuration(elapsed))

	taskLine := fmt.Sprintf("  Tasks           %d/%d", d.completed, d.total)
	if d.errors > 0 {
		taskLine += d.c(red, fmt.Sprintf(" (%d errors)", d.errors))
	} else {
		taskLine += d.c(green, " (0 errors)")
	}
	fmt.Println(taskLine)
	fmt.Println()

	fmt.Printf("  Requests        %d total\n", d.totalRequests)
	pct3p := int64(0)
	if d.totalRequests > 0 {
		pct3p = int64(d.total3P) * 100 / d.totalRequests
	}
	fmt.Printf("  3rd-party       %d%s\n", d.total3P, d.c(dim, fmt.Sprintf(" (%d%% of all)", pct3p)))
	fmt.Printf("  Cookies         %d total\n", d.totalCookies)
	fmt.Printf("  Tracking        %d tracking cookies\n", d.totalTracking)
	fmt.Println()

	fmt.Printf("  Banners found   %d\n", d.bannersDetected)
	fmt.Printf("  Banners clicked %d\n", d.bannersActed)
	fmt.Println()

	fmt.Printf("  Database        %s\n", dbPath)
	fmt.Println("  " + d.c(dim, strings.Repeat("=", 60)))
	fmt.Println()
}
