// Package sites loads the fixed site list a crawl run targets from a CSV
// file. Generating that CSV (e.g. from a Tranco list) is out of scope.
package sites

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/privacy-observatory/crawler/internal/storage"
)

// LoadCSV reads a site list with header url,domain,category,rank_* (any
// rank_ prefixed column is accepted; blank ranks and categories are
// permitted). The URL scheme defaults to https:// when absent and trailing
// slashes are stripped.
func LoadCSV(path string) ([]storage.Site, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sites file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read sites header: %w", err)
	}
	col := make(map[string]int, len(header))
	rankCol := -1
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		col[name] = i
		if rankCol == -1 && strings.HasPrefix(name, "rank") {
			rankCol = i
		}
	}
	urlCol, ok := col["url"]
	if !ok {
		return nil, fmt.Errorf("sites file missing required 'url' column")
	}

	var out []storage.Site
	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		site := storage.Site{URL: normalizeURL(field(row, urlCol))}
		if dc, ok := col["domain"]; ok {
			site.Domain = strings.TrimSpace(field(row, dc))
		}
		if site.Domain == "" {
			site.Domain = hostFromURL(site.URL)
		}
		if cc, ok := col["category"]; ok {
			site.Category = strings.TrimSpace(field(row, cc))
		}
		if rankCol >= 0 {
			if rankStr := strings.TrimSpace(field(row, rankCol)); rankStr != "" {
				if rank, err := strconv.Atoi(rankStr); err == nil {
					site.Rank = rank
				}
			}
		}
		if site.Domain == "" {
			continue
		}
		out = append(out, site)
	}
	return out, nil
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	raw = strings.TrimRight(raw, "/")
	return raw
}

func hostFromURL(u string) string {
	rest := strings.TrimPrefix(u, "https://")
	rest = strings.TrimPrefix(rest, "http://")
	if idx := strings.IndexAny(rest, "/?#"); idx != -1 {
		rest = rest[:idx]
	}
	return rest
}
