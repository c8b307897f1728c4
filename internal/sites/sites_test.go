package sites

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/privacy-observatory/crawler/internal/testutil"
)

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.csv")
	testutil.MustNotFail(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadCSVBasic(t *testing.T) {
	path := writeCSV(t, "url,domain,category,rank_cz\nhttps://example.com/,example.com,news,12\n")

	got, err := LoadCSV(path)
	testutil.MustNotFail(t, err)

	testutil.Assert(t, len(got)).Named("site count").Equals(1)
	testutil.Assert(t, got[0].URL).Named("url").Equals("https://example.com")
	testutil.Assert(t, got[0].Domain).Named("domain").Equals("example.com")
	testutil.Assert(t, got[0].Category).Named("category").Equals("news")
	testutil.Assert(t, got[0].Rank).Named("rank").Equals(12)
}

func TestLoadCSVDefaultsSchemeAndDomain(t *testing.T) {
	path := writeCSV(t, "url\nexample.cz/path/\n")

	got, err := LoadCSV(path)
	testutil.MustNotFail(t, err)

	testutil.Assert(t, len(got)).Named("site count").Equals(1)
	testutil.Assert(t, got[0].URL).Named("url").Equals("https://example.cz/path")
	testutil.Assert(t, got[0].Domain).Named("domain derived from url").Equals("example.cz")
}

func TestLoadCSVAnyRankPrefixedColumn(t *testing.T) {
	path := writeCSV(t, "url,domain,rank_tranco_cz\nhttps://a.cz,a.cz,7\n")

	got, err := LoadCSV(path)
	testutil.MustNotFail(t, err)
	testutil.Assert(t, got[0].Rank).Named("rank").Equals(7)
}

func TestLoadCSVSkipsRowsWithoutDomain(t *testing.T) {
	path := writeCSV(t, "url,domain\n,\nhttps://good.cz,good.cz\n")

	got, err := LoadCSV(path)
	testutil.MustNotFail(t, err)
	testutil.Assert(t, len(got)).Named("site count").Equals(1)
	testutil.Assert(t, got[0].Domain).Named("domain").Equals("good.cz")
}

func TestLoadCSVMissingURLColumn(t *testing.T) {
	path := writeCSV(t, "domain\nexample.cz\n")

	_, err := LoadCSV(path)
	testutil.AssertError(t, err).HasError()
}
