package ads

import (
	"testing"

	"github.com/privacy-observatory/crawler/internal/testutil"
)

func TestMatchIABSizeExact(t *testing.T) {
	d := NewDetector(DefaultConfig())
	testutil.Assert(t, d.matchIABSize(300, 250)).Named("exact medium rectangle").Equals("300x250")
	testutil.Assert(t, d.matchIABSize(728, 90)).Named("exact leaderboard").Equals("728x90")
}

func TestMatchIABSizeWithinTolerance(t *testing.T) {
	d := NewDetector(DefaultConfig())
	// 5% tolerance on 300 wide is +-15px.
	testutil.Assert(t, d.matchIABSize(310, 250)).Named("within tolerance").Equals("300x250")
}

func TestMatchIABSizeOutsideTolerance(t *testing.T) {
	d := NewDetector(DefaultConfig())
	testutil.Assert(t, d.matchIABSize(400, 250)).Named("outside tolerance").IsEmpty()
}

func TestMatchIABSizeZeroDimension(t *testing.T) {
	d := NewDetector(DefaultConfig())
	testutil.Assert(t, d.matchIABSize(0, 250)).Named("zero width").IsEmpty()
	testutil.Assert(t, d.matchIABSize(300, 0)).Named("zero height").IsEmpty()
}

func TestWithinTolerance(t *testing.T) {
	testutil.Assert(t, withinTolerance(300, 300, 0.05)).Named("exact match").IsTrue()
	testutil.Assert(t, withinTolerance(315, 300, 0.05)).Named("at boundary").IsTrue()
	testutil.Assert(t, withinTolerance(316, 300, 0.05)).Named("just beyond boundary").IsFalse()
	testutil.Assert(t, withinTolerance(100, 0, 0.05)).Named("zero standard never matches").IsFalse()
}

func TestDetectAdNetwork(t *testing.T) {
	d := NewDetector(DefaultConfig())
	testutil.Assert(t, d.detectAdNetwork("https://tpc.googlesyndication.com/x", "", "")).Named("google iframe src").Equals("Google")
	testutil.Assert(t, d.detectAdNetwork("", "sklik-banner-1", "")).Named("seznam by id").Equals("Seznam.cz")
	testutil.Assert(t, d.detectAdNetwork("", "", "")).Named("no match").IsEmpty()
}

func TestIsAdFrameDomain(t *testing.T) {
	testutil.Assert(t, IsAdFrameDomain("https://googleads.g.doubleclick.net/pagead/ads")).Named("doubleclick frame").IsTrue()
	testutil.Assert(t, IsAdFrameDomain("https://example.com/content.html")).Named("content frame").IsFalse()
}
