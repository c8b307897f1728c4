package classifier

import (
	"testing"

	"github.com/privacy-observatory/crawler/internal/storage"
	"github.com/privacy-observatory/crawler/internal/testutil"
)

func TestClassifyFirstParty(t *testing.T) {
	c := NewResourceClassifier(NewTrackerDB())
	category, entity := c.Classify(false, "example.com")
	testutil.Assert(t, string(category)).Named("category").Equals(string(storage.ResourceContentFirstParty))
	testutil.Assert(t, entity).Named("entity").IsEmpty()
}

func TestClassifyKnownTracker(t *testing.T) {
	c := NewResourceClassifier(NewTrackerDB())
	category, entity := c.Classify(true, "doubleclick.net")
	testutil.Assert(t, string(category)).Named("category").Equals(string(storage.ResourceAd))
	testutil.Assert(t, entity).Named("entity").Equals("Google")
}

func TestClassifyCDN(t *testing.T) {
	c := NewResourceClassifier(NewTrackerDB())
	category, _ := c.Classify(true, "cdnjs.cloudflare.com")
	testutil.Assert(t, string(category)).Named("category").Equals(string(storage.ResourceCDN))
}

func TestClassifyCDNByPattern(t *testing.T) {
	c := NewResourceClassifier(NewTrackerDB())
	category, _ := c.Classify(true, "d111.cloudfront.net")
	testutil.Assert(t, string(category)).Named("category").Equals(string(storage.ResourceCDN))
}

func TestClassifyFunctionalThirdParty(t *testing.T) {
	c := NewResourceClassifier(NewTrackerDB())
	category, _ := c.Classify(true, "js.stripe.com")
	testutil.Assert(t, string(category)).Named("category").Equals(string(storage.ResourceFunctionalThird))
}

func TestClassifyUnknownThirdParty(t *testing.T) {
	c := NewResourceClassifier(NewTrackerDB())
	category, entity := c.Classify(true, "some-random-vendor.test")
	testutil.Assert(t, string(category)).Named("category").Equals(string(storage.ResourceUnknownThird))
	testutil.Assert(t, entity).Named("entity").IsEmpty()
}

func TestAggregateSumsByCategory(t *testing.T) {
	requests := []storage.RequestRecord{
		{BodySize: 100, Category: storage.ResourceContentFirstParty},
		{BodySize: 50, Category: storage.ResourceAd},
		{BodySize: 25, Category: storage.ResourceTracker},
		{BodySize: 10, Category: storage.ResourceCDN},
		{BodySize: 5, Category: storage.ResourceFunctionalThird},
		{BodySize: 1, Category: storage.ResourceUnknownThird},
	}

	summary := Aggregate(requests)

	testutil.Assert(t, int(summary.TotalBytes)).Named("total bytes").Equals(191)
	testutil.Assert(t, int(summary.ContentFirstParty)).Named("1p bytes").Equals(100)
	testutil.Assert(t, int(summary.Ad)).Named("ad bytes").Equals(50)
	testutil.Assert(t, int(summary.Tracker)).Named("tracker bytes").Equals(25)
	testutil.Assert(t, int(summary.CDN)).Named("cdn bytes").Equals(10)
	testutil.Assert(t, int(summary.FunctionalThird)).Named("functional 3p bytes").Equals(5)
	testutil.Assert(t, int(summary.UnknownThird)).Named("unknown 3p bytes").Equals(1)
}
