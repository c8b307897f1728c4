package fingerprint

import (
	"testing"

	"github.com/privacy-observatory/crawler/internal/storage"
	"github.com/privacy-observatory/crawler/internal/testutil"
)

func TestClassifySeverityNone(t *testing.T) {
	got := classifySeverity(map[string]struct{}{}, 0)
	testutil.Assert(t, string(got)).Named("severity").Equals(string(storage.FingerprintNone))
}

func TestClassifySeverityPassive(t *testing.T) {
	got := classifySeverity(map[string]struct{}{"navigator": {}, "storage": {}}, 3)
	testutil.Assert(t, string(got)).Named("severity").Equals(string(storage.FingerprintPassive))
}

func TestClassifySeverityActive(t *testing.T) {
	got := classifySeverity(map[string]struct{}{"canvas": {}, "navigator": {}}, 2)
	testutil.Assert(t, string(got)).Named("severity").Equals(string(storage.FingerprintActive))
}

func TestClassifySeverityAggressive(t *testing.T) {
	got := classifySeverity(map[string]struct{}{"canvas": {}, "webgl": {}, "audio": {}}, 5)
	testutil.Assert(t, string(got)).Named("severity").Equals(string(storage.FingerprintAggressive))
}

func TestExtractDomainFromStack(t *testing.T) {
	stack := "Error\n    at f (https://tracker.example.com/script.js:10:5)\n    at g (https://example.com/app.js:1:1)"
	testutil.Assert(t, extractDomainFromStack(stack)).Named("first url host in stack").Equals("tracker.example.com")
}

func TestExtractDomainFromStackEmpty(t *testing.T) {
	testutil.Assert(t, extractDomainFromStack("")).Named("empty stack").IsEmpty()
	testutil.Assert(t, extractDomainFromStack("no urls here")).Named("no url in stack").IsEmpty()
}

func TestCollapseByAPIMethodMergesDuplicates(t *testing.T) {
	events := []storage.FingerprintEvent{
		{APIName: "canvas.toDataURL", WasBeforeConsent: true, CallCount: 1},
		{APIName: "canvas.toDataURL", WasBeforeConsent: true, CallCount: 1},
		{APIName: "canvas.toDataURL", WasBeforeConsent: false, CallCount: 1},
	}

	merged := collapseByAPIMethod(events)

	testutil.Assert(t, len(merged)).Named("merged row count").Equals(2)
	testutil.Assert(t, merged[0].CallCount).Named("before-consent call count").Equals(2)
	testutil.Assert(t, merged[1].CallCount).Named("after-consent call count").Equals(1)
}
