package consent

import (
	"context"
	"testing"

	"github.com/privacy-observatory/crawler/internal/storage"
	"github.com/privacy-observatory/crawler/internal/testutil"
)

func TestResolveIgnoreModeNeverProbes(t *testing.T) {
	r := NewResolver(Patterns{})
	// A nil/background context would fail any real chromedp call, so if
	// Resolve ever tried to touch the page for IGNORE this would panic or
	// error instead of returning cleanly.
	info, err := r.Resolve(context.Background(), storage.ConsentIgnore)
	testutil.MustNotFail(t, err)
	testutil.Assert(t, info.Found).Named("found").IsFalse()
}

func TestNewResolverMergesCustomPatternsWithDefaults(t *testing.T) {
	r := NewResolver(Patterns{Accept: []string{"souhlasím"}, Reject: []string{"odmítnout"}})

	testutil.Assert(t, len(r.patterns.Accept) > len(defaultAcceptTexts)).Named("accept patterns extended").IsTrue()
	testutil.Assert(t, len(r.patterns.Reject) > len(defaultRejectTexts)).Named("reject patterns extended").IsTrue()
	testutil.Assert(t, len(r.strategies)).Named("strategy cascade length").Equals(11)
}

func TestMarshalListProducesJSONArray(t *testing.T) {
	got := marshalList([]string{"accept all", "i agree"})
	testutil.Assert(t, got).Named("marshaled patterns").Equals(`["accept all","i agree"]`)
}

func TestMarshalListEmpty(t *testing.T) {
	testutil.Assert(t, marshalList(nil)).Named("nil slice marshals to null").Equals("null")
}
