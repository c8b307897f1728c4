package urlutil

import (
	"testing"

	"github.com/privacy-observatory/crawler/internal/testutil"
)

func TestRegisteredDomainSimple(t *testing.T) {
	testutil.Assert(t, RegisteredDomain("www.example.com")).Named("www subdomain").Equals("example.com")
	testutil.Assert(t, RegisteredDomain("example.com")).Named("bare domain").Equals("example.com")
}

func TestRegisteredDomainMultiLabelTLD(t *testing.T) {
	testutil.Assert(t, RegisteredDomain("www.example.co.uk")).Named("co.uk suffix").Equals("example.co.uk")
}

func TestRegisteredDomainStripsPort(t *testing.T) {
	testutil.Assert(t, RegisteredDomain("example.com:8443")).Named("port stripped").Equals("example.com")
}

func TestRegisteredDomainFallsBackOnUnknownSuffix(t *testing.T) {
	testutil.Assert(t, RegisteredDomain("localhost")).Named("single label").Equals("localhost")
}

func TestRegisteredDomainEmpty(t *testing.T) {
	testutil.Assert(t, RegisteredDomain("")).Named("empty host").Equals("")
}

func TestExtractHost(t *testing.T) {
	host, err := ExtractHost("https://Example.COM/path?x=1")
	testutil.MustNotFail(t, err)
	testutil.Assert(t, host).Named("lowercased host").Equals("example.com")
}
