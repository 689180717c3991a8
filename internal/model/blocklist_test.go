package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainSetNeverOfficial(t *testing.T) {
	s := NewDomainSet(nil)

	assert.True(t, s.BlockedHost("facebook.com"))
	assert.True(t, s.BlockedHost("www.yelp.com"))
	assert.True(t, s.BlockedHost("en.wikipedia.org")) // subdomain of blocked
	assert.False(t, s.BlockedHost("newtonfreelibrary.net"))
}

func TestDomainSetLearned(t *testing.T) {
	s := NewDomainSet([]string{"WWW.Spam-Directory.com"})

	assert.True(t, s.BlockedHost("spam-directory.com"))
	assert.True(t, s.BlockedHost("listings.spam-directory.com"))
	assert.False(t, s.BlockedHost("other.com"))

	s.Add("another-aggregator.net")
	assert.True(t, s.BlockedHost("another-aggregator.net"))
}

func TestDomainSetBlockedURL(t *testing.T) {
	s := NewDomainSet(nil)

	assert.True(t, s.BlockedURL("https://www.facebook.com/somepark"))
	assert.False(t, s.BlockedURL("https://arlingtonma.gov/parks"))
	assert.True(t, s.BlockedURL("://not a url"))
	assert.True(t, s.BlockedURL("relative/path"))
}

func TestTrustedTLD(t *testing.T) {
	assert.True(t, TrustedTLD("arlingtonma.gov"))
	assert.True(t, TrustedTLD("www.harvard.edu"))
	assert.True(t, TrustedTLD("newtonfreelibrary.org"))
	assert.True(t, TrustedTLD("townofbedford.ma.us"))
	assert.False(t, TrustedTLD("somepark.com"))
	assert.False(t, TrustedTLD("venue.net"))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "example.org", HostOf("https://www.example.org/events?page=2"))
	assert.Equal(t, "example.org", HostOf("http://example.org:8080/"))
	assert.Empty(t, HostOf("not-a-url"))
}
