package model

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// BlockedDomain is one entry in the persistent domain blocklist.
type BlockedDomain struct {
	Domain    string    `json:"domain"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// neverOfficialDomains are aggregators, directories, and social platforms
// that can never be a venue's official website, regardless of classifier
// output.
var neverOfficialDomains = map[string]bool{
	"facebook.com":    true,
	"instagram.com":   true,
	"twitter.com":     true,
	"x.com":           true,
	"yelp.com":        true,
	"tripadvisor.com": true,
	"eventbrite.com":  true,
	"meetup.com":      true,
	"wikipedia.org":   true,
	"wikidata.org":    true,
	"google.com":      true,
	"maps.google.com": true,
	"yellowpages.com": true,
	"mapquest.com":    true,
	"foursquare.com":  true,
	"usnews.com":      true,
	"niche.com":       true,
	"greatschools.org": true,
	"linkedin.com":    true,
	"youtube.com":     true,
}

// NeverOfficialDomains returns the static never-official list, sorted, for
// seeding a persistent blocklist.
func NeverOfficialDomains() []string {
	out := make([]string, 0, len(neverOfficialDomains))
	for d := range neverOfficialDomains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// DomainSet answers blocked-or-not for hosts, combining the static
// never-official list with dynamically learned domains.
type DomainSet struct {
	learned map[string]bool
}

// NewDomainSet builds a DomainSet seeded with the given learned domains.
func NewDomainSet(learned []string) *DomainSet {
	m := make(map[string]bool, len(learned))
	for _, d := range learned {
		m[NormalizeDomain(d)] = true
	}
	return &DomainSet{learned: m}
}

// Add records a learned domain.
func (s *DomainSet) Add(domain string) {
	s.learned[NormalizeDomain(domain)] = true
}

// BlockedHost reports whether the host matches a blocked domain, including
// subdomains of one.
func (s *DomainSet) BlockedHost(host string) bool {
	host = NormalizeDomain(host)
	for h := host; h != ""; {
		if neverOfficialDomains[h] || s.learned[h] {
			return true
		}
		i := strings.Index(h, ".")
		if i < 0 {
			break
		}
		h = h[i+1:]
	}
	return false
}

// BlockedURL reports whether the URL's host is blocked. Unparseable URLs are
// treated as blocked.
func (s *DomainSet) BlockedURL(raw string) bool {
	host := HostOf(raw)
	if host == "" {
		return true
	}
	return s.BlockedHost(host)
}

// trustedTLDs mark institutional domains that are never auto-blocklisted on
// a single rejection, since one venue's municipal site being wrong for it
// does not make the domain wrong for every venue.
var trustedTLDs = []string{".gov", ".edu", ".org", ".us"}

// TrustedTLD reports whether the host ends in an institutional TLD exempt
// from automatic blocklisting.
func TrustedTLD(host string) bool {
	host = NormalizeDomain(host)
	for _, tld := range trustedTLDs {
		if strings.HasSuffix(host, tld) {
			return true
		}
	}
	return false
}

// HostOf extracts the normalized host from a URL, or "" if it cannot be
// parsed.
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return NormalizeDomain(u.Host)
}

// NormalizeDomain lowercases a host and strips the www prefix and any port.
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.TrimPrefix(d, "www.")
	if i := strings.Index(d, ":"); i >= 0 {
		d = d[:i]
	}
	return d
}
