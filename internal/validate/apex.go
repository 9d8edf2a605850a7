package validate

import (
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// strictDomainRegexp is the original 2-label RFC1035 hostname check.
// IsValidApex uses it only as a first syntax gate, since on its own it
// cannot tell "example.co.uk" (a bare apex) from "www.example.co.uk" (a
// subdomain): both satisfy the same "N labels, last one alphabetic" shape.
// Accepts applies the same regexp under the name subdomainRegexp.
var strictDomainRegexp = domainRegexp

// IsValidApex reports whether s is a bare registrable domain: exactly one
// label above the public suffix, with no further subdomain label. It is
// public-suffix aware, so "example.co.uk" is accepted as an apex while
// "www.example.co.uk" and "example.com.ar.evil.com" are rejected.
func IsValidApex(s string) bool {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
	if s == "" || strings.Contains(s, "@") {
		return false
	}
	if !strictDomainRegexp.MatchString(s) {
		return false
	}
	dom, err := publicsuffix.Parse(s)
	if err != nil {
		return false
	}
	if dom.TRD != "" {
		return false
	}
	if dom.SLD == "" || dom.TLD == "" {
		return false
	}
	return true
}

// Accepts reports whether name is a syntactically valid DNS label set that
// is either equal to apex or a proper subdomain of it (name == apex is
// accepted because crt.sh and OTX both occasionally surface the bare apex
// itself as a "finding"; callers that must exclude the apex do so
// explicitly). Wildcard markers ("*.") are stripped before comparison.
func Accepts(name, apex string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "*.")
	apex = strings.ToLower(strings.TrimSpace(apex))
	if name == "" || apex == "" {
		return false
	}
	if name != apex && !strings.HasSuffix(name, "."+apex) {
		return false
	}
	return subdomainRegexp.MatchString(name)
}
