// Package validate provides shared input validation helpers.
package validate

import "regexp"

// domainRegexp validates RFC-compliant hostnames. This is the original
// 2-label check: it accepts any N-label dotted name ending in an alphabetic
// TLD, so it cannot by itself distinguish an apex from a subdomain of that
// apex. IsValidApex layers public-suffix awareness on top of it for that
// distinction; Accepts reuses it (as subdomainRegexp) for per-label syntax.
var domainRegexp = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// subdomainRegexp is the same syntax check used for any dotted hostname
// passed to Accepts, aliased for readability at the call site.
var subdomainRegexp = domainRegexp

// IsDomain reports whether s is a valid RFC-compliant hostname.
func IsDomain(s string) bool {
	return domainRegexp.MatchString(s)
}
