// Package utils holds small DNS name helpers shared across layers.
package utils

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// CanonicalDNSName returns a DNS name in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dot because it doesn't add any runtime benefit, only legacy baggage.
func CanonicalDNSName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// InZone reports whether name is equal to or below apex in the domain
// hierarchy. Both arguments are canonicalized before comparison.
func InZone(name, apex string) bool {
	name = CanonicalDNSName(name)
	apex = CanonicalDNSName(apex)
	if apex == "" {
		return false
	}
	return name == apex || strings.HasSuffix(name, "."+apex)
}

// ParentNames returns the ancestor names of a canonical name from
// most-specific to least-specific, starting with the name itself.
// e.g. "www.et.internal" → ["www.et.internal", "et.internal", "internal"].
func ParentNames(name string) []string {
	name = CanonicalDNSName(name)
	if name == "" {
		return nil
	}
	var parents []string
	for {
		parents = append(parents, name)
		idx := strings.IndexByte(name, '.')
		if idx < 0 {
			return parents
		}
		name = name[idx+1:]
	}
}

// ApexDomain returns the effective registrable apex for a name (eTLD+1),
// falling back to the name itself for private suffixes like ".internal".
// Used only for stats keys, never for zone-cut decisions.
func ApexDomain(name string) string {
	name = CanonicalDNSName(name)
	apex, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return name
	}
	return apex
}
