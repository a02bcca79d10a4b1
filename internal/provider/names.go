package provider

import (
	"strings"

	"github.com/miekg/dns"
)

// Apex is the record name of a zone's own domain.
const Apex = "@"

func canonical(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".")
}

// InZone reports whether fqdn is zone itself or a name below it. Matching
// is on label boundaries, so "badexample.com" is not in "example.com".
func InZone(fqdn, zone string) bool {
	if canonical(zone) == "" {
		return false
	}
	return dns.IsSubDomain(dns.Fqdn(canonical(zone)), dns.Fqdn(canonical(fqdn)))
}

// RelativeName returns the label of fqdn inside zone, Apex for the zone itself.
// fqdn must be in zone.
func RelativeName(fqdn, zone string) string {
	fqdn, zone = canonical(fqdn), canonical(zone)
	if fqdn == zone {
		return Apex
	}
	return strings.Trim(strings.TrimSuffix(fqdn, zone), ".")
}

// AbsoluteName is the inverse of RelativeName.
func AbsoluteName(label, zone string) string {
	zone = canonical(zone)
	if label == "" || label == Apex {
		return zone
	}
	return canonical(label) + "." + zone
}

// ZoneFor returns the first zone, in provider order, containing fqdn and the
// record label inside it.
func ZoneFor(fqdn string, zones []Zone) (Zone, string, bool) {
	for _, z := range zones {
		if InZone(fqdn, z.Name) {
			return z, RelativeName(fqdn, z.Name), true
		}
	}
	return Zone{}, "", false
}
