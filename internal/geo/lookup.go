// Package geo resolves a visitor's country, region and city from the edge
// hint and, when the hint is missing or generic, from fallback lookups.
package geo

import (
	"context"
	"errors"
	"net"
	"net/netip"

	"linkpulse/internal/attributes"
	"linkpulse/internal/pkg/geoip"
)

// ErrUpstream wraps every fallback failure. It never leaves this package
// through Resolve; lookups return it so callers can tell it apart in tests.
var ErrUpstream = errors.New("geo upstream failure")

// Lookup is one fallback source keyed by client IP.
type Lookup interface {
	Name() string
	Lookup(ctx context.Context, ip string) (attributes.Location, error)
}

// MaxMindLookup answers from a local GeoLite2-City database.
type MaxMindLookup struct {
	reader *geoip.Reader
}

// NewMaxMindLookup wraps reader. Lookups fail fast while no file is loaded.
func NewMaxMindLookup(reader *geoip.Reader) *MaxMindLookup {
	return &MaxMindLookup{reader: reader}
}

func (m *MaxMindLookup) Name() string { return "maxmind" }

func (m *MaxMindLookup) Lookup(_ context.Context, ip string) (attributes.Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return attributes.Location{}, errors.Join(ErrUpstream, errors.New("invalid ip"))
	}
	record, err := m.reader.City(parsed)
	if err != nil {
		return attributes.Location{}, errors.Join(ErrUpstream, err)
	}

	loc := attributes.Location{
		Country: record.Country.Names["en"],
		City:    record.City.Names["en"],
	}
	if loc.Country == "" {
		loc.Country = record.Country.IsoCode
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
	}
	return loc, nil
}

// cgnat is the carrier-grade NAT range, not covered by netip.Addr.IsPrivate.
var cgnat = netip.MustParsePrefix("100.64.0.0/10")

// IsLocal reports whether ip cannot be placed geographically: loopback,
// private, link-local, unspecified, CGNAT, or not an IP at all.
func IsLocal(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return true
	}
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified() ||
		cgnat.Contains(addr)
}
