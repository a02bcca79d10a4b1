package provider

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/libdns/libdns"
)

// Provider is the DNS hosting capability the reconciler drives. Calls block
// until the remote API answers.
type Provider interface {
	ListZones(ctx context.Context) ([]Zone, error)
	ListRecords(ctx context.Context, zone Zone) ([]Record, error)
	// UpdateRecord replaces the data and ttl of an existing record.
	UpdateRecord(ctx context.Context, zone Zone, record Record, data string, ttl time.Duration) error
}

type Zone struct {
	ID   string
	Name string
}

// Record is a remote record. Name is local to Zone, "@" for the apex.
type Record struct {
	ID   string
	Name string
	Type string
	Data string
	Zone string
	TTL  time.Duration
}

func FromLibdns(r libdns.Record, zone string) Record {
	rr := r.RR()
	return Record{
		Name: rr.Name,
		Type: rr.Type,
		Data: rr.Data,
		TTL:  rr.TTL,
		Zone: zone,
	}
}

// ToLibdns parses an address record into its libdns form. IPv4-mapped
// addresses are unmapped.
func ToLibdns(r Record) (libdns.Address, error) {
	if r.Type != "A" && r.Type != "AAAA" {
		return libdns.Address{}, fmt.Errorf("not an address record: %s", r.Type)
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(r.Data))
	if err != nil {
		return libdns.Address{}, fmt.Errorf("parse address %q: %w", r.Data, err)
	}
	return libdns.Address{Name: r.Name, IP: addr.Unmap(), TTL: r.TTL}, nil
}

// AddressRecord builds the canonical A or AAAA record for addr.
func AddressRecord(name, zone string, addr netip.Addr, ttl time.Duration) Record {
	return FromLibdns(libdns.Address{Name: name, IP: addr, TTL: ttl}, zone)
}
