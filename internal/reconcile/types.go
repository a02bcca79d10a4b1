package reconcile

import (
	"errors"
	"strings"
	"time"
)

const TypeA = "A"

var (
	ErrTTLTooLow       = errors.New("ttl below minimum")
	ErrUnsupportedType = errors.New("unsupported record type")
	ErrZoneNotFound    = errors.New("no zone for record")
	ErrRecordNotFound  = errors.New("record not found in zone")
	ErrAmbiguousRecord = errors.New("multiple records match")
	ErrInvalidAddress  = errors.New("address is not ipv4")
)

// DesiredRecord is a host that should resolve to the public address.
// Name is fully qualified, TTL in seconds.
type DesiredRecord struct {
	Name string
	Type string
	TTL  int
}

func (r DesiredRecord) ttl() time.Duration {
	return time.Duration(r.TTL) * time.Second
}

// DesiredRecords builds A records with a shared ttl.
func DesiredRecords(names []string, ttl int) []DesiredRecord {
	out := make([]DesiredRecord, 0, len(names))
	for _, n := range names {
		out = append(out, DesiredRecord{
			Name: strings.TrimSuffix(strings.ToLower(n), "."),
			Type: TypeA,
			TTL:  ttl,
		})
	}
	return out
}

type Status string

const (
	StatusUpdated Status = "updated"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome is the result of reconciling one record. Old values are those
// read from the provider, New values those written (or that would be
// written in dry run).
type Outcome struct {
	Name    string
	Type    string
	Zone    string
	Label   string
	Status  Status
	OldData string
	NewData string
	OldTTL  int
	NewTTL  int
	DryRun  bool
	Err     error
}

type Results struct {
	Outcomes []Outcome
}

func (r Results) Count(status Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

func (r Results) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}
