package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/evanofslack/dns-ip-sync/internal/config"
	"github.com/evanofslack/dns-ip-sync/internal/metrics"
	"github.com/evanofslack/dns-ip-sync/internal/provider"
	"github.com/evanofslack/dns-ip-sync/internal/worker"
)

type Engine interface {
	Reconcile(ctx context.Context, records []DesiredRecord, addr netip.Addr) (Results, error)
}

type engine struct {
	dnsProvider provider.Provider
	pool        *worker.Pool
	dryRun      bool
	metrics     *metrics.Metrics
}

func NewEngine(dp provider.Provider, pool *worker.Pool, dryRun bool, metrics *metrics.Metrics) *engine {
	return &engine{
		dnsProvider: dp,
		pool:        pool,
		dryRun:      dryRun,
		metrics:     metrics,
	}
}

// zoneRecords is the listing of one zone, kept for the rest of a batch.
type zoneRecords struct {
	records []provider.Record
	err     error
}

// Reconcile points every record at addr. Only a failure to list zones is
// returned as an error; every other problem is a failed outcome for the
// record concerned.
func (e *engine) Reconcile(ctx context.Context, records []DesiredRecord, addr netip.Addr) (Results, error) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return Results{}, fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}

	results := Results{Outcomes: make([]Outcome, len(records))}
	valid := 0
	for i, r := range records {
		results.Outcomes[i] = Outcome{Name: r.Name, Type: r.Type, NewData: addr.String(), NewTTL: r.TTL, DryRun: e.dryRun}
		if err := validate(r); err != nil {
			results.Outcomes[i].Status = StatusFailed
			results.Outcomes[i].Err = err
			continue
		}
		valid++
	}
	if valid == 0 {
		for _, out := range results.Outcomes {
			e.report(out)
		}
		return results, nil
	}

	var zones []provider.Zone
	err := e.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		zones, err = e.dnsProvider.ListZones(ctx)
		return err
	})
	if err != nil {
		return Results{}, fmt.Errorf("list zones: %w", err)
	}
	slog.Debug("Got zones from dns provider", "count", len(zones))

	cache := make(map[string]zoneRecords)
	for i, r := range records {
		if results.Outcomes[i].Status != StatusFailed {
			results.Outcomes[i] = e.reconcileRecord(ctx, r, results.Outcomes[i], addr, zones, cache)
		}
		e.report(results.Outcomes[i])
	}
	return results, nil
}

// validate checks a record before any provider call is made for it.
func validate(r DesiredRecord) error {
	if r.TTL < config.MinTTL {
		return fmt.Errorf("%w: %d < %d", ErrTTLTooLow, r.TTL, config.MinTTL)
	}
	if r.Type != TypeA {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, r.Type)
	}
	return nil
}

func (e *engine) reconcileRecord(ctx context.Context, r DesiredRecord, out Outcome, addr netip.Addr, zones []provider.Zone, cache map[string]zoneRecords) Outcome {
	fail := func(err error) Outcome {
		out.Status = StatusFailed
		out.Err = err
		return out
	}

	zone, label, ok := provider.ZoneFor(r.Name, zones)
	if !ok {
		return fail(fmt.Errorf("%w: %s", ErrZoneNotFound, r.Name))
	}
	out.Zone = zone.Name
	out.Label = label

	existing, err := e.listRecords(ctx, zone, cache)
	if err != nil {
		return fail(err)
	}

	var matches []provider.Record
	for _, rec := range existing {
		if strings.EqualFold(rec.Name, label) && rec.Type == r.Type {
			matches = append(matches, rec)
		}
	}
	switch len(matches) {
	case 0:
		return fail(fmt.Errorf("%w: %s %s in %s", ErrRecordNotFound, label, r.Type, zone.Name))
	case 1:
	default:
		return fail(fmt.Errorf("%w: %d %s records named %s in %s", ErrAmbiguousRecord, len(matches), r.Type, label, zone.Name))
	}
	current := matches[0]
	out.OldData = current.Data
	out.OldTTL = int(current.TTL / time.Second)

	desired := provider.AddressRecord(label, zone.Name, addr, r.ttl())
	out.NewData = desired.Data
	if inSync(current, desired) {
		out.Status = StatusSkipped
		return out
	}

	if e.dryRun {
		out.Status = StatusUpdated
		return out
	}
	err = e.pool.Do(ctx, func(ctx context.Context) error {
		return e.dnsProvider.UpdateRecord(ctx, zone, current, desired.Data, desired.TTL)
	})
	if err != nil {
		return fail(fmt.Errorf("update %s: %w", r.Name, err))
	}
	out.Status = StatusUpdated
	return out
}

func (e *engine) listRecords(ctx context.Context, zone provider.Zone, cache map[string]zoneRecords) ([]provider.Record, error) {
	if zr, ok := cache[zone.ID]; ok {
		return zr.records, zr.err
	}
	var records []provider.Record
	err := e.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		records, err = e.dnsProvider.ListRecords(ctx, zone)
		return err
	})
	if err != nil {
		err = fmt.Errorf("list records for zone %s: %w", zone.Name, err)
	} else {
		slog.Debug("Got records from dns provider", "zone", zone.Name, "count", len(records))
	}
	cache[zone.ID] = zoneRecords{records: records, err: err}
	return records, err
}

// inSync compares the parsed address and ttl, not record text.
func inSync(current, desired provider.Record) bool {
	have, err := provider.ToLibdns(current)
	if err != nil {
		return false
	}
	want, err := provider.ToLibdns(desired)
	if err != nil {
		return false
	}
	return have.IP == want.IP && have.TTL == want.TTL
}

func (e *engine) report(out Outcome) {
	switch out.Status {
	case StatusUpdated:
		msg := "Updated record"
		if out.DryRun {
			msg = "Dry run mode - would update record"
		}
		slog.Info(msg, "name", out.Name, "zone", out.Zone, "label", out.Label,
			"old_data", out.OldData, "new_data", out.NewData,
			"old_ttl", out.OldTTL, "new_ttl", out.NewTTL)
		e.metrics.IncDNSOperation("update", out.Zone)
	case StatusSkipped:
		slog.Info("Record up to date, skipping", "name", out.Name, "zone", out.Zone, "data", out.OldData, "ttl", out.OldTTL)
		e.metrics.IncDNSOperation("skip", out.Zone)
	case StatusFailed:
		slog.Error("Failed to reconcile record", "name", out.Name, "zone", out.Zone, "error", out.Err)
		e.metrics.IncDNSOperation("error", out.Zone)
	}
}
