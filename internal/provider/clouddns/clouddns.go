package clouddns

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/libdns/libdns"
	dns "google.golang.org/api/dns/v1"
	"google.golang.org/api/option"

	"github.com/evanofslack/dns-ip-sync/internal/config"
	"github.com/evanofslack/dns-ip-sync/internal/metrics"
	"github.com/evanofslack/dns-ip-sync/internal/provider"
)

const changePollInterval = time.Second

func init() {
	provider.Register(config.ProviderCloudDNS, func(cfg config.DNS, m *metrics.Metrics) (provider.Provider, error) {
		return New(context.Background(), cfg, m)
	})
}

// CloudDNSProvider manages record sets in Google Cloud DNS. Zone.ID is the
// managed zone name, Record.ID the record set's fully qualified name.
type CloudDNSProvider struct {
	api     *dns.Service
	project string
	metrics *metrics.Metrics
}

// New authenticates with the credentials file when one is configured and
// falls back to application default credentials otherwise.
func New(ctx context.Context, cfg config.DNS, metrics *metrics.Metrics, opts ...option.ClientOption) (*CloudDNSProvider, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("clouddns project required")
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := dns.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud DNS client: %w", err)
	}
	return &CloudDNSProvider{
		api:     svc,
		project: cfg.Project,
		metrics: metrics,
	}, nil
}

func (p *CloudDNSProvider) ListZones(ctx context.Context) ([]provider.Zone, error) {
	slog.Debug("Listing DNS zones", "project", p.project)
	var zones []provider.Zone
	err := p.api.ManagedZones.List(p.project).Pages(ctx, func(page *dns.ManagedZonesListResponse) error {
		for _, z := range page.ManagedZones {
			zones = append(zones, provider.Zone{ID: z.Name, Name: strings.TrimSuffix(z.DnsName, ".")})
		}
		return nil
	})
	p.metrics.IncDNSRequest("read", err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list managed zones: %w", err)
	}
	return zones, nil
}

func (p *CloudDNSProvider) ListRecords(ctx context.Context, zone provider.Zone) ([]provider.Record, error) {
	slog.Debug("Getting DNS records", "zone", zone.Name)
	start := time.Now()

	var result []provider.Record
	err := p.api.ResourceRecordSets.List(p.project, zone.ID).Pages(ctx, func(page *dns.ResourceRecordSetsListResponse) error {
		for _, rrset := range page.Rrsets {
			result = append(result, fromRecordSet(rrset, zone.Name))
		}
		return nil
	})
	p.metrics.IncDNSRequest("read", err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list record sets: %w", err)
	}
	slog.Debug("Retrieved DNS records", "zone", zone.Name, "count", len(result), "duration", time.Since(start))
	return result, nil
}

// UpdateRecord replaces the record set in one change: the current rrset is
// deleted and the new one added, which Cloud DNS applies atomically.
func (p *CloudDNSProvider) UpdateRecord(ctx context.Context, zone provider.Zone, record provider.Record, data string, ttl time.Duration) error {
	name := dnsName(record.Name, zone.Name)
	slog.Debug("Updating DNS record", "zone", zone.Name, "name", name, "type", record.Type, "data", data)
	start := time.Now()

	change := &dns.Change{
		Deletions: []*dns.ResourceRecordSet{{
			Name:    name,
			Type:    record.Type,
			Ttl:     int64(record.TTL.Seconds()),
			Rrdatas: strings.Split(record.Data, ","),
		}},
		Additions: []*dns.ResourceRecordSet{{
			Name:    name,
			Type:    record.Type,
			Ttl:     int64(ttl.Seconds()),
			Rrdatas: []string{data},
		}},
	}

	chg, err := p.api.Changes.Create(p.project, zone.ID, change).Context(ctx).Do()
	if err == nil {
		err = p.waitForChange(ctx, zone, chg)
	}
	p.metrics.IncDNSRequest("update", err == nil)
	if err != nil {
		return fmt.Errorf("failed to update record set: %w", err)
	}
	slog.Debug("Updated DNS record", "zone", zone.Name, "name", name, "type", record.Type, "duration", time.Since(start))
	return nil
}

func (p *CloudDNSProvider) waitForChange(ctx context.Context, zone provider.Zone, chg *dns.Change) error {
	ticker := time.NewTicker(changePollInterval)
	defer ticker.Stop()

	var err error
	for chg.Status == "pending" {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		chg, err = p.api.Changes.Get(p.project, zone.ID, chg.Id).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to get change status: %w", err)
		}
	}
	return nil
}

func fromRecordSet(rrset *dns.ResourceRecordSet, zone string) provider.Record {
	record := provider.FromLibdns(libdns.RR{
		Name: provider.RelativeName(rrset.Name, zone),
		Type: rrset.Type,
		Data: strings.Join(rrset.Rrdatas, ","),
		TTL:  time.Duration(rrset.Ttl) * time.Second,
	}, zone)
	record.ID = rrset.Name
	return record
}

func dnsName(label, zone string) string {
	return provider.AbsoluteName(label, zone) + "."
}
