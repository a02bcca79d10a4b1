package cloudflare

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/libdns/libdns"

	"github.com/evanofslack/dns-ip-sync/internal/config"
	"github.com/evanofslack/dns-ip-sync/internal/metrics"
	"github.com/evanofslack/dns-ip-sync/internal/provider"
)

func init() {
	provider.Register(config.ProviderCloudflare, func(cfg config.DNS, m *metrics.Metrics) (provider.Provider, error) {
		return New(cfg, m)
	})
}

type CloudflareProvider struct {
	client  *cloudflare.API
	metrics *metrics.Metrics
}

func New(cfg config.DNS, metrics *metrics.Metrics, opts ...cloudflare.Option) (*CloudflareProvider, error) {
	token := cfg.Token
	if token == "" {
		return nil, fmt.Errorf("cloudflare API token required")
	}

	client, err := cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloudflare client: %w", err)
	}

	return &CloudflareProvider{
		client:  client,
		metrics: metrics,
	}, nil
}

func (p *CloudflareProvider) ListZones(ctx context.Context) ([]provider.Zone, error) {
	slog.Debug("Listing DNS zones")
	zones, err := p.client.ListZones(ctx)
	p.metrics.IncDNSRequest("read", err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}

	result := make([]provider.Zone, 0, len(zones))
	for _, z := range zones {
		result = append(result, provider.Zone{ID: z.ID, Name: z.Name})
	}
	return result, nil
}

func (p *CloudflareProvider) ListRecords(ctx context.Context, zone provider.Zone) ([]provider.Record, error) {
	slog.Debug("Getting DNS records", "zone", zone.Name)
	start := time.Now()

	// Get all records for the zone with pagination
	var allRecords []cloudflare.DNSRecord
	page := 1
	for {
		rc := cloudflare.ZoneIdentifier(zone.ID)
		params := cloudflare.ListDNSRecordsParams{
			ResultInfo: cloudflare.ResultInfo{
				Page:    page,
				PerPage: 100,
			},
		}

		records, resultInfo, err := p.client.ListDNSRecords(ctx, rc, params)
		if err != nil {
			p.metrics.IncDNSRequest("read", false)
			return nil, fmt.Errorf("failed to list DNS records: %w", err)
		}

		allRecords = append(allRecords, records...)
		if resultInfo == nil || page >= resultInfo.TotalPages {
			break
		}
		page++
	}

	result := make([]provider.Record, 0, len(allRecords))
	for _, r := range allRecords {
		record := provider.FromLibdns(libdns.RR{
			Name: provider.RelativeName(r.Name, zone.Name),
			Type: r.Type,
			Data: r.Content,
			TTL:  time.Duration(r.TTL) * time.Second,
		}, zone.Name)
		record.ID = r.ID
		result = append(result, record)
	}

	p.metrics.IncDNSRequest("read", true)
	slog.Debug("Retrieved DNS records", "zone", zone.Name, "count", len(result), "duration", time.Since(start))
	return result, nil
}

func (p *CloudflareProvider) UpdateRecord(ctx context.Context, zone provider.Zone, record provider.Record, data string, ttl time.Duration) error {
	name := provider.AbsoluteName(record.Name, zone.Name)
	slog.Debug("Updating DNS record", "zone", zone.Name, "name", name, "type", record.Type, "data", data)
	start := time.Now()

	params := cloudflare.UpdateDNSRecordParams{
		ID:      record.ID,
		Type:    record.Type,
		Name:    name,
		Content: data,
		TTL:     int(ttl.Seconds()),
	}

	_, err := p.client.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(zone.ID), params)
	if err != nil {
		p.metrics.IncDNSRequest("update", false)
		return fmt.Errorf("failed to update DNS record: %w", err)
	}

	p.metrics.IncDNSRequest("update", true)
	slog.Debug("Updated DNS record", "zone", zone.Name, "name", name, "type", record.Type, "duration", time.Since(start))
	return nil
}
