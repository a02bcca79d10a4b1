package digitalocean

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/digitalocean/godo"
	"github.com/libdns/libdns"
	"golang.org/x/oauth2"

	"github.com/evanofslack/dns-ip-sync/internal/config"
	"github.com/evanofslack/dns-ip-sync/internal/metrics"
	"github.com/evanofslack/dns-ip-sync/internal/provider"
)

const perPage = 200

func init() {
	provider.Register(config.ProviderDigitalOcean, func(cfg config.DNS, m *metrics.Metrics) (provider.Provider, error) {
		return New(cfg, m)
	})
}

type DigitalOceanProvider struct {
	client  *godo.Client
	metrics *metrics.Metrics
}

func New(cfg config.DNS, metrics *metrics.Metrics, opts ...godo.ClientOpt) (*DigitalOceanProvider, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("digitalocean API token required")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	client, err := godo.New(oauth2.NewClient(context.Background(), ts), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create DigitalOcean client: %w", err)
	}
	return &DigitalOceanProvider{
		client:  client,
		metrics: metrics,
	}, nil
}

// DigitalOcean identifies domains by name, so Zone.ID and Zone.Name match.
func (p *DigitalOceanProvider) ListZones(ctx context.Context) ([]provider.Zone, error) {
	slog.Debug("Listing DNS zones")
	var zones []provider.Zone
	opt := &godo.ListOptions{PerPage: perPage}
	for {
		domains, resp, err := p.client.Domains.List(ctx, opt)
		if err != nil {
			p.metrics.IncDNSRequest("read", false)
			return nil, fmt.Errorf("failed to list domains: %w", err)
		}
		for _, d := range domains {
			zones = append(zones, provider.Zone{ID: d.Name, Name: d.Name})
		}
		next, ok, err := nextPage(resp)
		if err != nil {
			p.metrics.IncDNSRequest("read", false)
			return nil, err
		}
		if !ok {
			break
		}
		opt.Page = next
	}
	p.metrics.IncDNSRequest("read", true)
	return zones, nil
}

func (p *DigitalOceanProvider) ListRecords(ctx context.Context, zone provider.Zone) ([]provider.Record, error) {
	slog.Debug("Getting DNS records", "zone", zone.Name)
	start := time.Now()

	var result []provider.Record
	opt := &godo.ListOptions{PerPage: perPage}
	for {
		records, resp, err := p.client.Domains.Records(ctx, zone.Name, opt)
		if err != nil {
			p.metrics.IncDNSRequest("read", false)
			return nil, fmt.Errorf("failed to list domain records: %w", err)
		}
		for _, r := range records {
			result = append(result, fromDomainRecord(r, zone.Name))
		}
		next, ok, err := nextPage(resp)
		if err != nil {
			p.metrics.IncDNSRequest("read", false)
			return nil, err
		}
		if !ok {
			break
		}
		opt.Page = next
	}

	p.metrics.IncDNSRequest("read", true)
	slog.Debug("Retrieved DNS records", "zone", zone.Name, "count", len(result), "duration", time.Since(start))
	return result, nil
}

func (p *DigitalOceanProvider) UpdateRecord(ctx context.Context, zone provider.Zone, record provider.Record, data string, ttl time.Duration) error {
	slog.Debug("Updating DNS record", "zone", zone.Name, "name", record.Name, "type", record.Type, "data", data)
	start := time.Now()

	id, err := strconv.Atoi(record.ID)
	if err != nil {
		return fmt.Errorf("invalid record id %q: %w", record.ID, err)
	}
	req := &godo.DomainRecordEditRequest{
		Type: record.Type,
		Name: record.Name,
		Data: data,
		TTL:  int(ttl.Seconds()),
	}
	if _, _, err := p.client.Domains.EditRecord(ctx, zone.Name, id, req); err != nil {
		p.metrics.IncDNSRequest("update", false)
		return fmt.Errorf("failed to update domain record: %w", err)
	}

	p.metrics.IncDNSRequest("update", true)
	slog.Debug("Updated DNS record", "zone", zone.Name, "name", record.Name, "type", record.Type, "duration", time.Since(start))
	return nil
}

func fromDomainRecord(r godo.DomainRecord, zone string) provider.Record {
	record := provider.FromLibdns(libdns.RR{
		Name: r.Name,
		Type: r.Type,
		Data: r.Data,
		TTL:  time.Duration(r.TTL) * time.Second,
	}, zone)
	record.ID = strconv.Itoa(r.ID)
	return record
}

func nextPage(resp *godo.Response) (int, bool, error) {
	if resp == nil || resp.Links == nil || resp.Links.IsLastPage() {
		return 0, false, nil
	}
	page, err := resp.Links.CurrentPage()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read current page: %w", err)
	}
	return page + 1, true, nil
}
