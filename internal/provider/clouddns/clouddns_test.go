package clouddns

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	dns "google.golang.org/api/dns/v1"
	"google.golang.org/api/option"

	"github.com/evanofslack/dns-ip-sync/internal/config"
	"github.com/evanofslack/dns-ip-sync/internal/metrics"
	"github.com/evanofslack/dns-ip-sync/internal/provider"
)

type fakeAPI struct {
	mu      sync.Mutex
	changes []dns.Change
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, "/projects/my-project/managedZones"):
		io.WriteString(w, `{"managedZones":[{"name":"home-zone","dnsName":"example.com."}]}`)
	case strings.HasSuffix(path, "/managedZones/home-zone/rrsets"):
		io.WriteString(w, `{"rrsets":[
			{"name":"example.com.","type":"SOA","ttl":21600,"rrdatas":["ns1. admin. 1 21600 3600 259200 300"]},
			{"name":"home.example.com.","type":"A","ttl":3600,"rrdatas":["5.6.7.8"]}
		]}`)
	case strings.HasSuffix(path, "/managedZones/home-zone/changes") && r.Method == http.MethodPost:
		var chg dns.Change
		json.NewDecoder(r.Body).Decode(&chg)
		f.mu.Lock()
		f.changes = append(f.changes, chg)
		f.mu.Unlock()
		io.WriteString(w, `{"id":"7","status":"done"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"code":404,"message":"not found"}}`)
	}
}

func newTestProvider(t *testing.T, api *fakeAPI) *CloudDNSProvider {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	p, err := New(context.Background(), config.DNS{Project: "my-project"}, metrics.New(false),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

func TestNewRequiresProject(t *testing.T) {
	if _, err := New(context.Background(), config.DNS{}, metrics.New(false)); err == nil {
		t.Fatal("expected error without project")
	}
}

func TestListZonesAndRecords(t *testing.T) {
	p := newTestProvider(t, &fakeAPI{})
	ctx := context.Background()

	zones, err := p.ListZones(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(zones) != 1 || zones[0] != (provider.Zone{ID: "home-zone", Name: "example.com"}) {
		t.Fatalf("unexpected zones %+v", zones)
	}

	records, err := p.ListRecords(ctx, zones[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %+v", records)
	}
	expected := provider.Record{ID: "home.example.com.", Name: "home", Type: "A", Data: "5.6.7.8", Zone: "example.com", TTL: time.Hour}
	if records[1] != expected {
		t.Errorf("expected %+v, got %+v", expected, records[1])
	}
	if records[0].Name != provider.Apex {
		t.Errorf("expected apex label for SOA, got %q", records[0].Name)
	}
}

func TestUpdateRecordReplacesRecordSet(t *testing.T) {
	api := &fakeAPI{}
	p := newTestProvider(t, api)

	zone := provider.Zone{ID: "home-zone", Name: "example.com"}
	record := provider.Record{ID: "home.example.com.", Name: "home", Type: "A", Data: "5.6.7.8", TTL: time.Hour}
	if err := p.UpdateRecord(context.Background(), zone, record, "9.9.9.9", 5*time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(api.changes))
	}
	chg := api.changes[0]
	if len(chg.Deletions) != 1 || len(chg.Additions) != 1 {
		t.Fatalf("expected one deletion and one addition, got %+v", chg)
	}
	del, add := chg.Deletions[0], chg.Additions[0]
	if del.Name != "home.example.com." || del.Ttl != 3600 || !reflect.DeepEqual(del.Rrdatas, []string{"5.6.7.8"}) {
		t.Errorf("unexpected deletion %+v", del)
	}
	if add.Name != "home.example.com." || add.Ttl != 300 || !reflect.DeepEqual(add.Rrdatas, []string{"9.9.9.9"}) {
		t.Errorf("unexpected addition %+v", add)
	}
}

func TestFromRecordSetJoinsData(t *testing.T) {
	r := fromRecordSet(&dns.ResourceRecordSet{
		Name:    "example.com.",
		Type:    "A",
		Ttl:     60,
		Rrdatas: []string{"1.1.1.1", "2.2.2.2"},
	}, "example.com")
	if r.Name != "@" || r.Data != "1.1.1.1,2.2.2.2" || r.TTL != time.Minute {
		t.Errorf("unexpected record %+v", r)
	}
}
