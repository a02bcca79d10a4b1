package publicip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 64 << 10
)

var (
	errKeyNotFound = errors.New("key not found")
	errNotAddress  = errors.New("not an IPv4 address")
)

// Doer is the HTTP capability the resolver needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Observer is notified of every source attempt.
type Observer interface {
	IncIPLookup(source string, success bool)
}

type Option func(*Resolver)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(c Doer) Option {
	return func(r *Resolver) {
		if c != nil {
			r.http = c
		}
	}
}

// WithTimeout bounds each source attempt.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(r *Resolver) {
		r.observer = o
	}
}

// Resolver finds the public IPv4 address by walking the registry in order
// and returning the first usable answer.
type Resolver struct {
	registry *Registry
	http     Doer
	timeout  time.Duration
	observer Observer
}

func NewResolver(registry *Registry, opts ...Option) *Resolver {
	r := &Resolver{
		registry: registry,
		http:     cleanhttp.DefaultPooledClient(),
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the address from the first source that answers with one.
// Sources after it are not contacted. When every source fails the result is
// false; that is not an error, the caller should try again next cycle.
func (r *Resolver) Resolve(ctx context.Context) (netip.Addr, bool) {
	for _, src := range r.registry.Sources() {
		if ctx.Err() != nil {
			return netip.Addr{}, false
		}
		addr, err := r.lookup(ctx, src)
		r.observe(src, err == nil)
		if err != nil {
			slog.Debug("Public address source failed", "endpoint", src.Endpoint, "error", err)
			continue
		}
		slog.Debug("Resolved public address", "endpoint", src.Endpoint, "address", addr)
		return addr, true
	}
	return netip.Addr{}, false
}

func (r *Resolver) observe(src Source, success bool) {
	if r.observer != nil {
		r.observer.IncIPLookup(src.Endpoint, success)
	}
}

func (r *Resolver) lookup(ctx context.Context, src Source) (netip.Addr, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Endpoint, nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := r.http.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return netip.Addr{}, fmt.Errorf("http request returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("read body: %w", err)
	}

	raw := string(body)
	if keys := src.keys(); keys != nil {
		if raw, err = extract(body, keys); err != nil {
			return netip.Addr{}, err
		}
	}
	return parseIPv4(raw)
}

// extract walks keys through nested JSON objects and returns the string leaf.
func extract(body []byte, keys []string) (string, error) {
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return "", fmt.Errorf("decode json: %w", err)
	}
	for _, key := range keys {
		obj, ok := value.(map[string]any)
		if !ok {
			return "", fmt.Errorf("%w: %q is not inside an object", errKeyNotFound, key)
		}
		if value, ok = obj[key]; !ok {
			return "", fmt.Errorf("%w: %q", errKeyNotFound, key)
		}
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("value at key path is %T, not a string", value)
	}
	return s, nil
}

func parseIPv4(raw string) (netip.Addr, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return netip.Addr{}, fmt.Errorf("%w: empty response", errNotAddress)
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %v", errNotAddress, err)
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %s", errNotAddress, addr)
	}
	return addr, nil
}
