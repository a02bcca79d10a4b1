package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/evanofslack/dns-ip-sync/internal/config"
	"github.com/evanofslack/dns-ip-sync/internal/metrics"
)

// Factory builds a Provider from the dns section of the configuration.
type Factory func(cfg config.DNS, metrics *metrics.Metrics) (Provider, error)

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

// Register is called by backend packages in their init() to self-register.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("provider: %q already registered", name))
	}
	factories[name] = f
}

// New looks up the named backend and creates it.
func New(name string, cfg config.DNS, metrics *metrics.Metrics) (Provider, error) {
	mu.Lock()
	f, ok := factories[name]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unsupported DNS provider: %q (registered: %v)", name, Registered())
	}
	return f(cfg, metrics)
}

// Registered lists the backend names in sorted order.
func Registered() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
