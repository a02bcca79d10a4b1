package publicip

import (
	"strings"
	"sync"
)

// Source is a public address endpoint. KeyPath is a dot separated path of
// JSON object keys; empty means the whole response body is the address.
type Source struct {
	Endpoint string
	KeyPath  string
}

func (s Source) keys() []string {
	if s.KeyPath == "" {
		return nil
	}
	return strings.Split(s.KeyPath, ".")
}

// DefaultSources returns the built in sources in priority order. The first is
// the local Google Wifi status API, which answers without leaving the LAN.
func DefaultSources() []Source {
	return []Source{
		{Endpoint: "http://onhub.here/api/v1/status", KeyPath: "wan.localIpAddress"},
		{Endpoint: "https://checkip.amazonaws.com"},
		{Endpoint: "http://ipecho.net/plain"},
		{Endpoint: "http://ipinfo.io/ip"},
		{Endpoint: "https://api.ipify.org"},
	}
}

// Registry is the ordered list of sources a Resolver walks. Order is
// priority: earlier sources are always tried first.
type Registry struct {
	mu      sync.RWMutex
	sources []Source
}

// NewRegistry returns a registry holding sources in the given order.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{}
	r.sources = append(r.sources, sources...)
	return r
}

// Register appends src as the lowest priority source.
func (r *Registry) Register(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, src)
}

// Insert places src at index, shifting later sources down. Out of range
// indexes are clamped, so a negative index prepends and a large one appends.
func (r *Registry) Insert(index int, src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 {
		index = 0
	}
	if index > len(r.sources) {
		index = len(r.sources)
	}
	r.sources = append(r.sources, Source{})
	copy(r.sources[index+1:], r.sources[index:])
	r.sources[index] = src
}

// Sources returns a snapshot of the registered sources in priority order.
func (r *Registry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Len is the number of registered sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}
