package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath    = "config.yaml"
	defaultStatePath     = "dns-ip-sync.db"
	defaultMetricsAddr   = ":9090"
	defaultProvider      = ProviderDigitalOcean
	defaultTTL           = 3600
	defaultWorkers       = 2
	defaultLookupTimeout = 10 * time.Second
	defaultLogLevel      = "info"
	defaultLogEnv        = "prod"

	// MinTTL is the lowest record ttl, in seconds, the providers accept.
	MinTTL = 30

	envPrefix = "DNS_IP_SYNC_"
)

const (
	ProviderDigitalOcean = "digitalocean"
	ProviderCloudflare   = "cloudflare"
	ProviderCloudDNS     = "clouddns"
)

type Config struct {
	SyncInterval time.Duration `yaml:"syncInterval"`
	StatePath    string        `yaml:"statePath"`
	MetricsAddr  string        `yaml:"metricsAddr"`
	Log          Log           `yaml:"log"`
	Lookup       Lookup        `yaml:"lookup"`
	DNS          DNS           `yaml:"dns"`
	Records      Records       `yaml:"records"`
	Reconcile    Reconcile     `yaml:"reconcile"`
}

type Log struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

type Lookup struct {
	Timeout time.Duration `yaml:"timeout"`
	Sources []Source      `yaml:"sources"`
}

// Source is a public address endpoint. KeyPath is a dot separated path into
// a JSON response; empty means the body is the address.
type Source struct {
	Endpoint string `yaml:"endpoint"`
	KeyPath  string `yaml:"keyPath"`
}

type DNS struct {
	Provider        string `yaml:"provider"`
	Token           string `yaml:"token"`
	Project         string `yaml:"project"`
	CredentialsFile string `yaml:"credentialsFile"`
	Workers         int    `yaml:"workers"`
}

type Records struct {
	Names []string `yaml:"names"`
	TTL   int      `yaml:"ttl"`
}

type Reconcile struct {
	DryRun bool `yaml:"dryRun"`
}

// Interval is the delay between sync cycles. Without an explicit
// syncInterval the records are polled once per ttl.
func (c *Config) Interval() time.Duration {
	if c.SyncInterval > 0 {
		return c.SyncInterval
	}
	return time.Duration(c.Records.TTL) * time.Second
}

// NeedsToken reports whether the configured provider authenticates with an
// API token rather than a credentials file.
func (c *Config) NeedsToken() bool {
	switch c.DNS.Provider {
	case ProviderDigitalOcean, ProviderCloudflare:
		return true
	}
	return false
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigPath
	}
	configFile := true
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Default().Warn("fail find config file, proceeding", "path", path)
		configFile = false
	}

	var cfg Config
	if configFile {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			f.Close()
			return nil, fmt.Errorf("decode config file %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			slog.Default().Warn("fail close config file", "path", path, "error", err)
		}
	}

	applyEnv(&cfg)
	cfg.setDefaults()
	cfg.Records.Names = SplitRecords(cfg.Records.Names)
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.StatePath == "" {
		c.StatePath = defaultStatePath
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = defaultMetricsAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Env == "" {
		c.Log.Env = defaultLogEnv
	}
	if c.Lookup.Timeout == 0 {
		c.Lookup.Timeout = defaultLookupTimeout
	}
	if c.DNS.Provider == "" {
		c.DNS.Provider = defaultProvider
	}
	if c.DNS.Workers == 0 {
		c.DNS.Workers = defaultWorkers
	}
	if c.Records.TTL == 0 {
		c.Records.TTL = defaultTTL
	}
}

func applyEnv(cfg *Config) {
	if v := getenv("RECORDS"); v != "" {
		cfg.Records.Names = strings.Split(v, ",")
	}
	if v := getenv("TTL"); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil {
			cfg.Records.TTL = ttl
		} else {
			slog.Default().Warn("fail parse ttl to int from string", "ttl", v, "error", err)
		}
	}
	if v := getenv("INTERVAL"); v != "" {
		if interval, err := time.ParseDuration(v); err == nil {
			cfg.SyncInterval = interval
		} else {
			slog.Default().Warn("fail parse sync interval to duration from string", "interval", v, "error", err)
		}
	}
	if v := getenv("LOOKUP_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			cfg.Lookup.Timeout = timeout
		} else {
			slog.Default().Warn("fail parse lookup timeout to duration from string", "timeout", v, "error", err)
		}
	}
	if v := getenv("TOKEN"); v != "" {
		cfg.DNS.Token = v
	}
	if v := getenv("PROVIDER"); v != "" {
		cfg.DNS.Provider = strings.ToLower(v)
	}
	if v := getenv("PROJECT"); v != "" {
		cfg.DNS.Project = v
	}
	if v := getenv("CREDENTIALS_FILE"); v != "" {
		cfg.DNS.CredentialsFile = v
	}
	if v := getenv("WORKERS"); v != "" {
		if workers, err := strconv.Atoi(v); err == nil {
			cfg.DNS.Workers = workers
		} else {
			slog.Default().Warn("fail parse workers to int from string", "workers", v, "error", err)
		}
	}
	if v := getenv("STATE_PATH"); v != "" {
		cfg.StatePath = v
	}
	if v := getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := getenv("DRYRUN"); v != "" {
		switch strings.ToLower(v) {
		case "true":
			cfg.Reconcile.DryRun = true
		case "false":
			cfg.Reconcile.DryRun = false
		default:
			slog.Default().Warn("fail parse dryrun to bool from string", "dryrun", v)
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("LOG_ENV"); v != "" {
		cfg.Log.Env = v
	}
}

func getenv(key string) string {
	return os.Getenv(envPrefix + key)
}

// SplitRecords flattens comma separated record lists, drops whitespace and
// empty entries and normalizes each name to lower case without a trailing dot.
func SplitRecords(raw []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range raw {
		r = strings.Join(strings.Fields(r), "")
		for _, name := range strings.Split(r, ",") {
			name = strings.TrimSuffix(strings.ToLower(name), ".")
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if len(c.Records.Names) == 0 {
		return errors.New("at least one record is required")
	}
	for _, name := range c.Records.Names {
		labels, ok := dns.IsDomainName(name)
		if !ok || labels < 2 {
			return fmt.Errorf("invalid record name %q", name)
		}
	}
	if c.Records.TTL < MinTTL {
		return fmt.Errorf("ttl %d is below the minimum of %d seconds", c.Records.TTL, MinTTL)
	}
	switch c.DNS.Provider {
	case ProviderDigitalOcean, ProviderCloudflare:
		if c.DNS.Token == "" {
			return fmt.Errorf("%s API token required", c.DNS.Provider)
		}
	case ProviderCloudDNS:
		if c.DNS.Project == "" {
			return errors.New("clouddns project required")
		}
	default:
		return fmt.Errorf("unsupported dns provider %q", c.DNS.Provider)
	}
	if c.DNS.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.DNS.Workers)
	}
	if c.Lookup.Timeout <= 0 {
		return fmt.Errorf("lookup timeout must be positive, got %s", c.Lookup.Timeout)
	}
	for i, s := range c.Lookup.Sources {
		if s.Endpoint == "" {
			return fmt.Errorf("lookup source %d has no endpoint", i)
		}
	}
	return nil
}
