package config

import (
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// Flags holds the command-line surface. Values only override the loaded
// configuration when the flag was given explicitly.
type Flags struct {
	ConfigPath string
	Records    []string
	Token      string
	TTL        int
	Provider   string
	DryRun     bool
	Once       bool
	Help       bool

	fs *flag.FlagSet
}

// ParseFlags parses args, which excludes the program name.
func ParseFlags(name string, args []string, output io.Writer) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(output, "Usage of %s:\n", name)
		fs.PrintDefaults()
	}

	fs.StringVarP(&f.ConfigPath, "config", "c", defaultConfigPath, "Path to the YAML configuration file")
	fs.StringArrayVarP(&f.Records, "record", "r", nil,
		`DNS record to keep pointed at the public address. May be repeated
or given as a comma separated list.`)
	fs.StringVarP(&f.Token, "access-token", "a", "",
		"DNS provider API token (or "+envPrefix+"TOKEN)")
	fs.IntVarP(&f.TTL, "ttl", "t", defaultTTL,
		fmt.Sprintf("Record time to live in seconds. Minimum %d.", MinTTL))
	fs.StringVarP(&f.Provider, "provider", "p", defaultProvider,
		strings.Join([]string{ProviderDigitalOcean, ProviderCloudflare, ProviderCloudDNS}, " | "))
	fs.BoolVar(&f.DryRun, "dry-run", false, "Report drift without updating records")
	fs.BoolVar(&f.Once, "once", false, "Run a single sync cycle and exit")
	fs.BoolVarP(&f.Help, "help", "h", false, "Print command-line usage")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if len(fs.Args()) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	f.fs = fs
	return f, nil
}

func (f *Flags) PrintUsage() {
	f.fs.Usage()
}

// Apply copies explicitly set flags over cfg.
func (f *Flags) Apply(cfg *Config) {
	if f.fs.Changed("record") {
		cfg.Records.Names = SplitRecords(f.Records)
	}
	if f.fs.Changed("access-token") {
		cfg.DNS.Token = f.Token
	}
	if f.fs.Changed("ttl") {
		cfg.Records.TTL = f.TTL
	}
	if f.fs.Changed("provider") {
		cfg.DNS.Provider = strings.ToLower(f.Provider)
	}
	if f.fs.Changed("dry-run") {
		cfg.Reconcile.DryRun = f.DryRun
	}
}
