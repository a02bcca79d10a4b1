package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/evanofslack/dns-ip-sync/internal/config"
	"github.com/evanofslack/dns-ip-sync/internal/logger"
	"github.com/evanofslack/dns-ip-sync/internal/metrics"
	"github.com/evanofslack/dns-ip-sync/internal/provider"
	_ "github.com/evanofslack/dns-ip-sync/internal/provider/providers"
	"github.com/evanofslack/dns-ip-sync/internal/publicip"
	"github.com/evanofslack/dns-ip-sync/internal/reconcile"
	"github.com/evanofslack/dns-ip-sync/internal/state"
	"github.com/evanofslack/dns-ip-sync/internal/worker"
)

type addressResolver interface {
	Resolve(ctx context.Context) (netip.Addr, bool)
}

type syncer struct {
	resolver addressResolver
	engine   reconcile.Engine
	records  []reconcile.DesiredRecord
	ledger   state.Manager
	metrics  *metrics.Metrics
}

func main() {
	flags, err := config.ParseFlags("dns-ip-sync", os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if flags.Help {
		flags.PrintUsage()
		os.Exit(0)
	}

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	flags.Apply(cfg)
	logger.Configure(cfg.Log.Level, cfg.Log.Env)

	if err := config.PromptToken(cfg, os.Stderr); err != nil {
		slog.Error("Failed to read access token", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	metrics := metrics.New(true)

	stateManager, err := state.New(cfg.StatePath, metrics)
	if err != nil {
		slog.Error("Failed to initialize state manager", "error", err)
		os.Exit(1)
	}
	defer stateManager.Close()

	dnsProvider, err := provider.New(cfg.DNS.Provider, cfg.DNS, metrics)
	if err != nil {
		slog.Error("Failed to initialize DNS provider", "provider", cfg.DNS.Provider, "error", err)
		os.Exit(1)
	}

	s := &syncer{
		resolver: publicip.NewResolver(newRegistry(cfg.Lookup.Sources),
			publicip.WithTimeout(cfg.Lookup.Timeout),
			publicip.WithObserver(metrics),
		),
		engine:  reconcile.NewEngine(dnsProvider, worker.New(cfg.DNS.Workers), cfg.Reconcile.DryRun, metrics),
		records: reconcile.DesiredRecords(cfg.Records.Names, cfg.Records.TTL),
		ledger:  stateManager,
		metrics: metrics,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if flags.Once {
		if err := s.performSync(ctx); err != nil {
			slog.Error("Sync operation failed", "error", err)
			stateManager.Close()
			os.Exit(1)
		}
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/status", state.Handler(stateManager))

	server := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: mux,
	}

	go func() {
		slog.Info("Starting metrics server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	slog.Info("Starting dns-ip-sync service",
		"provider", cfg.DNS.Provider,
		"records", cfg.Records.Names,
		"ttl", cfg.Records.TTL,
		"interval", cfg.Interval(),
		"dry_run", cfg.Reconcile.DryRun)

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go runSyncLoop(ctx, wg, s, cfg.Interval())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("Shutdown signal received")
	cancel()

	serverShutdownCtx, cancelServer := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelServer()
	if err := server.Shutdown(serverShutdownCtx); err != nil {
		slog.Error("Metrics server shutdown error", "error", err)
	}

	wg.Wait()
	slog.Info("Service shutdown complete")
}

func newRegistry(sources []config.Source) *publicip.Registry {
	if len(sources) == 0 {
		return publicip.NewRegistry(publicip.DefaultSources()...)
	}
	registry := publicip.NewRegistry()
	for _, src := range sources {
		registry.Register(publicip.Source{Endpoint: src.Endpoint, KeyPath: src.KeyPath})
	}
	return registry
}

type cycle interface {
	performSync(ctx context.Context) error
}

// runSyncLoop waits a full interval after each cycle ends before starting
// the next one.
func runSyncLoop(ctx context.Context, wg *sync.WaitGroup, c cycle, interval time.Duration) {
	defer wg.Done()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		if err := c.performSync(ctx); err != nil {
			slog.Error("Sync operation failed", "error", err)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(interval)

		select {
		case <-timer.C:
			continue
		case <-ctx.Done():
			slog.Info("Stopping sync loop")
			return
		}
	}
}

// performSync runs one resolve and reconcile cycle. A panic is returned as
// an error so the loop keeps going.
func (s *syncer) performSync(ctx context.Context) (err error) {
	slog.Info("Starting sync operation")
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panic: %v", r)
		}
		s.metrics.SetSyncDuration(time.Since(start))
		s.metrics.IncSyncRun(err == nil)
	}()

	addr, ok := s.resolver.Resolve(ctx)
	if !ok {
		slog.Warn("Could not determine public address from any source, skipping reconcile")
		return nil
	}
	s.metrics.SetPublicAddress(addr.String())
	slog.Info("Resolved public address", "address", addr)

	slog.Info("Reconciling records", "count", len(s.records))
	results, err := s.engine.Reconcile(ctx, s.records, addr)
	if err != nil {
		return err
	}

	if err := s.ledger.SaveState(ctx, state.FromResults(addr.String(), results, time.Now())); err != nil {
		slog.Error("Failed to save state", "error", err)
	}

	slog.Info("Sync completed",
		"updated", results.Count(reconcile.StatusUpdated),
		"skipped", results.Count(reconcile.StatusSkipped),
		"failed", results.Count(reconcile.StatusFailed),
		"duration", time.Since(start))
	return nil
}
