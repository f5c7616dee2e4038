package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/etdns/etdns/internal/dns/common/clock"
	"github.com/etdns/etdns/internal/dns/common/log"
	"github.com/etdns/etdns/internal/dns/config"
	"github.com/etdns/etdns/internal/dns/domain"
	"github.com/etdns/etdns/internal/dns/gateways/transport"
	"github.com/etdns/etdns/internal/dns/gateways/wire"
	"github.com/etdns/etdns/internal/dns/repos/authority"
	"github.com/etdns/etdns/internal/dns/repos/catalog"
	"github.com/etdns/etdns/internal/dns/repos/zone"
	"github.com/etdns/etdns/internal/dns/repos/zonestore"
	"github.com/etdns/etdns/internal/dns/services/engine"
)

const (
	version = "0.1.0-dev"
	appName = "etdnsd"
)

// Application ties the engine to its transports for startup and shutdown.
type Application struct {
	config     *config.AppConfig
	engine     *engine.Engine
	transports []transport.ServerTransport
	store      *zonestore.Store
}

func main() {
	configPath := flag.String("config", "", "path to the config file (toml, yaml, or json)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.General.Env, cfg.General.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":    version,
		"env":        cfg.General.Env,
		"log_level":  cfg.General.LogLevel,
		"listen_udp": cfg.General.ListenUDP,
		"listen_tcp": cfg.General.ListenTCP,
		"zone_dir":   cfg.General.ZoneDir,
		"zone_db":    cfg.General.ZoneDB,
		"cache_size": cfg.General.CacheSize,
	}, "Starting etdns server")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "Server failed")
	}

	log.Info(nil, "etdns server stopped gracefully")
}

// buildApplication loads every configured zone into a catalog and wires the
// engine to one transport per configured listener.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	logger := log.GetLogger()
	codec := wire.NewCodec(logger)

	defaultTTL, err := cfg.DefaultTTL()
	if err != nil {
		return nil, err
	}

	cat := catalog.New()
	if err := registerConfiguredZones(cat, cfg, defaultTTL); err != nil {
		return nil, err
	}
	log.Info(map[string]any{"zones": cat.Zones()}, "Zone catalog initialized")

	var store *zonestore.Store
	if cfg.General.ZoneDB != "" {
		store, err = zonestore.Open(cfg.General.ZoneDB)
		if err != nil {
			return nil, err
		}
	}

	eng, err := engine.New(engine.Options{
		Catalog:   cat,
		Store:     storeOrNil(store),
		CacheSize: cfg.General.CacheSize,
		Clock:     clock.RealClock{},
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	if err := eng.LoadPersistedZones(); err != nil {
		return nil, err
	}

	var transports []transport.ServerTransport
	if cfg.General.ListenUDP != "" {
		tr, err := transport.NewTransport(transport.TypeUDP, cfg.General.ListenUDP, codec, logger)
		if err != nil {
			return nil, err
		}
		transports = append(transports, tr)
	}
	if cfg.General.ListenTCP != "" {
		tr, err := transport.NewTransport(transport.TypeTCP, cfg.General.ListenTCP, codec, logger)
		if err != nil {
			return nil, err
		}
		transports = append(transports, tr)
	}

	return &Application{
		config:     cfg,
		engine:     eng,
		transports: transports,
		store:      store,
	}, nil
}

// storeOrNil avoids handing the engine a typed nil behind its interface.
func storeOrNil(store *zonestore.Store) engine.ZoneStore {
	if store == nil {
		return nil
	}
	return store
}

// registerConfiguredZones builds an authority per declared zone, from both
// the inline config zones and the zone directory, and registers them all.
// An apex declared in both sources is a configuration conflict; Register
// surfaces it as a DuplicateZoneError at startup.
func registerConfiguredZones(cat *catalog.Catalog, cfg *config.AppConfig, defaultTTL time.Duration) error {
	zonesets := make(map[string][]domain.ResourceRecord)
	for apex, recs := range cfg.Zones {
		rrs, err := zone.FromConfig(apex, recs, defaultTTL)
		if err != nil {
			return err
		}
		zonesets[apex] = rrs
	}
	if err := registerZones(cat, zonesets); err != nil {
		return err
	}

	if cfg.General.ZoneDir != "" {
		dirZones, err := zone.LoadDirectory(cfg.General.ZoneDir, defaultTTL)
		if err != nil {
			return err
		}
		if err := registerZones(cat, dirZones); err != nil {
			return err
		}
	}
	return nil
}

func registerZones(cat *catalog.Catalog, zonesets map[string][]domain.ResourceRecord) error {
	for apex, rrs := range zonesets {
		auth, err := authority.New(apex, domain.ZonePrimary)
		if err != nil {
			return err
		}
		if err := auth.Load(rrs); err != nil {
			return err
		}
		if err := cat.Register(auth); err != nil {
			return err
		}
	}
	return nil
}

// Run starts every transport and blocks until the context is cancelled,
// then drains them. A failure to bind any listener aborts startup and stops
// the listeners already running.
func (app *Application) Run(ctx context.Context) error {
	started := make([]transport.ServerTransport, 0, len(app.transports))
	for _, tr := range app.transports {
		if err := tr.Start(ctx, app.engine); err != nil {
			for _, s := range started {
				_ = s.Stop()
			}
			return fmt.Errorf("start transport: %w", err)
		}
		started = append(started, tr)
		log.Info(map[string]any{"address": tr.Address()}, "DNS listener started")
	}

	<-ctx.Done()
	log.Info(nil, "Shutdown initiated")

	for _, tr := range started {
		if err := tr.Stop(); err != nil {
			log.Warn(map[string]any{"error": err.Error()}, "Error during transport shutdown")
		}
	}

	app.engine.Stats().LogSummary(log.GetLogger())

	if app.store != nil {
		if err := app.store.Close(); err != nil {
			log.Warn(map[string]any{"error": err.Error()}, "Error closing zone database")
		}
	}

	log.Info(nil, "Graceful shutdown completed")
	return nil
}
