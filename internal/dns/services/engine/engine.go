// Package engine implements the query processing service: it routes decoded
// questions through the catalog, maps resolution outcomes onto response
// codes, and manages the dynamic zone lifecycle.
package engine

import (
	"context"
	"fmt"
	"net"

	"github.com/etdns/etdns/internal/dns/common/clock"
	"github.com/etdns/etdns/internal/dns/common/log"
	"github.com/etdns/etdns/internal/dns/domain"
	"github.com/etdns/etdns/internal/dns/repos/authority"
)

// Engine answers queries from the catalog and owns the optional response
// cache, zone persistence, and per-apex statistics.
type Engine struct {
	catalog Catalog
	store   ZoneStore
	cache   *responseCache
	stats   *Stats
	logger  log.Logger
}

// Options configures a new Engine. Catalog and Logger are required; Store
// may be nil (no persistence) and CacheSize zero (no response cache).
type Options struct {
	Catalog   Catalog
	Store     ZoneStore
	CacheSize int
	Clock     clock.Clock
	Logger    log.Logger
}

// New constructs an Engine from options.
func New(opts Options) (*Engine, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("engine requires a catalog")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}

	e := &Engine{
		catalog: opts.Catalog,
		store:   opts.Store,
		stats:   NewStats(),
		logger:  opts.Logger,
	}
	if opts.CacheSize > 0 {
		cache, err := newResponseCache(opts.CacheSize, opts.Clock)
		if err != nil {
			return nil, fmt.Errorf("response cache: %w", err)
		}
		e.cache = cache
	}
	return e, nil
}

// HandleQuery resolves one question and always returns a response; failures
// surface as RCodes. Outcome mapping: answered → NOERROR with records,
// no data → NOERROR with none, unknown name → NXDOMAIN, resolution failure
// (alias loop or depth) → SERVFAIL, no enclosing zone → REFUSED.
func (e *Engine) HandleQuery(_ context.Context, q domain.Question, clientAddr net.Addr) domain.DNSResponse {
	resp := e.resolve(q, clientAddr)
	e.stats.Record(q.Name, resp.RCode)
	return resp
}

func (e *Engine) resolve(q domain.Question, clientAddr net.Addr) domain.DNSResponse {
	if e.cache != nil {
		if resp, ok := e.cache.Get(q); ok {
			return resp
		}
	}

	ans, authoritative, err := e.catalog.Answer(q)
	if err != nil {
		e.logger.Warn(map[string]any{
			"client": addrString(clientAddr),
			"name":   q.Name,
			"type":   q.Type.String(),
			"error":  err.Error(),
		}, "Query resolution failed")
		return e.errorResponse(q, domain.RCodeServFail)
	}
	if !authoritative {
		e.logger.Debug(map[string]any{
			"client": addrString(clientAddr),
			"name":   q.Name,
		}, "Refusing query outside served zones")
		return e.errorResponse(q, domain.RCodeRefused)
	}

	var resp domain.DNSResponse
	switch ans.Outcome {
	case domain.OutcomeAnswered:
		resp, err = domain.NewDNSResponse(q, domain.RCodeNoError, ans.Records)
	case domain.OutcomeNoData:
		resp, err = domain.NewDNSResponse(q, domain.RCodeNoError, nil)
	case domain.OutcomeNameError:
		resp, err = domain.NewDNSResponse(q, domain.RCodeNXDomain, nil)
	default:
		err = fmt.Errorf("unknown outcome %v", ans.Outcome)
	}
	if err != nil {
		e.logger.Error(map[string]any{
			"name":  q.Name,
			"error": err.Error(),
		}, "Failed to build response")
		return e.errorResponse(q, domain.RCodeServFail)
	}

	if e.cache != nil && ans.Outcome == domain.OutcomeAnswered {
		e.cache.Put(q, resp)
	}
	return resp
}

// errorResponse keeps the echoed question so clients can correlate errors.
func (e *Engine) errorResponse(q domain.Question, rcode domain.RCode) domain.DNSResponse {
	resp := domain.NewErrorResponse(q.ID, rcode)
	resp.Question = q
	resp.Authoritative = rcode != domain.RCodeRefused
	return resp
}

// UpsertZone builds an authority from the given records and installs it,
// replacing any zone at the same apex. The zone is persisted when a store
// is configured, and the response cache is purged.
func (e *Engine) UpsertZone(apex string, rrs []domain.ResourceRecord) error {
	auth, err := authority.New(apex, domain.ZonePrimary)
	if err != nil {
		return err
	}
	if err := auth.Load(rrs); err != nil {
		return err
	}

	e.catalog.Upsert(auth)
	e.purgeCache()

	if e.store != nil {
		if err := e.store.PutZone(auth.Apex(), auth.Records()); err != nil {
			return fmt.Errorf("persist zone %s: %w", auth.Apex(), err)
		}
	}

	e.logger.Info(map[string]any{
		"zone":    auth.Apex(),
		"records": auth.Count(),
	}, "Zone installed")
	return nil
}

// RemoveZone deletes a zone from the catalog and the persistent store.
// Removing an absent zone is a no-op.
func (e *Engine) RemoveZone(apex string) error {
	removed := e.catalog.Remove(apex)
	if removed {
		e.purgeCache()
	}
	if e.store != nil {
		if err := e.store.DeleteZone(apex); err != nil {
			return fmt.Errorf("delete persisted zone %s: %w", apex, err)
		}
	}
	if removed {
		e.logger.Info(map[string]any{"zone": apex}, "Zone removed")
	}
	return nil
}

// LoadPersistedZones restores zones from the store into the catalog.
// Persisted zones never shadow ones already registered from configuration.
func (e *Engine) LoadPersistedZones() error {
	if e.store == nil {
		return nil
	}
	zones, err := e.store.LoadAll()
	if err != nil {
		return fmt.Errorf("load persisted zones: %w", err)
	}
	for apex, rrs := range zones {
		if e.catalog.Contains(apex) {
			e.logger.Warn(map[string]any{"zone": apex}, "Persisted zone shadowed by configured zone")
			continue
		}
		auth, err := authority.New(apex, domain.ZonePrimary)
		if err != nil {
			return err
		}
		if err := auth.Load(rrs); err != nil {
			return err
		}
		e.catalog.Upsert(auth)
		e.logger.Info(map[string]any{
			"zone":    apex,
			"records": auth.Count(),
		}, "Restored persisted zone")
	}
	e.purgeCache()
	return nil
}

// Stats exposes the per-apex counters for shutdown reporting.
func (e *Engine) Stats() *Stats {
	return e.stats
}

func (e *Engine) purgeCache() {
	if e.cache != nil {
		e.cache.Purge()
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
