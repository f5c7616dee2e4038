package engine

import (
	"sync"

	"github.com/etdns/etdns/internal/dns/common/log"
	"github.com/etdns/etdns/internal/dns/common/utils"
	"github.com/etdns/etdns/internal/dns/domain"
)

// apexCounters accumulates query outcomes for one effective apex domain.
type apexCounters struct {
	Queries uint64
	RCodes  map[domain.RCode]uint64
}

// Stats aggregates per-apex query counters. Query names are folded to their
// effective apex (publicsuffix rules) so every subdomain of a zone counts
// against one key.
type Stats struct {
	mu    sync.Mutex
	apexs map[string]*apexCounters
}

// NewStats creates an empty counter set.
func NewStats() *Stats {
	return &Stats{apexs: make(map[string]*apexCounters)}
}

// Record counts one answered query against the name's apex.
func (s *Stats) Record(name string, rcode domain.RCode) {
	apex := utils.ApexDomain(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.apexs[apex]
	if !ok {
		c = &apexCounters{RCodes: make(map[domain.RCode]uint64)}
		s.apexs[apex] = c
	}
	c.Queries++
	c.RCodes[rcode]++
}

// Snapshot returns a copy of the counters keyed by apex.
func (s *Stats) Snapshot() map[string]apexCounters {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]apexCounters, len(s.apexs))
	for apex, c := range s.apexs {
		rcodes := make(map[domain.RCode]uint64, len(c.RCodes))
		for rc, n := range c.RCodes {
			rcodes[rc] = n
		}
		out[apex] = apexCounters{Queries: c.Queries, RCodes: rcodes}
	}
	return out
}

// LogSummary writes one line per apex, used at shutdown.
func (s *Stats) LogSummary(logger log.Logger) {
	for apex, c := range s.Snapshot() {
		rcodes := make(map[string]any, len(c.RCodes))
		for rc, n := range c.RCodes {
			rcodes[rc.String()] = n
		}
		logger.Info(map[string]any{
			"apex":    apex,
			"queries": c.Queries,
			"rcodes":  rcodes,
		}, "Query statistics")
	}
}
