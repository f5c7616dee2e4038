package engine

import (
	"github.com/etdns/etdns/internal/dns/domain"
	"github.com/etdns/etdns/internal/dns/repos/authority"
)

// Catalog is the zone routing surface the engine queries and mutates.
type Catalog interface {
	Answer(q domain.Question) (domain.Answer, bool, error)
	Upsert(auth *authority.Authority)
	Remove(apex string) bool
	Contains(apex string) bool
	Zones() []string
}

// ZoneStore persists dynamically managed zones across restarts. The engine
// tolerates a nil store; persistence is optional.
type ZoneStore interface {
	PutZone(apex string, rrs []domain.ResourceRecord) error
	DeleteZone(apex string) error
	LoadAll() (map[string][]domain.ResourceRecord, error)
}
