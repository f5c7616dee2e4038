// Package catalog maintains the set of zones the server is authoritative
// for and routes each query to the most specific matching zone.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/etdns/etdns/internal/dns/common/utils"
	"github.com/etdns/etdns/internal/dns/domain"
	"github.com/etdns/etdns/internal/dns/repos/authority"
)

// DuplicateZoneError reports an attempt to register a zone whose apex is
// already present in the catalog.
type DuplicateZoneError struct {
	Apex string
}

func (e *DuplicateZoneError) Error() string {
	return fmt.Sprintf("zone %q is already registered", e.Apex)
}

// Catalog maps zone apexes to their authorities. Reads vastly outnumber
// writes, so a single RWMutex guards the map: every query takes a read
// lock, zone mutations take the write lock.
type Catalog struct {
	mu    sync.RWMutex
	zones map[string]*authority.Authority
}

// New creates an empty Catalog.
func New() *Catalog {
	return &Catalog{
		zones: make(map[string]*authority.Authority),
	}
}

// Register adds a zone to the catalog. Registering an apex that already
// exists fails with a DuplicateZoneError; use Upsert to replace.
func (c *Catalog) Register(auth *authority.Authority) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	apex := auth.Apex()
	if _, exists := c.zones[apex]; exists {
		return &DuplicateZoneError{Apex: apex}
	}
	c.zones[apex] = auth
	return nil
}

// Upsert adds a zone to the catalog, replacing any existing zone at the
// same apex.
func (c *Catalog) Upsert(auth *authority.Authority) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zones[auth.Apex()] = auth
}

// Remove deletes the zone at apex and reports whether it was present.
func (c *Catalog) Remove(apex string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	apex = utils.CanonicalDNSName(apex)
	_, exists := c.zones[apex]
	delete(c.zones, apex)
	return exists
}

// Contains reports whether a zone is registered at exactly the given apex.
func (c *Catalog) Contains(apex string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.zones[utils.CanonicalDNSName(apex)]
	return exists
}

// Len returns the number of registered zones.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.zones)
}

// Zones returns the registered apexes in sorted order.
func (c *Catalog) Zones() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.zones))
	for apex := range c.zones {
		out = append(out, apex)
	}
	sort.Strings(out)
	return out
}

// FindAuthority returns the authority for the most specific zone enclosing
// name, walking from the name itself up through its ancestors. A query for
// "www.sub.et.internal" matches a zone at "sub.et.internal" before one at
// "et.internal". Returns nil when no registered zone encloses the name.
func (c *Catalog) FindAuthority(name string) *authority.Authority {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, candidate := range utils.ParentNames(utils.CanonicalDNSName(name)) {
		if auth, ok := c.zones[candidate]; ok {
			return auth
		}
	}
	return nil
}

// Answer routes a question to its enclosing zone and resolves it there.
// The second return value reports whether any zone claimed the name; when
// false the server is not authoritative and should refuse.
func (c *Catalog) Answer(q domain.Question) (domain.Answer, bool, error) {
	auth := c.FindAuthority(q.Name)
	if auth == nil {
		return domain.Answer{}, false, nil
	}
	ans, err := auth.Answer(q)
	return ans, true, err
}
