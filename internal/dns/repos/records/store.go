// Package records implements the in-memory record store backing a single
// authoritative zone.
package records

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/etdns/etdns/internal/dns/common/utils"
	"github.com/etdns/etdns/internal/dns/domain"
)

// filterCapacity sizes the existence filter. Overfilling only raises the
// false-positive rate; a false positive costs one map lookup, and false
// negatives cannot occur.
const (
	filterCapacity = 4096
	filterFPRate   = 0.01
)

// Store holds the resource records of one zone, keyed by canonical owner name
// and record type. It tracks which owner names exist, including empty
// non-terminals (names that only exist as a parent of stored names), so a
// lookup can distinguish NXDOMAIN from NODATA. A bloom filter over the same
// name set short-circuits definite misses before any map access.
//
// The store itself is not concurrency safe: it is populated at load time and
// mutated afterwards only behind the Catalog's writer lock.
type Store struct {
	apex   string
	rrsets map[string]map[domain.RRType][]domain.ResourceRecord
	names  map[string]struct{}
	filter *bitsbloom.BloomFilter
	count  int
}

// New creates an empty Store for the zone rooted at apex.
func New(apex string) *Store {
	return &Store{
		apex:   utils.CanonicalDNSName(apex),
		rrsets: make(map[string]map[domain.RRType][]domain.ResourceRecord),
		names:  make(map[string]struct{}),
		filter: bitsbloom.NewWithEstimates(filterCapacity, filterFPRate),
	}
}

// Apex returns the canonical zone apex this store serves.
func (s *Store) Apex() string {
	return s.apex
}

// Insert adds a record to the store. A record with the same owner, type,
// class, and RDATA as an existing one replaces it (last write wins on the
// TTL); otherwise records accumulate side by side, e.g. multiple A records
// for round-robin.
func (s *Store) Insert(rr domain.ResourceRecord) {
	name := utils.CanonicalDNSName(rr.Name)
	set, ok := s.rrsets[name]
	if !ok {
		set = make(map[domain.RRType][]domain.ResourceRecord)
		s.rrsets[name] = set
	}

	for i, existing := range set[rr.Type] {
		if existing.SameIdentity(rr) {
			set[rr.Type][i] = rr
			return
		}
	}
	set[rr.Type] = append(set[rr.Type], rr)
	s.count++

	// Record the owner and every ancestor down to the apex so that empty
	// non-terminals answer NODATA instead of NXDOMAIN.
	for _, parent := range utils.ParentNames(name) {
		if !utils.InZone(parent, s.apex) && parent != s.apex {
			break
		}
		if _, seen := s.names[parent]; !seen {
			s.names[parent] = struct{}{}
			s.filter.Add([]byte(parent))
		}
	}
}

// Lookup returns all records matching the owner name, type, and class, with
// case-insensitive name comparison. The second return value reports whether
// the owner name exists in the zone at all: (nil, false) signals NXDOMAIN,
// (nil, true) signals NODATA. Type ANY matches every stored type.
func (s *Store) Lookup(name string, rrType domain.RRType, class domain.RRClass) ([]domain.ResourceRecord, bool) {
	name = utils.CanonicalDNSName(name)

	// Definite miss: the filter holds every existing name in the zone.
	if !s.filter.Test([]byte(name)) {
		return nil, false
	}
	if _, exists := s.names[name]; !exists {
		return nil, false
	}

	set := s.rrsets[name]
	var matches []domain.ResourceRecord
	if rrType == domain.RRTypeANY {
		for _, rrs := range set {
			matches = append(matches, filterClass(rrs, class)...)
		}
	} else {
		matches = filterClass(set[rrType], class)
	}
	return matches, true
}

// Count returns the total number of records in the store.
func (s *Store) Count() int {
	return s.count
}

// Records returns a snapshot of every record in the store, used when
// persisting a zone.
func (s *Store) Records() []domain.ResourceRecord {
	out := make([]domain.ResourceRecord, 0, s.count)
	for _, set := range s.rrsets {
		for _, rrs := range set {
			out = append(out, rrs...)
		}
	}
	return out
}

func filterClass(rrs []domain.ResourceRecord, class domain.RRClass) []domain.ResourceRecord {
	if class == domain.RRClassANY {
		return rrs
	}
	var out []domain.ResourceRecord
	for _, rr := range rrs {
		if rr.Class == class {
			out = append(out, rr)
		}
	}
	return out
}
