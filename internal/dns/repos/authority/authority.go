// Package authority implements the Zone Authority: the component that
// answers queries for names within a single zone.
package authority

import (
	"errors"
	"fmt"

	"github.com/etdns/etdns/internal/dns/common/utils"
	"github.com/etdns/etdns/internal/dns/domain"
	"github.com/etdns/etdns/internal/dns/repos/records"
)

// maxAliasDepth bounds CNAME chain expansion; exceeding it is answered
// SERVFAIL rather than looping.
const maxAliasDepth = 8

var (
	// ErrAliasDepthExceeded is returned when a CNAME chain is longer than
	// maxAliasDepth hops.
	ErrAliasDepthExceeded = errors.New("alias chain max depth exceeded")
	// ErrAliasLoopDetected is returned when a previously visited owner name
	// reappears in a CNAME chain.
	ErrAliasLoopDetected = errors.New("alias loop detected")
	// ErrUnsupportedZoneType is returned for zone types other than primary.
	ErrUnsupportedZoneType = errors.New("unsupported zone type")
)

// Authority answers queries for one zone. It exclusively owns the zone's
// record store; all mutation goes through Load, which runs before serving
// starts (or behind the Catalog's writer lock).
type Authority struct {
	apex  string
	ztype domain.ZoneType
	store *records.Store
}

// New constructs an empty Authority for the zone rooted at apex.
// Only primary zones are supported.
func New(apex string, ztype domain.ZoneType) (*Authority, error) {
	apex = utils.CanonicalDNSName(apex)
	if apex == "" {
		return nil, fmt.Errorf("zone apex must not be empty")
	}
	if ztype != domain.ZonePrimary {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedZoneType, ztype)
	}
	return &Authority{
		apex:  apex,
		ztype: ztype,
		store: records.New(apex),
	}, nil
}

// Apex returns the canonical zone apex.
func (a *Authority) Apex() string {
	return a.apex
}

// Type returns the zone type.
func (a *Authority) Type() domain.ZoneType {
	return a.ztype
}

// Count returns the number of records loaded into the zone.
func (a *Authority) Count() int {
	return a.store.Count()
}

// Records returns a snapshot of every record in the zone.
func (a *Authority) Records() []domain.ResourceRecord {
	return a.store.Records()
}

// Load validates and inserts records into the zone's store. Every record's
// owner name must be equal to or below the apex; the first violation aborts
// the load with an error naming the offending record.
func (a *Authority) Load(rrs []domain.ResourceRecord) error {
	for _, rr := range rrs {
		if !utils.InZone(rr.Name, a.apex) {
			return &domain.ConfigurationError{
				Zone:   a.apex,
				Record: fmt.Sprintf("%s %s", rr.Name, rr.Type),
				Reason: "owner name is outside the zone",
			}
		}
		a.store.Insert(rr)
	}
	return nil
}

// Answer resolves a question against the zone. CNAME chains are followed
// within the zone up to maxAliasDepth hops; a loop or depth violation
// returns an error the caller maps to SERVFAIL.
func (a *Authority) Answer(q domain.Question) (domain.Answer, error) {
	recs, exists := a.store.Lookup(q.Name, q.Type, q.Class)
	if len(recs) > 0 {
		return domain.Answer{Outcome: domain.OutcomeAnswered, Records: recs}, nil
	}

	if exists && q.Type != domain.RRTypeCNAME && q.Type != domain.RRTypeANY {
		if cnames, _ := a.store.Lookup(q.Name, domain.RRTypeCNAME, q.Class); len(cnames) > 0 {
			chain, err := a.chase(q, cnames[0])
			if err != nil {
				return domain.Answer{}, err
			}
			return domain.Answer{Outcome: domain.OutcomeAnswered, Records: chain}, nil
		}
	}

	if exists {
		return domain.Answer{Outcome: domain.OutcomeNoData}, nil
	}
	return domain.Answer{Outcome: domain.OutcomeNameError}, nil
}

// chase expands a CNAME chain starting at head, collecting each hop and the
// terminal RRset for the original query type. The chain ends when the target
// leaves the zone, has no further data, or terminates in records of the
// queried type.
func (a *Authority) chase(q domain.Question, head domain.ResourceRecord) ([]domain.ResourceRecord, error) {
	chain := make([]domain.ResourceRecord, 0, 2)
	visited := make(map[string]struct{})
	current := head

	for depth := 0; ; depth++ {
		if depth >= maxAliasDepth {
			return nil, fmt.Errorf("%w: %q", ErrAliasDepthExceeded, q.Name)
		}
		owner := utils.CanonicalDNSName(current.Name)
		if _, seen := visited[owner]; seen {
			return nil, fmt.Errorf("%w: %q", ErrAliasLoopDetected, owner)
		}
		visited[owner] = struct{}{}
		chain = append(chain, current)

		target := utils.CanonicalDNSName(current.Text)
		if !utils.InZone(target, a.apex) {
			// The alias leaves our authority; return the partial chain and
			// let the client resolve the rest.
			return chain, nil
		}

		terminal, _ := a.store.Lookup(target, q.Type, q.Class)
		if len(terminal) > 0 {
			return append(chain, terminal...), nil
		}

		next, _ := a.store.Lookup(target, domain.RRTypeCNAME, q.Class)
		if len(next) == 0 {
			return chain, nil
		}
		current = next[0]
	}
}
