package domain

import (
	"bytes"
	"fmt"

	"github.com/etdns/etdns/internal/dns/common/utils"
)

// ResourceRecord represents an authoritative DNS resource record served from
// a configured zone. Records are immutable once constructed and never expire;
// the TTL is preserved verbatim for wire responses.
type ResourceRecord struct {
	Name  string
	Type  RRType
	Class RRClass
	TTL   uint32
	Data  []byte // wire-encoded RDATA
	Text  string // original presentation form, e.g. "123.123.123.123"
}

// NewResourceRecord constructs a ResourceRecord with a canonicalized owner
// name and validates its fields.
func NewResourceRecord(name string, rrtype RRType, class RRClass, ttl uint32, data []byte, text string) (ResourceRecord, error) {
	rr := ResourceRecord{
		Name:  utils.CanonicalDNSName(name),
		Type:  rrtype,
		Class: class,
		TTL:   ttl,
		Data:  data,
		Text:  text,
	}
	if err := rr.Validate(); err != nil {
		return ResourceRecord{}, err
	}
	return rr, nil
}

// Validate checks whether the ResourceRecord fields are valid.
func (rr ResourceRecord) Validate() error {
	if rr.Name == "" {
		return fmt.Errorf("record name must not be empty")
	}
	if !rr.Type.IsValid() {
		return fmt.Errorf("invalid RRType: %d", rr.Type)
	}
	if !rr.Class.IsValid() {
		return fmt.Errorf("invalid RRClass: %d", rr.Class)
	}
	if rr.Text == "" && len(rr.Data) == 0 {
		return fmt.Errorf("either Text or Data must be set")
	}
	return nil
}

// Key returns a lookup key derived from the record's name, type, and class.
func (rr ResourceRecord) Key() string {
	return rr.Name + "|" + rr.Type.String() + "|" + rr.Class.String()
}

// SameIdentity reports whether two records describe the same owner, type,
// class, and RDATA. Insertion treats such records as one logical record
// (last write wins on the TTL).
func (rr ResourceRecord) SameIdentity(other ResourceRecord) bool {
	return rr.Name == other.Name &&
		rr.Type == other.Type &&
		rr.Class == other.Class &&
		bytes.Equal(rr.Data, other.Data)
}
