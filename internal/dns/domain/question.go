package domain

import (
	"fmt"

	"github.com/etdns/etdns/internal/dns/common/utils"
)

// Question represents the question section of a DNS query, plus the
// per-message context the server needs to answer it: the transaction ID,
// whether the client asked for recursion, and the EDNS-advertised UDP
// payload size (0 when the query carried no OPT record).
type Question struct {
	ID               uint16
	Name             string
	Type             RRType
	Class            RRClass
	RecursionDesired bool
	ClientUDPSize    uint16
}

// NewQuestion constructs a Question with a canonicalized name and validates its fields.
func NewQuestion(id uint16, name string, rrtype RRType, class RRClass) (Question, error) {
	q := Question{
		ID:    id,
		Name:  utils.CanonicalDNSName(name),
		Type:  rrtype,
		Class: class,
	}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// Validate checks whether the Question fields are structurally and semantically valid.
func (q Question) Validate() error {
	if q.Name == "" {
		return fmt.Errorf("query name must not be empty")
	}
	if !q.Type.IsValid() {
		return fmt.Errorf("unsupported RRType: %d", q.Type)
	}
	if !q.Class.IsValid() {
		return fmt.Errorf("unsupported RRClass: %d", q.Class)
	}
	return nil
}

// Key returns a lookup key derived from the question's name, type, and class.
// Used by the response cache; pipe separators avoid clashes with colons in
// IPv6 literals.
func (q Question) Key() string {
	return utils.CanonicalDNSName(q.Name) + "|" + q.Type.String() + "|" + q.Class.String()
}
