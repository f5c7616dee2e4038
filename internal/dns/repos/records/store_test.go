package records

import (
	"testing"

	"github.com/etdns/etdns/internal/dns/domain"
)

func mustRecord(t *testing.T, name string, rrType domain.RRType, ttl uint32, text string) domain.ResourceRecord {
	t.Helper()
	rr, err := domain.NewResourceRecord(name, rrType, domain.RRClassIN, ttl, []byte(text), text)
	if err != nil {
		t.Fatalf("NewResourceRecord(%s): %v", name, err)
	}
	return rr
}

func TestStore_LookupMatch(t *testing.T) {
	s := New("et.internal")
	s.Insert(mustRecord(t, "www.et.internal", domain.RRTypeA, 60, "123.123.123.123"))

	recs, exists := s.Lookup("www.et.internal", domain.RRTypeA, domain.RRClassIN)
	if !exists {
		t.Fatal("expected name to exist")
	}
	if len(recs) != 1 || recs[0].Text != "123.123.123.123" || recs[0].TTL != 60 {
		t.Errorf("unexpected records: %+v", recs)
	}
}

func TestStore_CaseInsensitive(t *testing.T) {
	s := New("et.internal")
	s.Insert(mustRecord(t, "WWW.ET.Internal", domain.RRTypeA, 60, "1.2.3.4"))

	recs, exists := s.Lookup("www.et.internal", domain.RRTypeA, domain.RRClassIN)
	if !exists || len(recs) != 1 {
		t.Errorf("case-insensitive lookup failed: exists=%v recs=%v", exists, recs)
	}
}

func TestStore_NameAbsent(t *testing.T) {
	s := New("et.internal")
	s.Insert(mustRecord(t, "www.et.internal", domain.RRTypeA, 60, "1.2.3.4"))

	recs, exists := s.Lookup("missing.et.internal", domain.RRTypeA, domain.RRClassIN)
	if exists {
		t.Error("absent name reported as existing")
	}
	if recs != nil {
		t.Errorf("expected nil records, got %v", recs)
	}
}

func TestStore_NoData(t *testing.T) {
	s := New("et.internal")
	s.Insert(mustRecord(t, "www.et.internal", domain.RRTypeA, 60, "1.2.3.4"))

	recs, exists := s.Lookup("www.et.internal", domain.RRTypeMX, domain.RRClassIN)
	if !exists {
		t.Error("existing name reported as absent")
	}
	if len(recs) != 0 {
		t.Errorf("expected no records, got %v", recs)
	}
}

func TestStore_EmptyNonTerminal(t *testing.T) {
	s := New("et.internal")
	s.Insert(mustRecord(t, "a.b.et.internal", domain.RRTypeA, 60, "1.2.3.4"))

	// "b.et.internal" has no records but exists as a parent of a stored name.
	recs, exists := s.Lookup("b.et.internal", domain.RRTypeA, domain.RRClassIN)
	if !exists {
		t.Error("empty non-terminal reported as absent")
	}
	if len(recs) != 0 {
		t.Errorf("expected no records, got %v", recs)
	}
}

func TestStore_LastWriteWins(t *testing.T) {
	s := New("et.internal")
	s.Insert(mustRecord(t, "www.et.internal", domain.RRTypeA, 60, "1.2.3.4"))
	s.Insert(mustRecord(t, "www.et.internal", domain.RRTypeA, 300, "1.2.3.4"))

	recs, _ := s.Lookup("www.et.internal", domain.RRTypeA, domain.RRClassIN)
	if len(recs) != 1 {
		t.Fatalf("identical records should merge, got %d", len(recs))
	}
	if recs[0].TTL != 300 {
		t.Errorf("last write should win on TTL, got %d", recs[0].TTL)
	}
	if s.Count() != 1 {
		t.Errorf("Count() = %d, want 1", s.Count())
	}
}

func TestStore_RoundRobinRecords(t *testing.T) {
	s := New("et.internal")
	s.Insert(mustRecord(t, "www.et.internal", domain.RRTypeA, 60, "1.1.1.1"))
	s.Insert(mustRecord(t, "www.et.internal", domain.RRTypeA, 60, "2.2.2.2"))

	recs, _ := s.Lookup("www.et.internal", domain.RRTypeA, domain.RRClassIN)
	if len(recs) != 2 {
		t.Errorf("distinct RDATA should accumulate, got %d records", len(recs))
	}
}

func TestStore_AnyType(t *testing.T) {
	s := New("et.internal")
	s.Insert(mustRecord(t, "www.et.internal", domain.RRTypeA, 60, "1.1.1.1"))
	s.Insert(mustRecord(t, "www.et.internal", domain.RRTypeTXT, 60, "hello"))

	recs, exists := s.Lookup("www.et.internal", domain.RRTypeANY, domain.RRClassIN)
	if !exists || len(recs) != 2 {
		t.Errorf("ANY lookup = %v records (exists=%v), want 2", len(recs), exists)
	}
}

func TestStore_ClassMismatch(t *testing.T) {
	s := New("et.internal")
	s.Insert(mustRecord(t, "www.et.internal", domain.RRTypeA, 60, "1.1.1.1"))

	recs, exists := s.Lookup("www.et.internal", domain.RRTypeA, domain.RRClassCH)
	if !exists {
		t.Error("name should exist regardless of class")
	}
	if len(recs) != 0 {
		t.Errorf("CH lookup should match nothing, got %v", recs)
	}
}

func TestStore_Records(t *testing.T) {
	s := New("et.internal")
	s.Insert(mustRecord(t, "www.et.internal", domain.RRTypeA, 60, "1.1.1.1"))
	s.Insert(mustRecord(t, "mail.et.internal", domain.RRTypeA, 60, "2.2.2.2"))

	if got := len(s.Records()); got != 2 {
		t.Errorf("Records() returned %d records, want 2", got)
	}
}
