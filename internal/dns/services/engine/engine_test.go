package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etdns/etdns/internal/dns/common/clock"
	"github.com/etdns/etdns/internal/dns/common/log"
	"github.com/etdns/etdns/internal/dns/common/rrdata"
	"github.com/etdns/etdns/internal/dns/domain"
	"github.com/etdns/etdns/internal/dns/repos/authority"
	"github.com/etdns/etdns/internal/dns/repos/catalog"
	"github.com/etdns/etdns/internal/dns/repos/zonestore"
)

// countingCatalog wraps a real catalog and counts resolution calls, so cache
// hits are observable.
type countingCatalog struct {
	*catalog.Catalog
	answers int
}

func (c *countingCatalog) Answer(q domain.Question) (domain.Answer, bool, error) {
	c.answers++
	return c.Catalog.Answer(q)
}

func record(t *testing.T, name string, rrType domain.RRType, ttl uint32, text string) domain.ResourceRecord {
	t.Helper()
	data, err := rrdata.Encode(rrType, text)
	require.NoError(t, err)
	rr, err := domain.NewResourceRecord(name, rrType, domain.RRClassIN, ttl, data, text)
	require.NoError(t, err)
	return rr
}

func testAuthority(t *testing.T, apex string, rrs ...domain.ResourceRecord) *authority.Authority {
	t.Helper()
	auth, err := authority.New(apex, domain.ZonePrimary)
	require.NoError(t, err)
	require.NoError(t, auth.Load(rrs))
	return auth
}

func question(t *testing.T, id uint16, name string, rrType domain.RRType) domain.Question {
	t.Helper()
	q, err := domain.NewQuestion(id, name, rrType, domain.RRClassIN)
	require.NoError(t, err)
	return q
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	e, err := New(opts)
	require.NoError(t, err)
	return e
}

func TestHandleQuery_Answered(t *testing.T) {
	cat := catalog.New()
	cat.Upsert(testAuthority(t, "et.internal",
		record(t, "www.et.internal", domain.RRTypeA, 60, "123.123.123.123")))
	e := newTestEngine(t, Options{Catalog: cat})

	resp := e.HandleQuery(context.Background(), question(t, 1, "www.et.internal", domain.RRTypeA), nil)

	assert.Equal(t, domain.RCodeNoError, resp.RCode)
	assert.True(t, resp.Authoritative)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, "123.123.123.123", resp.Answers[0].Text)
}

func TestHandleQuery_NoData(t *testing.T) {
	cat := catalog.New()
	cat.Upsert(testAuthority(t, "et.internal",
		record(t, "www.et.internal", domain.RRTypeA, 60, "1.2.3.4")))
	e := newTestEngine(t, Options{Catalog: cat})

	resp := e.HandleQuery(context.Background(), question(t, 2, "www.et.internal", domain.RRTypeMX), nil)

	assert.Equal(t, domain.RCodeNoError, resp.RCode)
	assert.True(t, resp.Authoritative)
	assert.Empty(t, resp.Answers)
}

func TestHandleQuery_NXDomain(t *testing.T) {
	cat := catalog.New()
	cat.Upsert(testAuthority(t, "et.internal",
		record(t, "www.et.internal", domain.RRTypeA, 60, "1.2.3.4")))
	e := newTestEngine(t, Options{Catalog: cat})

	resp := e.HandleQuery(context.Background(), question(t, 3, "missing.et.internal", domain.RRTypeA), nil)

	assert.Equal(t, domain.RCodeNXDomain, resp.RCode)
	assert.True(t, resp.Authoritative)
	assert.Empty(t, resp.Answers)
}

func TestHandleQuery_Refused(t *testing.T) {
	cat := catalog.New()
	cat.Upsert(testAuthority(t, "et.internal"))
	e := newTestEngine(t, Options{Catalog: cat})

	resp := e.HandleQuery(context.Background(), question(t, 4, "www.example.com", domain.RRTypeA), nil)

	assert.Equal(t, domain.RCodeRefused, resp.RCode)
	assert.False(t, resp.Authoritative)
}

func TestHandleQuery_ServFailOnAliasLoop(t *testing.T) {
	cat := catalog.New()
	cat.Upsert(testAuthority(t, "et.internal",
		record(t, "x.et.internal", domain.RRTypeCNAME, 60, "y.et.internal"),
		record(t, "y.et.internal", domain.RRTypeCNAME, 60, "x.et.internal")))
	e := newTestEngine(t, Options{Catalog: cat})

	resp := e.HandleQuery(context.Background(), question(t, 5, "x.et.internal", domain.RRTypeA), nil)

	assert.Equal(t, domain.RCodeServFail, resp.RCode)
}

func TestHandleQuery_CacheHit(t *testing.T) {
	cat := &countingCatalog{Catalog: catalog.New()}
	cat.Upsert(testAuthority(t, "et.internal",
		record(t, "www.et.internal", domain.RRTypeA, 60, "1.2.3.4")))
	clk := &clock.MockClock{}
	e := newTestEngine(t, Options{Catalog: cat, CacheSize: 16, Clock: clk})

	first := e.HandleQuery(context.Background(), question(t, 10, "www.et.internal", domain.RRTypeA), nil)
	second := e.HandleQuery(context.Background(), question(t, 11, "www.et.internal", domain.RRTypeA), nil)

	assert.Equal(t, 1, cat.answers, "second query should come from cache")
	assert.Equal(t, uint16(10), first.ID)
	assert.Equal(t, uint16(11), second.ID, "cached response must carry the new transaction ID")
	assert.Equal(t, first.Answers, second.Answers)
}

func TestHandleQuery_CacheExpiry(t *testing.T) {
	cat := &countingCatalog{Catalog: catalog.New()}
	cat.Upsert(testAuthority(t, "et.internal",
		record(t, "www.et.internal", domain.RRTypeA, 60, "1.2.3.4")))
	clk := &clock.MockClock{}
	e := newTestEngine(t, Options{Catalog: cat, CacheSize: 16, Clock: clk})

	e.HandleQuery(context.Background(), question(t, 1, "www.et.internal", domain.RRTypeA), nil)
	clk.Advance(61 * time.Second)
	e.HandleQuery(context.Background(), question(t, 2, "www.et.internal", domain.RRTypeA), nil)

	assert.Equal(t, 2, cat.answers, "expired entry should be resolved again")
}

func TestUpsertZone_ReplacesAndPurgesCache(t *testing.T) {
	cat := catalog.New()
	cat.Upsert(testAuthority(t, "et.internal",
		record(t, "www.et.internal", domain.RRTypeA, 60, "1.1.1.1")))
	e := newTestEngine(t, Options{Catalog: cat, CacheSize: 16, Clock: &clock.MockClock{}})

	q := question(t, 1, "www.et.internal", domain.RRTypeA)
	first := e.HandleQuery(context.Background(), q, nil)
	require.Equal(t, "1.1.1.1", first.Answers[0].Text)

	err := e.UpsertZone("et.internal", []domain.ResourceRecord{
		record(t, "www.et.internal", domain.RRTypeA, 60, "2.2.2.2"),
	})
	require.NoError(t, err)

	second := e.HandleQuery(context.Background(), q, nil)
	require.Len(t, second.Answers, 1)
	assert.Equal(t, "2.2.2.2", second.Answers[0].Text, "stale cache entry served after upsert")
}

func TestUpsertZone_RejectsBadRecords(t *testing.T) {
	e := newTestEngine(t, Options{Catalog: catalog.New()})

	err := e.UpsertZone("et.internal", []domain.ResourceRecord{
		record(t, "www.example.com", domain.RRTypeA, 60, "1.1.1.1"),
	})
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestZonePersistence(t *testing.T) {
	store, err := zonestore.Open(filepath.Join(t.TempDir(), "zones.db"))
	require.NoError(t, err)
	defer store.Close()

	cat := catalog.New()
	e := newTestEngine(t, Options{Catalog: cat, Store: store})

	require.NoError(t, e.UpsertZone("et.top", []domain.ResourceRecord{
		record(t, "www.et.top", domain.RRTypeA, 60, "9.9.9.9"),
	}))

	// A fresh engine over the same store restores the zone.
	cat2 := catalog.New()
	e2 := newTestEngine(t, Options{Catalog: cat2, Store: store})
	require.NoError(t, e2.LoadPersistedZones())

	resp := e2.HandleQuery(context.Background(), question(t, 1, "www.et.top", domain.RRTypeA), nil)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, "9.9.9.9", resp.Answers[0].Text)

	// Removal clears both catalog and store.
	require.NoError(t, e2.RemoveZone("et.top"))
	zones, err := store.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, zones)
}

func TestLoadPersistedZones_ConfiguredZoneWins(t *testing.T) {
	store, err := zonestore.Open(filepath.Join(t.TempDir(), "zones.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PutZone("et.internal", []domain.ResourceRecord{
		record(t, "www.et.internal", domain.RRTypeA, 60, "8.8.8.8"),
	}))

	cat := catalog.New()
	cat.Upsert(testAuthority(t, "et.internal",
		record(t, "www.et.internal", domain.RRTypeA, 60, "1.1.1.1")))
	e := newTestEngine(t, Options{Catalog: cat, Store: store})
	require.NoError(t, e.LoadPersistedZones())

	resp := e.HandleQuery(context.Background(), question(t, 1, "www.et.internal", domain.RRTypeA), nil)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, "1.1.1.1", resp.Answers[0].Text)
}

func TestStats_Recorded(t *testing.T) {
	cat := catalog.New()
	cat.Upsert(testAuthority(t, "et.internal",
		record(t, "www.et.internal", domain.RRTypeA, 60, "1.1.1.1")))
	e := newTestEngine(t, Options{Catalog: cat})

	e.HandleQuery(context.Background(), question(t, 1, "www.et.internal", domain.RRTypeA), nil)
	e.HandleQuery(context.Background(), question(t, 2, "missing.et.internal", domain.RRTypeA), nil)

	snapshot := e.Stats().Snapshot()
	require.Contains(t, snapshot, "et.internal")
	c := snapshot["et.internal"]
	assert.Equal(t, uint64(2), c.Queries)
	assert.Equal(t, uint64(1), c.RCodes[domain.RCodeNoError])
	assert.Equal(t, uint64(1), c.RCodes[domain.RCodeNXDomain])
}

func TestNew_RequiresCatalog(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
