// Package zonestore persists dynamically managed zones in a bbolt database
// so they survive restarts. Zones declared in config or zone files are not
// written here; only runtime upserts are.
package zonestore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/etdns/etdns/internal/dns/domain"
)

var zonesBucket = []byte("zones")

// Store wraps a bbolt database holding one key per zone apex. The value is
// the zone's record set in a compact binary form.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the zone database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open zone db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(zonesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init zone db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutZone stores the full record set for a zone, replacing any previous set.
func (s *Store) PutZone(apex string, rrs []domain.ResourceRecord) error {
	data, err := encodeRecords(rrs)
	if err != nil {
		return fmt.Errorf("encode zone %s: %w", apex, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(zonesBucket).Put([]byte(apex), data)
	})
}

// DeleteZone removes a zone from the database. Deleting an absent zone is
// a no-op.
func (s *Store) DeleteZone(apex string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(zonesBucket).Delete([]byte(apex))
	})
}

// LoadAll returns every persisted zone keyed by apex.
func (s *Store) LoadAll() (map[string][]domain.ResourceRecord, error) {
	zones := make(map[string][]domain.ResourceRecord)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(zonesBucket).ForEach(func(k, v []byte) error {
			rrs, err := decodeRecords(v)
			if err != nil {
				return fmt.Errorf("decode zone %s: %w", k, err)
			}
			zones[string(k)] = rrs
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return zones, nil
}

// Record wire layout, repeated per record:
//
//	u16 name length, name bytes
//	u16 type, u16 class, u32 ttl
//	u16 rdata length, rdata bytes
//	u16 text length, text bytes
func encodeRecords(rrs []domain.ResourceRecord) ([]byte, error) {
	var buf bytes.Buffer
	for _, rr := range rrs {
		if err := writeField(&buf, []byte(rr.Name)); err != nil {
			return nil, fmt.Errorf("record %s: %w", rr.Name, err)
		}
		binary.Write(&buf, binary.BigEndian, uint16(rr.Type))
		binary.Write(&buf, binary.BigEndian, uint16(rr.Class))
		binary.Write(&buf, binary.BigEndian, rr.TTL)
		if err := writeField(&buf, rr.Data); err != nil {
			return nil, fmt.Errorf("record %s: %w", rr.Name, err)
		}
		if err := writeField(&buf, []byte(rr.Text)); err != nil {
			return nil, fmt.Errorf("record %s: %w", rr.Name, err)
		}
	}
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, field []byte) error {
	if len(field) > 0xFFFF {
		return fmt.Errorf("field of %d bytes exceeds length prefix", len(field))
	}
	binary.Write(buf, binary.BigEndian, uint16(len(field)))
	buf.Write(field)
	return nil
}

func decodeRecords(data []byte) ([]domain.ResourceRecord, error) {
	var rrs []domain.ResourceRecord
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		name, err := readField(r)
		if err != nil {
			return nil, err
		}
		var rrType, class uint16
		var ttl uint32
		if err := binary.Read(r, binary.BigEndian, &rrType); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &class); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &ttl); err != nil {
			return nil, err
		}
		rdata, err := readField(r)
		if err != nil {
			return nil, err
		}
		text, err := readField(r)
		if err != nil {
			return nil, err
		}
		rr, err := domain.NewResourceRecord(string(name), domain.RRType(rrType), domain.RRClass(class), ttl, rdata, string(text))
		if err != nil {
			return nil, err
		}
		rrs = append(rrs, rr)
	}
	return rrs, nil
}

func readField(r *bytes.Reader) ([]byte, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	field := make([]byte, n)
	if _, err := io.ReadFull(r, field); err != nil {
		return nil, err
	}
	return field, nil
}
