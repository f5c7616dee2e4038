// Package zone turns declarative zone data into authoritative resource
// records. Zones come from two places: record lists embedded in the server
// config, and standalone zone files (YAML, JSON, TOML) in a zone directory.
package zone

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/etdns/etdns/internal/dns/common/rrdata"
	"github.com/etdns/etdns/internal/dns/common/utils"
	"github.com/etdns/etdns/internal/dns/domain"
)

// RecordConfig is one declarative record inside a zone definition. Name may
// be "@" for the apex, a relative label, or an absolute name. TTL is a
// duration string ("60s", "5m"); empty means the default TTL applies.
type RecordConfig struct {
	Type  string `koanf:"type"`
	Name  string `koanf:"name"`
	Value string `koanf:"value"`
	TTL   string `koanf:"ttl"`
}

// FromConfig converts a zone's configured record list into resource records.
// Every failure is a ConfigurationError naming the zone and the record, so
// the operator sees exactly which line is broken.
func FromConfig(apex string, recs []RecordConfig, defaultTTL time.Duration) ([]domain.ResourceRecord, error) {
	apex = utils.CanonicalDNSName(apex)
	out := make([]domain.ResourceRecord, 0, len(recs))

	for _, rc := range recs {
		label := fmt.Sprintf("%s %s %s", rc.Name, rc.Type, rc.Value)

		rrType := domain.RRTypeFromString(rc.Type)
		ttl := defaultTTL
		if rc.TTL != "" {
			parsed, err := time.ParseDuration(rc.TTL)
			if err != nil {
				return nil, &domain.ConfigurationError{
					Zone: apex, Record: label, Reason: "invalid ttl", Err: err,
				}
			}
			ttl = parsed
		}

		data, err := rrdata.Encode(rrType, rc.Value)
		if err != nil {
			return nil, &domain.ConfigurationError{
				Zone: apex, Record: label, Reason: "invalid record data", Err: err,
			}
		}

		fqdn := utils.CanonicalDNSName(expandName(rc.Name, apex))
		rr, err := domain.NewResourceRecord(fqdn, rrType, domain.RRClassIN, uint32(ttl.Seconds()), data, rc.Value)
		if err != nil {
			return nil, &domain.ConfigurationError{
				Zone: apex, Record: label, Reason: "invalid record", Err: err,
			}
		}
		out = append(out, rr)
	}
	return out, nil
}

// LoadDirectory walks dir, parsing every supported zone file and returning
// records grouped by zone root. Files with unsupported extensions are
// skipped; a file that fails to parse aborts the whole load.
func LoadDirectory(dir string, defaultTTL time.Duration) (map[string][]domain.ResourceRecord, error) {
	zones := make(map[string][]domain.ResourceRecord)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		root, records, err := loadZoneFile(path, defaultTTL)
		if err != nil {
			return fmt.Errorf("zone file %s: %w", path, err)
		}
		if root != "" && len(records) > 0 {
			zones[root] = append(zones[root], records...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return zones, nil
}

// expandName resolves a record label against the zone root: "@" means the
// root itself, absolute names pass through, anything else is relative.
func expandName(label, root string) string {
	if label == "@" || label == "" {
		return root
	}
	if strings.HasSuffix(label, ".") {
		return label
	}
	return label + "." + root
}

// toStringValues normalizes a raw koanf value (string or list of strings)
// into non-empty strings, dropping anything else.
func toStringValues(val any) []string {
	switch v := val.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		return []string{s}
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			s, ok := elem.(string)
			if !ok {
				continue
			}
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

// loadZoneFile parses a single zone file and returns its root and records.
// The file maps owner labels to {type: value} entries plus a mandatory
// "zone_root" key.
func loadZoneFile(path string, defaultTTL time.Duration) (string, []domain.ResourceRecord, error) {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return "", nil, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return "", nil, err
	}

	root := utils.CanonicalDNSName(k.String("zone_root"))
	if root == "" {
		return "", nil, fmt.Errorf("missing 'zone_root'")
	}

	var records []domain.ResourceRecord
	for name, raw := range k.Raw() {
		if name == "zone_root" {
			continue
		}
		rawMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		fqdn := utils.CanonicalDNSName(expandName(name, root))
		for rrType, val := range rawMap {
			for _, value := range toStringValues(val) {
				recs, err := FromConfig(root, []RecordConfig{{
					Type: rrType, Name: fqdn + ".", Value: value,
				}}, defaultTTL)
				if err != nil {
					return "", nil, err
				}
				records = append(records, recs...)
			}
		}
	}
	return root, records, nil
}
