// Package config loads and validates the server configuration from
// defaults, an optional config file (TOML, YAML, or JSON by extension),
// and ETDNS_-prefixed environment variables, in that precedence order.
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/etdns/etdns/internal/dns/repos/zone"
)

// GeneralConfig holds the server-wide settings from the [general] section.
type GeneralConfig struct {
	// ListenUDP and ListenTCP are host:port listen addresses. At least one
	// must be set; an empty value disables that listener.
	ListenUDP string `koanf:"listen_udp" validate:"omitempty,hostport"`
	ListenTCP string `koanf:"listen_tcp" validate:"omitempty,hostport"`

	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity.
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// ZoneDir optionally points at a directory of zone files, merged with
	// the zones declared inline.
	ZoneDir string `koanf:"zone_dir"`

	// ZoneDB optionally points at the bolt database persisting zones
	// managed at runtime.
	ZoneDB string `koanf:"zone_db"`

	// CacheSize bounds the response cache; zero disables it.
	CacheSize int `koanf:"cache_size" validate:"gte=0"`

	// DefaultTTL applies to records that declare no TTL of their own.
	DefaultTTL string `koanf:"default_ttl" validate:"required"`
}

// AppConfig is the complete configuration document: general settings plus
// inline zone definitions keyed by apex.
type AppConfig struct {
	General GeneralConfig                  `koanf:"general"`
	Zones   map[string][]zone.RecordConfig `koanf:"zones"`
}

// DefaultTTL returns the parsed default record TTL.
func (c *AppConfig) DefaultTTL() (time.Duration, error) {
	d, err := time.ParseDuration(c.General.DefaultTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid default_ttl %q: %w", c.General.DefaultTTL, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("default_ttl must be positive, got %q", c.General.DefaultTTL)
	}
	return d, nil
}

// DEFAULT_APP_CONFIG is the baseline configuration before file and
// environment overrides.
var DEFAULT_APP_CONFIG = AppConfig{
	General: GeneralConfig{
		ListenUDP:  "0.0.0.0:53",
		ListenTCP:  "",
		Env:        "prod",
		LogLevel:   "info",
		CacheSize:  1000,
		DefaultTTL: "5m",
	},
}

// validHostPort accepts "host:port" where host may be empty or an IP, and
// the port is numeric (0 requests an ephemeral port). Hostnames are
// deliberately rejected; listeners bind addresses, they do not resolve
// names.
func validHostPort(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	if host != "" && net.ParseIP(host) == nil {
		return false
	}
	_, err = strconv.ParseUint(port, 10, 16)
	return err == nil
}

// defaultLoader seeds the koanf instance with DEFAULT_APP_CONFIG.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader merges a config file selected by extension. A missing path is
// not an error; configuration may come entirely from env.
var fileLoader = func(k *koanf.Koanf, path string) error {
	if path == "" {
		return nil
	}
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file extension: %s", path)
	}
	return k.Load(file.Provider(path), parser)
}

// envLoader merges ETDNS_-prefixed environment variables into the general
// section, e.g. ETDNS_LISTEN_UDP overrides general.listen_udp.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(delim, env.Opt{
		Prefix: "ETDNS_",
		TransformFunc: func(key, value string) (string, any) {
			key = "general" + delim + strings.ToLower(strings.TrimPrefix(key, "ETDNS_"))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("hostport", validHostPort)
}

// delim separates config key paths. A slash, not the conventional dot,
// because zone apexes ("et.internal") appear as map keys and must not be
// split into nested paths.
const delim = "/"

// Load assembles the configuration from defaults, the optional file at
// path, and the environment, then validates it.
func Load(path string) (*AppConfig, error) {
	k := koanf.New(delim)

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if err := fileLoader(k, path); err != nil {
		return nil, fmt.Errorf("error loading config file: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if cfg.General.ListenUDP == "" && cfg.General.ListenTCP == "" {
		return nil, fmt.Errorf("at least one of listen_udp or listen_tcp must be set")
	}
	if _, err := cfg.DefaultTTL(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
