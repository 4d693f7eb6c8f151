package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type VantageConfig struct {
	Listen         string         `yaml:"listen"`
	ProxyProtocol  bool           `yaml:"proxy_protocol"`
	TrustedProxies []string       `yaml:"trusted_proxies"`
	Provider       ProviderConfig `yaml:"provider"`
	ServerLocation *Coordinates   `yaml:"server_location"`
	Session        SessionConfig  `yaml:"session"`
	RateLimit      RateLimit      `yaml:"rate_limit"`
	CORS           CORSConfig     `yaml:"cors"`
	Log            LogConfig      `yaml:"log"`
	Admin          AdminConfig    `yaml:"admin"`
}

// ProviderConfig selects where network records come from.
// Kind is "http" (remote JSON endpoint) or "geoip" (local MaxMind databases).
// EndpointTemplate is the per-visitor form of Endpoint with an {ip} placeholder;
// Endpoint alone is only used when the visitor address is unknown.
type ProviderConfig struct {
	Kind             string        `yaml:"kind"`
	Endpoint         string        `yaml:"endpoint"`
	EndpointTemplate string        `yaml:"endpoint_template"`
	Timeout          time.Duration `yaml:"timeout"`
	CityDB           string        `yaml:"city_db"`
	ASNDB            string        `yaml:"asn_db"`
}

type Coordinates struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

type SessionConfig struct {
	Secret     string        `yaml:"secret"`
	TTL        time.Duration `yaml:"ttl"`
	CookieName string        `yaml:"cookie_name"`
}

// RateLimit configures per-IP throttling. Backend is "memory" or "redis".
type RateLimit struct {
	Backend           string `yaml:"backend"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	Burst             int    `yaml:"burst"`
	RedisAddr         string `yaml:"redis_addr"`
}

// CORSConfig lists origins allowed to read the API from other sites. Empty
// means same-origin only.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AdminConfig guards the session housekeeping routes. They stay
// unmounted while APIKey is empty.
type AdminConfig struct {
	APIKey string `yaml:"api_key"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *VantageConfig {
	return &VantageConfig{
		Listen:         ":8080",
		TrustedProxies: []string{"127.0.0.0/8", "::1/128"},
		Provider: ProviderConfig{
			Kind:             "http",
			Endpoint:         "https://ipapi.co/json/",
			EndpointTemplate: "https://ipapi.co/{ip}/json/",
			Timeout:          10 * time.Second,
		},
		Session: SessionConfig{
			TTL:        30 * time.Minute,
			CookieName: "vantage_session",
		},
		RateLimit: RateLimit{
			Backend:           "memory",
			RequestsPerMinute: 60,
			Burst:             20,
			RedisAddr:         "localhost:6379",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads path over the defaults. The returned config is always
// usable; a non-nil error tells the caller the file was not applied.
func LoadConfig(path string) (*VantageConfig, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warnf("LoadConfig: failed to read config file %s: %v", path, err)
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Warnf("LoadConfig: failed to unmarshal config: %v", err)
		return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return DefaultConfig(), err
	}
	return cfg, nil
}

// Validate rejects values the service cannot start with.
func (c *VantageConfig) Validate() error {
	switch c.Provider.Kind {
	case "http":
		if c.Provider.Endpoint == "" {
			return fmt.Errorf("provider.endpoint is required for kind http")
		}
		if t := c.Provider.EndpointTemplate; t != "" && !strings.Contains(t, "{ip}") {
			return fmt.Errorf("provider.endpoint_template must contain {ip}")
		}
	case "geoip":
		if c.Provider.CityDB == "" {
			return fmt.Errorf("provider.city_db is required for kind geoip")
		}
	default:
		return fmt.Errorf("unknown provider.kind %q", c.Provider.Kind)
	}
	switch c.RateLimit.Backend {
	case "memory", "redis", "off":
	default:
		return fmt.Errorf("unknown rate_limit.backend %q", c.RateLimit.Backend)
	}
	if c.Provider.Timeout < 0 {
		return fmt.Errorf("provider.timeout must not be negative")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	for _, p := range c.TrustedProxies {
		if !validProxyEntry(p) {
			return fmt.Errorf("trusted_proxies: %q is neither an address nor a CIDR", p)
		}
	}
	return nil
}

func validProxyEntry(s string) bool {
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}
