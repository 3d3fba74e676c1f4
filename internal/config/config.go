// Package config loads the dtnntp TOML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

var AppVersion = "-unset-" // set at build time via -ldflags

// Duration values are given as strings in the TOML file ("24h", "750ms").
// Unparseable values fall back to their defaults instead of failing startup.

// Config is the root of the TOML document.
type Config struct {
	Backend BackendConfig `toml:"backend"`
	DTNd    DTNdConfig    `toml:"dtnd"`
	Backoff BackoffConfig `toml:"backoff"`
	Bundles BundlesConfig `toml:"bundles"`
	Usenet  UsenetConfig  `toml:"usenet"`
	Janitor JanitorConfig `toml:"janitor"`
	NNTP    NNTPConfig    `toml:"nntp"`
	Web     WebConfig     `toml:"web"`
	Log     LogConfig     `toml:"log"`
}

// BackendConfig holds the article store settings.
type BackendConfig struct {
	DBURL string `toml:"db_url"`
}

// DTNdConfig points at the external DTN daemon. An empty NodeID means the
// node id is fetched from the daemon at startup.
type DTNdConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	NodeID   string `toml:"node_id"`
	WSPath   string `toml:"ws_path"`
	RESTPath string `toml:"rest_path"`
}

// BackoffConfig drives the reconnection supervisor: sleep (retries^2) *
// InitialWait before each attempt, after MaxRetries failures sleep
// ReconnectionPause and start over. ConstantWait is the generic
// check-and-wait poll interval.
type BackoffConfig struct {
	InitialWaitStr       string `toml:"initial_wait"`
	MaxRetries           int    `toml:"max_retries"`
	ReconnectionPauseStr string `toml:"reconnection_pause"`
	ConstantWaitStr      string `toml:"constant_wait"`

	InitialWait       time.Duration `toml:"-"`
	ReconnectionPause time.Duration `toml:"-"`
	ConstantWait      time.Duration `toml:"-"`
}

// BundlesConfig sets per-bundle transmission parameters.
type BundlesConfig struct {
	LifetimeStr          string `toml:"lifetime"`
	DeliveryNotification bool   `toml:"delivery_notification"`
	CompressBody         bool   `toml:"compress_body"`

	Lifetime int64 `toml:"-"` // milliseconds
}

// UsenetConfig describes the news side: the sender identity and the carried
// groups. ExpiryTime 0 disables article expiry.
type UsenetConfig struct {
	ExpiryTimeStr string   `toml:"expiry_time"`
	Email         string   `toml:"email"`
	Newsgroups    []string `toml:"newsgroups"`

	ExpiryTime int64 `toml:"-"` // milliseconds
}

// JanitorConfig sets the expiry sweep interval.
type JanitorConfig struct {
	SleepStr string `toml:"sleep"`

	Sleep time.Duration `toml:"-"`
}

// NNTPConfig holds the reader-server settings.
type NNTPConfig struct {
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	Hostname         string `toml:"hostname"`
	ServerType       string `toml:"server_type"` // "read-write" or "read-only"
	MaxEmptyRequests int    `toml:"max_empty_requests"`
	TimeoutStr       string `toml:"timeout"`
	MaxConns         int    `toml:"max_conns"`

	Timeout time.Duration `toml:"-"`
}

// WebConfig enables the read-only status console when Listen is set.
type WebConfig struct {
	Listen string `toml:"listen"`
	Mode   string `toml:"mode"`
}

// LogConfig sets the logrus level.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the built-in configuration. Values mirror the documented
// defaults in config.example.toml.
func Default() *Config {
	cfg := &Config{
		Backend: BackendConfig{DBURL: "dtnntp.sqlite3"},
		DTNd: DTNdConfig{
			Host:     "127.0.0.1",
			Port:     3000,
			NodeID:   "",
			WSPath:   "/ws",
			RESTPath: "",
		},
		Backoff: BackoffConfig{
			InitialWaitStr:       "100ms",
			MaxRetries:           20,
			ReconnectionPauseStr: "5m",
			ConstantWaitStr:      "750ms",
		},
		Bundles: BundlesConfig{
			LifetimeStr:          "24h",
			DeliveryNotification: false,
			CompressBody:         false,
		},
		Usenet: UsenetConfig{
			ExpiryTimeStr: "672h",
			Email:         "none@none.com",
			Newsgroups:    []string{"monntpy.users", "monntpy.dev", "monntpy.offtopic"},
		},
		Janitor: JanitorConfig{SleepStr: "10m"},
		NNTP: NNTPConfig{
			Host:             "",
			Port:             1190,
			Hostname:         "localhost",
			ServerType:       "read-write",
			MaxEmptyRequests: 10,
			TimeoutStr:       "12h",
			MaxConns:         500,
		},
		Web: WebConfig{Listen: "", Mode: "release"},
		Log: LogConfig{Level: "info"},
	}
	cfg.normalize()
	return cfg
}

// Load reads the TOML file at path and merges it over the defaults. A missing
// file is not an error unless required is true: the defaults are used and a
// warning is logged. A syntactically invalid file is always fatal.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !required {
			log.Warnf("Config file '%s' not found, using defaults", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.normalize()
	return cfg, nil
}

// normalize parses every duration string, falling back to the default when a
// value does not parse.
func (c *Config) normalize() {
	def := defaultDurations()

	c.Backoff.InitialWait = parseDuration("backoff.initial_wait", c.Backoff.InitialWaitStr, def["backoff.initial_wait"])
	c.Backoff.ReconnectionPause = parseDuration("backoff.reconnection_pause", c.Backoff.ReconnectionPauseStr, def["backoff.reconnection_pause"])
	c.Backoff.ConstantWait = parseDuration("backoff.constant_wait", c.Backoff.ConstantWaitStr, def["backoff.constant_wait"])
	c.Bundles.Lifetime = parseDuration("bundles.lifetime", c.Bundles.LifetimeStr, def["bundles.lifetime"]).Milliseconds()
	c.Usenet.ExpiryTime = parseDuration("usenet.expiry_time", c.Usenet.ExpiryTimeStr, def["usenet.expiry_time"]).Milliseconds()
	c.Janitor.Sleep = parseDuration("janitor.sleep", c.Janitor.SleepStr, def["janitor.sleep"])
	c.NNTP.Timeout = parseDuration("nntp.timeout", c.NNTP.TimeoutStr, def["nntp.timeout"])
}

func defaultDurations() map[string]time.Duration {
	return map[string]time.Duration{
		"backoff.initial_wait":       100 * time.Millisecond,
		"backoff.reconnection_pause": 5 * time.Minute,
		"backoff.constant_wait":      750 * time.Millisecond,
		"bundles.lifetime":           24 * time.Hour,
		"usenet.expiry_time":         672 * time.Hour,
		"janitor.sleep":              10 * time.Minute,
		"nntp.timeout":               12 * time.Hour,
	}
}

func parseDuration(key, value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	// "0" disables expiry and is not a valid time.ParseDuration input
	if value == "0" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warnf("Unparseable duration for %s: %q, using default %s", key, value, fallback)
		return fallback
	}
	return d
}
