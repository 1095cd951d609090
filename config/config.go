// Package config loads service settings from the environment, optionally
// layered over a YAML file named by CONFIG_FILE.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"taskboard/board"
)

const (
	FeedPostgres = "postgres"
	FeedRedis    = "redis"
	FeedSSE      = "sse"
)

type FeedConfig struct {
	Source        string `yaml:"source"`
	Table         string `yaml:"table"`
	ChannelPrefix string `yaml:"channelPrefix"`
	SSEURL        string `yaml:"sseURL"`
}

type BoardConfig struct {
	PageSize           int           `yaml:"pageSize"`
	Cursor             string        `yaml:"cursor"`
	SearchDebounce     time.Duration `yaml:"searchDebounce"`
	RealtimeDebounce   time.Duration `yaml:"realtimeDebounce"`
	Reconcile          string        `yaml:"reconcile"`
	SessionIdleTimeout time.Duration `yaml:"sessionIdleTimeout"`
}

type CacheConfig struct {
	CountTTL  time.Duration `yaml:"countTTL"`
	LookupTTL time.Duration `yaml:"lookupTTL"`
}

type AuthConfig struct {
	Domain       string        `yaml:"domain"`
	Audience     string        `yaml:"audience"`
	TestMode     bool          `yaml:"testMode"`
	TestSecret   string        `yaml:"testSecret"`
	JWKSCacheTTL time.Duration `yaml:"jwksCacheTTL"`
}

type Config struct {
	ListenAddr            string      `yaml:"listenAddr"`
	DatabaseURL           string      `yaml:"databaseURL"`
	DataServiceURL        string      `yaml:"dataServiceURL"`
	DataServiceKey        string      `yaml:"dataServiceKey"`
	RedisConnectionString string      `yaml:"redis"`
	DiscardLimit          int         `yaml:"discardLimit"`
	Feed                  FeedConfig  `yaml:"feed"`
	Board                 BoardConfig `yaml:"board"`
	Cache                 CacheConfig `yaml:"cache"`
	Auth                  AuthConfig  `yaml:"auth"`
	Tracing               bool        `yaml:"tracing"`
	Debug                 bool        `yaml:"debug"`
}

func Default() Config {
	return Config{
		ListenAddr:   ":8080",
		DiscardLimit: 1000,
		Feed: FeedConfig{
			Source:        FeedPostgres,
			Table:         "projects",
			ChannelPrefix: "realtime:",
		},
		Board: BoardConfig{
			PageSize:           board.DefaultPageSize,
			Cursor:             string(board.CursorWatermark),
			SearchDebounce:     400 * time.Millisecond,
			RealtimeDebounce:   300 * time.Millisecond,
			Reconcile:          string(board.ReconcileReload),
			SessionIdleTimeout: 30 * time.Minute,
		},
		Cache: CacheConfig{
			CountTTL:  30 * time.Second,
			LookupTTL: 10 * time.Minute,
		},
		Auth: AuthConfig{JWKSCacheTTL: 15 * time.Minute},
	}
}

// Load reads CONFIG_FILE (if set) and then the environment.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	e := envReader{lookup: lookup}
	e.str("LISTEN_ADDR", &cfg.ListenAddr)
	e.str("DATABASE_URL", &cfg.DatabaseURL)
	e.str("DATA_SERVICE_URL", &cfg.DataServiceURL)
	e.str("DATA_SERVICE_KEY", &cfg.DataServiceKey)
	e.str("REDIS_CONNECTION_STRING", &cfg.RedisConnectionString)
	e.positive("DISCARD_LIMIT", &cfg.DiscardLimit)
	e.str("FEED_SOURCE", &cfg.Feed.Source)
	e.str("FEED_TABLE", &cfg.Feed.Table)
	e.str("FEED_CHANNEL_PREFIX", &cfg.Feed.ChannelPrefix)
	e.str("FEED_SSE_URL", &cfg.Feed.SSEURL)
	e.positive("BOARD_PAGE_SIZE", &cfg.Board.PageSize)
	e.str("BOARD_CURSOR", &cfg.Board.Cursor)
	e.duration("SEARCH_DEBOUNCE", &cfg.Board.SearchDebounce)
	e.duration("REALTIME_DEBOUNCE", &cfg.Board.RealtimeDebounce)
	e.str("REALTIME_RECONCILE", &cfg.Board.Reconcile)
	e.duration("SESSION_IDLE_TIMEOUT", &cfg.Board.SessionIdleTimeout)
	e.duration("COUNT_CACHE_TTL", &cfg.Cache.CountTTL)
	e.duration("LOOKUP_CACHE_TTL", &cfg.Cache.LookupTTL)
	e.str("AUTH0_DOMAIN", &cfg.Auth.Domain)
	e.str("AUTH0_AUDIENCE", &cfg.Auth.Audience)
	if v, ok := lookup("AUTH0_TEST_MODE"); ok {
		cfg.Auth.TestMode = v == "1"
	}
	e.str("TEST_JWT_SECRET", &cfg.Auth.TestSecret)
	e.duration("JWKS_CACHE_TTL", &cfg.Auth.JWKSCacheTTL)
	e.boolean("TRACING", &cfg.Tracing)
	e.boolean("DEBUG", &cfg.Debug)
	if e.err != nil {
		return Config{}, e.err
	}
	return cfg, cfg.Validate()
}

type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (e *envReader) positive(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok || v == "" || e.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
		return
	}
	if n <= 0 {
		e.err = fmt.Errorf("invalid %s: must be greater than zero", key)
		return
	}
	*dst = n
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok || v == "" || e.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		e.err = fmt.Errorf("invalid %s: %q", key, v)
		return
	}
	*dst = d
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" || e.err != nil {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
		return
	}
	*dst = b
}

// Validate checks that the settings describe a runnable service.
func (c Config) Validate() error {
	if c.DatabaseURL == "" && c.DataServiceURL == "" {
		return errors.New("missing storage config: set DATABASE_URL or DATA_SERVICE_URL")
	}
	switch c.Feed.Source {
	case FeedPostgres:
		if c.DatabaseURL == "" {
			return errors.New("postgres feed needs DATABASE_URL")
		}
	case FeedRedis:
		if c.RedisConnectionString == "" {
			return errors.New("redis feed needs REDIS_CONNECTION_STRING")
		}
	case FeedSSE:
		if c.Feed.SSEURL == "" {
			return errors.New("sse feed needs FEED_SSE_URL")
		}
	default:
		return fmt.Errorf("unknown FEED_SOURCE %q", c.Feed.Source)
	}
	if c.Feed.Table == "" {
		return errors.New("missing FEED_TABLE")
	}
	if _, err := board.ParseCursorStrategy(c.Board.Cursor); err != nil {
		return err
	}
	if _, err := board.ParseReconcile(c.Board.Reconcile); err != nil {
		return err
	}
	if c.Auth.TestMode {
		if c.Auth.TestSecret == "" {
			return errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
	} else if c.Auth.Domain == "" || c.Auth.Audience == "" {
		return errors.New("missing Auth0 config")
	}
	return nil
}

// FeedChannel is the pub/sub channel carrying the table's changes.
func (c Config) FeedChannel() string {
	return c.Feed.ChannelPrefix + c.Feed.Table
}

// SessionConfig converts the board settings. Validate has already vetted
// the enum values.
func (c Config) SessionConfig() board.SessionConfig {
	cursor, _ := board.ParseCursorStrategy(c.Board.Cursor)
	reconcile, _ := board.ParseReconcile(c.Board.Reconcile)
	return board.SessionConfig{
		PageSize:         c.Board.PageSize,
		Cursor:           cursor,
		SearchDebounce:   c.Board.SearchDebounce,
		RealtimeDebounce: c.Board.RealtimeDebounce,
		Reconcile:        reconcile,
	}
}

// RedisOptions parses the connection string, accepting either a redis URL or
// the "host:port,password=...,ssl=true" form. It returns nil when Redis is
// not configured.
func (c Config) RedisOptions() (*redis.Options, error) {
	conn := c.RedisConnectionString
	if conn == "" {
		return nil, nil
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	if parts[0] == "" || strings.Contains(parts[0], "://") {
		return nil, fmt.Errorf("invalid REDIS_CONNECTION_STRING %q", conn)
	}
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}

// JWKSURL is the identity provider's key set endpoint.
func (c Config) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", c.Auth.Domain)
}

func (c Config) Issuer() string {
	return "https://" + c.Auth.Domain + "/"
}
