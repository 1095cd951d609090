package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskboard/board"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":    "postgres://localhost/tasks",
		"AUTH0_TEST_MODE": "1",
		"TEST_JWT_SECRET": "secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(env(baseEnv()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.Board.PageSize != board.DefaultPageSize || cfg.DiscardLimit != 1000 {
		t.Fatalf("unexpected defaults %#v", cfg)
	}
	if cfg.FeedChannel() != "realtime:projects" {
		t.Fatalf("unexpected channel %q", cfg.FeedChannel())
	}
	sc := cfg.SessionConfig()
	if sc.Cursor != board.CursorWatermark || sc.Reconcile != board.ReconcileReload || sc.SearchDebounce != 400*time.Millisecond {
		t.Fatalf("unexpected session config %#v", sc)
	}
	if opts, err := cfg.RedisOptions(); err != nil || opts != nil {
		t.Fatalf("redis should be optional: %v %v", opts, err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	values := baseEnv()
	values["BOARD_PAGE_SIZE"] = "25"
	values["BOARD_CURSOR"] = "offset"
	values["REALTIME_DEBOUNCE"] = "1s"
	values["REALTIME_RECONCILE"] = "counts"
	values["FEED_SOURCE"] = "redis"
	values["REDIS_CONNECTION_STRING"] = "cache.local:6380,password=pw,ssl=true"
	values["DEBUG"] = "true"

	cfg, err := load(env(values))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sc := cfg.SessionConfig()
	if sc.PageSize != 25 || sc.Cursor != board.CursorOffset || sc.RealtimeDebounce != time.Second || sc.Reconcile != board.ReconcileCounts {
		t.Fatalf("unexpected session config %#v", sc)
	}
	if !cfg.Debug {
		t.Fatal("expected debug")
	}
	opts, err := cfg.RedisOptions()
	if err != nil {
		t.Fatalf("redis options: %v", err)
	}
	if opts.Addr != "cache.local:6380" || opts.Password != "pw" || opts.TLSConfig == nil {
		t.Fatalf("unexpected redis options %#v", opts)
	}
}

func TestRedisURL(t *testing.T) {
	cfg := Config{RedisConnectionString: "redis://:pw@localhost:6379/2"}
	opts, err := cfg.RedisOptions()
	if err != nil {
		t.Fatalf("redis options: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 || opts.Password != "pw" {
		t.Fatalf("unexpected options %#v", opts)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"page size":  {"BOARD_PAGE_SIZE": "0"},
		"duration":   {"SEARCH_DEBOUNCE": "soon"},
		"cursor":     {"BOARD_CURSOR": "page"},
		"reconcile":  {"REALTIME_RECONCILE": "never"},
		"feed":       {"FEED_SOURCE": "kafka"},
		"sse url":    {"FEED_SOURCE": "sse"},
		"bool":       {"TRACING": "sometimes"},
		"secret":     {"TEST_JWT_SECRET": ""},
		"no storage": {"DATABASE_URL": "", "FEED_SOURCE": "sse", "FEED_SSE_URL": "http://x"},
	}
	for name, overrides := range cases {
		values := baseEnv()
		for k, v := range overrides {
			if v == "" {
				delete(values, k)
				continue
			}
			values[k] = v
		}
		if _, err := load(env(values)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	values := baseEnv()
	delete(values, "AUTH0_TEST_MODE")
	if _, err := load(env(values)); err == nil || !strings.Contains(err.Error(), "Auth0") {
		t.Fatalf("expected missing Auth0 config, got %v", err)
	}
}

func TestLoadYAMLFileUnderEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskboard.yaml")
	data := `
listenAddr: ":9090"
dataServiceURL: https://data.example.com
feed:
  source: sse
  sseURL: https://data.example.com/realtime
board:
  pageSize: 15
  searchDebounce: 250ms
auth:
  domain: tenant.auth0.com
  audience: api://board
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := load(env(map[string]string{"CONFIG_FILE": path, "LISTEN_ADDR": ":7070"}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Fatalf("environment should win over the file, got %q", cfg.ListenAddr)
	}
	if cfg.Board.PageSize != 15 || cfg.Board.SearchDebounce != 250*time.Millisecond || cfg.Board.RealtimeDebounce != 300*time.Millisecond {
		t.Fatalf("unexpected board config %#v", cfg.Board)
	}
	if cfg.Feed.Table != "projects" || cfg.Feed.Source != FeedSSE {
		t.Fatalf("file should keep unset defaults, got %#v", cfg.Feed)
	}
	if cfg.JWKSURL() != "https://tenant.auth0.com/.well-known/jwks.json" || cfg.Issuer() != "https://tenant.auth0.com/" {
		t.Fatalf("unexpected auth endpoints %q %q", cfg.JWKSURL(), cfg.Issuer())
	}

	if _, err := load(env(map[string]string{"CONFIG_FILE": filepath.Join(t.TempDir(), "missing.yaml")})); err == nil {
		t.Fatal("expected error for missing file")
	}
}
