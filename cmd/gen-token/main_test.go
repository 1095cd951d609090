package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestUsersNaming(t *testing.T) {
	got := users(3, "perf", 5, "example.com", nil)
	if got[0].ID != "perf-5" || got[2].ID != "perf-7" || got[1].Email != "perf-6@example.com" {
		t.Fatalf("unexpected users %#v", got)
	}
	if one := users(1, "perf", 1, "", []string{"ana"}); one[0].ID != "ana" || one[0].Email != "" {
		t.Fatalf("explicit id should win, got %#v", one)
	}
}

func TestWriteTokens(t *testing.T) {
	tokens, err := generateTokens([]byte("secret"), users(2, "u", 1, "", nil), time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	if err := writeTokens(path, tokens); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var back []string
	if err := sonic.Unmarshal(data, &back); err != nil || len(back) != 2 || back[1] != tokens[1] {
		t.Fatalf("unexpected file %s: %v", data, err)
	}
}
