// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package inventory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/toeirei/warden/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "inventory.yaml", `
hosts:
  - name: web-1
    addr: 10.0.0.11
    tags: [web, prod]
  - name: db-1
    addr: 10.0.0.21
    port: 2222
    user: admin
    tags: [db]
`)
	hosts, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(hosts))
	}
	if hosts[0].Name != "web-1" || !hosts[0].HasTag("prod") {
		t.Errorf("host 0 = %+v", hosts[0])
	}
	if hosts[1].DialAddr() != "10.0.0.21:2222" {
		t.Errorf("dial addr = %s", hosts[1].DialAddr())
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile("/nonexistent/inventory.yaml"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCommandSourceRunsCommand(t *testing.T) {
	src := &CommandSource{Command: `echo '{"hosts":[{"name":"web-1"}]}'`}
	hosts, err := src.Hosts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hosts) != 1 || hosts[0].Name != "web-1" {
		t.Fatalf("hosts = %+v", hosts)
	}
}

func TestCommandSourceServesFreshCache(t *testing.T) {
	cache := writeFile(t, t.TempDir(), "cache.json", `{"hosts":[{"name":"cached-1"}]}`)
	src := &CommandSource{
		Command:   "false", // would fail if run
		CacheFile: cache,
		TTL:       time.Hour,
	}
	hosts, err := src.Hosts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hosts) != 1 || hosts[0].Name != "cached-1" {
		t.Fatalf("expected cached host, got %+v", hosts)
	}
}

func TestCommandSourceFallsBackToStaleCache(t *testing.T) {
	dir := t.TempDir()
	cache := writeFile(t, dir, "cache.json", `{"hosts":[{"name":"stale-1"}]}`)
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(cache, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	src := &CommandSource{
		Command:   "false",
		CacheFile: cache,
		TTL:       time.Minute,
	}
	hosts, err := src.Hosts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hosts) != 1 || hosts[0].Name != "stale-1" {
		t.Fatalf("expected stale cache host, got %+v", hosts)
	}
}

func TestCommandSourceDegradesToEmpty(t *testing.T) {
	src := &CommandSource{Command: "false"}
	hosts, err := src.Hosts(context.Background())
	if err != nil {
		t.Fatalf("failure without cache must degrade, got %v", err)
	}
	if len(hosts) != 0 {
		t.Fatalf("expected empty inventory, got %+v", hosts)
	}
}

func TestCommandSourceWritesCache(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "cache.json")
	src := &CommandSource{
		Command:   `echo '{"hosts":[{"name":"web-1"}]}'`,
		CacheFile: cache,
		TTL:       time.Hour,
	}
	if _, err := src.Hosts(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(cache); err != nil {
		t.Fatalf("cache file not written: %v", err)
	}
}

func TestFilter(t *testing.T) {
	hosts := []model.Host{
		{Name: "web-1", Tags: []string{"web"}},
		{Name: "web-2", Tags: []string{"web"}},
		{Name: "db-1", Tags: []string{"db"}},
	}

	if got := Filter(hosts, "all"); len(got) != 3 {
		t.Errorf("all: got %d", len(got))
	}
	if got := Filter(hosts, ""); len(got) != 3 {
		t.Errorf("empty: got %d", len(got))
	}
	if got := Filter(hosts, "tag=web"); len(got) != 2 {
		t.Errorf("tag=web: got %d", len(got))
	}
	got := Filter(hosts, "db-1, web-2")
	if len(got) != 2 {
		t.Fatalf("name list: got %+v", got)
	}
	if got[0].Name != "web-2" || got[1].Name != "db-1" {
		t.Errorf("name list order must follow inventory order, got %+v", got)
	}
}
