// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

// package inventory resolves the set of hosts a run targets. Hosts come from
// a static YAML file or from an external inventory command that prints JSON;
// command output is cached on disk and reused while fresh so repeated runs
// don't hammer a slow inventory backend.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/toeirei/warden/internal/logging"
	"github.com/toeirei/warden/internal/model"
	"github.com/toeirei/warden/util/slicest"
)

// document is the shared shape of both the YAML file inventory and the JSON
// command output: a flat host list.
type document struct {
	Hosts []model.Host `yaml:"hosts" json:"hosts"`
}

// LoadFile reads a static YAML inventory.
func LoadFile(path string) ([]model.Host, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse inventory %s: %w", path, err)
	}
	return doc.Hosts, nil
}

// CommandSource runs an external inventory command (anything that prints
// `{"hosts": [...]}` on stdout) with a bounded timeout and a file cache.
type CommandSource struct {
	Command   string        // run via the shell, e.g. "azure-inventory --json"
	CacheFile string        // empty disables caching
	TTL       time.Duration // cache freshness window
	Timeout   time.Duration // hard cap per command run
}

// Hosts returns the inventory, serving the cache when it is fresh. When the
// command fails or times out, a stale cache is better than nothing; with no
// cache at all the result degrades to an empty inventory rather than an
// error, so a flaky inventory backend never breaks the caller.
func (s *CommandSource) Hosts(ctx context.Context) ([]model.Host, error) {
	if cached, ok := s.loadCacheIfFresh(); ok {
		return cached, nil
	}

	out, err := s.run(ctx)
	if err != nil {
		logging.Warnf("inventory command failed: %v", err)
		if stale, ok := s.loadCache(); ok {
			logging.Warnf("serving stale inventory cache %s", s.CacheFile)
			return stale, nil
		}
		return nil, nil
	}

	var doc document
	if err := json.Unmarshal(out, &doc); err != nil {
		return nil, fmt.Errorf("inventory command produced invalid JSON: %w", err)
	}

	s.saveCache(out)
	return doc.Hosts, nil
}

func (s *CommandSource) run(ctx context.Context) ([]byte, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", s.Command)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("inventory command %q: %w", s.Command, err)
	}
	return out, nil
}

// loadCacheIfFresh returns the cached inventory when the cache file's mtime
// is within the TTL.
func (s *CommandSource) loadCacheIfFresh() ([]model.Host, bool) {
	if s.CacheFile == "" || s.TTL <= 0 {
		return nil, false
	}
	info, err := os.Stat(s.CacheFile)
	if err != nil || time.Since(info.ModTime()) >= s.TTL {
		return nil, false
	}
	return s.loadCache()
}

func (s *CommandSource) loadCache() ([]model.Host, bool) {
	if s.CacheFile == "" {
		return nil, false
	}
	data, err := os.ReadFile(s.CacheFile)
	if err != nil {
		return nil, false
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false
	}
	return doc.Hosts, true
}

// saveCache writes the raw command output. Cache failure must never break
// inventory resolution.
func (s *CommandSource) saveCache(data []byte) {
	if s.CacheFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.CacheFile), 0755); err != nil {
		logging.Debugf("inventory cache dir: %v", err)
		return
	}
	if err := os.WriteFile(s.CacheFile, data, 0600); err != nil {
		logging.Debugf("inventory cache write: %v", err)
	}
}

// Filter narrows hosts by a selector: "" or "all" keeps everything,
// "tag=<t>" keeps hosts carrying the tag, anything else matches host names
// (comma-separated list of exact names).
func Filter(hosts []model.Host, selector string) []model.Host {
	selector = strings.TrimSpace(selector)
	if selector == "" || selector == "all" {
		return hosts
	}
	if tag, ok := strings.CutPrefix(selector, "tag="); ok {
		return slicest.Filter(hosts, func(h model.Host) bool { return h.HasTag(tag) })
	}
	names := map[string]bool{}
	for _, n := range strings.Split(selector, ",") {
		names[strings.TrimSpace(n)] = true
	}
	return slicest.Filter(hosts, func(h model.Host) bool { return names[h.String()] })
}
